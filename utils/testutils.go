package testutils

import (
	"crypto/rand"
	"io"
	"log"
	"testing"
)

// RandomData creates a random blob of the specified size.
func RandomData(size int) []byte {
	data := make([]byte, size)

	for i := 0; i < 3; i++ {
		// This is not expected to fail, but hopefully it convinces
		// linters that we checked for errors.
		_, err := rand.Read(data)
		if err == nil {
			break
		}
	}

	return data
}

// NewSilentLogger returns a cheap logger that doesn't print anything, useful
// for tests.
func NewSilentLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// AssertEquals fails the test if expected and actual values are not equal.
// It works with any comparable type.
func AssertEquals[T comparable](t *testing.T, expected T, actual T) {
	t.Helper()
	if expected != actual {
		t.Fatalf("Expected %v, but got %v.", expected, actual)
	}
}

// AssertSuccess asserts that the provided result represents a successful
// outcome (a nil error, or true).
func AssertSuccess(t *testing.T, result interface{}) {
	t.Helper()
	switch v := result.(type) {
	case nil:
		return
	case error:
		if v != nil {
			t.Fatalf("Expected success, but got error: %v", v)
		}
	case bool:
		if !v {
			t.Fatalf("Expected success, but got false value")
		}
	default:
		t.Fatalf("Unsupported type: %T", v)
	}
}

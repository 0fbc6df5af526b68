//go:build windows

package main

// windows has no SIGPIPE to mask.
func ignoreSIGPIPE() {
}

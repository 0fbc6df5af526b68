package config

import (
	"runtime"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestValidYamlConfig(t *testing.T) {
	yaml := `listen_address: 127.0.0.1:11211
variant: reactor
max_size: 1048576
max_workers: 64
reactor_workers: 4
read_timeout: 10s
compression_threshold: 4096
admin_address: 127.0.0.1:9090
idle_timeout: 1h
access_log_level: none
`
	config, err := newFromYaml([]byte(yaml))
	if err != nil {
		t.Fatal(err)
	}

	expected := &Config{
		ListenAddress:        "127.0.0.1:11211",
		Variant:              VariantReactor,
		MaxSize:              1048576,
		MaxWorkers:           64,
		ReactorWorkers:       4,
		ReadTimeout:          10 * time.Second,
		CompressionThreshold: 4096,
		AdminAddress:         "127.0.0.1:9090",
		IdleTimeout:          time.Hour,
		AccessLogLevel:       "none",
	}

	if !cmp.Equal(config, expected) {
		t.Fatalf("expected %+v but got %+v", expected, config)
	}
}

func TestYamlConfigAppliesDefaults(t *testing.T) {
	yaml := `listen_address: 127.0.0.1:11211
max_size: 1048576
`
	config, err := newFromYaml([]byte(yaml))
	if err != nil {
		t.Fatal(err)
	}

	if config.Variant != VariantThreaded {
		t.Fatalf("expected default variant %q, got %q", VariantThreaded, config.Variant)
	}
	if config.MaxWorkers != 256 {
		t.Fatalf("expected default max_workers 256, got %d", config.MaxWorkers)
	}
	if config.ReactorWorkers != runtime.NumCPU() {
		t.Fatalf("expected default reactor_workers %d, got %d", runtime.NumCPU(), config.ReactorWorkers)
	}
	if config.ReadTimeout != 5*time.Second {
		t.Fatalf("expected default read_timeout 5s, got %s", config.ReadTimeout)
	}
	if config.AccessLogLevel != "all" {
		t.Fatalf("expected default access_log_level \"all\", got %q", config.AccessLogLevel)
	}
}

func TestMissingListenAddressRejected(t *testing.T) {
	_, err := newFromYaml([]byte("max_size: 1024\n"))
	if err == nil {
		t.Fatal("expected an error for a missing listen_address")
	}
}

func TestMissingMaxSizeRejected(t *testing.T) {
	_, err := newFromYaml([]byte("listen_address: 127.0.0.1:11211\n"))
	if err == nil {
		t.Fatal("expected an error for a missing max_size")
	}
}

func TestInvalidVariantRejected(t *testing.T) {
	yaml := `listen_address: 127.0.0.1:11211
max_size: 1024
variant: bogus
`
	_, err := newFromYaml([]byte(yaml))
	if err == nil {
		t.Fatal("expected an error for an invalid variant")
	}
}

func TestInvalidAccessLogLevelRejected(t *testing.T) {
	yaml := `listen_address: 127.0.0.1:11211
max_size: 1024
access_log_level: verbose
`
	_, err := newFromYaml([]byte(yaml))
	if err == nil {
		t.Fatal("expected an error for an invalid access_log_level")
	}
}

func TestAdminHtpasswdRequiresAdminAddress(t *testing.T) {
	yaml := `listen_address: 127.0.0.1:11211
max_size: 1024
admin_htpasswd_file: /opt/.htpasswd
`
	_, err := newFromYaml([]byte(yaml))
	if err == nil {
		t.Fatal("expected an error when admin_htpasswd_file is set without admin_address")
	}
}

func TestNewBuildsValidatedConfig(t *testing.T) {
	c, err := New("127.0.0.1:11211", "single", 2048, 0, 0, 0, 0, "", "", 0, "")
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	if c.Variant != VariantSingle {
		t.Fatalf("expected variant %q, got %q", VariantSingle, c.Variant)
	}
	if c.MaxWorkers != 256 {
		t.Fatalf("expected default max_workers to survive a zero override, got %d", c.MaxWorkers)
	}
}

package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/urfave/cli/v2"
	yaml "gopkg.in/yaml.v3"
)

// Variant selects which of the three connection-processing personalities
// a server runs.
type Variant string

const (
	VariantSingle   Variant = "single"
	VariantThreaded Variant = "threaded"
	VariantReactor  Variant = "reactor"
)

// Config holds the top-level configuration for linecached.
type Config struct {
	ListenAddress string        `yaml:"listen_address"`
	Variant       Variant       `yaml:"variant"`
	MaxSize       int64         `yaml:"max_size"`

	MaxWorkers     int           `yaml:"max_workers"`
	ReactorWorkers int           `yaml:"reactor_workers"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`

	CompressionThreshold int `yaml:"compression_threshold"`

	AdminAddress      string `yaml:"admin_address"`
	AdminHtpasswdFile string `yaml:"admin_htpasswd_file"`

	IdleTimeout time.Duration `yaml:"idle_timeout"`

	AccessLogLevel string `yaml:"access_log_level"`

	// Fields created from the above, not set directly by flags or YAML.
	AccessLogger *log.Logger
	ErrorLogger  *log.Logger
}

// YamlConfig is the on-disk shape accepted by --config_file. It embeds
// Config so that field additions only need updating in one place.
type YamlConfig struct {
	Config `yaml:",inline"`
}

func defaults() Config {
	return Config{
		Variant:              VariantThreaded,
		MaxWorkers:           256,
		ReactorWorkers:       runtime.NumCPU(),
		ReadTimeout:          5 * time.Second,
		CompressionThreshold: 0,
		AccessLogLevel:       "all",
	}
}

// NewFromYamlFile reads and validates a Config from a YAML file at path.
func NewFromYamlFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %q: %w", path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}

	return newFromYaml(data)
}

func newFromYaml(data []byte) (*Config, error) {
	yc := YamlConfig{Config: defaults()}

	if err := yaml.Unmarshal(data, &yc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	c := yc.Config
	if err := validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// New returns a validated Config built directly from the given values,
// without reading a YAML file.
func New(listenAddress string, variant string, maxSize int64, maxWorkers int,
	reactorWorkers int, readTimeout time.Duration, compressionThreshold int,
	adminAddress string, adminHtpasswdFile string, idleTimeout time.Duration,
	accessLogLevel string) (*Config, error) {

	c := defaults()
	c.ListenAddress = listenAddress
	if variant != "" {
		c.Variant = Variant(variant)
	}
	c.MaxSize = maxSize
	if maxWorkers > 0 {
		c.MaxWorkers = maxWorkers
	}
	if reactorWorkers > 0 {
		c.ReactorWorkers = reactorWorkers
	}
	if readTimeout > 0 {
		c.ReadTimeout = readTimeout
	}
	c.CompressionThreshold = compressionThreshold
	c.AdminAddress = adminAddress
	c.AdminHtpasswdFile = adminHtpasswdFile
	c.IdleTimeout = idleTimeout
	if accessLogLevel != "" {
		c.AccessLogLevel = accessLogLevel
	}

	if err := validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func validate(c *Config) error {
	if c.ListenAddress == "" {
		return errors.New("the 'listen_address' flag/key is required")
	}
	if c.MaxSize <= 0 {
		return errors.New("the 'max_size' flag/key must be set to a value > 0")
	}
	switch c.Variant {
	case VariantSingle, VariantThreaded, VariantReactor:
	default:
		return fmt.Errorf("variant must be one of %q, %q, %q, got %q",
			VariantSingle, VariantThreaded, VariantReactor, c.Variant)
	}
	if c.AccessLogLevel != "none" && c.AccessLogLevel != "all" {
		return errors.New("access_log_level must be set to either \"none\" or \"all\"")
	}
	if c.AdminHtpasswdFile != "" && c.AdminAddress == "" {
		return errors.New("admin_htpasswd_file requires admin_address to be set")
	}
	return nil
}

// Get builds a fully-populated Config (including the derived Logger
// fields) from CLI flags, or from --config_file if set.
func Get(ctx *cli.Context) (*Config, error) {
	c, err := get(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.setLogger(); err != nil {
		return nil, err
	}
	return c, nil
}

func get(ctx *cli.Context) (*Config, error) {
	configFile := ctx.String("config_file")
	if configFile != "" {
		return NewFromYamlFile(configFile)
	}

	return New(
		ctx.String("listen_address"),
		ctx.String("variant"),
		ctx.Int64("max_size"),
		ctx.Int("max_workers"),
		ctx.Int("reactor_workers"),
		ctx.Duration("read_timeout"),
		ctx.Int("compression_threshold"),
		ctx.String("admin_address"),
		ctx.String("admin_htpasswd_file"),
		ctx.Duration("idle_timeout"),
		ctx.String("access_log_level"),
	)
}

package flags

import (
	"time"

	"github.com/urfave/cli/v2"
)

// GetCliFlags returns a slice of cli.Flag's that linecached accepts.
func GetCliFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config_file",
			Value: "",
			Usage: "Path to a YAML configuration file. If this flag is specified then all other flags " +
				"are ignored.",
			EnvVars: []string{"LINECACHED_CONFIG_FILE"},
		},
		&cli.StringFlag{
			Name:    "listen_address",
			Value:   "",
			Usage:   "Address to listen on for the cache's text protocol, e.g. \"0.0.0.0:11211\". This flag is required.",
			EnvVars: []string{"LINECACHED_LISTEN_ADDRESS"},
		},
		&cli.StringFlag{
			Name:    "variant",
			Value:   "threaded",
			Usage:   "Which connection-processing variant to run. Must be one of \"single\", \"threaded\" or \"reactor\".",
			EnvVars: []string{"LINECACHED_VARIANT"},
		},
		&cli.Int64Flag{
			Name:    "max_size",
			Value:   -1,
			Usage:   "The maximum size of the cache, in bytes. This flag is required.",
			EnvVars: []string{"LINECACHED_MAX_SIZE"},
		},
		&cli.IntFlag{
			Name:    "max_workers",
			Value:   256,
			Usage:   "The maximum number of concurrently-served connections for the \"threaded\" variant. Connections beyond this cap are politely rejected.",
			EnvVars: []string{"LINECACHED_MAX_WORKERS"},
		},
		&cli.IntFlag{
			Name:        "reactor_workers",
			Value:       0,
			Usage:       "The number of reactor worker goroutines for the \"reactor\" variant.",
			DefaultText: "number of CPUs",
			EnvVars:     []string{"LINECACHED_REACTOR_WORKERS"},
		},
		&cli.DurationFlag{
			Name:    "read_timeout",
			Value:   5 * time.Second,
			Usage:   "The per-connection read deadline.",
			EnvVars: []string{"LINECACHED_READ_TIMEOUT"},
		},
		&cli.IntFlag{
			Name:        "compression_threshold",
			Value:       0,
			Usage:       "Values at least this many bytes are zstd-compressed in the store. Zero disables compression.",
			DefaultText: "0, ie compression disabled",
			EnvVars:     []string{"LINECACHED_COMPRESSION_THRESHOLD"},
		},
		&cli.StringFlag{
			Name:    "admin_address",
			Value:   "",
			Usage:   "Optional address for the /metrics and /status HTTP admin sidecar, e.g. \"127.0.0.1:9090\".",
			EnvVars: []string{"LINECACHED_ADMIN_ADDRESS"},
		},
		&cli.StringFlag{
			Name:    "admin_htpasswd_file",
			Value:   "",
			Usage:   "Optional path to a .htpasswd file protecting the admin sidecar. Requires admin_address to be set.",
			EnvVars: []string{"LINECACHED_ADMIN_HTPASSWD_FILE"},
		},
		&cli.DurationFlag{
			Name:        "idle_timeout",
			Value:       0,
			Usage:       "The maximum period of having read no bytes from any connection after which the server will shut itself down.",
			DefaultText: "0s, ie disabled",
			EnvVars:     []string{"LINECACHED_IDLE_TIMEOUT"},
		},
		&cli.StringFlag{
			Name:        "access_log_level",
			Usage:       "The access logger verbosity level. If supplied, must be one of \"none\" or \"all\".",
			Value:       "all",
			DefaultText: "all, ie enable full access logging",
			EnvVars:     []string{"LINECACHED_ACCESS_LOG_LEVEL"},
		},
	}
}

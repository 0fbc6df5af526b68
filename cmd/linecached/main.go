package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/linecache/linecached/admin"
	"github.com/linecache/linecached/config"
	"github.com/linecache/linecached/server"
	"github.com/linecache/linecached/store"
	"github.com/linecache/linecached/utils/flags"
	"github.com/linecache/linecached/utils/idle"
	"github.com/linecache/linecached/utils/rlimit"
)

const logFlags = log.Ldate | log.Ltime | log.LUTC

// gitCommit is the version stamp for the server. The value of this var is
// set through linker options.
var gitCommit string

func main() {
	log.SetFlags(logFlags)

	maybeGitCommitMsg := ""
	if len(gitCommit) > 0 && gitCommit != "{STABLE_GIT_COMMIT}" {
		maybeGitCommitMsg = fmt.Sprintf(" from git commit %s", gitCommit)
	}
	log.Printf("linecached built with %s%s.", runtime.Version(), maybeGitCommitMsg)

	app := cli.NewApp()

	cli.AppHelpTemplate = flags.Template
	cli.HelpPrinterCustom = flags.HelpPrinter
	// Force the use of cli.HelpPrinterCustom.
	app.ExtraInfo = func() map[string]string { return map[string]string{} }

	app.Flags = flags.GetCliFlags()
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Fatal("linecached terminated: ", err)
	}
}

func run(ctx *cli.Context) error {
	c, err := config.Get(ctx)
	if err != nil {
		fmt.Fprintf(ctx.App.Writer, "%v\n\n", err)
		cli.ShowAppHelp(ctx)
		return cli.Exit("", 1)
	}

	if ctx.NArg() > 0 {
		fmt.Fprintf(ctx.App.Writer, "Error: linecached does not take positional arguments\n")
		for i := 0; i < ctx.NArg(); i++ {
			fmt.Fprintf(ctx.App.Writer, "arg: %s\n", ctx.Args().Get(i))
		}
		fmt.Fprintf(ctx.App.Writer, "\n")
		cli.ShowAppHelp(ctx)
		return cli.Exit("", 1)
	}

	rlimit.Raise()
	ignoreSIGPIPE()

	s := store.New(c.MaxSize, int64(c.CompressionThreshold))

	reg := prometheus.NewRegistry()
	s.RegisterMetrics(reg)

	var idleTimer *idle.IdleTimer
	var onActivity func()
	if c.IdleTimeout > 0 {
		idleTimer = idle.NewTimer(c.IdleTimeout)
		onActivity = idleTimer.ResetTimer
	}

	opts := server.Options{
		ListenAddress:  c.ListenAddress,
		ReadTimeout:    c.ReadTimeout,
		MaxWorkers:     c.MaxWorkers,
		ReactorWorkers: c.ReactorWorkers,
		AccessLogger:   c.AccessLogger,
		ErrorLogger:    c.ErrorLogger,
		OnActivity:     onActivity,
	}

	srv, err := newServer(c.Variant, s, opts)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if err := srv.Start(); err != nil {
		return cli.Exit(fmt.Sprintf("failed to start %s server: %v", c.Variant, err), 1)
	}
	log.Printf("Starting %s server on address %s", c.Variant, c.ListenAddress)

	var sidecar *admin.Sidecar
	if c.AdminAddress != "" {
		sidecar = admin.NewSidecar(c.AdminAddress, s, reg, string(c.Variant), c.AdminHtpasswdFile)
		sidecarErrc := make(chan error, 1)
		sidecar.Start(sidecarErrc)
		log.Printf("Starting admin HTTP server on address %s", c.AdminAddress)
		go func() {
			if err := <-sidecarErrc; err != nil {
				c.ErrorLogger.Printf("admin server exited: %v", err)
			}
		}()
	}

	idleTearDown := make(chan struct{})
	if idleTimer != nil {
		idleTimer.Register(idleTearDown)
		idleTimer.Start()
		log.Printf("Starting idle timer with value %v", c.IdleTimeout)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		log.Printf("Received signal %v, shutting down", sig)
	case <-idleTearDown:
		log.Printf("Shutting down after idle timeout")
	}

	srv.Stop()
	srv.Join()

	if sidecar != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sidecar.Stop(shutdownCtx); err != nil {
			c.ErrorLogger.Printf("error shutting down admin server: %v", err)
		}
	}

	return nil
}

func newServer(variant config.Variant, s *store.Store, opts server.Options) (server.Server, error) {
	switch variant {
	case config.VariantSingle:
		return server.NewSingle(s, opts), nil
	case config.VariantThreaded:
		return server.NewThreaded(s, opts), nil
	case config.VariantReactor:
		return server.NewReactor(s, opts), nil
	default:
		return nil, fmt.Errorf("unknown server variant %q", variant)
	}
}

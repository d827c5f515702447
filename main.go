package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/peterbourgon/ff/v3"
	"golang.org/x/sync/errgroup"

	"github.com/zhuguadundan/videowhisper/api"
	"github.com/zhuguadundan/videowhisper/config"
	"github.com/zhuguadundan/videowhisper/files"
	"github.com/zhuguadundan/videowhisper/fsutil"
	"github.com/zhuguadundan/videowhisper/log"
	"github.com/zhuguadundan/videowhisper/pipeline"
	"github.com/zhuguadundan/videowhisper/pprof"
	"github.com/zhuguadundan/videowhisper/registry"
)

func main() {
	err := flag.Set("logtostderr", "true")
	if err != nil {
		glog.Fatal(err)
	}
	vFlag := flag.Lookup("v")
	fs := flag.NewFlagSet("videowhisper", flag.ExitOnError)
	cli := config.Cli{}

	version := fs.Bool("version", false, "print application version")

	fs.StringVar(&cli.ConfigFile, "config", "config.yaml", "Path to the YAML configuration file")
	fs.StringVar(&cli.Host, "host", "0.0.0.0", "Address to bind the HTTP API to")
	fs.IntVar(&cli.Port, "port", 8000, "Port to bind the HTTP API to")
	fs.IntVar(&cli.PprofPort, "pprof-port", 6061, "Pprof listen port")
	fs.StringVar(&cli.AdminToken, "admin-token", "", "Bearer token required for the admin endpoints")
	fs.BoolVar(&cli.Production, "production", false, "Production mode: admin endpoints refuse to work without an admin token")
	maxConcurrent := fs.Int("max-concurrent-tasks", 0, "Override system.max_concurrent_tasks from the config file")
	fs.StringVar(&cli.LogFile, "log-file", "", "Write logs to this file instead of stderr")
	fs.StringVar(&cli.TLSCertFile, "tls-cert", "", "Path to the TLS certificate. TLS is enabled when both -tls-cert and -tls-key are set")
	fs.StringVar(&cli.TLSKeyFile, "tls-key", "", "Path to the TLS private key")
	verbosity := fs.String("v", "", "Log verbosity.  {4|5|6}")

	err = ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("VW"),
	)
	if err != nil {
		glog.Fatalf("error parsing cli: %s", err)
	}
	if len(fs.Args()) > 0 {
		glog.Fatalf("unexpected extra arguments on command line: %v", fs.Args())
	}
	err = flag.CommandLine.Parse(nil)
	if err != nil {
		glog.Fatal(err)
	}

	if *version {
		fmt.Printf("videowhisper version: %s\n", config.Version)
		return
	}

	if *verbosity != "" {
		err = vFlag.Value.Set(*verbosity)
		if err != nil {
			glog.Fatal(err)
		}
	}

	cfg, err := config.Load(cli.ConfigFile)
	if err != nil {
		glog.Fatalf("error loading config: %s", err)
	}
	if *maxConcurrent > 0 {
		cfg.System.MaxConcurrentTasks = *maxConcurrent
	}
	validateCtx, cancelValidate := context.WithTimeout(context.Background(), 15*time.Second)
	if err := cfg.Validate(validateCtx); err != nil {
		glog.Fatalf("invalid config: %s", err)
	}
	cancelValidate()

	if err := log.Init(cli.LogFile); err != nil {
		glog.Errorf("cannot open log file %s, logging to stderr: %s", cli.LogFile, err)
	}

	for _, dir := range []string{cfg.System.TempDir, cfg.System.OutputDir, cfg.System.LogDir} {
		if dir == "" {
			continue
		}
		if err := fsutil.EnsureDir(dir); err != nil {
			glog.Fatalf("error creating %s: %s", dir, err)
		}
	}

	reg, err := registry.New(filepath.Join(cfg.System.TempDir, registry.HistoryFilename))
	if err != nil {
		glog.Fatalf("error loading task history: %s", err)
	}
	if stale := reg.RecoverOnBoot(); stale > 0 {
		log.LogNoRequestID("marked interrupted tasks from previous run", "count", stale)
	}

	fileStore := files.NewManager(cfg.System.TempDir, cfg.System.OutputDir)
	engine := pipeline.NewCoordinator(cfg, reg)

	go func() {
		glog.Error(pprof.ListenAndServe(cli.PprofPort))
	}()

	glog.Infof("loaded config: %+v", cfg.Loggable())

	// Root context; cancelling it prompts every component to shut down
	// cleanly. The registry closes last, after HTTP and the workers are
	// done, because both keep writing task state until the very end.
	group, ctx := errgroup.WithContext(context.Background())

	group.Go(func() error {
		return handleSignals(ctx)
	})

	group.Go(func() error {
		return engine.Start(ctx)
	})

	group.Go(func() error {
		return api.ListenAndServe(ctx, cli, cfg, reg, engine, fileStore)
	})

	err = group.Wait()
	reg.Close()
	glog.Infof("Shutdown complete. Reason for shutdown: %s", err)
}

func handleSignals(ctx context.Context) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
	for {
		select {
		case s := <-c:
			glog.Errorf("caught signal=%v, attempting clean shutdown", s)
			return fmt.Errorf("caught signal=%v", s)
		case <-ctx.Done():
			return nil
		}
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"

	"github.com/dselans/beampatch/audit"
	"github.com/dselans/beampatch/config"
	"github.com/dselans/beampatch/httpapi"
	"github.com/dselans/beampatch/mirror"
	"github.com/dselans/beampatch/mirror/health"
	"github.com/dselans/beampatch/patcher"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Println("ERROR: ", err)
		os.Exit(1)
	}

	if cfg.CLI.Debug {
		logrus.Info("debug mode enabled")
		logrus.SetLevel(logrus.DebugLevel)
	}

	displayConfig(cfg)

	sink, err := buildAuditSink(cfg.YAML.Audit)
	if err != nil {
		logrus.Errorf("unable to build audit sink: %s", err)
		os.Exit(1)
	}
	if sink != nil {
		defer sink.Close()
	}

	tracker := buildHealthTracker(cfg.YAML.Health)

	p, perr := patcher.New(patcher.Config{
		Mirrors:          toMirrors(cfg.YAML.Patcher.Mirrors),
		PatchListURL:     cfg.YAML.Patcher.PatchListURL,
		VerifyChecksums:  cfg.YAML.Patcher.VerifyChecksums,
		TargetGRF:        cfg.YAML.Patcher.TargetGRF,
		AllowManualPatch: cfg.YAML.Patcher.AllowManualPatch,
		GameDirectory:    cfg.YAML.App.GameDirectory,
		AuditSink:        sink,
		HealthTracker:    tracker,
	})
	if perr != nil {
		logrus.Errorf("unable to create patcher: %s", perr)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	signal.Notify(c, os.Kill)

	go func() {
		sig := <-c
		logrus.Debugf("received system call: %+v", sig)
		logrus.Debug("shutting down...")
		cancel()
	}()

	switch {
	case cfg.CLI.ResetCache:
		if err := p.ResetCache(); err != nil {
			logrus.Errorf("error resetting cache: %s", err)
			os.Exit(1)
		}
	case cfg.CLI.ManualPatch != "":
		if err := p.ApplyManual(cfg.CLI.ManualPatch); err != nil {
			logrus.Errorf("error applying manual patch: %s", err)
			os.Exit(1)
		}
	case cfg.CLI.DryRun:
		pending, err := p.ListPending(ctx)
		if err != nil {
			logrus.Errorf("error listing pending patches: %s", err)
			os.Exit(1)
		}
		for _, patch := range pending {
			logrus.Infof("pending: %s", patch.Filename)
		}
	case cfg.CLI.Serve:
		srv := httpapi.New(p)
		if err := srv.Run(cfg.YAML.HTTP.ListenAddr); err != nil {
			logrus.Errorf("http server exited with error: %s", err)
			os.Exit(1)
		}
	case cfg.CLI.Apply:
		if err := p.ApplyAll(ctx); err != nil {
			logrus.Errorf("error applying patches: %s", err)
			os.Exit(1)
		}
	default:
		logrus.Info("nothing to do: pass --dry-run, --apply, --serve, --reset-cache, or --manual-patch")
	}
}

func toMirrors(in []config.YAMLMirror) []mirror.Mirror {
	out := make([]mirror.Mirror, 0, len(in))
	for _, m := range in {
		out = append(out, mirror.Mirror{Name: m.Name, URL: m.URL, Priority: m.Priority})
	}
	return out
}

func buildAuditSink(a *config.YAMLAudit) (audit.Sink, error) {
	if a == nil || a.Type == "" {
		return nil, nil
	}

	switch a.Type {
	case "file":
		sink, err := audit.NewFileSink(a.Path)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case "mysql":
		return audit.NewSQLSink(audit.MySQL, a.DSN)
	case "postgres":
		return audit.NewSQLSink(audit.Postgres, a.DSN)
	case "mongo":
		return audit.NewMongoSink(a.MongoURI, a.MongoDB, a.MongoColl)
	default:
		return nil, fmt.Errorf("unsupported audit sink type: %s", a.Type)
	}
}

func buildHealthTracker(h *config.YAMLHealth) health.Tracker {
	if h != nil && h.Backend == "redis" {
		return health.NewRedisTracker(h.Addr, h.Password, h.DB)
	}
	return health.NewMemTracker()
}

func displayConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}

	logrus.Info("beampatch settings:")
	logrus.Info("  [CLI]")
	logrus.Infof("  version: %s", config.VERSION)
	logrus.Infof("  debug: %v", cfg.CLI.Debug)
	logrus.Infof("  config file: %s", cfg.CLI.ConfigFile)
	logrus.Info("")
	logrus.Info("  [PATCHER]")
	logrus.Infof("  patch_list_url: %s", cfg.YAML.Patcher.PatchListURL)
	logrus.Infof("  verify_checksums: %v", cfg.YAML.Patcher.VerifyChecksums)
	logrus.Infof("  target_grf: %s", cfg.YAML.Patcher.TargetGRF)
	logrus.Infof("  allow_manual_patch: %v", cfg.YAML.Patcher.AllowManualPatch)
	logrus.Infof("  mirrors: %d configured", len(cfg.YAML.Patcher.Mirrors))
	logrus.Info("")
	logrus.Info("  [APP]")
	logrus.Infof("  game_directory: %s", cfg.YAML.App.GameDirectory)
}

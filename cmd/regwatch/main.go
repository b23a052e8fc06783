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

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"regwatch/pkg/config"
	"regwatch/pkg/extract"
	"regwatch/pkg/feed"
	"regwatch/pkg/notify"
	"regwatch/pkg/page"
	"regwatch/pkg/reconcile"
	"regwatch/server"
)

// Opts with all CLI options
type Opts struct {
	Config        string `short:"f" long:"config" env:"CONFIG" default:"config.yml" description:"config file"`
	RebuildLedger bool   `long:"rebuild-ledger" description:"rebuild the ledger artifact from the current feed and exit"`
	Server        bool   `long:"server" env:"SERVER" description:"serve generated artifacts after the run"`
	Listen        string `short:"l" long:"listen" env:"LISTEN" description:"listen address override for server mode"`

	// Common options
	Debug   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	Version bool `short:"V" long:"version" description:"show version info"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`
}

var revision = "unknown"

func main() {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// handle termination signals
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Print("[INFO] termination signal received")
		cancel()
	}()

	if err := run(ctx, opts); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
}

// run loads the configuration and executes the requested mode: ledger
// recovery, a single watch pass, or a watch pass followed by serving the
// generated artifacts.
func run(ctx context.Context, opts Opts) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var secrets []string
	if cfg.Notify.Email.Password != "" {
		secrets = append(secrets, cfg.Notify.Email.Password)
	}
	setupLog(opts.Debug, secrets...)
	log.Printf("[INFO] starting regwatch version %s", revision)

	if opts.Listen != "" {
		cfg.Server.Listen = opts.Listen
	}

	rec, err := makeReconciler(cfg)
	if err != nil {
		return err
	}

	if opts.RebuildLedger {
		count, err := rec.RebuildLedger()
		if err != nil {
			return fmt.Errorf("failed to rebuild ledger: %w", err)
		}
		log.Printf("[INFO] ledger rebuilt with %d entries", count)
		return nil
	}

	if _, err := rec.Run(ctx, time.Now().UTC()); err != nil {
		return fmt.Errorf("watch pass failed: %w", err)
	}

	if opts.Server {
		srv := server.New(cfg, server.Artifacts{
			Feed:      cfg.Files.Feed,
			StatsJSON: cfg.Files.StatsJSON,
			StatsHTML: cfg.Files.StatsHTML,
		}, revision, opts.Debug)
		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}
	return nil
}

// makeReconciler wires the fetcher, extractor, and enabled notification
// channels from the loaded configuration
func makeReconciler(cfg *config.Config) (*reconcile.Reconciler, error) {
	extractor, err := extract.New(extract.Config{
		BaseURL:       cfg.Target.URL,
		LinkSelector:  cfg.Target.LinkSelector,
		TitleSelector: cfg.Target.TitleSelector,
		DateSelector:  cfg.Target.DateSelector,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create extractor: %w", err)
	}

	fetcher := page.New(cfg.Target.URL, cfg.Target.Timeout, cfg.Target.UserAgent)

	var notifiers []notify.Notifier
	if cfg.Notify.Webhook.URL != "" {
		notifiers = append(notifiers, notify.NewWebhook(notify.WebhookParams{
			URL:       cfg.Notify.Webhook.URL,
			UserAgent: cfg.Target.UserAgent,
			Timeout:   cfg.Notify.Timeout,
		}))
	}
	if cfg.EmailEnabled() {
		notifiers = append(notifiers, notify.NewEmail(notify.EmailParams{
			Host:     cfg.Notify.Email.Host,
			Port:     cfg.Notify.Email.Port,
			From:     cfg.Notify.Email.From,
			To:       cfg.Notify.Email.To,
			User:     cfg.Notify.Email.User,
			Password: cfg.Notify.Email.Password,
			Timeout:  cfg.Notify.Timeout,
		}))
	}
	if cfg.Notify.Teams.URL != "" {
		notifiers = append(notifiers, notify.NewTeams(notify.TeamsParams{
			URL:     cfg.Notify.Teams.URL,
			Timeout: cfg.Notify.Timeout,
		}))
	}
	log.Printf("[INFO] %d notification channels enabled", len(notifiers))

	return reconcile.New(reconcile.Params{
		Fetcher:   fetcher,
		Extractor: extractor,
		Notifiers: notifiers,
		Files: reconcile.Files{
			Ledger:    cfg.Files.Ledger,
			Dedup:     cfg.Files.Dedup,
			Feed:      cfg.Files.Feed,
			StatsJSON: cfg.Files.StatsJSON,
			StatsHTML: cfg.Files.StatsHTML,
		},
		Channel: feed.ChannelInfo{
			Title:       cfg.Feed.Title,
			Link:        cfg.Feed.Link,
			Description: cfg.Feed.Description,
			SelfURL:     cfg.Feed.SelfURL,
			BaseTag:     cfg.Feed.BaseTag,
			Generator:   cfg.Feed.Generator,
		},
		BufferDays:    cfg.Expiry.BufferDays,
		RecencyWindow: cfg.RecencyWindow(),
		NotifyTimeout: cfg.Notify.Timeout,
	}), nil
}

func setupLog(dbg bool, secs ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))
	if len(secs) > 0 {
		logOpts = append(logOpts, lgr.Secret(secs...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}

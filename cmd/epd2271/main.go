package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"epd2271/internal/agenda"
	"epd2271/internal/capture"
	"epd2271/internal/config"
	"epd2271/internal/convert"
	"epd2271/internal/display"
	"epd2271/internal/epd"
	"epd2271/internal/frame"
	appLog "epd2271/internal/log"
	"epd2271/internal/preview"
	"epd2271/internal/render"
	"epd2271/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	cacheDir   string
	dumpDir    string
	once       bool
	renderOnly bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Info("epd2271 starting",
		"listen", conf.Listen,
		"refresh", conf.RefreshCron,
		"backend", conf.Panel.Backend,
		"source", conf.Source.Kind,
		"full_update_every", conf.Panel.FullUpdateEvery,
		"border", conf.Panel.BorderVariant,
		"once", flags.once,
		"render_only", flags.renderOnly,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, conf, flags); err != nil {
		appLog.Error("epd2271 failed", err)
		os.Exit(1)
	}
	appLog.Info("epd2271 exiting")
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	opts, err := panelOpts(conf.Panel)
	if err != nil {
		return err
	}

	var panel display.Panel
	if flags.renderOnly {
		panel = display.NewVirtual(&opts, preview.NewTerminal())
	} else {
		dev, closePanel, err := openPanel(conf.Panel)
		if err != nil {
			return fmt.Errorf("open panel: %w", err)
		}
		defer closePanel()
		appLog.Info("panel ready", "dev", dev.String(), "psr", dev.Status().PanelSettings)
		panel = dev
	}

	temp, closeThermo, err := openThermo(conf.Temperature)
	if err != nil {
		return fmt.Errorf("open temperature sensor: %w", err)
	}
	defer closeThermo()

	source, err := buildSource(conf, flags.cacheDir, func() string {
		st := panel.Status()
		return fmt.Sprintf("%s #%d  %.0f C", st.NextMode, st.Counter, st.Temperature)
	})
	if err != nil {
		return err
	}
	runner := display.NewRunner(panel, source, temp)

	refresh := func(force bool) {
		res, err := runner.Refresh(ctx, force)
		switch {
		case errors.Is(err, display.ErrBusy):
			return
		case err != nil:
			appLog.Error("refresh failed", err)
		default:
			appLog.Info("refresh", "skipped", res.Skipped, "mode", res.Mode, "elapsed", res.Duration.Round(time.Millisecond))
		}
		if flags.dumpDir != "" && !res.Skipped {
			if err := dump(flags.dumpDir, runner.Frame(), &opts); err != nil {
				appLog.Error("dump failed", err, "dir", flags.dumpDir)
			}
		}
	}

	if flags.once {
		refresh(true)
		return nil
	}

	sched := cron.New()
	if _, err := sched.AddFunc(conf.RefreshCron, func() { refresh(false) }); err != nil {
		return fmt.Errorf("refresh schedule %q: %w", conf.RefreshCron, err)
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	go refresh(false)

	if conf.Listen == "" {
		<-ctx.Done()
		return nil
	}
	return web.NewServer(conf, runner).Serve(ctx)
}

func buildSource(conf *config.Config, cacheDir string, footer func() string) (display.Source, error) {
	dither, err := convert.ParseDither(conf.Source.Dither)
	if err != nil {
		return nil, err
	}
	switch conf.Source.Kind {
	case "image":
		return &convert.FileSource{Path: conf.Source.ImagePath, Dither: dither}, nil
	case "url":
		return &capture.URLSource{URL: conf.Source.URL, Dither: dither}, nil
	}

	loc, err := time.LoadLocation(conf.Agenda.Timezone)
	if err != nil {
		return nil, err
	}
	fonts, err := render.LoadFonts(conf.FontPath)
	if err != nil {
		return nil, err
	}
	feeds := make([]agenda.Feed, 0, len(conf.Agenda.ICS))
	for _, src := range conf.Agenda.ICS {
		id := src.ID
		if id == "" {
			id = src.Name
		}
		if id == "" {
			id = src.URL
		}
		feeds = append(feeds, agenda.Feed{ID: id, Name: src.Name, URL: src.URL})
	}
	return &render.AgendaSource{
		Agenda: &agenda.Agenda{
			Feeds:    feeds,
			Fetcher:  agenda.NewFetcher(cacheDir),
			Location: loc,
			Days:     conf.Agenda.HorizonDays,
		},
		Renderer: &render.Renderer{Fonts: fonts},
		Footer:   footer,
	}, nil
}

// dump writes the logical frame and its rotation in panel memory order.
func dump(dir string, logical *frame.Buffer, opts *epd.Opts) error {
	if logical == nil {
		return nil
	}
	physical := frame.New(opts.Width, opts.Height)
	if err := frame.Rotate(physical, logical); err != nil {
		return err
	}
	return preview.Dump(dir, logical, physical)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/epd2271/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.cacheDir, "cache", "/var/lib/epd2271/ics-cache", "ICS cache directory, empty to disable")
	flag.StringVar(&cfg.dumpDir, "dump", "", "Write logical.png and physical.png to this directory after each refresh")
	flag.BoolVar(&cfg.once, "once", false, "Run one render+display cycle and exit")
	flag.BoolVar(&cfg.renderOnly, "render-only", false, "Render only; show frames on the terminal instead of the panel")

	flag.Parse()

	return cfg
}

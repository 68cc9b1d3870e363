package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mitchellh/go-homedir"

	"github.com/cbegin/stepsynth-go"
	"github.com/cbegin/stepsynth-go/internal/config"
	"github.com/cbegin/stepsynth-go/internal/errkind"
	"github.com/cbegin/stepsynth-go/internal/mididev"
	"github.com/cbegin/stepsynth-go/internal/score"
	"github.com/cbegin/stepsynth-go/internal/store"
)

// logger is replaced by initLogger once flags are parsed.
var logger = slog.Default()

func initLogger(level slog.Level) {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

func main() {
	var (
		configPath = flag.String("config", config.DefaultPath(), "YAML config file")
		sourcePath = flag.String("file", "", "document to play (JSON or YAML); default is the saved one")
		renderPath = flag.String("render", "", "render to this WAV file instead of playing")
		ticks      = flag.Int("ticks", 64, "with -render, number of sequencer steps to render")
		sampleRate = flag.Int("sample-rate", 0, "output sample rate (overrides config)")
		volume     = flag.Float64("volume", -1, "master volume scalar (overrides config)")
		logLevel   = flag.String("log-level", "", "debug|info|warn|error (overrides config)")
		noMidi     = flag.Bool("no-midi", false, "do not open MIDI inputs")
		watch      = flag.Duration("watch", 0, "poll -file for changes at this interval and reload it")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath, isFlagPassed("config"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *sampleRate > 0 {
		cfg.SampleRate = *sampleRate
	}
	if *volume >= 0 {
		cfg.Volume = *volume
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	initLogger(level)

	if *renderPath != "" {
		if err := render(*sourcePath, *renderPath, *ticks, cfg.SampleRate); err != nil {
			logger.Error("render failed", "err", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, *sourcePath, *watch, !*noMidi && cfg.MIDI.Enabled); err != nil {
		logger.Error("stepsynth failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, sourcePath string, watch time.Duration, withMidi bool) error {
	st, err := openStore(cfg.StoreDir)
	if err != nil {
		return err
	}
	engine, err := stepsynth.NewEngine(
		stepsynth.WithSampleRate(cfg.SampleRate),
		stepsynth.WithMasterVolume(cfg.Volume),
		stepsynth.WithStore(st),
		stepsynth.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer engine.Close()

	if sourcePath != "" {
		text, err := readSource(sourcePath)
		if err != nil {
			return err
		}
		if err := engine.LoadSource(text); err != nil {
			return fmt.Errorf("%s: %s", sourcePath, errkind.Issue(err))
		}
	} else if err := engine.LoadSaved(); err != nil {
		return err
	}

	if withMidi {
		closeMidi := startMidi(ctx, cfg.MIDI, engine)
		defer closeMidi()
	}
	if watch > 0 && sourcePath != "" {
		go watchSource(ctx, sourcePath, watch, engine)
	}

	events := engine.Watch()
	engine.Play()
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case ev := <-events:
			switch ev.Kind {
			case stepsynth.EventNote:
				logger.Debug("note", "instrument", ev.Note.Instrument, "sequence", ev.Note.Sequence,
					"note", ev.Note.Note, "freq", ev.Note.Frequency)
			case stepsynth.EventLoaded:
				logger.Info("source reloaded")
			case stepsynth.EventLoadFailed:
				logger.Warn("source rejected", "issue", errkind.Issue(ev.Err))
			}
		}
	}
}

func openStore(dir string) (store.Store, error) {
	if dir == "" {
		d, err := store.DefaultDir()
		if err != nil {
			logger.Warn("no user config directory, saved source will not persist", "err", err)
			return store.NewMemory(), nil
		}
		dir = d
	}
	return store.NewFileStore(dir)
}

func startMidi(ctx context.Context, cfg config.MIDI, engine *stepsynth.Engine) func() {
	drv, err := newMidiDriver()
	if err != nil {
		logger.Warn("midi unavailable", "err", errkind.Issue(err))
		return func() {}
	}
	listener := mididev.New(drv, mididev.Options{
		Include:      cfg.Include,
		Exclude:      cfg.Exclude,
		OnMessage:    engine.HandleMIDI,
		OnDisconnect: engine.DisconnectMIDI,
		Logger:       logger,
	})
	if names, err := listener.Devices(); err == nil {
		logger.Info("midi inputs", "devices", strings.Join(names, ", "))
	}
	go listener.Run(ctx, cfg.RescanInterval)
	return func() { _ = listener.Close() }
}

// watchSource reloads path whenever its modification time changes.
func watchSource(ctx context.Context, path string, interval time.Duration, engine *stepsynth.Engine) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		logger.Error("watch failed", "err", err)
		return
	}
	var last time.Time
	if fi, err := os.Stat(expanded); err == nil {
		last = fi.ModTime()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		fi, err := os.Stat(expanded)
		if err != nil || !fi.ModTime().After(last) {
			continue
		}
		last = fi.ModTime()
		data, err := os.ReadFile(expanded)
		if err != nil {
			logger.Warn("watch: read failed", "err", err)
			continue
		}
		// rejections arrive as EventLoadFailed
		_ = engine.LoadSource(string(data))
	}
}

func readSource(path string) (string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func render(sourcePath, outPath string, ticks, sampleRate int) error {
	text := score.DefaultSource
	if sourcePath != "" {
		var err error
		if text, err = readSource(sourcePath); err != nil {
			return err
		}
	}
	doc, err := score.Parse([]byte(text))
	if err != nil {
		return fmt.Errorf("%s", errkind.Issue(err))
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if err := stepsynth.RenderWAV(doc, ticks, sampleRate, f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.Info("rendered", "file", outPath, "ticks", ticks, "sample_rate", sampleRate)
	return nil
}

func isFlagPassed(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

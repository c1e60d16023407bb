package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const version = "0.3.0"

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "haphapd v%s\n", version)
	fmt.Fprintln(w, "Haptic feedback session daemon (ramp-up and release effects)")
}

func printUsage() {
	w := flag.CommandLine.Output()
	printVersion(w)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  haphapd [OPTIONS]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "OPTIONS:")
	flag.PrintDefaults()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "SIGNALS:")
	fmt.Fprintln(w, "  SIGUSR1   host went to the background (stop engine)")
	fmt.Fprintln(w, "  SIGUSR2   host came back (restart if manually prepared)")
	fmt.Fprintln(w, "  SIGINT, SIGTERM   shut down")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "EXAMPLES:")
	fmt.Fprintln(w, "  haphapd -config /etc/haphapd.yaml")
	fmt.Fprintln(w, "  haphapd -backend null -state-ws -log-level debug")
	fmt.Fprintln(w, "  haphapd -backend evdev -evdev-device /dev/input/by-id/usb-pad-event-joystick")
}

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		backend     = flag.String("backend", "", "Engine backend: evdev|remote|null")
		evdevDevice = flag.String("evdev-device", "", "Force-feedback input device (evdev backend)")
		remoteURL   = flag.String("remote-ws-url", "", "Actuator service websocket URL (remote backend)")
		startDelay  = flag.Int("start-delay-ms", 0, "Deferred player start after a play request (ms)")
		controlHz   = flag.Int("control-hz", 0, "Continuous player control rate (Hz)")
		ipcSocket   = flag.String("ipc-socket", "", "Unix domain socket path for IPC")
		stateWS     = flag.Bool("state-ws", false, "Serve the state websocket")
		stateListen = flag.String("state-ws-listen", "", "State websocket listen address")
		logLevelStr = flag.String("log-level", "", "Log level: error, warn, info, debug")
		logFormat   = flag.String("log-format", "", "Log format: text, json")
		showVersion = flag.Bool("version", false, "Print version and exit")
	)
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		printVersion(os.Stdout)
		return
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Only flags given on the command line override the file.
	var o FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			o.Backend = backend
		case "evdev-device":
			o.EvdevDevice = evdevDevice
		case "remote-ws-url":
			o.RemoteWsURL = remoteURL
		case "start-delay-ms":
			o.StartDelayMS = startDelay
		case "control-hz":
			o.ControlHz = controlHz
		case "ipc-socket":
			o.IPCSocketPath = ipcSocket
		case "state-ws":
			o.StateWSEnabled = stateWS
		case "state-ws-listen":
			o.StateWSListen = stateListen
		case "log-level":
			o.LogLevel = logLevelStr
		case "log-format":
			o.LogFormat = logFormat
		}
	})
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error: invalid config:", err)
		os.Exit(1)
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := setupLogger(logLevel, cfg.Logging.Format, os.Stdout)

	if err := run(cfg, logger); err != nil {
		logger.Error("daemon failed", "error", err)
		os.Exit(1)
	}
}

// newBackend builds the configured engine backend.
func newBackend(cfg Config, logger *slog.Logger) (Backend, error) {
	logger = logger.With("component", "engine", "backend", cfg.Engine.Backend)
	switch cfg.Engine.Backend {
	case "evdev":
		return NewEvdevBackend(cfg.Engine.Evdev, cfg.Playback.ControlHz, logger), nil
	case "remote":
		r := cfg.Engine.Remote
		client, err := NewRemoteClient(r.WsURL, r.TimeoutMS, r.Attempts, logger)
		if err != nil {
			return nil, err
		}
		return NewRemoteBackend(client, logger), nil
	case "null":
		return NewNullBackend(cfg.Engine.Null, cfg.Playback.ControlHz, logger), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Engine.Backend)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := newBackend(cfg, logger)
	if err != nil {
		return err
	}

	events := make(chan Event, 64)
	store := NewCurveStore(cfg.Effect)
	host := newEngineHost(backend, store, asyncPoster(ctx, events), logger.With("component", "effects"))
	defer func() {
		if err := host.Close(); err != nil {
			logger.Warn("engine close failed", "error", err)
		}
	}()

	var broadcasts chan StateBroadcast
	if cfg.StateWS.Enabled {
		broadcasts = make(chan StateBroadcast, 64)
	}

	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, lifecycleSignals()...)
	defer signal.Stop(sigs)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		runDaemon(gctx, events, host, cfg.SessionConfig(), NewSessionState(cfg.Effect), broadcasts, logger.With("component", "session"))
		return nil
	})

	g.Go(func() error {
		ipc := NewIPCServer(
			ExpandPath(cfg.IPC.SocketPath),
			events,
			time.Duration(cfg.IPC.ReplyTimeoutMS)*time.Millisecond,
			logger.With("component", "ipc"),
		)
		return ipc.Run(gctx)
	})

	g.Go(func() error {
		runLifecycleMonitor(gctx, sigs, events, logger.With("component", "lifecycle"))
		return nil
	})

	if cfg.StateWS.Enabled {
		wsLogger := logger.With("component", "state_ws")
		srv := NewServer(wsLogger, events, ServerConfig{})
		mux := http.NewServeMux()
		srv.Register(mux, cfg.StateWS.Path)
		httpServer := &http.Server{Addr: cfg.StateWS.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			srv.Hub().Run(gctx)
			return nil
		})
		g.Go(func() error {
			RunBroadcaster(gctx, srv.Hub(), broadcasts, wsLogger)
			return nil
		})
		g.Go(func() error {
			wsLogger.Info("state websocket listening", "addr", cfg.StateWS.Listen, "path", cfg.StateWS.Path)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("state websocket server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	logger.Info("haphapd started",
		"version", version,
		"backend", backend.Name(),
		"ipc", cfg.IPC.SocketPath,
		"state_ws", cfg.StateWS.Enabled,
		"params", cfg.Effect.String())

	err = g.Wait()
	logger.Info("shutting down")
	return err
}

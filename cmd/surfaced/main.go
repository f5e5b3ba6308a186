package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"surfacekit/clock"
	"surfacekit/surface"
)

const version = "0.3.0"

func printVersion() {
	fmt.Printf("surfaced v%s\n", version)
	fmt.Println("Debounced button and rotary encoder daemon")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  surfaced -config FILE [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Polls GPIO buttons and quadrature encoders at a fixed rate, debounces")
	fmt.Println("  them, scales encoder detents by turning speed and publishes the")
	fmt.Println("  resulting events over WebSocket. A Unix socket accepts control requests.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        YAML configuration file (required)")
	fmt.Println()
	fmt.Println("  -driver string")
	fmt.Printf("        GPIO driver: periph|rpio (default %q)\n", defaultDriver)
	fmt.Println()
	fmt.Println("  -poll-hz int")
	fmt.Printf("        Poll loop frequency in Hz (default %d)\n", defaultPollHz)
	fmt.Println()
	fmt.Println("  -filter-size int")
	fmt.Printf("        Default debounce filter size, 2..8 samples (default %d)\n", defaultFilterSize)
	fmt.Println()
	fmt.Println("  -ws-listen string")
	fmt.Printf("        WebSocket listen address, empty disables (default %q)\n", defaultWSListen)
	fmt.Println()
	fmt.Println("  -ws-path string")
	fmt.Printf("        WebSocket path (default %q)\n", defaultWSPath)
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path, empty disables (default %q)\n", defaultSocketPath)
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  surfaced -config /etc/surfaced.yaml")
	fmt.Println("  surfaced -config surface.yaml -driver rpio -poll-hz 2000 -log-level debug")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires access to GPIO (run as root or add user to the 'gpio' group)")
	fmt.Println("  - The poll rate must be high enough that bounce settles within a few")
	fmt.Println("    filter windows and no quadrature phase is shorter than filter_size polls")
	fmt.Println()
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	fs := flag.NewFlagSet("surfaced", flag.ExitOnError)
	fs.Usage = printUsage
	configPath := fs.String("config", "", "YAML configuration file")
	driver := fs.String("driver", defaultDriver, "GPIO driver: periph|rpio")
	pollHz := fs.Int("poll-hz", defaultPollHz, "Poll loop frequency in Hz")
	filterSize := fs.Int("filter-size", defaultFilterSize, "Default debounce filter size (2..8)")
	wsListen := fs.String("ws-listen", defaultWSListen, "WebSocket listen address")
	wsPath := fs.String("ws-path", defaultWSPath, "WebSocket path")
	socketPath := fs.String("ipc-socket", defaultSocketPath, "Unix domain socket path for IPC")
	logLevel := fs.String("log-level", "info", "Log level: error, warn, info, debug")
	fs.Parse(os.Args[1:])

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "error: -config is required")
		os.Exit(1)
	}

	cfg, err := LoadConfigFile(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	// Only flags given explicitly override the file.
	var o FlagOverrides
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "driver":
			o.Driver = driver
		case "poll-hz":
			o.PollHz = pollHz
		case "filter-size":
			o.FilterSize = filterSize
		case "ws-listen":
			o.WSListen = wsListen
		case "ws-path":
			o.WSPath = wsPath
		case "ipc-socket":
			o.SocketPath = socketPath
		case "log-level":
			o.LogLevel = logLevel
		}
	})
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error: invalid config:", err)
		os.Exit(1)
	}

	level, _ := parseLogLevel(cfg.Logging.Level) // checked by Validate
	logger := setupLogger(level, os.Stdout)

	if err := run(cfg, logger); err != nil {
		logger.Error("surfaced stopped", "error", err)
		os.Exit(1)
	}
}

// run builds the surface and supervises all daemon goroutines until a signal
// arrives or one of them fails.
func run(cfg Config, logger *slog.Logger) error {
	open, closeDriver, err := openDriver(cfg.Driver)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeDriver(); err != nil {
			logger.Warn("driver close failed", "error", err)
		}
	}()

	surf, err := buildSurface(cfg, open, clock.Monotonic{})
	if err != nil {
		return err
	}
	nButtons, nEncoders := surf.Len()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	requests := make(chan request, defaultRequestBuf)
	events := make(chan surface.Event, defaultEventBuf)

	g.Go(func() error {
		return runPollLoop(ctx, surf, cfg.PollHz, requests, events, logger)
	})

	if cfg.WS.Listen != "" {
		hub := NewHub(logger, HubConfig{})
		g.Go(func() error {
			hub.Run(ctx)
			return nil
		})
		g.Go(func() error {
			RunBroadcaster(ctx, hub, events, wsEncoderCoalesceWindow, logger)
			return nil
		})

		mux := http.NewServeMux()
		NewServer(logger, hub, requests).Register(mux, cfg.WS.Path)
		g.Go(func() error {
			return runHTTPServer(ctx, cfg.WS.Listen, mux, logger)
		})
	} else {
		// Nobody consumes events; keep the poll loop from warning about a full queue.
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-events:
				}
			}
		})
	}

	if cfg.IPC.SocketPath != "" {
		g.Go(func() error {
			return runIPCServer(ctx, cfg.IPC.SocketPath, requests, logger)
		})
	}

	logger.Info("surfaced running",
		"version", version,
		"driver", cfg.Driver,
		"poll_hz", cfg.PollHz,
		"buttons", nButtons,
		"encoders", nEncoders,
		"ws", cfg.WS.Listen,
		"ipc", cfg.IPC.SocketPath)

	err = g.Wait()
	if err == nil {
		logger.Info("shutting down")
	}
	return err
}

// runHTTPServer serves mux until ctx is canceled.
func runHTTPServer(ctx context.Context, addr string, mux *http.ServeMux, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("ws listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "error", err)
		}
		return nil
	}
}

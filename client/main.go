/*
 * Copyright (c) 2025 Ishaan Nene
 *
 * This source code is licensed under the MIT license found in the
 * LICENSE file in the root directory of this source tree.
 */
/*
This file is the command console client. It sends commands to the backend's /query and /action endpoints and reads /history.
Run without arguments for the interactive form, or use the send and history subcommands for one-shot calls from scripts.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"command-console/pkg/bridge"
	"command-console/pkg/config"
	"command-console/pkg/console"
	"command-console/pkg/correlation"
	"command-console/pkg/display"
	"command-console/pkg/logging"
	"command-console/pkg/metrics"
	"command-console/pkg/transport"
)

const usage = `usage:
  client [flags] [console]
  client [flags] send -mode query|action -command TEXT [-payload JSON]
  client [flags] history

flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	global := flag.NewFlagSet("client", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() {
		fmt.Fprint(stderr, usage)
		global.PrintDefaults()
	}
	global.StringVar(&cfg.Backend.BaseURL, "base-url", cfg.Backend.BaseURL, "backend base URL")
	global.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "log level (debug, info, warn, error)")
	if err := global.Parse(args); err != nil {
		return 2
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	sub := "console"
	rest := global.Args()
	if len(rest) > 0 {
		sub, rest = rest[0], rest[1:]
	}

	switch sub {
	case "send":
		return runSend(ctx, cfg, rest, stdout, stderr)
	case "history":
		return runHistory(ctx, cfg, stdout, stderr)
	case "console":
		return runConsole(ctx, cfg, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", sub)
		global.Usage()
		return 2
	}
}

func runSend(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(stderr)
	mode := fs.String("mode", string(bridge.ModeQuery), "query or action")
	command := fs.String("command", "", "command or prompt")
	payload := fs.String("payload", "", "optional JSON payload")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	app, closeApp, err := newApp(cfg, stderr, nil, nil)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer closeApp()

	ctx = logging.WithContext(ctx, app.log.WithField("mode", "send"))
	err = app.bridge.SubmitCommand(ctx, *mode, *command, *payload)
	return finish(app.bridge, err, stdout)
}

func runHistory(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) int {
	app, closeApp, err := newApp(cfg, stderr, nil, nil)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer closeApp()

	ctx = logging.WithContext(ctx, app.log.WithField("mode", "history"))
	err = app.bridge.FetchHistory(ctx)
	return finish(app.bridge, err, stdout)
}

func runConsole(ctx context.Context, cfg *config.Config, stderr io.Writer) int {
	sink := &console.Sink{}
	// the form owns the terminal, so logs go to LOG_FILE or nowhere
	app, closeApp, err := newApp(cfg, io.Discard, sink.DisplayChanged, sink.SendStateChanged)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer closeApp()

	ctx = logging.WithContext(ctx, app.log.WithField("mode", "console"))
	err = console.Run(ctx, app.bridge, sink, console.Options{BaseURL: cfg.Backend.BaseURL})
	if err != nil && !errors.Is(ctx.Err(), context.Canceled) {
		app.log.Error("console exited", err)
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

// finish prints what the display ended up showing.
func finish(b *bridge.Bridge, err error, stdout io.Writer) int {
	fmt.Fprintln(stdout, b.Display().Text())
	if err != nil {
		return 1
	}
	return 0
}

type app struct {
	bridge *bridge.Bridge
	log    logging.Logger
}

// newApp wires logging, metrics, transport and the bridge. logOut is used
// unless LOG_FILE is set.
func newApp(cfg *config.Config, logOut io.Writer, onDisplay func(string), onSendState func(bool)) (*app, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		closers = append(closers, func() { f.Close() })
		logOut = f
	}
	logger := logging.NewLogger("console", logging.Options{Level: cfg.Logging.Level, Output: logOut})

	mc := metrics.NewMetricsCollector()
	if cfg.Metrics.Addr != "" {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsMux(mc), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listener stopped", err)
			}
		}()
		closers = append(closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		})
		logger.WithField("addr", cfg.Metrics.Addr).Info("serving metrics")
	}

	client := transport.NewClient(transport.Options{
		BaseURL:   cfg.Backend.BaseURL,
		Timeout:   cfg.Backend.Timeout,
		UserAgent: cfg.Backend.UserAgent,
		Logger:    logger,
		Metrics:   mc,
		IDs:       correlation.NewIDGenerator("console"),
	})

	opts := []bridge.Option{bridge.WithLogger(logger), bridge.WithMetrics(mc)}
	if onSendState != nil {
		opts = append(opts, bridge.WithSendStateHook(onSendState))
	}
	b := bridge.New(client, display.New(onDisplay), opts...)

	logger.WithFields(map[string]interface{}{
		"base_url": cfg.Backend.BaseURL,
		"timeout":  cfg.Backend.Timeout.String(),
	}).Debug("console client ready")

	return &app{bridge: b, log: logger}, closeAll, nil
}

func metricsMux(mc *metrics.MetricsCollector) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", mc.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	})
	return mux
}

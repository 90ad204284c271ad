// Command tabnotify binds title/favicon notifications to browser tabs.
//
// Usage:
//
//	tabnotify -config tabnotify.yaml                 # tabs, sinks and API from YAML
//	tabnotify -db tabs.db -http 127.0.0.1:8089       # tabs from SQLite, hot reloaded
//	tabnotify -url https://mail.example.com -title "📢 Come back!" -emoji "🔔,📬"
//	tabnotify -config tabnotify.yaml -mcp stdio      # expose MCP tools on stdio
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

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/tabnotify/favicon"
	"github.com/hazyhaar/tabnotify/idgen"
	"github.com/hazyhaar/tabnotify/tabnotify"
)

const version = "0.1.0"

type options struct {
	configPath string
	dbPath     string
	httpAddr   string
	mcpMode    string
	remote     string
	mode       string

	url      string
	id       string
	title    string
	emoji    string
	bg       string
	size     int
	images   string
	interval time.Duration
	manual   bool
	attach   bool
	surface  string
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to tabnotify.yaml")
	flag.StringVar(&o.dbPath, "db", "", "SQLite tab store (hot reloaded)")
	flag.StringVar(&o.httpAddr, "http", "", "listen address for the control API")
	flag.StringVar(&o.mcpMode, "mcp", "", `serve MCP tools ("stdio")`)
	flag.StringVar(&o.remote, "remote", "", "DevTools websocket URL of a running Chrome")
	flag.StringVar(&o.mode, "mode", "", "browser mode: headless or headful")

	flag.StringVar(&o.url, "url", "", "quick mode: tab URL to bind")
	flag.StringVar(&o.id, "id", "", "quick mode: tab id (generated when empty)")
	flag.StringVar(&o.title, "title", "", "quick mode: title shown while notifying")
	flag.StringVar(&o.emoji, "emoji", "", "quick mode: comma-separated emoji to cycle")
	flag.StringVar(&o.bg, "bg", favicon.Transparent, "quick mode: emoji background colour")
	flag.IntVar(&o.size, "size", favicon.DefaultSize, "quick mode: emoji favicon size in px")
	flag.StringVar(&o.images, "images", "", "quick mode: comma-separated favicon URLs to cycle")
	flag.DurationVar(&o.interval, "interval", time.Second, "quick mode: favicon cycle interval")
	flag.BoolVar(&o.manual, "manual", false, "quick mode: only notify on API request")
	flag.BoolVar(&o.attach, "attach", false, "quick mode: attach to an open tab instead of opening one")
	flag.StringVar(&o.surface, "surface", tabnotify.SurfaceCanvas, "quick mode: emoji surface (canvas or image)")

	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if o.configPath == "" && o.dbPath == "" && o.url == "" {
		fmt.Fprintln(os.Stderr, "usage: tabnotify -config <file> | -db <tabs.db> | -url <url> [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := run(ctx, logger, o); err != nil {
		logger.Error("tabnotify: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, o options) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}

	sinks, err := tabnotify.SinksFromConfig(cfg.Sinks, logger)
	if err != nil {
		return err
	}
	// stdout carries the MCP stream in stdio mode.
	if len(sinks) == 0 && o.mcpMode != "stdio" {
		sinks = append(sinks, tabnotify.NewStdoutSink(nil))
	}

	n := tabnotify.New(cfg, logger, sinks...)
	defer n.Close()

	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	if o.url != "" {
		tc := quickTab(o)
		if err := n.PersistTab(ctx, tc); err != nil {
			return fmt.Errorf("bind %s: %w", tc.URL, err)
		}
		logger.Info("tabnotify: quick tab", "id", tc.ID, "url", tc.URL, "favicons", len(tc.Favicons))
	}

	errc := make(chan error, 2)

	if cfg.HTTP.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           n.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("tabnotify: http listening", "addr", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("http: %w", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("tabnotify: http shutdown", "error", err)
			}
		}()
	}

	switch o.mcpMode {
	case "":
	case "stdio":
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "tabnotify", Version: version}, nil)
		n.RegisterMCP(mcpSrv)
		go func() {
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				errc <- fmt.Errorf("mcp: %w", err)
			}
		}()
	default:
		return fmt.Errorf("unknown -mcp mode %q", o.mcpMode)
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errc:
		return err
	}
}

func loadConfig(o options) (*tabnotify.Config, error) {
	cfg := &tabnotify.Config{}
	if o.configPath != "" {
		c, err := tabnotify.LoadConfigFile(o.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = c
	} else {
		// Same defaults a YAML file would get.
		c, err := tabnotify.ParseConfig(nil)
		if err != nil {
			return nil, err
		}
		cfg = c
	}

	if o.remote != "" {
		cfg.Browser.Remote = o.remote
	}
	if o.mode != "" {
		cfg.Browser.Mode = o.mode
	}
	if o.dbPath != "" {
		cfg.Store.Path = o.dbPath
	}
	if o.httpAddr != "" {
		cfg.HTTP.Addr = o.httpAddr
	}
	return cfg, nil
}

func quickTab(o options) tabnotify.TabConfig {
	id := o.id
	if id == "" {
		id = idgen.Tab()
	}
	tc := tabnotify.TabConfig{
		ID:      id,
		URL:     o.url,
		Attach:  o.attach,
		Surface: o.surface,
	}
	tc.Title = o.title
	tc.Favicons = append(favicon.ParseEmojiList(o.emoji, o.bg, o.size), favicon.ParseImageList(o.images)...)
	tc.Interval = o.interval
	tc.ManualTrigger = o.manual
	return tc
}

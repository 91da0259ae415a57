package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/lmittmann/tint"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/backend"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/backend/cloud"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/backend/selfhosted"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/capture"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/config"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/metrics"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/service"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/signalling"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/sockets"
)

func setupLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.Kitchen,
	})))
}

func cloudConfig(c config.CloudConfig) cloud.Config {
	return cloud.Config{
		BaseURL:       c.BaseURL,
		APIKey:        c.APIKey,
		ClientSource:  c.ClientSource,
		CreateTimeout: c.CreateTimeout(),
		UpdateTimeout: c.UpdateTimeout(),
		SDPTimeout:    c.SDPTimeout(),
	}
}

func selfHostedConfig(c config.SelfHostedConfig) selfhosted.Config {
	return selfhosted.Config{
		OfferTimeout:   c.OfferTimeout(),
		RequestTimeout: c.RequestTimeout(),
		LoadTimeout:    c.LoadTimeout(),
		NoiseScale:     c.NoiseScale,
		InputMode:      c.InputMode,
	}
}

func main() {
	configDir := flag.String("config", "conf", "directory with server, cloud, selfhosted, exchange and pipeline config files")
	port := flag.Int("port", 0, "override the listen port")
	flag.Parse()

	var overrides []config.Option
	if *port != 0 {
		overrides = append(overrides, config.WithPort(*port))
	}
	manager, err := config.NewManager(*configDir, overrides...)
	if err != nil {
		log.Fatalf("can not load config, error - %v", err)
	}
	defer func() { _ = manager.Close() }()

	cfg := manager.Get()
	setupLogger(cfg.Server.LogLevel)

	cloudClient := cloud.NewClient(backend.NewClient("cloud", backend.ClientOptions{}), cloudConfig(cfg.Cloud))
	scopeClient := selfhosted.NewClient(backend.NewClient("selfhosted", backend.ClientOptions{
		InsecureSkipVerify: cfg.SelfHosted.InsecureSkipVerify,
	}), selfHostedConfig(cfg.SelfHosted))

	source := capture.NewLatest()
	viewers := sockets.NewViewerPool()
	bridge := service.NewBridge(service.Deps{
		Cloud:      cloudClient,
		SelfHosted: scopeClient,
		Source:     source,
		Viewers:    viewers,
	}, cfg)

	manager.SetUpdateCallback(func(c *config.AppConfig) {
		cloudClient.SetConfig(cloudConfig(c.Cloud))
		scopeClient.SetConfig(selfHostedConfig(c.SelfHosted))
		bridge.ApplyConfig(*c)
		slog.Info("config reloaded")
	})

	app := fiber.New(fiber.Config{
		BodyLimit:             cfg.Server.BodyLimit,
		DisableStartupMessage: true,
	})
	server := signalling.NewServer(cfg.Server, app, bridge, viewers, source)
	server.Setup()

	metrics.StartTime.Set(float64(time.Now().Unix()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listenErr := make(chan error, 1)
	go func() {
		addr := cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
		slog.Info("bridge listening", "addr", addr)
		if cfg.Server.TLSCrtFile != nil && cfg.Server.TLSKeyFile != nil {
			listenErr <- app.ListenTLS(addr, *cfg.Server.TLSCrtFile, *cfg.Server.TLSKeyFile)
		} else {
			listenErr <- app.Listen(addr)
		}
	}()

	select {
	case err := <-listenErr:
		bridge.Close()
		log.Fatal(err)
	case <-ctx.Done():
	}

	// Stop accepting requests before the bridge waits for its background work.
	slog.Info("shutting down")
	server.Close()
	if err := app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout()); err != nil {
		slog.Error("shutdown failed", "error", err)
	}
	bridge.Close()
}

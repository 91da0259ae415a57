package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/recorder"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/viewer_client"
)

func main() {
	configPath := flag.String("config", "configs/recorder.json", "path to recorder config")
	flag.Parse()

	config, err := recorder.LoadRecorderConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	if err = os.MkdirAll(config.RecordingsDirectory, os.ModePerm); err != nil {
		log.Printf("failed to create output directory %s", err)
	}

	ctx, ctxCancel := context.WithCancel(context.Background())
	defer ctxCancel()

	client := viewer_client.NewClient(viewer_client.Config{BridgeUrl: config.BridgeUrl})
	app := fiber.New()
	server := recorder.NewRecorderServer(recorder.NewRecorder(config, client), app)

	server.SetupRouting(ctx)
	app.Static("/recordings", config.RecordingsDirectory, fiber.Static{
		Browse:        true,
		CacheDuration: time.Second,
	})

	log.Fatal(app.Listen(fmt.Sprintf(":%d", config.Port)))
}

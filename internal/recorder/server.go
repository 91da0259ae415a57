package recorder

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

type Server struct {
	recorder Recorder
	app      *fiber.App
}

func NewRecorderServer(recorder Recorder, app *fiber.App) *Server {
	r := Server{
		app:      app,
		recorder: recorder,
	}
	return &r
}

type startRecordingInfo struct {
	Key      string `json:"key"`
	Duration *int   `json:"duration"`
}

type stopRecordingInfo struct {
	ID string `json:"id"`
}

func (r *Server) SetupRouting(rootCnt context.Context) {
	r.app.Post("/record/start", func(ctx *fiber.Ctx) error {
		var data startRecordingInfo
		if err := ctx.BodyParser(&data); err != nil {
			return fiber.ErrBadRequest
		}
		var duration time.Duration
		if data.Duration != nil {
			duration = time.Duration(*data.Duration) * time.Second
		}
		recordId, err := r.recorder.Record(rootCnt, data.Key, duration)
		if err != nil {
			slog.Error("failed to start recording", "error", err)
			return err
		}
		return ctx.SendString(recordId)
	})

	r.app.Post("/record/stop", func(ctx *fiber.Ctx) error {
		var data stopRecordingInfo
		if err := ctx.BodyParser(&data); err != nil {
			return fiber.ErrBadRequest
		}
		if !r.recorder.StopRecord(data.ID) {
			return ctx.Status(fiber.StatusNotFound).SendString("Recording not found")
		}
		return ctx.SendString("Ok")
	})
}

// Package recorder saves the bridge preview feed to disk as numbered JPEG
// files, one directory per recording.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/viewer_client"
)

type Recorder interface {
	Record(ctx context.Context, key string, duration time.Duration) (string, error)
	StopRecord(recordId string) bool
	Wait(recordId string)
}

type recorder struct {
	config               Config
	client               viewer_client.Client
	maxRecordingDuration time.Duration
	mx                   sync.Locker
	recordings           map[string]*recordingInfo
}

type recordingInfo struct {
	id         string
	dir        string
	duration   time.Duration
	frames     int
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// Record starts saving frames in the background and returns the recording
// id, which is also the name of its directory.
func (r *recorder) Record(ctx context.Context, key string, duration time.Duration) (string, error) {
	recordingId := time.Now().Format("2006_01_02_15_04_05")
	if key != "" {
		recordingId += "_" + key
	}
	dir := filepath.Join(r.config.RecordingsDirectory, recordingId)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("create recording directory: %w", err)
	}

	recordingDuration := r.chooseDuration(duration)
	innerCtx, cancelFunc := context.WithTimeout(ctx, recordingDuration)
	rec := &recordingInfo{
		id:         recordingId,
		dir:        dir,
		duration:   recordingDuration,
		cancelFunc: cancelFunc,
		done:       make(chan struct{}),
	}

	r.mx.Lock()
	r.recordings[recordingId] = rec
	r.mx.Unlock()

	go r.recordBackground(innerCtx, rec)
	return recordingId, nil
}

func (r *recorder) chooseDuration(userDuration time.Duration) time.Duration {
	if userDuration == 0 {
		return r.maxRecordingDuration
	} else if userDuration < r.maxRecordingDuration {
		return userDuration
	} else {
		return r.maxRecordingDuration
	}
}

func (r *recorder) recordBackground(ctx context.Context, rec *recordingInfo) {
	defer close(rec.done)
	defer rec.cancelFunc()

	slog.Info("recording started", "id", rec.id, "duration", rec.duration)
	err := r.client.Connect(ctx, func(frame []byte) error {
		return rec.saveFrame(frame)
	})
	if err != nil {
		slog.Error("recording interrupted", "id", rec.id, "error", err)
	}
	slog.Info("recording finished", "id", rec.id, "frames", rec.frames)
}

func (rec *recordingInfo) saveFrame(frame []byte) error {
	name := filepath.Join(rec.dir, fmt.Sprintf("frame_%06d.jpg", rec.frames))
	if err := os.WriteFile(name, frame, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	rec.frames++
	return nil
}

func (r *recorder) lookup(recordId string) (*recordingInfo, bool) {
	r.mx.Lock()
	defer r.mx.Unlock()
	rec, ok := r.recordings[recordId]
	return rec, ok
}

// StopRecord ends a recording early. It reports false for unknown ids.
func (r *recorder) StopRecord(recordId string) bool {
	rec, ok := r.lookup(recordId)
	if !ok {
		return false
	}
	rec.cancelFunc()
	return true
}

// Wait blocks until the recording has written its last frame.
func (r *recorder) Wait(recordId string) {
	if rec, ok := r.lookup(recordId); ok {
		<-rec.done
	}
}

func NewRecorder(config Config, client viewer_client.Client) Recorder {
	r := recorder{config: config, client: client}
	r.mx = &sync.Mutex{}
	r.recordings = make(map[string]*recordingInfo)
	r.maxRecordingDuration = time.Duration(r.config.MaxRecordDuration) * time.Second
	return &r
}

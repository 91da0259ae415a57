package config

import (
	"time"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/domain"
)

type AppConfig struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Cloud      CloudConfig      `json:"cloud" yaml:"cloud"`
	SelfHosted SelfHostedConfig `json:"selfhosted" yaml:"selfhosted"`
	Exchange   ExchangeConfig   `json:"exchange" yaml:"exchange"`
	Pipeline   PipelineConfig   `json:"pipeline" yaml:"pipeline"`
}

type ServerConfig struct {
	Host                 string  `json:"host" yaml:"host"`
	Port                 int     `json:"port" yaml:"port"`
	AssetDir             string  `json:"assetDir" yaml:"assetDir"`
	LogLevel             string  `json:"logLevel" yaml:"logLevel"`
	BodyLimit            int     `json:"bodyLimit" yaml:"bodyLimit"`
	ViewerQueueSize      int     `json:"viewerQueueSize" yaml:"viewerQueueSize"`
	ViewerWriteTimeoutMs int     `json:"viewerWriteTimeoutMs" yaml:"viewerWriteTimeoutMs"`
	ShutdownTimeoutMs    int     `json:"shutdownTimeoutMs" yaml:"shutdownTimeoutMs"`
	TLSCrtFile           *string `json:"tlsCrtFile" yaml:"tlsCrtFile"`
	TLSKeyFile           *string `json:"tlsKeyFile" yaml:"tlsKeyFile"`
}

type CloudConfig struct {
	BaseURL         string              `json:"baseUrl" yaml:"baseUrl"`
	APIKey          string              `json:"apiKey" yaml:"apiKey"`
	ClientSource    string              `json:"clientSource" yaml:"clientSource"`
	CreateTimeoutMs int                 `json:"createTimeoutMs" yaml:"createTimeoutMs"`
	UpdateTimeoutMs int                 `json:"updateTimeoutMs" yaml:"updateTimeoutMs"`
	SDPTimeoutMs    int                 `json:"sdpTimeoutMs" yaml:"sdpTimeoutMs"`
	Params          domain.StreamParams `json:"params" yaml:"params"`
}

type SelfHostedConfig struct {
	URL                string  `json:"url" yaml:"url"`
	PipelineID         string  `json:"pipelineId" yaml:"pipelineId"`
	InputMode          string  `json:"inputMode" yaml:"inputMode"`
	NoiseScale         float64 `json:"noiseScale" yaml:"noiseScale"`
	OfferTimeoutMs     int     `json:"offerTimeoutMs" yaml:"offerTimeoutMs"`
	RequestTimeoutMs   int     `json:"requestTimeoutMs" yaml:"requestTimeoutMs"`
	LoadTimeoutMs      int     `json:"loadTimeoutMs" yaml:"loadTimeoutMs"`
	InsecureSkipVerify bool    `json:"insecureSkipVerify" yaml:"insecureSkipVerify"`
}

type ExchangeConfig struct {
	MaxEntries      int `json:"maxEntries" yaml:"maxEntries"`
	PendingTTLMs    int `json:"pendingTtlMs" yaml:"pendingTtlMs"`
	ResultTTLMs     int `json:"resultTtlMs" yaml:"resultTtlMs"`
	SweepIntervalMs int `json:"sweepIntervalMs" yaml:"sweepIntervalMs"`
	MaxQueuedICE    int `json:"maxQueuedIce" yaml:"maxQueuedIce"`
}

type PipelineConfig struct {
	FPS              int    `json:"fps" yaml:"fps"`
	Width            int    `json:"width" yaml:"width"`
	Height           int    `json:"height" yaml:"height"`
	Quality          int    `json:"quality" yaml:"quality"`
	CaptureTimeoutMs int    `json:"captureTimeoutMs" yaml:"captureTimeoutMs"`
	Scaler           string `json:"scaler" yaml:"scaler"`
	Background       string `json:"background" yaml:"background"`
	LogEvery         int    `json:"logEvery" yaml:"logEvery"`
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func (c ServerConfig) ViewerWriteTimeout() time.Duration { return ms(c.ViewerWriteTimeoutMs) }
func (c ServerConfig) ShutdownTimeout() time.Duration { return ms(c.ShutdownTimeoutMs) }

func (c CloudConfig) CreateTimeout() time.Duration { return ms(c.CreateTimeoutMs) }
func (c CloudConfig) UpdateTimeout() time.Duration { return ms(c.UpdateTimeoutMs) }
func (c CloudConfig) SDPTimeout() time.Duration { return ms(c.SDPTimeoutMs) }

func (c SelfHostedConfig) OfferTimeout() time.Duration { return ms(c.OfferTimeoutMs) }
func (c SelfHostedConfig) RequestTimeout() time.Duration { return ms(c.RequestTimeoutMs) }
func (c SelfHostedConfig) LoadTimeout() time.Duration { return ms(c.LoadTimeoutMs) }

func (c ExchangeConfig) PendingTTL() time.Duration { return ms(c.PendingTTLMs) }
func (c ExchangeConfig) ResultTTL() time.Duration { return ms(c.ResultTTLMs) }
func (c ExchangeConfig) SweepInterval() time.Duration { return ms(c.SweepIntervalMs) }

func (c PipelineConfig) CaptureTimeout() time.Duration { return ms(c.CaptureTimeoutMs) }

func DefaultAppConfig() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Host:                 "127.0.0.1",
			Port:                 8080,
			AssetDir:             "./asset",
			LogLevel:             "info",
			BodyLimit:            4 * 1024 * 1024,
			ViewerQueueSize:      4,
			ViewerWriteTimeoutMs: 2000,
			ShutdownTimeoutMs:    5000,
			TLSCrtFile:           nil,
			TLSKeyFile:           nil,
		},
		Cloud: CloudConfig{
			BaseURL:         "https://api.daydream.live/v1",
			ClientSource:    "ndi-bridge",
			CreateTimeoutMs: 15000,
			UpdateTimeoutMs: 10000,
			SDPTimeoutMs:    10000,
			Params:          domain.DefaultStreamParams(),
		},
		SelfHosted: SelfHostedConfig{
			PipelineID:       "streamdiffusionv2",
			InputMode:        "video",
			NoiseScale:       0.7,
			OfferTimeoutMs:   30000,
			RequestTimeoutMs: 10000,
			LoadTimeoutMs:    30000,
		},
		Exchange: ExchangeConfig{
			MaxEntries:      256,
			PendingTTLMs:    60000,
			ResultTTLMs:     120000,
			SweepIntervalMs: 5000,
			MaxQueuedICE:    64,
		},
		Pipeline: PipelineConfig{
			FPS:              30,
			Width:            512,
			Height:           512,
			Quality:          70,
			CaptureTimeoutMs: 100,
			Scaler:           "catmullrom",
			Background:       "#000000",
			LogEvery:         150,
		},
	}
}

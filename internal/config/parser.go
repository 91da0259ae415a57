package config

import (
	"fmt"
	"strings"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/domain"
)

type RawServerConfig struct {
	Host                 *string `yaml:"host" json:"host"`
	Port                 *int    `yaml:"port" json:"port"`
	AssetDir             *string `yaml:"assetDir" json:"assetDir"`
	LogLevel             *string `yaml:"logLevel" json:"logLevel"`
	BodyLimit            *int    `yaml:"bodyLimit" json:"bodyLimit"`
	ViewerQueueSize      *int    `yaml:"viewerQueueSize" json:"viewerQueueSize"`
	ViewerWriteTimeoutMs *int    `yaml:"viewerWriteTimeoutMs" json:"viewerWriteTimeoutMs"`
	ShutdownTimeoutMs    *int    `yaml:"shutdownTimeoutMs" json:"shutdownTimeoutMs"`
	TLSCrtFile           *string `yaml:"tlsCrtFile" json:"tlsCrtFile"`
	TLSKeyFile           *string `yaml:"tlsKeyFile" json:"tlsKeyFile"`
}

func (r RawServerConfig) ToDomain() (ServerConfig, error) {
	var cfg ServerConfig
	if r.Host != nil {
		cfg.Host = *r.Host
	}
	if r.Port != nil {
		if *r.Port <= 0 || *r.Port > 65535 {
			return ServerConfig{}, fmt.Errorf("server.port %d out of range", *r.Port)
		}
		cfg.Port = *r.Port
	}
	if r.AssetDir != nil {
		cfg.AssetDir = *r.AssetDir
	}
	if r.LogLevel != nil {
		level := strings.ToLower(*r.LogLevel)
		switch level {
		case "debug", "info", "warn", "error":
		default:
			return ServerConfig{}, fmt.Errorf("server.logLevel %q is not one of debug, info, warn, error", *r.LogLevel)
		}
		cfg.LogLevel = level
	}
	if r.BodyLimit != nil {
		cfg.BodyLimit = *r.BodyLimit
	}
	if r.ViewerQueueSize != nil {
		cfg.ViewerQueueSize = *r.ViewerQueueSize
	}
	if r.ViewerWriteTimeoutMs != nil {
		cfg.ViewerWriteTimeoutMs = *r.ViewerWriteTimeoutMs
	}
	if r.ShutdownTimeoutMs != nil {
		cfg.ShutdownTimeoutMs = *r.ShutdownTimeoutMs
	}
	if (r.TLSCrtFile == nil) != (r.TLSKeyFile == nil) {
		return ServerConfig{}, fmt.Errorf("server.tlsCrtFile and server.tlsKeyFile must be set together")
	}
	cfg.TLSCrtFile = r.TLSCrtFile
	cfg.TLSKeyFile = r.TLSKeyFile
	return cfg, nil
}

type RawCloudConfig struct {
	BaseURL         *string              `yaml:"baseUrl" json:"baseUrl"`
	APIKey          *string              `yaml:"apiKey" json:"apiKey"`
	ClientSource    *string              `yaml:"clientSource" json:"clientSource"`
	CreateTimeoutMs *int                 `yaml:"createTimeoutMs" json:"createTimeoutMs"`
	UpdateTimeoutMs *int                 `yaml:"updateTimeoutMs" json:"updateTimeoutMs"`
	SDPTimeoutMs    *int                 `yaml:"sdpTimeoutMs" json:"sdpTimeoutMs"`
	Params          *domain.StreamParams `yaml:"params" json:"params"`
}

func (r RawCloudConfig) ToDomain() CloudConfig {
	var cfg CloudConfig
	if r.BaseURL != nil {
		cfg.BaseURL = strings.TrimRight(*r.BaseURL, "/")
	}
	if r.APIKey != nil {
		cfg.APIKey = *r.APIKey
	}
	if r.ClientSource != nil {
		cfg.ClientSource = *r.ClientSource
	}
	if r.CreateTimeoutMs != nil {
		cfg.CreateTimeoutMs = *r.CreateTimeoutMs
	}
	if r.UpdateTimeoutMs != nil {
		cfg.UpdateTimeoutMs = *r.UpdateTimeoutMs
	}
	if r.SDPTimeoutMs != nil {
		cfg.SDPTimeoutMs = *r.SDPTimeoutMs
	}
	if r.Params != nil {
		cfg.Params = *r.Params
	}
	return cfg
}

type RawSelfHostedConfig struct {
	URL                *string  `yaml:"url" json:"url"`
	PipelineID         *string  `yaml:"pipelineId" json:"pipelineId"`
	InputMode          *string  `yaml:"inputMode" json:"inputMode"`
	NoiseScale         *float64 `yaml:"noiseScale" json:"noiseScale"`
	OfferTimeoutMs     *int     `yaml:"offerTimeoutMs" json:"offerTimeoutMs"`
	RequestTimeoutMs   *int     `yaml:"requestTimeoutMs" json:"requestTimeoutMs"`
	LoadTimeoutMs      *int     `yaml:"loadTimeoutMs" json:"loadTimeoutMs"`
	InsecureSkipVerify *bool    `yaml:"insecureSkipVerify" json:"insecureSkipVerify"`
}

func (r RawSelfHostedConfig) ToDomain() SelfHostedConfig {
	var cfg SelfHostedConfig
	if r.URL != nil {
		cfg.URL = strings.TrimRight(*r.URL, "/")
	}
	if r.PipelineID != nil {
		cfg.PipelineID = *r.PipelineID
	}
	if r.InputMode != nil {
		cfg.InputMode = *r.InputMode
	}
	if r.NoiseScale != nil {
		cfg.NoiseScale = *r.NoiseScale
	}
	if r.OfferTimeoutMs != nil {
		cfg.OfferTimeoutMs = *r.OfferTimeoutMs
	}
	if r.RequestTimeoutMs != nil {
		cfg.RequestTimeoutMs = *r.RequestTimeoutMs
	}
	if r.LoadTimeoutMs != nil {
		cfg.LoadTimeoutMs = *r.LoadTimeoutMs
	}
	if r.InsecureSkipVerify != nil {
		cfg.InsecureSkipVerify = *r.InsecureSkipVerify
	}
	return cfg
}

type RawExchangeConfig struct {
	MaxEntries      *int `yaml:"maxEntries" json:"maxEntries"`
	PendingTTLMs    *int `yaml:"pendingTtlMs" json:"pendingTtlMs"`
	ResultTTLMs     *int `yaml:"resultTtlMs" json:"resultTtlMs"`
	SweepIntervalMs *int `yaml:"sweepIntervalMs" json:"sweepIntervalMs"`
	MaxQueuedICE    *int `yaml:"maxQueuedIce" json:"maxQueuedIce"`
}

func (r RawExchangeConfig) ToDomain() ExchangeConfig {
	var cfg ExchangeConfig
	if r.MaxEntries != nil {
		cfg.MaxEntries = *r.MaxEntries
	}
	if r.PendingTTLMs != nil {
		cfg.PendingTTLMs = *r.PendingTTLMs
	}
	if r.ResultTTLMs != nil {
		cfg.ResultTTLMs = *r.ResultTTLMs
	}
	if r.SweepIntervalMs != nil {
		cfg.SweepIntervalMs = *r.SweepIntervalMs
	}
	if r.MaxQueuedICE != nil {
		cfg.MaxQueuedICE = *r.MaxQueuedICE
	}
	return cfg
}

type RawPipelineConfig struct {
	FPS              *int    `yaml:"fps" json:"fps"`
	Width            *int    `yaml:"width" json:"width"`
	Height           *int    `yaml:"height" json:"height"`
	Quality          *int    `yaml:"quality" json:"quality"`
	CaptureTimeoutMs *int    `yaml:"captureTimeoutMs" json:"captureTimeoutMs"`
	Scaler           *string `yaml:"scaler" json:"scaler"`
	Background       *string `yaml:"background" json:"background"`
	LogEvery         *int    `yaml:"logEvery" json:"logEvery"`
}

func (r RawPipelineConfig) ToDomain() (PipelineConfig, error) {
	var cfg PipelineConfig
	if r.FPS != nil {
		if *r.FPS <= 0 || *r.FPS > 120 {
			return PipelineConfig{}, fmt.Errorf("pipeline.fps %d out of range", *r.FPS)
		}
		cfg.FPS = *r.FPS
	}
	if r.Width != nil {
		cfg.Width = *r.Width
	}
	if r.Height != nil {
		cfg.Height = *r.Height
	}
	if r.Quality != nil {
		if *r.Quality < 1 || *r.Quality > 100 {
			return PipelineConfig{}, fmt.Errorf("pipeline.quality %d out of range", *r.Quality)
		}
		cfg.Quality = *r.Quality
	}
	if r.CaptureTimeoutMs != nil {
		cfg.CaptureTimeoutMs = *r.CaptureTimeoutMs
	}
	if r.Scaler != nil {
		cfg.Scaler = *r.Scaler
	}
	if r.Background != nil {
		if _, err := ParseColor(*r.Background); err != nil {
			return PipelineConfig{}, err
		}
		cfg.Background = *r.Background
	}
	if r.LogEvery != nil {
		cfg.LogEvery = *r.LogEvery
	}
	return cfg, nil
}

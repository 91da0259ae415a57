package recorder

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
)

type Config struct {
	MaxRecordDuration   int    `json:"maxRecordDurationSec"`
	BridgeUrl           string `json:"bridgeUrl"`
	RecordingsDirectory string `json:"recordingsDirectory"`
	Port                int    `json:"port"`
}

func (c *Config) applyDefaults() {
	if c.MaxRecordDuration == 0 {
		c.MaxRecordDuration = 60
	}
	if c.RecordingsDirectory == "" {
		c.RecordingsDirectory = "recordings"
	}
	if c.BridgeUrl == "" {
		c.BridgeUrl = "http://127.0.0.1:8080"
	}
	if c.Port == 0 {
		c.Port = 8001
	}
}

// LoadRecorderConfig reads path. A missing file yields the defaults.
func LoadRecorderConfig(path string) (config Config, err error) {
	defer config.applyDefaults()

	configFile, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return config, nil
	}
	if err != nil {
		return
	}
	defer func() { _ = configFile.Close() }()
	err = json.NewDecoder(bufio.NewReader(configFile)).Decode(&config)
	return
}

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"

	"gopkg.in/yaml.v3"
)

// APIKeyEnv overrides cloud.apiKey when set.
const APIKeyEnv = "DAYDREAM_API_KEY"

// Sections are the per-file config sections, each read from
// <dir>/<section>.yaml or <dir>/<section>.json.
var Sections = []string{"server", "cloud", "selfhosted", "exchange", "pipeline"}

func LoadAppConfig(dir string) (*AppConfig, error) {
	cfg := DefaultAppConfig()

	var rawServer RawServerConfig
	if err := loadFileInto(dir, "server", &rawServer); err != nil {
		return nil, err
	}
	parsedServer, err := rawServer.ToDomain()
	if err != nil {
		return nil, err
	}
	mergeInto(&cfg.Server, parsedServer)

	var rawCloud RawCloudConfig
	if err := loadFileInto(dir, "cloud", &rawCloud); err != nil {
		return nil, err
	}
	mergeInto(&cfg.Cloud, rawCloud.ToDomain())

	var rawSelfHosted RawSelfHostedConfig
	if err := loadFileInto(dir, "selfhosted", &rawSelfHosted); err != nil {
		return nil, err
	}
	mergeInto(&cfg.SelfHosted, rawSelfHosted.ToDomain())

	var rawExchange RawExchangeConfig
	if err := loadFileInto(dir, "exchange", &rawExchange); err != nil {
		return nil, err
	}
	mergeInto(&cfg.Exchange, rawExchange.ToDomain())

	var rawPipeline RawPipelineConfig
	if err := loadFileInto(dir, "pipeline", &rawPipeline); err != nil {
		return nil, err
	}
	parsedPipeline, err := rawPipeline.ToDomain()
	if err != nil {
		return nil, err
	}
	mergeInto(&cfg.Pipeline, parsedPipeline)

	if key := os.Getenv(APIKeyEnv); key != "" {
		cfg.Cloud.APIKey = key
	}

	return &cfg, nil
}

func loadFileInto(dir, filenameBase string, target interface{}) error {
	basePath := filepath.Join(dir, filenameBase)

	if f, err := os.Open(basePath + ".yaml"); err == nil {
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(target); err != nil {
			if errors.Is(err, io.EOF) {
				slog.Warn("config file is empty, using defaults", "file", basePath+".yaml")
				return nil
			}
			return fmt.Errorf("parse %s.yaml: %w", basePath, err)
		}
		return nil
	}

	if f, err := os.Open(basePath + ".json"); err == nil {
		defer f.Close()
		if err := json.NewDecoder(f).Decode(target); err != nil {
			if errors.Is(err, io.EOF) {
				slog.Warn("config file is empty, using defaults", "file", basePath+".json")
				return nil
			}
			return fmt.Errorf("parse %s.json: %w", basePath, err)
		}
		return nil
	}

	return nil
}

func mergeInto(dst, src interface{}) {
	dstVal := reflect.ValueOf(dst).Elem()
	srcVal := reflect.ValueOf(src)

	mergeValues(dstVal, srcVal)
}

func mergeValues(dstVal, srcVal reflect.Value) {
	for i := 0; i < srcVal.NumField(); i++ {
		srcField := srcVal.Field(i)
		dstField := dstVal.Field(i)

		switch srcField.Kind() {
		case reflect.Struct:
			mergeValues(dstField, srcField)
		case reflect.Slice:
			if !srcField.IsNil() && srcField.Len() > 0 {
				dstField.Set(srcField)
			}
		case reflect.Pointer:
			if !srcField.IsNil() {
				dstField.Set(srcField)
			}
		default:
			if !srcField.IsZero() {
				dstField.Set(srcField)
			}
		}
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(APIKeyEnv, "")
	cfg, err := LoadAppConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadAppConfig() error = %v", err)
	}
	def := DefaultAppConfig()
	if cfg.Server.Port != 8080 || cfg.Cloud.BaseURL != def.Cloud.BaseURL {
		t.Errorf("defaults not applied: %+v", cfg.Server)
	}
	if cfg.Cloud.CreateTimeout() != 15*time.Second || cfg.SelfHosted.OfferTimeout() != 30*time.Second {
		t.Errorf("timeouts = %v / %v", cfg.Cloud.CreateTimeout(), cfg.SelfHosted.OfferTimeout())
	}
	if cfg.Exchange.MaxEntries != 256 || cfg.Pipeline.FPS != 30 {
		t.Errorf("exchange/pipeline defaults = %+v / %+v", cfg.Exchange, cfg.Pipeline)
	}
}

func TestLoadMergesYAMLAndJSON(t *testing.T) {
	t.Setenv(APIKeyEnv, "")
	dir := t.TempDir()
	writeFile(t, dir, "server.yaml", "port: 9090\nlogLevel: DEBUG\n")
	writeFile(t, dir, "cloud.json", `{"apiKey":"from-file","params":{"prompt":"ink wash"}}`)
	writeFile(t, dir, "pipeline.yaml", "fps: 24\nbackground: \"#102030\"\n")

	cfg, err := LoadAppConfig(dir)
	if err != nil {
		t.Fatalf("LoadAppConfig() error = %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Server.LogLevel != "debug" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("unset field lost its default: host = %q", cfg.Server.Host)
	}
	if cfg.Cloud.APIKey != "from-file" || cfg.Cloud.Params.Prompt != "ink wash" {
		t.Errorf("cloud = %+v", cfg.Cloud)
	}
	if cfg.Cloud.Params.ModelID != "stabilityai/sdxl-turbo" {
		t.Errorf("partial params dropped model id: %q", cfg.Cloud.Params.ModelID)
	}
	if cfg.Pipeline.FPS != 24 || cfg.Pipeline.Background != "#102030" {
		t.Errorf("pipeline = %+v", cfg.Pipeline)
	}
}

func TestAPIKeyEnvOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "cloud.yaml", "apiKey: from-file\n")
	t.Setenv(APIKeyEnv, "from-env")

	cfg, err := LoadAppConfig(dir)
	if err != nil {
		t.Fatalf("LoadAppConfig() error = %v", err)
	}
	if cfg.Cloud.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want from-env", cfg.Cloud.APIKey)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name, file, content string
	}{
		{"bad port", "server.yaml", "port: 70000\n"},
		{"bad level", "server.yaml", "logLevel: loud\n"},
		{"half tls", "server.yaml", "tlsCrtFile: cert.pem\n"},
		{"bad fps", "pipeline.yaml", "fps: 0\n"},
		{"bad color", "pipeline.yaml", "background: red\n"},
		{"bad yaml", "exchange.yaml", "maxEntries: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, tt.file, tt.content)
			if _, err := LoadAppConfig(dir); err == nil {
				t.Errorf("LoadAppConfig() error = nil, want error")
			}
		})
	}
}

func TestEmptyFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "server.yaml", "")
	cfg, err := LoadAppConfig(dir)
	if err != nil {
		t.Fatalf("LoadAppConfig() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("#ff8000")
	if err != nil {
		t.Fatalf("ParseColor() error = %v", err)
	}
	if c.R != 0xff || c.G != 0x80 || c.B != 0 || c.A != 0xff {
		t.Errorf("ParseColor() = %+v", c)
	}
}

func TestManagerReloadKeepsOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "server.yaml", "port: 9000\n")

	mgr, err := NewManager(dir, WithPort(7000))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer mgr.Close()

	updates := make(chan *AppConfig, 4)
	mgr.SetUpdateCallback(func(c *AppConfig) {
		select {
		case updates <- c:
		default:
		}
	})

	if got := mgr.Get().Server.Port; got != 7000 {
		t.Errorf("Port = %d, want flag override 7000", got)
	}

	writeFile(t, dir, "exchange.yaml", "maxEntries: 8\n")
	deadline := time.Now().Add(2 * time.Second)
	for mgr.Get().Exchange.MaxEntries != 8 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if mgr.Get().Exchange.MaxEntries != 8 {
		// Some filesystems do not deliver events; reload by hand.
		if err := mgr.Reload(); err != nil {
			t.Fatalf("Reload() error = %v", err)
		}
	}

	cfg := mgr.Get()
	if cfg.Exchange.MaxEntries != 8 {
		t.Errorf("MaxEntries = %d, want 8", cfg.Exchange.MaxEntries)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("reload dropped override: port = %d", cfg.Server.Port)
	}
	select {
	case <-updates:
	default:
		t.Error("update callback never ran")
	}
}

func TestIsSectionFile(t *testing.T) {
	for name, want := range map[string]bool{
		"/conf/server.yaml":    true,
		"conf/pipeline.json":   true,
		"conf/server.yaml.swp": false,
		"conf/other.yaml":      false,
	} {
		if got := isSectionFile(name); got != want {
			t.Errorf("isSectionFile(%q) = %v, want %v", name, got, want)
		}
	}
}

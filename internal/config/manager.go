package config

import (
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/metrics"
)

type Manager struct {
	mu           sync.RWMutex
	current      *AppConfig
	configDir    string
	onUpdateFunc func(*AppConfig)
	watcher      *fsnotify.Watcher
	overrides    []Option
}

// NewManager loads dir and keeps watching it. overrides are re-applied on
// every reload. A missing directory is not an error; the defaults apply and
// nothing is watched.
func NewManager(configDir string, overrides ...Option) (*Manager, error) {
	mgr := &Manager{configDir: configDir, overrides: overrides}

	if err := mgr.Reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("failed to create config watcher", "error", err)
		return mgr, nil
	}
	if err := watcher.Add(configDir); err != nil {
		slog.Warn("config dir is not watched", "dir", configDir, "error", err)
		_ = watcher.Close()
		return mgr, nil
	}
	mgr.watcher = watcher
	go mgr.watch(watcher)

	return mgr, nil
}

func (m *Manager) Get() AppConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.current
}

// Reload re-reads every section. A broken file keeps the previous config.
func (m *Manager) Reload() error {
	newConfig, err := LoadAppConfig(m.configDir)
	if err != nil {
		return err
	}
	newConfig.Apply(m.overrides...)

	m.mu.Lock()
	m.current = newConfig
	onUpdate := m.onUpdateFunc
	m.mu.Unlock()

	if onUpdate != nil {
		onUpdate(newConfig)
	}

	metrics.ConfigReloads.Inc()
	slog.Info("configuration reloaded successfully")
	return nil
}

func (m *Manager) SetUpdateCallback(f func(*AppConfig)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdateFunc = f
}

func (m *Manager) Close() error {
	if m.watcher == nil {
		return nil
	}
	return m.watcher.Close()
}

func isSectionFile(name string) bool {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	if ext != ".yaml" && ext != ".json" {
		return false
	}
	return slices.Contains(Sections, strings.TrimSuffix(base, ext))
}

func (m *Manager) watch(watcher *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !isSectionFile(event.Name) {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				slog.Info("config file modified", "file", event.Name)
				if err := m.Reload(); err != nil {
					slog.Error("error reloading config", "error", err)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Error("config watcher error", "error", err)
		}
	}
}

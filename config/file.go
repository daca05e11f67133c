package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var ErrNoConfigFiles = errors.New("no server config files found")

// ReadServerConfigs loads every *.json file in dir as a ServerConfig,
// the way the teacher's backendConfigFileReader walks a directory of
// per-backend files rather than one monolithic config.
func ReadServerConfigs(dir string) ([]ServerConfig, error) {
	var cfgs []ServerConfig
	var filePaths []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if filepath.Ext(path) != ".json" {
			return nil
		}
		filePaths = append(filePaths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(filePaths) == 0 {
		return cfgs, ErrNoConfigFiles
	}

	for _, path := range filePaths {
		cfg, err := LoadServerConfig(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		cfgs = append(cfgs, cfg)
	}
	return cfgs, nil
}

func LoadServerConfig(path string) (ServerConfig, error) {
	bb, err := os.ReadFile(path)
	if err != nil {
		return ServerConfig{}, err
	}
	cfg := DefaultServerConfig()
	if err := json.Unmarshal(bb, &cfg); err != nil {
		return cfg, err
	}
	cfg.FilePath = path
	return cfg, nil
}

// PersistServerConfig writes cfg to its FilePath atomically: write to a
// temp file in the same directory, then rename over the target, so a
// reader never observes a half-written config.
func PersistServerConfig(cfg ServerConfig) error {
	if cfg.FilePath == "" {
		return errors.New("config has no file path to persist to")
	}
	bb, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(cfg.FilePath)
	tmp, err := os.CreateTemp(dir, ".tmp-*.json")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(bb); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, cfg.FilePath)
}

func ReadProxyConfig(path string) (ProxyConfig, error) {
	cfg := DefaultProxyConfig()
	bb, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(bb, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

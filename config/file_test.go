package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sawolke/mcwake/config"
)

func writeServerConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadServerConfigs(t *testing.T) {
	dir := t.TempDir()
	writeServerConfig(t, dir, "survival.json", `{
		"id": "survival", "name": "Survival", "edition": "java",
		"containerName": "mc-survival", "externalPort": 25565,
		"internalHost": "mc-survival", "internalPort": 25565
	}`)
	writeServerConfig(t, dir, "notes.txt", "ignore me")

	cfgs, err := config.ReadServerConfigs(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfgs) != 1 {
		t.Fatalf("expected 1 config, got %d", len(cfgs))
	}
	if cfgs[0].ID != "survival" {
		t.Errorf("got id %q; want survival", cfgs[0].ID)
	}
	if cfgs[0].MaxPlayers != 20 {
		t.Errorf("expected default MaxPlayers to survive merge, got %d", cfgs[0].MaxPlayers)
	}
}

func TestReadServerConfigs_NoFiles(t *testing.T) {
	dir := t.TempDir()
	if _, err := config.ReadServerConfigs(dir); err != config.ErrNoConfigFiles {
		t.Fatalf("got %v; want ErrNoConfigFiles", err)
	}
}

func TestPersistServerConfig_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := writeServerConfig(t, dir, "survival.json", `{
		"id": "survival", "name": "Survival", "edition": "java",
		"containerName": "mc-survival", "externalPort": 25565,
		"internalHost": "mc-survival", "internalPort": 25565
	}`)

	cfg, err := config.LoadServerConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg.MaxPlayers = 42
	if err := config.PersistServerConfig(cfg); err != nil {
		t.Fatal(err)
	}

	reloaded, err := config.LoadServerConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.MaxPlayers != 42 {
		t.Errorf("got MaxPlayers %d; want 42", reloaded.MaxPlayers)
	}
}

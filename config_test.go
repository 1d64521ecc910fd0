package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultsWithoutFiles(t *testing.T) {
	dir := t.TempDir()
	cfg, warnings := loadConfig(filepath.Join(dir, "missing.json"), filepath.Join(dir, "missing.env"))
	if len(warnings) != 0 {
		t.Errorf("missing optional files should not warn: %v", warnings)
	}
	gc := cfg.gameConfig()
	if gc.Night != 15 || gc.Discussion != 45 || gc.Voting != 15 || gc.Settle != 5 {
		t.Errorf("unexpected phase lengths: %+v", gc)
	}
	if gc.MinPlayers != 5 || gc.Tick != time.Second {
		t.Errorf("unexpected limits: %+v", gc)
	}
}

func TestConfigLayering(t *testing.T) {
	dir := t.TempDir()
	envPath := writeFile(t, dir, ".env", "NIGHT_SECONDS=20\nVOTING_SECONDS=25\nDISCUSSION_SECONDS=30\n")
	jsonPath := writeFile(t, dir, "config.json", `{"voting_seconds": 40, "storyteller_provider": "ollama"}`)

	// A real env var beats the .env file.
	t.Setenv("DISCUSSION_SECONDS", "60")
	// godotenv sets the rest into the process environment; clear them afterwards.
	t.Setenv("NIGHT_SECONDS", "")
	t.Setenv("VOTING_SECONDS", "")
	os.Unsetenv("NIGHT_SECONDS")
	os.Unsetenv("VOTING_SECONDS")

	cfg, warnings := loadConfig(jsonPath, envPath)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if cfg.NightSeconds != 20 {
		t.Errorf(".env layer: night=%d, want 20", cfg.NightSeconds)
	}
	if cfg.DiscussionSeconds != 60 {
		t.Errorf("env var layer: discussion=%d, want 60", cfg.DiscussionSeconds)
	}
	if cfg.VotingSeconds != 40 {
		t.Errorf("JSON layer: voting=%d, want 40", cfg.VotingSeconds)
	}
	if cfg.StorytellerProvider != "ollama" {
		t.Errorf("JSON layer: provider=%q", cfg.StorytellerProvider)
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fv := registerFlags(fs)
	if err := fs.Parse([]string{"-voting-seconds", "9", "-dev"}); err != nil {
		t.Fatal(err)
	}
	fv.applyTo(fs, &cfg)
	if cfg.VotingSeconds != 9 || !cfg.Dev {
		t.Errorf("flag layer not applied: voting=%d dev=%v", cfg.VotingSeconds, cfg.Dev)
	}
	if cfg.NightSeconds != 20 {
		t.Error("unset flags must not override")
	}
}

func TestBadValuesWarn(t *testing.T) {
	dir := t.TempDir()
	jsonPath := writeFile(t, dir, "config.json", `{not json`)
	t.Setenv("TICK_MS", "fast")

	cfg, warnings := loadConfig(jsonPath, filepath.Join(dir, "none.env"))
	if len(warnings) != 2 {
		t.Errorf("expected 2 warnings, got %v", warnings)
	}
	if cfg.TickMS != defaultConfig().TickMS {
		t.Errorf("bad tick should be ignored, got %d", cfg.TickMS)
	}
}

func TestGameConfigSanitizes(t *testing.T) {
	cfg := defaultConfig()
	cfg.NightSeconds = -3
	cfg.MinPlayers = 8
	cfg.MaxCapacity = 6
	cfg.DefaultCapacity = 2
	cfg.AgentDelayMinMS = 500
	cfg.AgentDelayMaxMS = 100

	gc := cfg.gameConfig()
	if gc.Night != 15 {
		t.Errorf("night %d, want default", gc.Night)
	}
	if gc.MaxCapacity < gc.MinPlayers || gc.DefaultCapacity < gc.MinPlayers || gc.DefaultCapacity > gc.MaxCapacity {
		t.Errorf("inconsistent capacity limits: %+v", gc)
	}
	if gc.AgentDelay[1] < gc.AgentDelay[0] {
		t.Errorf("delay window inverted: %v", gc.AgentDelay)
	}
}

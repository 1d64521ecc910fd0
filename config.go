package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all server configuration.
// Priority (lowest → highest): defaults < .env < env vars < JSON config file < CLI flags.
type AppConfig struct {
	// Server
	Addr             string `json:"addr"`              // HTTP listen address
	Dev              bool   `json:"dev"`               // dev mode: console logging at debug level
	DB               string `json:"db"`                // archive database DSN
	ArchiveRetention int    `json:"archive_retention"` // hours an archived game is kept

	// Logging
	LogJSON  bool `json:"log_json"`
	LogWS    bool `json:"log_ws"`
	LogDebug bool `json:"log_debug"`

	// Game timings, in seconds unless noted
	NightSeconds      int `json:"night_seconds"`
	DiscussionSeconds int `json:"discussion_seconds"`
	VotingSeconds     int `json:"voting_seconds"`
	SettleSeconds     int `json:"settle_seconds"`
	VoteGraceSeconds  int `json:"vote_grace_seconds"`
	AgentDelayMinMS   int `json:"agent_delay_min_ms"`
	AgentDelayMaxMS   int `json:"agent_delay_max_ms"`
	TickMS            int `json:"tick_ms"`

	// Room limits
	MinPlayers      int `json:"min_players"`
	DefaultCapacity int `json:"default_capacity"`
	MaxCapacity     int `json:"max_capacity"`

	// AI Storyteller
	StorytellerProvider    string `json:"storyteller_provider"`    // ollama | openai | claude | gemini | groq | openai-compatible
	StorytellerModel       string `json:"storyteller_model"`       // model name
	StorytellerOllamaURL   string `json:"storyteller_ollama_url"`  // Ollama server URL
	StorytellerURL         string `json:"storyteller_url"`         // base URL for openai-compatible
	StorytellerAPIKey      string `json:"storyteller_api_key"`     // API key for openai-compatible
	StorytellerTemperature string `json:"storyteller_temperature"` // float 0-1 as string
	GroqAPIKey             string `json:"groq_api_key"`            // API key for groq provider
}

// GameConfig is the part of the configuration every room engine reads.
type GameConfig struct {
	Night      int
	Discussion int
	Voting     int
	Settle     int
	VoteGrace  int
	AgentDelay [2]time.Duration
	Tick       time.Duration

	MinPlayers      int
	DefaultCapacity int
	MaxCapacity     int
}

func defaultConfig() AppConfig {
	return AppConfig{
		Addr:                 ":8080",
		DB:                   "file::memory:?cache=shared",
		ArchiveRetention:     24,
		NightSeconds:         15,
		DiscussionSeconds:    45,
		VotingSeconds:        15,
		SettleSeconds:        5,
		VoteGraceSeconds:     5,
		AgentDelayMinMS:      1000,
		AgentDelayMaxMS:      8000,
		TickMS:               1000,
		MinPlayers:           5,
		DefaultCapacity:      10,
		MaxCapacity:          20,
		StorytellerOllamaURL: "http://localhost:11434",
	}
}

func defaultGameConfig() GameConfig {
	return defaultConfig().gameConfig()
}

func (cfg AppConfig) toLogConfig() LogConfig {
	return LogConfig{
		JSON:  cfg.LogJSON,
		LogWS: cfg.LogWS,
		Debug: cfg.LogDebug || cfg.Dev,
	}
}

// gameConfig converts the flat settings into engine settings, replacing
// non-positive values with defaults.
func (cfg AppConfig) gameConfig() GameConfig {
	def := defaultConfig()
	pos := func(v, fallback int) int {
		if v <= 0 {
			return fallback
		}
		return v
	}

	minDelay := cfg.AgentDelayMinMS
	if minDelay < 0 {
		minDelay = def.AgentDelayMinMS
	}
	maxDelay := cfg.AgentDelayMaxMS
	if maxDelay < minDelay {
		maxDelay = minDelay
	}

	gc := GameConfig{
		Night:           pos(cfg.NightSeconds, def.NightSeconds),
		Discussion:      pos(cfg.DiscussionSeconds, def.DiscussionSeconds),
		Voting:          pos(cfg.VotingSeconds, def.VotingSeconds),
		Settle:          pos(cfg.SettleSeconds, def.SettleSeconds),
		VoteGrace:       pos(cfg.VoteGraceSeconds, def.VoteGraceSeconds),
		AgentDelay:      [2]time.Duration{time.Duration(minDelay) * time.Millisecond, time.Duration(maxDelay) * time.Millisecond},
		Tick:            time.Duration(pos(cfg.TickMS, def.TickMS)) * time.Millisecond,
		MinPlayers:      pos(cfg.MinPlayers, def.MinPlayers),
		DefaultCapacity: pos(cfg.DefaultCapacity, def.DefaultCapacity),
		MaxCapacity:     pos(cfg.MaxCapacity, def.MaxCapacity),
	}
	if gc.MaxCapacity < gc.MinPlayers {
		gc.MaxCapacity = gc.MinPlayers
	}
	if gc.DefaultCapacity > gc.MaxCapacity {
		gc.DefaultCapacity = gc.MaxCapacity
	}
	if gc.DefaultCapacity < gc.MinPlayers {
		gc.DefaultCapacity = gc.MinPlayers
	}
	return gc
}

// loadConfig builds a config by layering: defaults → .env → env vars → JSON config file.
// CLI flag overrides are applied separately by flagValues.applyTo after flag.Parse.
// Problems with optional files are returned as warnings, not errors.
func loadConfig(configPath, envPath string) (AppConfig, []string) {
	cfg := defaultConfig()
	var warnings []string

	// Layer 1: .env never overrides variables already set in the environment
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		warnings = append(warnings, fmt.Sprintf("failed to load %s: %v", envPath, err))
	}

	// Layer 2: env vars
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "1" || v == "true" || v == "yes"
		}
	}
	envInt := func(key string, dst *int) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("ignoring %s=%q: %v", key, v, err))
			return
		}
		*dst = n
	}

	envStr("ADDR", &cfg.Addr)
	envBool("DEV", &cfg.Dev)
	envStr("DB", &cfg.DB)
	envInt("ARCHIVE_RETENTION", &cfg.ArchiveRetention)
	envBool("LOG_JSON", &cfg.LogJSON)
	envBool("LOG_WS", &cfg.LogWS)
	envBool("LOG_DEBUG", &cfg.LogDebug)
	envInt("NIGHT_SECONDS", &cfg.NightSeconds)
	envInt("DISCUSSION_SECONDS", &cfg.DiscussionSeconds)
	envInt("VOTING_SECONDS", &cfg.VotingSeconds)
	envInt("SETTLE_SECONDS", &cfg.SettleSeconds)
	envInt("VOTE_GRACE_SECONDS", &cfg.VoteGraceSeconds)
	envInt("AGENT_DELAY_MIN_MS", &cfg.AgentDelayMinMS)
	envInt("AGENT_DELAY_MAX_MS", &cfg.AgentDelayMaxMS)
	envInt("TICK_MS", &cfg.TickMS)
	envInt("MIN_PLAYERS", &cfg.MinPlayers)
	envInt("DEFAULT_CAPACITY", &cfg.DefaultCapacity)
	envInt("MAX_CAPACITY", &cfg.MaxCapacity)
	envStr("STORYTELLER_PROVIDER", &cfg.StorytellerProvider)
	envStr("STORYTELLER_MODEL", &cfg.StorytellerModel)
	envStr("STORYTELLER_OLLAMA_URL", &cfg.StorytellerOllamaURL)
	envStr("STORYTELLER_URL", &cfg.StorytellerURL)
	envStr("STORYTELLER_API_KEY", &cfg.StorytellerAPIKey)
	envStr("STORYTELLER_TEMPERATURE", &cfg.StorytellerTemperature)
	envStr("GROQ_API_KEY", &cfg.GroqAPIKey)

	// Layer 3: JSON config file, only fields present in the file override env vars
	if data, err := os.ReadFile(configPath); err == nil {
		var overlay map[string]json.RawMessage
		if err := json.Unmarshal(data, &overlay); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to parse %s: %v", configPath, err))
		} else {
			applyJSONOverlay(&cfg, overlay)
		}
	} else if !os.IsNotExist(err) {
		warnings = append(warnings, fmt.Sprintf("failed to read %s: %v", configPath, err))
	}

	return cfg, warnings
}

// applyJSONOverlay only sets fields that are explicitly present in the JSON map.
func applyJSONOverlay(cfg *AppConfig, m map[string]json.RawMessage) {
	set := func(key string, dst any) {
		if v, ok := m[key]; ok {
			json.Unmarshal(v, dst)
		}
	}
	set("addr", &cfg.Addr)
	set("dev", &cfg.Dev)
	set("db", &cfg.DB)
	set("archive_retention", &cfg.ArchiveRetention)
	set("log_json", &cfg.LogJSON)
	set("log_ws", &cfg.LogWS)
	set("log_debug", &cfg.LogDebug)
	set("night_seconds", &cfg.NightSeconds)
	set("discussion_seconds", &cfg.DiscussionSeconds)
	set("voting_seconds", &cfg.VotingSeconds)
	set("settle_seconds", &cfg.SettleSeconds)
	set("vote_grace_seconds", &cfg.VoteGraceSeconds)
	set("agent_delay_min_ms", &cfg.AgentDelayMinMS)
	set("agent_delay_max_ms", &cfg.AgentDelayMaxMS)
	set("tick_ms", &cfg.TickMS)
	set("min_players", &cfg.MinPlayers)
	set("default_capacity", &cfg.DefaultCapacity)
	set("max_capacity", &cfg.MaxCapacity)
	set("storyteller_provider", &cfg.StorytellerProvider)
	set("storyteller_model", &cfg.StorytellerModel)
	set("storyteller_ollama_url", &cfg.StorytellerOllamaURL)
	set("storyteller_url", &cfg.StorytellerURL)
	set("storyteller_api_key", &cfg.StorytellerAPIKey)
	set("storyteller_temperature", &cfg.StorytellerTemperature)
	set("groq_api_key", &cfg.GroqAPIKey)
}

// flagValues holds pointers to all registered CLI flags.
type flagValues struct {
	configPath          *string
	envPath             *string
	addr                *string
	dev                 *bool
	db                  *string
	logJSON             *bool
	logWS               *bool
	logDebug            *bool
	night               *int
	discussion          *int
	voting              *int
	minPlayers          *int
	storytellerProvider *string
	storytellerModel    *string
}

// registerFlags registers all CLI flags on fs and returns pointers to their values.
// Call fs.Parse after this, then applyTo to layer them over the loaded config.
func registerFlags(fs *flag.FlagSet) flagValues {
	return flagValues{
		configPath:          fs.String("config", "config.json", "path to JSON config file"),
		envPath:             fs.String("env", ".env", "path to .env file"),
		addr:                fs.String("addr", "", "HTTP listen address (e.g. :8080)"),
		dev:                 fs.Bool("dev", false, "enable development mode (debug logging)"),
		db:                  fs.String("db", "", "archive database connection string"),
		logJSON:             fs.Bool("log-json", false, "log as JSON"),
		logWS:               fs.Bool("log-ws", false, "log WebSocket messages"),
		logDebug:            fs.Bool("log-debug", false, "enable debug logging"),
		night:               fs.Int("night-seconds", 0, "night phase length"),
		discussion:          fs.Int("discussion-seconds", 0, "discussion phase length"),
		voting:              fs.Int("voting-seconds", 0, "voting phase length"),
		minPlayers:          fs.Int("min-players", 0, "participants required to start"),
		storytellerProvider: fs.String("storyteller-provider", "", "AI storyteller provider (ollama|openai|claude|gemini|groq|openai-compatible)"),
		storytellerModel:    fs.String("storyteller-model", "", "AI storyteller model name"),
	}
}

// applyTo overlays any CLI flags that were explicitly set onto cfg.
// Flags that were not passed on the command line are ignored (env/JSON values win).
func (fv flagValues) applyTo(fs *flag.FlagSet, cfg *AppConfig) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *fv.addr
		case "dev":
			cfg.Dev = *fv.dev
		case "db":
			cfg.DB = *fv.db
		case "log-json":
			cfg.LogJSON = *fv.logJSON
		case "log-ws":
			cfg.LogWS = *fv.logWS
		case "log-debug":
			cfg.LogDebug = *fv.logDebug
		case "night-seconds":
			cfg.NightSeconds = *fv.night
		case "discussion-seconds":
			cfg.DiscussionSeconds = *fv.discussion
		case "voting-seconds":
			cfg.VotingSeconds = *fv.voting
		case "min-players":
			cfg.MinPlayers = *fv.minPlayers
		case "storyteller-provider":
			cfg.StorytellerProvider = *fv.storytellerProvider
		case "storyteller-model":
			cfg.StorytellerModel = *fv.storytellerModel
		}
	})
}

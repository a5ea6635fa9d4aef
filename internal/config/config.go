package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the immutable process configuration, loaded once at boot.
type Config struct {
	DatabaseURL  string `env:"DATABASE_URL,required"`
	DBMaxConns   int    `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns   int    `env:"DB_MIN_CONNS" envDefault:"2"`
	BotPort      int    `env:"BOT_PORT" envDefault:"3306"`
	PublicDomain string `env:"PUBLIC_DOMAIN" envDefault:"localhost"`
	APIKeyFile   string `env:"API_KEY_FILE" envDefault:"./apikeys.json"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	Timezone     string `env:"TIMEZONE" envDefault:"America/New_York"`
	AdminToken   string `env:"ADMIN_TOKEN"`
	LogDir       string `env:"LOG_DIR" envDefault:"./logs"`

	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"60s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	// Audio storage
	StorageMode        string `env:"STORAGE_MODE" envDefault:"local"` // "local" or "s3"
	AudioDir           string `env:"AUDIO_DIR" envDefault:"./audio"`
	AudioRetentionDays int    `env:"AUDIO_RETENTION_DAYS" envDefault:"7"`
	S3Endpoint         string `env:"S3_ENDPOINT"`
	S3Bucket           string `env:"S3_BUCKET"`
	S3Region           string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Key              string `env:"S3_KEY"`
	S3Secret           string `env:"S3_SECRET"`

	// Transcription
	TranscriptionMode    string        `env:"TRANSCRIPTION_MODE" envDefault:"local"` // local, remote, openai, icad
	WhisperServerURL     string        `env:"FASTER_WHISPER_SERVER_URL"`
	WhisperModel         string        `env:"WHISPER_MODEL" envDefault:"small.en"`
	TranscriptionDevice  string        `env:"TRANSCRIPTION_DEVICE" envDefault:"cpu"`
	WhisperWorkerCmd     string        `env:"WHISPER_WORKER_CMD" envDefault:"python3 -u whisper_worker.py"`
	ICADURL              string        `env:"ICAD_URL"`
	ICADAPIKey           string        `env:"ICAD_API_KEY"`
	ICADProfile          string        `env:"ICAD_PROFILE"`
	MaxConcurrent        int           `env:"MAX_CONCURRENT_TRANSCRIPTIONS" envDefault:"3"`
	TranscriptionTimeout time.Duration `env:"TRANSCRIPTION_TIMEOUT" envDefault:"120s"`
	OpenAIAPIKey         string        `env:"OPENAI_API_KEY"`

	// Address extraction / geocoding
	MappedTalkGroups  []string `env:"MAPPED_TALK_GROUPS" envSeparator:","`
	GeocodingState    string   `env:"GEOCODING_STATE" envDefault:"NY"`
	GeocodingCountry  string   `env:"GEOCODING_COUNTRY" envDefault:"US"`
	GeocodingCity     string   `env:"GEOCODING_CITY"`
	TargetCounties    []string `env:"GEOCODING_TARGET_COUNTIES" envSeparator:","`
	GoogleMapsAPIKey  string   `env:"GOOGLE_MAPS_API_KEY"`
	LocationIQAPIKey  string   `env:"LOCATIONIQ_API_KEY"`
	GeocodingProvider string   `env:"GEOCODING_PROVIDER" envDefault:"nominatim"` // google, locationiq, nominatim

	// LLM
	AIProvider  string `env:"AI_PROVIDER" envDefault:"ollama"` // "ollama" or "openai"
	OllamaURL   string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OllamaModel string `env:"OLLAMA_MODEL" envDefault:"llama3.1"`
	OpenAIModel string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`

	// Discord
	DiscordToken       string  `env:"DISCORD_TOKEN"`
	DiscordGuildID     string  `env:"DISCORD_GUILD_ID"`
	AlertChannelID     string  `env:"DISCORD_ALERT_CHANNEL_ID"`
	SummaryChannelID   string  `env:"DISCORD_SUMMARY_CHANNEL_ID"`
	SummaryLookbackHrs float64 `env:"SUMMARY_LOOKBACK_HOURS" envDefault:"1"`
	AskAILookbackHrs   float64 `env:"ASK_AI_LOOKBACK_HOURS" envDefault:"8"`
	SummaryJSONPath    string  `env:"SUMMARY_JSON_PATH" envDefault:"./summary.json"`
	TalkgroupCSV       string  `env:"TALK_GROUPS_CSV"`

	// TalkGroupTowns maps a mapped talkgroup ID to its dispatch town,
	// from TALK_GROUP_<id>=<town> env vars. Populated by Load.
	TalkGroupTowns map[string]string `env:"-"`
}

// Load reads configuration from an optional .env file and the process
// environment. The result is immutable; pass it by pointer.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	cfg.TalkGroupTowns = parseTalkGroupTowns(os.Environ())

	if cfg.StorageMode != "local" && cfg.StorageMode != "s3" {
		return nil, fmt.Errorf("invalid STORAGE_MODE %q: want local or s3", cfg.StorageMode)
	}
	switch cfg.TranscriptionMode {
	case "local", "remote", "openai", "icad":
	default:
		return nil, fmt.Errorf("invalid TRANSCRIPTION_MODE %q: want local, remote, openai or icad", cfg.TranscriptionMode)
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}

	return cfg, nil
}

// Location resolves TIMEZONE, falling back to UTC when invalid.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Mapped reports whether a talkgroup is eligible for address extraction.
func (c *Config) Mapped(talkgroupID string) bool {
	for _, tg := range c.MappedTalkGroups {
		if strings.TrimSpace(tg) == talkgroupID {
			return true
		}
	}
	return false
}

// Town returns the configured dispatch town for a talkgroup, or "".
func (c *Config) Town(talkgroupID string) string {
	return c.TalkGroupTowns[talkgroupID]
}

// parseTalkGroupTowns extracts TALK_GROUP_<id>=<town> pairs from an
// environment list. Only numeric IDs qualify, so names like
// TALK_GROUPS_CSV are not picked up.
func parseTalkGroupTowns(environ []string) map[string]string {
	towns := make(map[string]string)
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" {
			continue
		}
		id, ok := strings.CutPrefix(name, "TALK_GROUP_")
		if !ok || !isDigits(id) {
			continue
		}
		towns[id] = value
	}
	return towns
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

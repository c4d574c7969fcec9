package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	General  GeneralConfig  `toml:"general"`
	Schedule ScheduleConfig `toml:"schedule"`
	Ingest   IngestConfig   `toml:"ingest"`
	Resolver ResolverConfig `toml:"resolver"`
	Verifier VerifierConfig `toml:"verifier"`
	Judge    JudgeConfig    `toml:"judge"`
	Telegram TelegramConfig `toml:"telegram"`
}

type GeneralConfig struct {
	DBPath           string `toml:"db_path"`
	PredictionDBPath string `toml:"prediction_db_path"`
	LogLevel         string `toml:"log_level"`
	IDPrefix         string `toml:"id_prefix"`
}

type ScheduleConfig struct {
	IngestInterval  Duration `toml:"ingest_interval"`
	ResolveInterval Duration `toml:"resolve_interval"`
	VerifyInterval  Duration `toml:"verify_interval"`
}

type IngestConfig struct {
	PolymarketBaseURL     string   `toml:"polymarket_base_url"`
	MaxMarketsPerSource   int      `toml:"max_markets_per_source"`
	RequestsPerSecond     float64  `toml:"requests_per_second"`
	HTTPTimeout           Duration `toml:"http_timeout"`
	NewsEventThresholdPct float64  `toml:"news_event_threshold_pct"`
}

type ResolverConfig struct {
	AutoHigh      float64 `toml:"auto_high"`
	AutoLow       float64 `toml:"auto_low"`
	ConfirmHigh   float64 `toml:"confirm_high"`
	ConfirmLow    float64 `toml:"confirm_low"`
	AmbiguousHigh float64 `toml:"ambiguous_high"`
	AmbiguousLow  float64 `toml:"ambiguous_low"`
}

type VerifierConfig struct {
	StalenessDays int  `toml:"staleness_days"`
	AutoApply     bool `toml:"auto_apply"`
}

type JudgeConfig struct {
	BaseURL string   `toml:"base_url"`
	Model   string   `toml:"model"`
	Timeout Duration `toml:"timeout"`
}

type TelegramConfig struct {
	ChatID  string   `toml:"chat_id"`
	Timeout Duration `toml:"timeout"`
}

// Duration wraps time.Duration for TOML unmarshaling.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			DBPath:           "./data/market_history.db",
			PredictionDBPath: "./data/prediction_db.json",
			LogLevel:         "info",
			IDPrefix:         "NP",
		},
		Schedule: ScheduleConfig{
			IngestInterval:  Duration{24 * time.Hour},
			ResolveInterval: Duration{24 * time.Hour},
			VerifyInterval:  Duration{24 * time.Hour},
		},
		Ingest: IngestConfig{
			PolymarketBaseURL:     "https://gamma-api.polymarket.com",
			MaxMarketsPerSource:   100,
			RequestsPerSecond:     2,
			HTTPTimeout:           Duration{30 * time.Second},
			NewsEventThresholdPct: 15.0,
		},
		Resolver: ResolverConfig{
			AutoHigh:      0.95,
			AutoLow:       0.05,
			ConfirmHigh:   0.70,
			ConfirmLow:    0.30,
			AmbiguousHigh: 0.65,
			AmbiguousLow:  0.35,
		},
		Verifier: VerifierConfig{
			StalenessDays: 30,
			AutoApply:     false,
		},
		Judge: JudgeConfig{
			BaseURL: "https://generativelanguage.googleapis.com/v1beta",
			Model:   "gemini-2.0-flash",
			Timeout: Duration{30 * time.Second},
		},
		Telegram: TelegramConfig{
			Timeout: Duration{15 * time.Second},
		},
	}
}

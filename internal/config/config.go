package config

import (
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// ArchiveRoot is the directory holding generations/, references/ and the
	// catalog database. Empty means ~/media/image-gen.
	ArchiveRoot string `envconfig:"IMAGEGEN_ARCHIVE_ROOT" default:""`
	DBPath      string `envconfig:"IMAGEGEN_DB_PATH" default:""`
	ListenAddr  string `envconfig:"IMAGEGEN_LISTEN_ADDR" default:":8087"`

	GeminiAPIKey  string `envconfig:"GEMINI_API_KEY" default:""`
	FalAPIKey     string `envconfig:"FAL_KEY" default:""`
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY" default:""`
	SelfHostedURL string `envconfig:"SELFHOSTED_API_URL" default:""`

	// Jobs still pending/running after this many minutes are force-failed
	// by the cleanup sweep.
	StalledJobMinutes int `envconfig:"IMAGEGEN_STALLED_JOB_MINUTES" default:"30"`

	LogJSON bool `envconfig:"IMAGEGEN_LOG_JSON" default:"false"`
}

func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.ArchiveRoot == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		cfg.ArchiveRoot = filepath.Join(home, "media", "image-gen")
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.ArchiveRoot, "index.sqlite")
	}
	return &cfg, nil
}

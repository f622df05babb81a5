package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port      string `yaml:"port"`
		Transport string `yaml:"transport"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
		Mirror   bool   `yaml:"mirror"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Rooms struct {
		DefaultTimeLimit int    `yaml:"default_time_limit"`
		IdleTTL          string `yaml:"idle_ttl"`
		ReapInterval     string `yaml:"reap_interval"`
		ChatHistory      int    `yaml:"chat_history"`
	} `yaml:"rooms"`
	Generator struct {
		APIURL     string `yaml:"api_url"`
		APIKey     string `yaml:"api_key"`
		Model      string `yaml:"model"`
		Timeout    string `yaml:"timeout"`
		MaxRetries int    `yaml:"max_retries"`
		CacheTTL   string `yaml:"cache_ttl"`
		PDFToText  string `yaml:"pdftotext"`
	} `yaml:"generator"`
}

// Load reads YAML config from path. ${VAR} references are expanded from the environment.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

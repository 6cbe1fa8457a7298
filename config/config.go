package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds persisted CLI defaults. Flags and WITAN_ASSIST_* environment
// variables override it.
type Config struct {
	ClassifierURL string `json:"classifier_url,omitempty"`
	APIKey        string `json:"api_key,omitempty"`
	Locale        string `json:"locale,omitempty"`
	Sheet         string `json:"sheet,omitempty"`
	Timeout       string `json:"timeout,omitempty"`
}

// Keys lists the names accepted by Get and Set, in display order.
var Keys = []string{"classifier-url", "api-key", "locale", "sheet", "timeout"}

func (c *Config) field(key string) (*string, error) {
	switch key {
	case "classifier-url":
		return &c.ClassifierURL, nil
	case "api-key":
		return &c.APIKey, nil
	case "locale":
		return &c.Locale, nil
	case "sheet":
		return &c.Sheet, nil
	case "timeout":
		return &c.Timeout, nil
	}
	return nil, fmt.Errorf("unknown config key %q (valid keys: classifier-url, api-key, locale, sheet, timeout)", key)
}

// Get returns the value stored under key.
func (c Config) Get(key string) (string, error) {
	f, err := c.field(key)
	if err != nil {
		return "", err
	}
	return *f, nil
}

// Set stores value under key. An empty value clears it.
func (c *Config) Set(key, value string) error {
	f, err := c.field(key)
	if err != nil {
		return err
	}
	if key == "timeout" && value != "" {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid timeout %q: %w", value, err)
		}
	}
	*f = value
	return nil
}

func dir() (string, error) {
	if v := os.Getenv("WITAN_ASSIST_CONFIG_DIR"); v != "" {
		return v, nil
	}
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "witan-assist"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "witan-assist"), nil
}

// Path returns the location of the config file.
func Path() (string, error) {
	d, err := dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "config.json"), nil
}

// Load reads the config file. Returns a zero-value Config if the file does not exist.
func Load() (Config, error) {
	p, err := Path()
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", p, err)
	}
	return cfg, nil
}

// Save writes the config to disk atomically using a temp file + rename.
func Save(cfg Config) error {
	p, err := Path()
	if err != nil {
		return err
	}
	d := filepath.Dir(p)
	if err := os.MkdirAll(d, 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	tmp := p + ".tmp"
	// 0600: the file may hold an API key.
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	// Remove dest first for Windows compat (os.Rename fails if dest exists on Windows).
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Delete removes the config file.
func Delete() error {
	p, err := Path()
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

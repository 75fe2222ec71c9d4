package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings holds the lab-level reporting configuration. Unlike Config it is
// data about the lab, not about the deployment, so it lives in a file that
// lab staff can edit.
type Settings struct {
	LabName         string `yaml:"lab_name"`
	TestingLocation string `yaml:"testing_location"`
	Timezone        string `yaml:"timezone"`

	Notify NotifySettings `yaml:"notify"`
}

// NotifySettings configures where processing notifications are delivered.
type NotifySettings struct {
	Email   EmailSettings   `yaml:"email"`
	Webhook WebhookSettings `yaml:"webhook"`
}

// EmailSettings configures the SMTP report notification.
type EmailSettings struct {
	Enabled  bool     `yaml:"enabled"`
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	From     string   `yaml:"from"`
	Password string   `yaml:"password"`
	To       []string `yaml:"to"`
}

// WebhookSettings configures the JSON webhook notification.
type WebhookSettings struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// DefaultSettings are used when no settings file exists.
func DefaultSettings() *Settings {
	return &Settings{
		LabName:         "CLIAHUB",
		TestingLocation: "CZ Biohub",
		Timezone:        "America/Los_Angeles",
	}
}

// LoadSettings reads the lab settings file. A missing file is not an
// error: the defaults apply.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read lab settings: %w", err)
	}

	if err := yaml.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if s.Timezone == "" {
		s.Timezone = DefaultSettings().Timezone
	}
	return s, nil
}

// Location resolves the lab's timezone.
func (s *Settings) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid lab timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

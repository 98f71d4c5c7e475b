package main

import (
	"testing"
	"time"
)

func validTestConfig() *Config {
	return &Config{
		port:             8080,
		questionDuration: 20 * time.Second,
		lockinDelay:      4 * time.Second,
		revealDelay:      14 * time.Second,
		idleGrace:        10 * time.Second,
		tickInterval:     500 * time.Millisecond,
	}
}

func TestConfigValidate(t *testing.T) {
	if err := validTestConfig().validate(); err != nil {
		t.Fatalf("expected the default config to validate, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port too low", func(c *Config) { c.port = 0 }},
		{"port too high", func(c *Config) { c.port = 70000 }},
		{"tls cert without key", func(c *Config) { c.tlsCert = "cert.pem" }},
		{"tls key without cert", func(c *Config) { c.tlsKey = "key.pem" }},
		{"zero question duration", func(c *Config) { c.questionDuration = 0 }},
		{"zero lockin delay", func(c *Config) { c.lockinDelay = 0 }},
		{"zero reveal delay", func(c *Config) { c.revealDelay = 0 }},
		{"zero idle grace", func(c *Config) { c.idleGrace = 0 }},
		{"zero tick interval", func(c *Config) { c.tickInterval = 0 }},
		{"tick slower than lockin", func(c *Config) { c.tickInterval = 5 * time.Second }},
	}

	for _, tc := range cases {
		cfg := validTestConfig()
		tc.mutate(cfg)
		if err := cfg.validate(); err == nil {
			t.Fatalf("expected %s to fail validation", tc.name)
		}
	}
}

func TestConfigScheme(t *testing.T) {
	cfg := validTestConfig()
	if cfg.scheme() != "http" {
		t.Fatalf("expected http without tls, got %s", cfg.scheme())
	}

	cfg.tlsCert = "cert.pem"
	cfg.tlsKey = "key.pem"
	if cfg.scheme() != "https" {
		t.Fatalf("expected https with tls, got %s", cfg.scheme())
	}
}

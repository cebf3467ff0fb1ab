/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		bind:              "127.0.0.1",
		port:              8080,
		pointCooldown:     2 * time.Second,
		challengeDuration: 10 * time.Second,
		contestWindow:     5 * time.Second,
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"port zero", func(c *Config) { c.port = 0 }, true},
		{"port too high", func(c *Config) { c.port = 65536 }, true},
		{"cert without key", func(c *Config) { c.tlsCert = "cert.pem" }, true},
		{"cert and key", func(c *Config) { c.tlsCert, c.tlsKey = "cert.pem", "key.pem" }, false},
		{"no cooldown", func(c *Config) { c.pointCooldown = 0 }, true},
		{"no challenge duration", func(c *Config) { c.challengeDuration = 0 }, true},
		{"negative contest window", func(c *Config) { c.contestWindow = -time.Second }, true},
		{"negative session timeout", func(c *Config) { c.sessionTimeout = -time.Minute }, true},
		{"reaper disabled", func(c *Config) { c.sessionTimeout = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.validate(); (err != nil) != tt.wantErr {
				t.Fatalf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigScheme(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if got := cfg.scheme(); got != "http" {
		t.Fatalf("scheme = %q, want http", got)
	}
	cfg.tlsCert, cfg.tlsKey = "cert.pem", "key.pem"
	if got := cfg.scheme(); got != "https" {
		t.Fatalf("scheme = %q, want https", got)
	}
}

func TestFlagsReadEnvironment(t *testing.T) {
	t.Setenv("YELLOWCAR_PORT", "9090")
	t.Setenv("YELLOWCAR_POINT_COOLDOWN", "3s")
	t.Setenv("YELLOWCAR_DATABASE", "/tmp/yellowcar.db")

	cfg := &Config{}
	newCmd(cfg)

	if cfg.port != 9090 {
		t.Fatalf("port = %d, want 9090", cfg.port)
	}
	if cfg.pointCooldown != 3*time.Second {
		t.Fatalf("point cooldown = %s, want 3s", cfg.pointCooldown)
	}
	if cfg.database != "/tmp/yellowcar.db" {
		t.Fatalf("database = %q", cfg.database)
	}
	if cfg.contestWindow != 5*time.Second {
		t.Fatalf("contest window = %s, want default 5s", cfg.contestWindow)
	}
}

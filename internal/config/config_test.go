package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Watch: WatchConfig{
			Symbol:     "BTCUSDT",
			Interval:   "1",
			Limit:      200,
			ClusterEps: 0.008,
			AlertPct:   0.002,
		},
		Scheduler: SchedulerConfig{Interval: time.Minute},
		Export:    ExportConfig{MaxDataPoints: 100000},
	}
}

func TestValidateDefaultsPass(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidateBounds(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing symbol", func(c *Config) { c.Watch.Symbol = "" }, "watch.symbol"},
		{"missing interval", func(c *Config) { c.Watch.Interval = "" }, "watch.interval"},
		{"limit too small", func(c *Config) { c.Watch.Limit = 2 }, "watch.limit"},
		{"eps zero", func(c *Config) { c.Watch.ClusterEps = 0 }, "cluster_eps"},
		{"eps one", func(c *Config) { c.Watch.ClusterEps = 1 }, "cluster_eps"},
		{"eps negative", func(c *Config) { c.Watch.ClusterEps = -0.01 }, "cluster_eps"},
		{"alert pct zero", func(c *Config) { c.Watch.AlertPct = 0 }, "alert_pct"},
		{"alert pct one", func(c *Config) { c.Watch.AlertPct = 1 }, "alert_pct"},
		{"scheduler interval zero", func(c *Config) { c.Scheduler.Interval = 0 }, "scheduler.interval"},
		{"max points zero", func(c *Config) { c.Export.MaxDataPoints = 0 }, "max_data_points"},
		{"telegram without token", func(c *Config) {
			c.Alerting.Telegram.Enabled = true
			c.Alerting.Telegram.ChatID = "42"
		}, "bot_token"},
		{"telegram without chat", func(c *Config) {
			c.Alerting.Telegram.Enabled = true
			c.Alerting.Telegram.BotToken = "token"
		}, "chat_id"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load with defaults failed: %v", err)
	}
	if cfg.Watch.Symbol != "BTCUSDT" || cfg.Watch.Limit != 200 {
		t.Fatalf("unexpected watch defaults: %+v", cfg.Watch)
	}
	if cfg.Watch.ClusterEps != 0.008 || cfg.Watch.AlertPct != 0.002 {
		t.Fatalf("unexpected tolerance defaults: %+v", cfg.Watch)
	}
	if cfg.Scheduler.Interval != time.Minute {
		t.Fatalf("unexpected scheduler interval: %v", cfg.Scheduler.Interval)
	}
}

func TestBybitEndpointTestnet(t *testing.T) {
	cfg := validConfig()
	cfg.Bybit.BaseURL = "https://api.bybit.com"
	if got := cfg.BybitEndpoint(); got != "https://api.bybit.com" {
		t.Fatalf("unexpected mainnet endpoint %q", got)
	}
	cfg.Bybit.Testnet = true
	if got := cfg.BybitEndpoint(); got != "https://api-testnet.bybit.com" {
		t.Fatalf("testnet switch not honoured: %q", got)
	}
	cfg.Bybit.BaseURL = "http://localhost:9000"
	if got := cfg.BybitEndpoint(); got != "http://localhost:9000" {
		t.Fatalf("explicit override must win: %q", got)
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := validConfig()
	if got := cfg.ResolveMaxPoints(0); got != 100000 {
		t.Fatalf("config default expected, got %d", got)
	}
	if got := cfg.ResolveMaxPoints(500); got != 500 {
		t.Fatalf("override expected, got %d", got)
	}
}

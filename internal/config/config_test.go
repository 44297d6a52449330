package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Setenv("FLEETTRACK_DATABASE_URL", "postgres://localhost/fleettrack")
	t.Setenv("FLEETTRACK_SESSION_PEPPER", "pepper")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.ReapInterval != 10*time.Second || cfg.StaleAfter != 30*time.Second || cfg.FlushInterval != 60*time.Second {
		t.Errorf("timer defaults = %v %v %v", cfg.ReapInterval, cfg.StaleAfter, cfg.FlushInterval)
	}
	if cfg.NATSSubject != "fleet.positions" {
		t.Errorf("NATSSubject = %q", cfg.NATSSubject)
	}
	if cfg.RedisAddr != "" || cfg.NATSURL != "" {
		t.Error("optional collaborators should default to disabled")
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("FLEETTRACK_DATABASE_URL", "")
	t.Setenv("FLEETTRACK_SESSION_PEPPER", "pepper")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "FLEETTRACK_DATABASE_URL") {
		t.Fatalf("err = %v, want missing database url", err)
	}
}

func TestLoadFloorsBadValues(t *testing.T) {
	setRequired(t)
	t.Setenv("FLEETTRACK_STALE_AFTER_SECONDS", "1")
	t.Setenv("FLEETTRACK_REAP_INTERVAL_SECONDS", "not-a-number")
	t.Setenv("FLEETTRACK_SUBSCRIBER_BUFFER", "-4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StaleAfter != 5*time.Second {
		t.Errorf("StaleAfter = %v, want floor 5s", cfg.StaleAfter)
	}
	if cfg.ReapInterval != 10*time.Second {
		t.Errorf("ReapInterval = %v, want fallback 10s", cfg.ReapInterval)
	}
	if cfg.SubscriberBuffer != 1 {
		t.Errorf("SubscriberBuffer = %d, want floor 1", cfg.SubscriberBuffer)
	}
}

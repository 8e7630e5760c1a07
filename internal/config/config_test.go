package config

import (
	"testing"
	"time"
)

// relayEnvVars lists all env vars that must be cleared between tests.
var relayEnvVars = []string{
	"RELAY_HTTP_ADDR", "RELAY_DATABASE_URL", "RELAY_NATS_URL",
	"RELAY_APNS_KEY_FILE", "RELAY_APNS_KEY_ID", "RELAY_APNS_TEAM_ID",
	"RELAY_APNS_TOPIC", "RELAY_APNS_SANDBOX",
	"RELAY_AUDIT_INTERVAL", "RELAY_AUDIT_S3_BUCKET", "RELAY_AUDIT_S3_ENDPOINT",
	"RELAY_AUDIT_S3_REGION", "RELAY_AUDIT_S3_KEY",
}

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range relayEnvVars {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearAllEnv(t)

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.HTTPAddr != ":8787" {
		t.Errorf("HTTPAddr = %q, want :8787", c.HTTPAddr)
	}
	if c.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %q, want empty (in-memory)", c.DatabaseURL)
	}
	if c.AuditInterval != 3*time.Minute {
		t.Errorf("AuditInterval = %v, want 3m", c.AuditInterval)
	}
	if c.AuditS3Region != "us-east-1" {
		t.Errorf("AuditS3Region = %q, want us-east-1", c.AuditS3Region)
	}
	if c.PushConfigured() {
		t.Error("push should not be configured by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("RELAY_HTTP_ADDR", ":9999")
	t.Setenv("RELAY_DATABASE_URL", "postgres://localhost/relay")
	t.Setenv("RELAY_NATS_URL", "nats://localhost:4222")
	t.Setenv("RELAY_AUDIT_INTERVAL", "45s")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.HTTPAddr != ":9999" {
		t.Errorf("HTTPAddr = %q", c.HTTPAddr)
	}
	if c.DatabaseURL != "postgres://localhost/relay" {
		t.Errorf("DatabaseURL = %q", c.DatabaseURL)
	}
	if c.NATSURL != "nats://localhost:4222" {
		t.Errorf("NATSURL = %q", c.NATSURL)
	}
	if c.AuditInterval != 45*time.Second {
		t.Errorf("AuditInterval = %v", c.AuditInterval)
	}
}

func TestLoadBadAuditInterval(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("RELAY_AUDIT_INTERVAL", "bogus")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for bad interval")
	}
}

func TestPushConfigured(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("RELAY_APNS_KEY_FILE", "/etc/relay/key.p8")
	t.Setenv("RELAY_APNS_KEY_ID", "ABC123")
	t.Setenv("RELAY_APNS_TEAM_ID", "TEAM42")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.PushConfigured() {
		t.Error("push configured without a topic")
	}

	t.Setenv("RELAY_APNS_TOPIC", "com.example.watchapp")
	c, err = Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !c.PushConfigured() {
		t.Error("expected push configured with all four settings")
	}
	if c.APNSSandbox {
		t.Error("sandbox should default off")
	}
}

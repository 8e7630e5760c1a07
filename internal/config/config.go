package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	HTTPAddr    string // RELAY_HTTP_ADDR (default ":8787")
	DatabaseURL string // RELAY_DATABASE_URL (optional, empty = in-memory store)
	NATSURL     string // RELAY_NATS_URL (optional, empty = no events)

	// APNs settings; push is disabled unless all of key/keyID/teamID/topic
	// are set.
	APNSKeyFile string // RELAY_APNS_KEY_FILE (path to a .p8 provider key)
	APNSKeyID   string // RELAY_APNS_KEY_ID
	APNSTeamID  string // RELAY_APNS_TEAM_ID
	APNSTopic   string // RELAY_APNS_TOPIC (the watch app bundle id)
	APNSSandbox bool   // RELAY_APNS_SANDBOX (any non-empty value)

	// Audit export settings
	AuditInterval   time.Duration // RELAY_AUDIT_INTERVAL (default 3m; 0 = disabled)
	AuditS3Bucket   string        // RELAY_AUDIT_S3_BUCKET (enables S3 export when set)
	AuditS3Endpoint string        // RELAY_AUDIT_S3_ENDPOINT (custom endpoint for MinIO)
	AuditS3Region   string        // RELAY_AUDIT_S3_REGION (default "us-east-1")
	AuditS3Key      string        // RELAY_AUDIT_S3_KEY (default "watchrelay/audit.jsonl")
}

func Load() (*Config, error) {
	c := &Config{
		HTTPAddr:        envOrDefault("RELAY_HTTP_ADDR", ":8787"),
		DatabaseURL:     os.Getenv("RELAY_DATABASE_URL"),
		NATSURL:         os.Getenv("RELAY_NATS_URL"),
		APNSKeyFile:     os.Getenv("RELAY_APNS_KEY_FILE"),
		APNSKeyID:       os.Getenv("RELAY_APNS_KEY_ID"),
		APNSTeamID:      os.Getenv("RELAY_APNS_TEAM_ID"),
		APNSTopic:       os.Getenv("RELAY_APNS_TOPIC"),
		APNSSandbox:     os.Getenv("RELAY_APNS_SANDBOX") != "",
		AuditS3Bucket:   os.Getenv("RELAY_AUDIT_S3_BUCKET"),
		AuditS3Endpoint: os.Getenv("RELAY_AUDIT_S3_ENDPOINT"),
		AuditS3Region:   envOrDefault("RELAY_AUDIT_S3_REGION", "us-east-1"),
		AuditS3Key:      envOrDefault("RELAY_AUDIT_S3_KEY", "watchrelay/audit.jsonl"),
	}

	intervalStr := envOrDefault("RELAY_AUDIT_INTERVAL", "3m")
	if intervalStr != "" {
		d, err := time.ParseDuration(intervalStr)
		if err != nil {
			return nil, fmt.Errorf("RELAY_AUDIT_INTERVAL: %w", err)
		}
		c.AuditInterval = d
	}

	return c, nil
}

// PushConfigured reports whether all required APNs settings are present.
func (c *Config) PushConfigured() bool {
	return c.APNSKeyFile != "" && c.APNSKeyID != "" && c.APNSTeamID != "" && c.APNSTopic != ""
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

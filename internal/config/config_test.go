package config

import (
	"testing"
	"time"
)

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":18085")
	t.Setenv("DATABASE_URL", "sqlite:/tmp/mats.db")
	t.Setenv("JWT_ISSUER", "test-issuer")
	t.Setenv("JWT_PUBLIC_KEY", "-----BEGIN PUBLIC KEY-----\\nabc\\n-----END PUBLIC KEY-----")
	t.Setenv("REDIS_ADDR", "127.0.0.1:6379")
	t.Setenv("ALLOCATION_LOCK_TTL", "3s")
	t.Setenv("ALLOCATION_RETRIES", "2")
	t.Setenv("TEST_EXTENSION_SECONDS", "60")
	t.Setenv("LONG_TEST_WARN_DAYS", "14")
	t.Setenv("LONG_TEST_ALERT_DAYS", "21")
	t.Setenv("LONG_TEST_JOB_ENABLED", "false")
	t.Setenv("MANIFEST_DRIVER", "S3")
	t.Setenv("MANIFEST_S3_PATH_STYLE", "true")

	cfg := Load()
	if cfg.HTTPAddr != ":18085" {
		t.Fatalf("expected HTTP_ADDR override, got %s", cfg.HTTPAddr)
	}
	if cfg.DatabaseURL != "sqlite:/tmp/mats.db" {
		t.Fatalf("expected DATABASE_URL override, got %s", cfg.DatabaseURL)
	}
	if cfg.JWTIssuer != "test-issuer" {
		t.Fatalf("expected JWT_ISSUER override, got %s", cfg.JWTIssuer)
	}
	if cfg.JWTPublicKey != "-----BEGIN PUBLIC KEY-----\nabc\n-----END PUBLIC KEY-----" {
		t.Fatalf("expected escaped newlines to be normalized, got %q", cfg.JWTPublicKey)
	}
	if cfg.RedisAddr != "127.0.0.1:6379" {
		t.Fatalf("expected REDIS_ADDR override, got %s", cfg.RedisAddr)
	}
	if cfg.AllocationLockTTL != 3*time.Second {
		t.Fatalf("expected ALLOCATION_LOCK_TTL 3s, got %s", cfg.AllocationLockTTL)
	}
	if cfg.AllocationRetries != 2 {
		t.Fatalf("expected ALLOCATION_RETRIES 2, got %d", cfg.AllocationRetries)
	}
	if cfg.TestExtension != time.Minute {
		t.Fatalf("expected TEST_EXTENSION 1m, got %s", cfg.TestExtension)
	}
	if cfg.LongTestWarnDays != 14 || cfg.LongTestAlertDays != 21 {
		t.Fatalf("expected long test days 14/21, got %d/%d", cfg.LongTestWarnDays, cfg.LongTestAlertDays)
	}
	if cfg.LongTestJobEnabled {
		t.Fatalf("expected long test job disabled")
	}
	if cfg.ManifestDriver != "s3" || !cfg.ManifestS3PathStyle {
		t.Fatalf("expected s3 manifest driver with path style, got %s/%v", cfg.ManifestDriver, cfg.ManifestS3PathStyle)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := Load()
	if cfg.TestExtension != 7*24*time.Hour {
		t.Fatalf("expected 7 day test extension, got %s", cfg.TestExtension)
	}
	if cfg.LongTestWarnDays != 20 || cfg.LongTestAlertDays != 25 {
		t.Fatalf("expected 20/25 long test days, got %d/%d", cfg.LongTestWarnDays, cfg.LongTestAlertDays)
	}
	if cfg.AllocationRetries != 3 {
		t.Fatalf("expected 3 allocation retries, got %d", cfg.AllocationRetries)
	}
}

func TestLoadConfigClampsRetries(t *testing.T) {
	t.Setenv("ALLOCATION_RETRIES", "0")
	if cfg := Load(); cfg.AllocationRetries != 1 {
		t.Fatalf("expected retries clamped to 1, got %d", cfg.AllocationRetries)
	}
	t.Setenv("ALLOCATION_RETRIES", "50")
	if cfg := Load(); cfg.AllocationRetries != 5 {
		t.Fatalf("expected retries clamped to 5, got %d", cfg.AllocationRetries)
	}
	t.Setenv("LONG_TEST_WARN_DAYS", "30")
	t.Setenv("LONG_TEST_ALERT_DAYS", "10")
	if cfg := Load(); cfg.LongTestAlertDays != 30 {
		t.Fatalf("expected alert days raised to warn days, got %d", cfg.LongTestAlertDays)
	}
}

package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("EXPORT_ACK_POLICY", "")
	t.Setenv("VISIBILITY_TIMEOUT", "")

	cfg := Load()
	if cfg.AckPolicy != AckAlways {
		t.Fatalf("expected default ack policy %q, got %q", AckAlways, cfg.AckPolicy)
	}
	if cfg.VisibilityTimeout != 5*time.Minute {
		t.Fatalf("unexpected visibility timeout %s", cfg.VisibilityTimeout)
	}
	if cfg.ExportSendTimeout != 0 {
		t.Fatalf("expected no send timeout by default, got %s", cfg.ExportSendTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("EXPORT_ACK_POLICY", "Retry")
	t.Setenv("MAX_ATTEMPTS", "3")
	t.Setenv("BACKOFF_INITIAL", "250ms")
	t.Setenv("EXPORT_ARCHIVE_S3_PATH_STYLE", "true")

	cfg := Load()
	if cfg.AckPolicy != AckRetry {
		t.Fatalf("expected retry policy, got %q", cfg.AckPolicy)
	}
	if cfg.MaxAttempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", cfg.MaxAttempts)
	}
	if cfg.BackoffInitial != 250*time.Millisecond {
		t.Fatalf("unexpected backoff %s", cfg.BackoffInitial)
	}
	if !cfg.ArchiveS3PathStyle {
		t.Fatalf("expected path style to be enabled")
	}
}

func TestUnknownAckPolicyFallsBack(t *testing.T) {
	t.Setenv("EXPORT_ACK_POLICY", "sometimes")
	if got := Load().AckPolicy; got != AckAlways {
		t.Fatalf("expected fallback to %q, got %q", AckAlways, got)
	}
}

package logger

import (
	"context"
	"log/slog"
	"time"
)

// Audit event types emitted by the authentication core.
const (
	EventLoginFailed         = "login_failed"
	EventLoginSuccess        = "login_success"
	EventTwoFactorChallenged = "two_factor_challenged"
	EventTwoFactorVerified   = "two_factor_verified"
	EventTwoFactorFailed     = "two_factor_failed"
	EventRecoveryCodeUsed    = "recovery_code_used"
	EventTwoFactorEnabled    = "two_factor_enabled"
	EventTwoFactorDisabled   = "two_factor_disabled"
	EventSocialLinked        = "social_account_linked"
	EventSocialOrphanHealed  = "social_orphan_healed"
	EventPasskeyRegistered   = "passkey_registered"
	EventPasskeyRejected     = "passkey_rejected"
	EventPasswordReset       = "password_reset"
	EventRegistered          = "user_registered"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	UserID        string
	Panel         string
	Method        string
	IPAddress     string
	Success       bool
	FailureReason string
}

// AuditLogger writes structured, sanitized audit records through slog.
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// Log records an authentication audit event. Failed events are logged at
// warn level so they stand out in aggregation.
func (al *AuditLogger) Log(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.Panel != "" {
		attrs = append(attrs, slog.String("panel", event.Panel))
	}
	if event.Method != "" {
		attrs = append(attrs, slog.String("method", event.Method))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Audit event types
const (
	EventLoginSuccess      = "login_success"
	EventLoginFailure      = "login_failure"
	EventTokenRejected     = "token_rejected"
	EventRateLimitExceeded = "rate_limit_exceeded"
)

// Auditor handles security event logging with PII protection. Usernames are
// hashed before logging so audit output can be shipped to shared log
// infrastructure without leaking account identifiers.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event
type Event struct {
	Type      string
	Username  string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"username_hash", hashForLogging(event.Username),
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogLoginSuccess logs a successful credential exchange.
func (a *Auditor) LogLoginSuccess(username, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventLoginSuccess,
		Username:  username,
		IPAddress: ipAddress,
	})
}

// LogLoginFailure logs a failed login attempt with the failure reason.
func (a *Auditor) LogLoginFailure(username, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventLoginFailure,
		Username:  username,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogTokenRejected logs a protected request carrying a missing or invalid token.
func (a *Auditor) LogTokenRejected(ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventTokenRejected,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogRateLimitExceeded logs a rate limit violation
func (a *Auditor) LogRateLimitExceeded(ipAddress, endpoint string) {
	a.LogEvent(Event{
		Type:      EventRateLimitExceeded,
		IPAddress: ipAddress,
		Details: map[string]any{
			"endpoint": endpoint,
		},
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}

// Package recordapi implements a token-authenticated CRUD HTTP service
// over an in-memory record collection. The Server type holds the request
// logic and the Handler type adapts it to HTTP.
package recordapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/stackpine/recordapi/instrumentation"
	"github.com/stackpine/recordapi/security"
	"github.com/stackpine/recordapi/storage"
	"github.com/stackpine/recordapi/token"
)

// Server implements the service logic (transport-agnostic).
// It coordinates the credential and record stores with the token service.
type Server struct {
	users       storage.UserStore
	records     storage.RecordStore
	tokens      *token.Service
	auditor     *security.Auditor
	rateLimiter *security.RateLimiter
	instr       *instrumentation.Instrumentation
	logger      *slog.Logger
	config      *Config
}

// NewServer creates a new Server. The stores and token service are
// required; config and logger fall back to defaults.
func NewServer(
	users storage.UserStore,
	records storage.RecordStore,
	tokens *token.Service,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if records == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token service is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		if config.Logger != nil {
			logger = config.Logger
		} else {
			logger = slog.Default()
		}
	}

	config = applySecureDefaults(config)

	return &Server{
		users:       users,
		records:     records,
		tokens:      tokens,
		auditor:     security.NewAuditor(logger, config.Security.EnableAuditLogging),
		rateLimiter: security.NewRateLimiter(config.RateLimit.Limit, config.RateLimit.Window, logger),
		logger:      logger,
		config:      config,
	}, nil
}

// SetInstrumentation attaches OpenTelemetry instrumentation. Optional;
// without it the server records nothing.
func (s *Server) SetInstrumentation(instr *instrumentation.Instrumentation) {
	s.instr = instr
}

// Config returns the effective server configuration.
func (s *Server) Config() *Config {
	return s.config
}

// Close releases background resources (the rate limiter cleanup goroutine).
func (s *Server) Close() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
}

// Login verifies a username/password pair and issues a signed token.
// Unknown usernames and wrong passwords fail with distinct 401 errors.
func (s *Server) Login(ctx context.Context, username, password, clientIP string) (string, *APIError) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Info("Login rejected: unknown user", "ip", clientIP)
			s.auditor.LogLoginFailure(username, clientIP, "unknown user")
			s.recordLogin(ctx, false)
			return "", ErrUnknownUser
		}
		s.logger.Error("User lookup failed", "error", err)
		return "", ErrInternal
	}

	// Single comparison against the stored hash; bcrypt handles the salt.
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		s.logger.Info("Login rejected: password mismatch", "ip", clientIP, "user_id", user.ID)
		s.auditor.LogLoginFailure(username, clientIP, "password mismatch")
		s.recordLogin(ctx, false)
		return "", ErrInvalidPassword
	}

	tok, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		s.logger.Error("Token issuance failed", "error", err, "user_id", user.ID)
		return "", ErrInternal
	}

	s.logger.Info("Login succeeded", "user_id", user.ID, "ip", clientIP)
	s.auditor.LogLoginSuccess(username, clientIP)
	s.recordLogin(ctx, true)
	return tok, nil
}

// AllowLogin reports whether the login throttle admits another request
// from the given client IP.
func (s *Server) AllowLogin(clientIP string) bool {
	return s.rateLimiter.Allow(clientIP)
}

// Authenticate verifies a bearer token and returns the embedded identity.
func (s *Server) Authenticate(tok string) (*token.Identity, *APIError) {
	identity, err := s.tokens.Verify(tok)
	if err != nil {
		return nil, ErrAuthRequired
	}
	return identity, nil
}

// ListRecords returns all records in insertion order.
func (s *Server) ListRecords(ctx context.Context) ([]storage.Record, *APIError) {
	records, err := s.records.List(ctx)
	if err != nil {
		s.logger.Error("Record list failed", "error", err)
		return nil, ErrInternal
	}
	s.recordOperation(ctx, "list", "ok")
	return records, nil
}

// GetRecord returns a single record by id.
func (s *Server) GetRecord(ctx context.Context, id int64) (storage.Record, *APIError) {
	record, err := s.records.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.recordOperation(ctx, "get", "not_found")
			return storage.Record{}, ErrNotFound
		}
		s.logger.Error("Record get failed", "error", err, "record_id", id)
		return storage.Record{}, ErrInternal
	}
	s.recordOperation(ctx, "get", "ok")
	return record, nil
}

// CreateRecord appends a new record and assigns it the next id.
func (s *Server) CreateRecord(ctx context.Context, name string, age float64) (storage.Record, *APIError) {
	record, err := s.records.Create(ctx, name, age)
	if err != nil {
		s.logger.Error("Record create failed", "error", err)
		return storage.Record{}, ErrInternal
	}
	s.logger.Info("Record created", "record_id", record.ID)
	s.recordOperation(ctx, "create", "ok")
	return record, nil
}

// ReplaceRecord replaces the record at id with the given fields, keeping
// the id from the path.
func (s *Server) ReplaceRecord(ctx context.Context, id int64, name string, age float64) (storage.Record, *APIError) {
	record, err := s.records.Replace(ctx, id, name, age)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.recordOperation(ctx, "update", "not_found")
			return storage.Record{}, ErrNotFound
		}
		s.logger.Error("Record update failed", "error", err, "record_id", id)
		return storage.Record{}, ErrInternal
	}
	s.logger.Info("Record updated", "record_id", id)
	s.recordOperation(ctx, "update", "ok")
	return record, nil
}

// DeleteRecord removes the record at id.
func (s *Server) DeleteRecord(ctx context.Context, id int64) *APIError {
	if err := s.records.Delete(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.recordOperation(ctx, "delete", "not_found")
			return ErrNotFound
		}
		s.logger.Error("Record delete failed", "error", err, "record_id", id)
		return ErrInternal
	}
	s.logger.Info("Record deleted", "record_id", id)
	s.recordOperation(ctx, "delete", "ok")
	return nil
}

// RateLimiterStats exposes throttle statistics for operational visibility.
func (s *Server) RateLimiterStats() security.Stats {
	return s.rateLimiter.GetStats()
}

func (s *Server) recordLogin(ctx context.Context, success bool) {
	if s.instr != nil {
		s.instr.Metrics().RecordLogin(ctx, success)
	}
}

func (s *Server) recordOperation(ctx context.Context, operation, result string) {
	if s.instr != nil {
		s.instr.Metrics().RecordRecordOperation(ctx, operation, result)
	}
}

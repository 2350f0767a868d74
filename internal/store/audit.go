package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuditEvent is one appended record of an external interaction decision.
type AuditEvent struct {
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	Details      map[string]any
}

// AuditLog appends audit events to the audit_logs table.
//
// Policy: audit failures never abort core flow. LogEvent returns the error
// for callers that care, but the orchestrator and retry engine only log it.
type AuditLog struct {
	pool DBPool
	log  *zap.Logger
}

func NewAuditLog(pool DBPool, logger *zap.Logger) *AuditLog {
	return &AuditLog{pool: pool, log: logger.Named("audit_log")}
}

func (a *AuditLog) LogEvent(ctx context.Context, event AuditEvent) error {
	details := event.Details
	if details == nil {
		details = map[string]any{}
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}

	_, err = a.pool.Exec(ctx,
		`INSERT INTO audit_logs (id, user_id, action, resource_type, resource_id, details)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New().String(), event.UserID, event.Action, event.ResourceType, event.ResourceID, payload)
	if err != nil {
		return fmt.Errorf("failed to append audit event %q: %w", event.Action, err)
	}
	return nil
}

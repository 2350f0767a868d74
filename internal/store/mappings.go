package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Dipuraj1New/careerireland-portals/internal/domain"
)

// FieldMappingStore persists the logical-field to portal-field declarations.
// Admin tooling mutates them; the adapters consume them read-only.
type FieldMappingStore struct {
	pool DBPool
	log  *zap.Logger
}

func NewFieldMappingStore(pool DBPool, logger *zap.Logger) *FieldMappingStore {
	return &FieldMappingStore{pool: pool, log: logger.Named("field_mapping_store")}
}

// GetByPortalType returns the ordered mapping list for one portal.
func (s *FieldMappingStore) GetByPortalType(ctx context.Context, portalType domain.PortalType) ([]domain.FieldMapping, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, portal_type, form_field, portal_field, locate_by, required
		 FROM portal_field_mappings
		 WHERE portal_type = $1
		 ORDER BY position ASC, form_field ASC`, portalType)
	if err != nil {
		return nil, fmt.Errorf("failed to query field mappings for %s: %w", portalType, err)
	}
	defer rows.Close()

	var out []domain.FieldMapping
	for rows.Next() {
		var m domain.FieldMapping
		if err := rows.Scan(&m.ID, &m.PortalType, &m.FormField, &m.PortalField, &m.LocateBy, &m.Required); err != nil {
			return nil, fmt.Errorf("failed to scan field mapping: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate field mappings: %w", err)
	}
	return out, nil
}

// Upsert creates or replaces one mapping, keyed by (portal_type, form_field).
func (s *FieldMappingStore) Upsert(ctx context.Context, m domain.FieldMapping, position int) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.LocateBy == "" {
		m.LocateBy = domain.LocateByID
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO portal_field_mappings (id, portal_type, form_field, portal_field, locate_by, required, position)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (portal_type, form_field) DO UPDATE SET
		     portal_field = EXCLUDED.portal_field,
		     locate_by = EXCLUDED.locate_by,
		     required = EXCLUDED.required,
		     position = EXCLUDED.position`,
		m.ID, m.PortalType, m.FormField, m.PortalField, m.LocateBy, m.Required, position)
	if err != nil {
		return fmt.Errorf("failed to upsert field mapping %s/%s: %w", m.PortalType, m.FormField, err)
	}
	return nil
}

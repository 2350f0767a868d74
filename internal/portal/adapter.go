package portal

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Dipuraj1New/careerireland-portals/internal/browser"
	"github.com/Dipuraj1New/careerireland-portals/internal/config"
	"github.com/Dipuraj1New/careerireland-portals/internal/credentials"
	"github.com/Dipuraj1New/careerireland-portals/internal/domain"
)

// Adapter encodes the browser interaction sequence for one portal type:
// login, navigation, mapped field filling, portal-specific quirks, submit,
// and confirmation extraction. Failures are encoded in the returned result,
// never thrown; the orchestrator persists whatever comes back.
type Adapter interface {
	Type() domain.PortalType
	Submit(ctx context.Context, drv browser.Driver, sub *domain.PortalSubmission, form *domain.FormSubmission) domain.Result
}

// MappingSource supplies the ordered field mappings for a portal.
type MappingSource interface {
	GetByPortalType(ctx context.Context, portalType domain.PortalType) ([]domain.FieldMapping, error)
}

// ReceiptSink stores confirmation/error screenshots and returns the URL the
// persisted receipt is reachable at.
type ReceiptSink interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// Deps bundles the collaborators every adapter needs.
type Deps struct {
	Mappings    MappingSource
	Credentials credentials.Provider
	Receipts    ReceiptSink
	Portals     config.PortalsConfig
	Logger      *zap.Logger
}

// Registry selects the adapter for a portal type. Replaces conditional
// dispatch so each adapter is testable in isolation with a fake driver.
type Registry struct {
	mu       sync.RWMutex
	adapters map[domain.PortalType]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[domain.PortalType]Adapter)}
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Type()] = a
}

// Get returns the adapter for the portal type or domain.ErrUnsupportedPortal.
func (r *Registry) Get(t domain.PortalType) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedPortal, t)
	}
	return a, nil
}

// DefaultRegistry registers the production adapter set.
func DefaultRegistry(deps Deps) *Registry {
	r := NewRegistry()
	r.Register(NewImmigrationAdapter(deps))
	r.Register(NewVisaAdapter(deps))
	r.Register(NewRegistrationBureauAdapter(deps))
	r.Register(NewEmploymentPermitAdapter(deps))
	return r
}

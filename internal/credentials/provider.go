package credentials

import (
	"fmt"

	"github.com/Dipuraj1New/careerireland-portals/internal/config"
	"github.com/Dipuraj1New/careerireland-portals/internal/domain"
)

// Credentials is an opaque username/password pair for one portal.
type Credentials struct {
	Username string
	Password string
}

// Provider resolves portal login credentials. The engine treats the values as
// opaque; how they are secured is the deployment's concern.
type Provider interface {
	GetCredentials(portalType domain.PortalType) (Credentials, error)
}

// ConfigProvider reads credentials from the portals configuration block,
// which in turn is fed from config.yaml or PORTALS_* environment variables.
type ConfigProvider struct {
	portals config.PortalsConfig
}

func NewConfigProvider(portals config.PortalsConfig) *ConfigProvider {
	return &ConfigProvider{portals: portals}
}

func (p *ConfigProvider) GetCredentials(portalType domain.PortalType) (Credentials, error) {
	pc, err := p.portals.ByType(portalType)
	if err != nil {
		return Credentials{}, err
	}
	if pc.Username == "" || pc.Password == "" {
		return Credentials{}, fmt.Errorf("no credentials configured for portal %s", portalType)
	}
	return Credentials{Username: pc.Username, Password: pc.Password}, nil
}

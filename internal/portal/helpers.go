package portal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Dipuraj1New/careerireland-portals/internal/browser"
	"github.com/Dipuraj1New/careerireland-portals/internal/config"
	"github.com/Dipuraj1New/careerireland-portals/internal/credentials"
	"github.com/Dipuraj1New/careerireland-portals/internal/domain"
)

const (
	confirmationWait = 45 * time.Second
	loginWait        = 30 * time.Second
)

// locatorFor translates a field mapping into a driver locator.
func locatorFor(m domain.FieldMapping) browser.Locator {
	switch m.LocateBy {
	case domain.LocateByName:
		return browser.Name(m.PortalField)
	case domain.LocateByCSS:
		return browser.CSS(m.PortalField)
	case domain.LocateByXPath:
		return browser.XPath(m.PortalField)
	default:
		return browser.ID(m.PortalField)
	}
}

// fillMappedFields types each mapped form value into its portal input.
// A mapping whose portal element cannot be found is a warning, not an abort:
// optional fields differ per applicant and a missing one must not sink the
// whole submission. Required mappings are the exception and fail the run.
func fillMappedFields(
	ctx context.Context,
	drv browser.Driver,
	mappings []domain.FieldMapping,
	formData map[string]string,
	log *zap.Logger,
) error {
	for _, m := range mappings {
		value, ok := formData[m.FormField]
		if !ok || value == "" {
			if m.Required {
				return fmt.Errorf("required field %q has no value in the form submission", m.FormField)
			}
			continue
		}

		if err := drv.Fill(ctx, locatorFor(m), value); err != nil {
			if errors.Is(err, browser.ErrNotFound) && !m.Required {
				log.Warn("Portal element for mapped field not found; continuing.",
					zap.String("form_field", m.FormField),
					zap.String("portal_field", m.PortalField))
				continue
			}
			return fmt.Errorf("failed to fill field %q: %w", m.FormField, err)
		}
	}
	return nil
}

// loginSpec describes one portal's login page.
type loginSpec struct {
	Path       string
	Username   browser.Locator
	Password   browser.Locator
	Submit     browser.Locator
	SuccessURL string
}

// performLogin authenticates against a portal. Any miss here is structural:
// without a session nothing downstream can work.
func performLogin(
	ctx context.Context,
	drv browser.Driver,
	portalCfg config.PortalConfig,
	creds credentials.Credentials,
	spec loginSpec,
) error {
	if err := drv.Navigate(ctx, portalCfg.BaseURL+spec.Path); err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}
	if err := drv.Fill(ctx, spec.Username, creds.Username); err != nil {
		return fmt.Errorf("failed to enter username: %w", err)
	}
	if err := drv.Fill(ctx, spec.Password, creds.Password); err != nil {
		return fmt.Errorf("failed to enter password: %w", err)
	}
	if err := drv.Click(ctx, spec.Submit); err != nil {
		return fmt.Errorf("failed to submit login form: %w", err)
	}
	if err := drv.WaitFor(ctx, browser.Condition{Kind: browser.URLContains, Value: spec.SuccessURL}, loginWait); err != nil {
		return fmt.Errorf("login failed: portal did not reach %q: %w", spec.SuccessURL, err)
	}
	return nil
}

// base carries the shared collaborators and failure plumbing for adapters.
type base struct {
	deps Deps
	log  *zap.Logger
}

func newBase(deps Deps, name string) base {
	return base{deps: deps, log: deps.Logger.Named(name)}
}

// prepare loads the portal config, credentials, and field mappings that
// every adapter run starts with.
func (b base) prepare(ctx context.Context, t domain.PortalType) (config.PortalConfig, credentials.Credentials, []domain.FieldMapping, error) {
	portalCfg, err := b.deps.Portals.ByType(t)
	if err != nil {
		return config.PortalConfig{}, credentials.Credentials{}, nil, err
	}
	creds, err := b.deps.Credentials.GetCredentials(t)
	if err != nil {
		return config.PortalConfig{}, credentials.Credentials{}, nil, fmt.Errorf("failed to load portal credentials: %w", err)
	}
	mappings, err := b.deps.Mappings.GetByPortalType(ctx, t)
	if err != nil {
		return config.PortalConfig{}, credentials.Credentials{}, nil, fmt.Errorf("failed to load field mappings: %w", err)
	}
	return portalCfg, creds, mappings, nil
}

// fail builds the failed result and captures a best-effort error screenshot.
// Screenshot failures are swallowed: the original error is what matters.
func (b base) fail(ctx context.Context, drv browser.Driver, sub *domain.PortalSubmission, format string, args ...any) domain.Result {
	result := domain.Failure(format, args...)
	b.log.Error("Adapter run failed.",
		zap.String("submission_id", sub.ID),
		zap.String("error", result.ErrorMessage))

	if png, err := drv.Screenshot(ctx); err == nil {
		name := fmt.Sprintf("%s-error-%d.png", sub.ID, time.Now().Unix())
		if _, err := b.deps.Receipts.Save(ctx, name, png); err != nil {
			b.log.Debug("Failed to store error screenshot.", zap.Error(err))
		}
	} else {
		b.log.Debug("Failed to capture error screenshot.", zap.Error(err))
	}
	return result
}

// confirm extracts the confirmation number and captures the receipt
// screenshot once the portal has reached its confirmation state. When the
// confirmation element is missing the submission is still accepted by the
// portal, so the result is SUBMITTED rather than COMPLETED.
func (b base) confirm(ctx context.Context, drv browser.Driver, sub *domain.PortalSubmission, numberLoc browser.Locator) domain.Result {
	confirmation, err := drv.Text(ctx, numberLoc)
	if err != nil {
		b.log.Warn("Portal accepted the submission but no confirmation number was found.",
			zap.String("submission_id", sub.ID), zap.Error(err))
		return domain.Result{Success: true, Status: domain.StatusSubmitted}
	}

	result := domain.Result{
		Success:            true,
		Status:             domain.StatusCompleted,
		ConfirmationNumber: confirmation,
	}

	if png, err := drv.Screenshot(ctx); err == nil {
		name := fmt.Sprintf("%s-receipt-%d.png", sub.ID, time.Now().Unix())
		if url, err := b.deps.Receipts.Save(ctx, name, png); err == nil {
			result.ConfirmationReceiptURL = url
		} else {
			b.log.Warn("Failed to store confirmation receipt.", zap.Error(err))
		}
	} else {
		b.log.Warn("Failed to capture confirmation screenshot.", zap.Error(err))
	}
	return result
}

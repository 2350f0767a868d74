package portal

import (
	"context"

	"github.com/Dipuraj1New/careerireland-portals/internal/browser"
	"github.com/Dipuraj1New/careerireland-portals/internal/domain"
)

// ImmigrationAdapter drives the immigration service portal: a login-gated,
// single-page application form with a declaration checkbox.
type ImmigrationAdapter struct {
	base
}

func NewImmigrationAdapter(deps Deps) *ImmigrationAdapter {
	return &ImmigrationAdapter{base: newBase(deps, "immigration_adapter")}
}

func (a *ImmigrationAdapter) Type() domain.PortalType { return domain.PortalImmigration }

func (a *ImmigrationAdapter) Submit(ctx context.Context, drv browser.Driver, sub *domain.PortalSubmission, form *domain.FormSubmission) domain.Result {
	portalCfg, creds, mappings, err := a.prepare(ctx, a.Type())
	if err != nil {
		return a.fail(ctx, drv, sub, "immigration portal preparation failed: %v", err)
	}

	login := loginSpec{
		Path:       "/login",
		Username:   browser.ID("username"),
		Password:   browser.ID("password"),
		Submit:     browser.CSS("button[type='submit']"),
		SuccessURL: "/dashboard",
	}
	if err := performLogin(ctx, drv, portalCfg, creds, login); err != nil {
		return a.fail(ctx, drv, sub, "immigration portal login failed: %v", err)
	}

	if err := drv.Navigate(ctx, portalCfg.BaseURL+"/applications/new"); err != nil {
		return a.fail(ctx, drv, sub, "failed to open the application form: %v", err)
	}
	if err := drv.WaitFor(ctx, browser.Condition{
		Kind:    browser.ElementVisible,
		Element: browser.ID("application-form"),
	}, loginWait); err != nil {
		return a.fail(ctx, drv, sub, "application form did not load: %v", err)
	}

	if err := fillMappedFields(ctx, drv, mappings, form.FormData, a.log); err != nil {
		return a.fail(ctx, drv, sub, "failed to fill application fields: %v", err)
	}

	// The submit button stays disabled until the declaration checkbox is
	// ticked.
	if err := drv.Click(ctx, browser.ID("declaration")); err != nil {
		return a.fail(ctx, drv, sub, "failed to accept the declaration: %v", err)
	}
	if err := drv.WaitFor(ctx, browser.Condition{
		Kind:    browser.ElementEnabled,
		Element: browser.ID("submit-application"),
	}, loginWait); err != nil {
		return a.fail(ctx, drv, sub, "submit button did not enable after the declaration: %v", err)
	}
	if err := drv.Click(ctx, browser.ID("submit-application")); err != nil {
		return a.fail(ctx, drv, sub, "failed to submit the application: %v", err)
	}

	if err := drv.WaitFor(ctx, browser.Condition{
		Kind:  browser.URLContains,
		Value: "/confirmation",
	}, confirmationWait); err != nil {
		return a.fail(ctx, drv, sub, "portal did not reach the confirmation page: %v", err)
	}

	return a.confirm(ctx, drv, sub, browser.ID("confirmation-number"))
}

package portal

import (
	"context"

	"github.com/Dipuraj1New/careerireland-portals/internal/browser"
	"github.com/Dipuraj1New/careerireland-portals/internal/domain"
)

// Form fields the employment permit portal treats specially: the permit type
// is a dropdown and the contract is uploaded as a document rather than typed.
const (
	permitTypeField   = "permit_type"
	contractPathField = "employment_contract_path"
)

// EmploymentPermitAdapter drives the employment permit portal: a single form
// with a permit-type dropdown and a mandatory contract document upload.
type EmploymentPermitAdapter struct {
	base
}

func NewEmploymentPermitAdapter(deps Deps) *EmploymentPermitAdapter {
	return &EmploymentPermitAdapter{base: newBase(deps, "employment_adapter")}
}

func (a *EmploymentPermitAdapter) Type() domain.PortalType { return domain.PortalEmploymentPermit }

func (a *EmploymentPermitAdapter) Submit(ctx context.Context, drv browser.Driver, sub *domain.PortalSubmission, form *domain.FormSubmission) domain.Result {
	portalCfg, creds, mappings, err := a.prepare(ctx, a.Type())
	if err != nil {
		return a.fail(ctx, drv, sub, "employment permit preparation failed: %v", err)
	}

	login := loginSpec{
		Path:       "/auth/login",
		Username:   browser.ID("email"),
		Password:   browser.ID("password"),
		Submit:     browser.ID("login-submit"),
		SuccessURL: "/portal/home",
	}
	if err := performLogin(ctx, drv, portalCfg, creds, login); err != nil {
		return a.fail(ctx, drv, sub, "employment permit login failed: %v", err)
	}

	if err := drv.Navigate(ctx, portalCfg.BaseURL+"/permits/apply"); err != nil {
		return a.fail(ctx, drv, sub, "failed to open the permit application: %v", err)
	}

	// The dropdown and the upload are driven directly; the plain text inputs
	// go through the mapping table like every other portal.
	if permitType := form.FormData[permitTypeField]; permitType != "" {
		if err := drv.SelectByText(ctx, browser.ID("permit-type"), permitType); err != nil {
			return a.fail(ctx, drv, sub, "failed to select permit type %q: %v", permitType, err)
		}
	}

	textMappings := make([]domain.FieldMapping, 0, len(mappings))
	for _, m := range mappings {
		if m.FormField == permitTypeField || m.FormField == contractPathField {
			continue
		}
		textMappings = append(textMappings, m)
	}
	if err := fillMappedFields(ctx, drv, textMappings, form.FormData, a.log); err != nil {
		return a.fail(ctx, drv, sub, "failed to fill permit fields: %v", err)
	}

	if contractPath := form.FormData[contractPathField]; contractPath != "" {
		if err := drv.UploadFile(ctx, browser.ID("contract-upload"), contractPath); err != nil {
			return a.fail(ctx, drv, sub, "failed to upload the employment contract: %v", err)
		}
	}

	if err := drv.Click(ctx, browser.ID("submit-permit")); err != nil {
		return a.fail(ctx, drv, sub, "failed to submit the permit application: %v", err)
	}

	if err := drv.WaitFor(ctx, browser.Condition{
		Kind:  browser.URLContains,
		Value: "/permits/receipt",
	}, confirmationWait); err != nil {
		return a.fail(ctx, drv, sub, "portal did not reach the permit receipt page: %v", err)
	}

	return a.confirm(ctx, drv, sub, browser.ID("permit-reference"))
}

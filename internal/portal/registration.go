package portal

import (
	"context"

	"github.com/Dipuraj1New/careerireland-portals/internal/browser"
	"github.com/Dipuraj1New/careerireland-portals/internal/domain"
)

// RegistrationBureauAdapter drives the residence registration bureau portal.
// Unlike the form-only portals, registration is appointment based: after the
// applicant details are filled, the portal searches for a free slot and the
// run can only complete when one exists.
type RegistrationBureauAdapter struct {
	base
}

func NewRegistrationBureauAdapter(deps Deps) *RegistrationBureauAdapter {
	return &RegistrationBureauAdapter{base: newBase(deps, "registration_adapter")}
}

func (a *RegistrationBureauAdapter) Type() domain.PortalType { return domain.PortalRegistrationBureau }

func (a *RegistrationBureauAdapter) Submit(ctx context.Context, drv browser.Driver, sub *domain.PortalSubmission, form *domain.FormSubmission) domain.Result {
	portalCfg, creds, mappings, err := a.prepare(ctx, a.Type())
	if err != nil {
		return a.fail(ctx, drv, sub, "registration bureau preparation failed: %v", err)
	}

	login := loginSpec{
		Path:       "/user/login",
		Username:   browser.Name("username"),
		Password:   browser.Name("password"),
		Submit:     browser.CSS("input[type='submit']"),
		SuccessURL: "/appointments",
	}
	if err := performLogin(ctx, drv, portalCfg, creds, login); err != nil {
		return a.fail(ctx, drv, sub, "registration bureau login failed: %v", err)
	}

	if err := drv.Navigate(ctx, portalCfg.BaseURL+"/appointments/book"); err != nil {
		return a.fail(ctx, drv, sub, "failed to open the booking page: %v", err)
	}
	if err := fillMappedFields(ctx, drv, mappings, form.FormData, a.log); err != nil {
		return a.fail(ctx, drv, sub, "failed to fill applicant details: %v", err)
	}

	if err := drv.Click(ctx, browser.ID("search-slots")); err != nil {
		return a.fail(ctx, drv, sub, "failed to search for appointment slots: %v", err)
	}

	// Slot availability is the make-or-break of this portal. When no slot is
	// offered the run is over; retrying minutes later will not conjure one,
	// so the failure message is phrased to classify as terminal.
	if err := drv.WaitFor(ctx, browser.Condition{
		Kind:    browser.ElementVisible,
		Element: browser.CSS(".slot-list .slot"),
	}, confirmationWait); err != nil {
		return a.fail(ctx, drv, sub, "no appointment slots available at the registration bureau")
	}

	if err := drv.Click(ctx, browser.CSS(".slot-list .slot")); err != nil {
		return a.fail(ctx, drv, sub, "failed to select an appointment slot: %v", err)
	}
	if err := drv.Click(ctx, browser.ID("confirm-booking")); err != nil {
		return a.fail(ctx, drv, sub, "failed to confirm the appointment booking: %v", err)
	}

	if err := drv.WaitFor(ctx, browser.Condition{
		Kind:  browser.URLContains,
		Value: "/appointments/confirmed",
	}, confirmationWait); err != nil {
		return a.fail(ctx, drv, sub, "portal did not confirm the appointment: %v", err)
	}

	return a.confirm(ctx, drv, sub, browser.ID("booking-reference"))
}

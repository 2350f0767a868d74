package portal

import (
	"context"
	"strings"

	"github.com/Dipuraj1New/careerireland-portals/internal/browser"
	"github.com/Dipuraj1New/careerireland-portals/internal/domain"
)

// VisaAdapter drives the online visa portal, a three-page wizard: personal
// details, travel details, then declarations. Field mappings are grouped
// onto pages by the section prefix of their logical form field
// ("personal.", "travel.", "declaration.").
type VisaAdapter struct {
	base
}

func NewVisaAdapter(deps Deps) *VisaAdapter {
	return &VisaAdapter{base: newBase(deps, "visa_adapter")}
}

func (a *VisaAdapter) Type() domain.PortalType { return domain.PortalVisa }

// wizardPages defines the page order and the URL fragment each page settles
// on once the portal advances to it.
var wizardPages = []struct {
	section     string
	urlFragment string
}{
	{"personal.", "/apply/personal"},
	{"travel.", "/apply/travel"},
	{"declaration.", "/apply/declarations"},
}

func (a *VisaAdapter) Submit(ctx context.Context, drv browser.Driver, sub *domain.PortalSubmission, form *domain.FormSubmission) domain.Result {
	portalCfg, creds, mappings, err := a.prepare(ctx, a.Type())
	if err != nil {
		return a.fail(ctx, drv, sub, "visa portal preparation failed: %v", err)
	}

	login := loginSpec{
		Path:       "/account/signin",
		Username:   browser.Name("email"),
		Password:   browser.Name("password"),
		Submit:     browser.ID("signin-btn"),
		SuccessURL: "/account/home",
	}
	if err := performLogin(ctx, drv, portalCfg, creds, login); err != nil {
		return a.fail(ctx, drv, sub, "visa portal login failed: %v", err)
	}

	if err := drv.Navigate(ctx, portalCfg.BaseURL+"/apply/personal"); err != nil {
		return a.fail(ctx, drv, sub, "failed to open the visa application wizard: %v", err)
	}

	for i, page := range wizardPages {
		if err := drv.WaitFor(ctx, browser.Condition{
			Kind:  browser.URLContains,
			Value: page.urlFragment,
		}, loginWait); err != nil {
			return a.fail(ctx, drv, sub, "visa wizard did not reach page %q: %v", page.urlFragment, err)
		}

		pageMappings := mappingsForSection(mappings, page.section)
		if err := fillMappedFields(ctx, drv, pageMappings, form.FormData, a.log); err != nil {
			return a.fail(ctx, drv, sub, "failed to fill visa wizard page %q: %v", page.urlFragment, err)
		}

		// Last page carries the terms checkbox and the submit button instead
		// of a next button.
		if i == len(wizardPages)-1 {
			break
		}
		if err := drv.Click(ctx, browser.ID("btn-next")); err != nil {
			return a.fail(ctx, drv, sub, "failed to advance the visa wizard from %q: %v", page.urlFragment, err)
		}
	}

	if err := drv.Click(ctx, browser.ID("accept-terms")); err != nil {
		return a.fail(ctx, drv, sub, "failed to accept the visa terms: %v", err)
	}
	if err := drv.Click(ctx, browser.ID("btn-submit")); err != nil {
		return a.fail(ctx, drv, sub, "failed to submit the visa application: %v", err)
	}

	if err := drv.WaitFor(ctx, browser.Condition{
		Kind:  browser.URLContains,
		Value: "/apply/acknowledgement",
	}, confirmationWait); err != nil {
		return a.fail(ctx, drv, sub, "visa portal did not reach the acknowledgement page: %v", err)
	}

	return a.confirm(ctx, drv, sub, browser.ID("reference-number"))
}

func mappingsForSection(mappings []domain.FieldMapping, section string) []domain.FieldMapping {
	var out []domain.FieldMapping
	for _, m := range mappings {
		if strings.HasPrefix(m.FormField, section) {
			out = append(out, m)
		}
	}
	return out
}

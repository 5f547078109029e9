package services

import (
	"context"
	"slices"

	"github.com/diewo77/ejaar/gate"
	"github.com/diewo77/ejaar/i18n"
	"github.com/diewo77/ejaar/internal/backend"
	"github.com/diewo77/ejaar/internal/lifecycle"
	"github.com/diewo77/ejaar/internal/policy"
)

const (
	dashboardPageSize = 100
	dashboardMaxPages = 20
	// AwaitingLimit bounds the quotations listed as awaiting an action.
	AwaitingLimit = 10
)

// StatusCount is the number of visible quotations at one status.
type StatusCount struct {
	Status lifecycle.Status `json:"status"`
	Slug   string           `json:"slug"`
	Label  string           `json:"label"`
	Count  int              `json:"count"`
}

// Dashboard summarizes the quotations visible to the principal.
type Dashboard struct {
	Role           lifecycle.Role     `json:"role"`
	Total          int                `json:"total"`
	Counts         []StatusCount      `json:"counts"`
	FinancedAmount float64            `json:"financed_amount"`
	FinancedLabel  string             `json:"financed_label"`
	Awaiting       []QuotationSummary `json:"awaiting"`
}

// DashboardService computes dashboards.
type DashboardService struct {
	quotations *QuotationService
}

func NewDashboardService(qs *QuotationService) *DashboardService {
	return &DashboardService{quotations: qs}
}

// Get counts quotations per status, sums the financed amount of validated
// ones and lists the oldest quotations waiting for the principal's action.
func (d *DashboardService) Get(ctx context.Context) (*Dashboard, error) {
	qs := d.quotations
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := qs.authz.Authorize(ctx, gate.ActionView, policy.ResourceDashboard, nil); err != nil {
		return nil, err
	}
	all, err := d.fetchAll(ctx)
	if err != nil {
		return nil, err
	}

	lang := i18n.LangFromContext(ctx)
	counts := make(map[lifecycle.Status]int)
	out := &Dashboard{Role: p.Role, Awaiting: []QuotationSummary{}}
	var awaiting []*backend.Quotation
	for i := range all {
		q := &all[i]
		if qs.authz.Authorize(ctx, gate.ActionView, policy.ResourceQuotation, q) != nil {
			continue
		}
		out.Total++
		counts[q.Status]++
		if q.Status == lifecycle.StatusValidated {
			out.FinancedAmount += q.Amount
		}
		if len(qs.allowedActions(ctx, p, q)) > 0 {
			awaiting = append(awaiting, q)
		}
	}
	for _, st := range lifecycle.Statuses() {
		out.Counts = append(out.Counts, StatusCount{Status: st, Slug: st.Slug(), Label: statusLabel(lang, st), Count: counts[st]})
	}
	out.FinancedLabel = i18n.FormatAmount(lang, out.FinancedAmount)

	slices.SortStableFunc(awaiting, func(a, b *backend.Quotation) int { return a.UpdatedAt.Compare(b.UpdatedAt) })
	for _, q := range awaiting[:min(len(awaiting), AwaitingLimit)] {
		out.Awaiting = append(out.Awaiting, summarize(lang, q, qs.allowedActions(ctx, p, q)))
	}
	return out, nil
}

// fetchAll walks the backend listing page by page.
func (d *DashboardService) fetchAll(ctx context.Context) ([]backend.Quotation, error) {
	var all []backend.Quotation
	for page := 1; page <= dashboardMaxPages; page++ {
		res, err := d.quotations.backend.ListQuotations(ctx, backend.ListOptions{Page: page, Limit: dashboardPageSize})
		if err != nil {
			return nil, err
		}
		all = append(all, res.Items...)
		if len(res.Items) < dashboardPageSize || len(all) >= res.Total {
			break
		}
	}
	return all, nil
}

package services

import (
	"slices"
	"time"

	"github.com/diewo77/ejaar/i18n"
	"github.com/diewo77/ejaar/internal/backend"
	"github.com/diewo77/ejaar/internal/checklist"
	"github.com/diewo77/ejaar/internal/lifecycle"
)

// QuotationSummary is a quotation line of a listing.
type QuotationSummary struct {
	ID          string             `json:"id"`
	Number      string             `json:"number"`
	Status      lifecycle.Status   `json:"status"`
	StatusSlug  string             `json:"status_slug"`
	StatusLabel string             `json:"status_label"`
	Amount      float64            `json:"amount"`
	AmountLabel string             `json:"amount_label"`
	Duration    int                `json:"duration"`
	Client      string             `json:"client,omitempty"`
	Supplier    string             `json:"supplier,omitempty"`
	Actions     []lifecycle.Action `json:"actions"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// ListResult is one page of quotation summaries.
type ListResult struct {
	Items []QuotationSummary `json:"items"`
	Total int                `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}

// FormView is the form descriptor with its localized texts.
type FormView struct {
	lifecycle.Form
	Title        string                      `json:"title"`
	ActionLabels map[lifecycle.Action]string `json:"action_labels"`
}

// QuotationView is the full state a front end needs to render a quotation.
type QuotationView struct {
	Quotation         *backend.Quotation `json:"quotation"`
	StatusSlug        string             `json:"status_slug"`
	StatusLabel       string             `json:"status_label"`
	AmountLabel       string             `json:"amount_label"`
	Form              FormView           `json:"form"`
	Checklist         *ChecklistView     `json:"checklist"`
	ContractAvailable bool               `json:"contract_available"`
}

// SlotView is a checklist slot with its labels.
type SlotView struct {
	checklist.Slot
	Label       string `json:"label"`
	StatusLabel string `json:"status_label"`
}

// SectionView groups slot views.
type SectionView struct {
	ID        string           `json:"id"`
	Label     string           `json:"label"`
	Uploaders []lifecycle.Role `json:"uploaders"`
	CanUpload bool             `json:"can_upload"`
	Slots     []SlotView       `json:"slots"`
}

// ChecklistView is the document checklist of one quotation.
type ChecklistView struct {
	QuotationID    string             `json:"quotation_id"`
	Sections       []SectionView      `json:"sections"`
	Progress       checklist.Progress `json:"progress"`
	Missing        []string           `json:"missing"`
	Rectifications []string           `json:"rectifications"`
	Complete       bool               `json:"complete"`
}

func statusLabel(lang string, s lifecycle.Status) string {
	if !s.Valid() {
		return string(s)
	}
	return i18n.T(lang, "status."+s.Slug())
}

func formView(lang string, f lifecycle.Form) FormView {
	v := FormView{Form: f, Title: i18n.T(lang, "form."+string(f.ID)), ActionLabels: make(map[lifecycle.Action]string, len(f.Actions))}
	for _, a := range f.Actions {
		v.ActionLabels[a] = i18n.T(lang, "action."+string(a))
	}
	return v
}

func partyName(p *backend.Party) string {
	if p == nil {
		return ""
	}
	return p.Name
}

func summarize(lang string, q *backend.Quotation, actions []lifecycle.Action) QuotationSummary {
	if actions == nil {
		actions = []lifecycle.Action{}
	}
	return QuotationSummary{
		ID:          q.ID,
		Number:      q.Number,
		Status:      q.Status,
		StatusSlug:  q.Status.Slug(),
		StatusLabel: statusLabel(lang, q.Status),
		Amount:      q.Amount,
		AmountLabel: i18n.FormatAmount(lang, q.Amount),
		Duration:    q.Duration,
		Client:      partyName(q.Client),
		Supplier:    partyName(q.Supplier),
		Actions:     actions,
		UpdatedAt:   q.UpdatedAt,
	}
}

func checklistView(lang string, role lifecycle.Role, cl *checklist.Checklist) *ChecklistView {
	catalog := cl.Catalog()
	v := &ChecklistView{
		QuotationID:    cl.QuotationID,
		Progress:       cl.Progress(),
		Missing:        orEmpty(cl.Missing()),
		Rectifications: orEmpty(cl.PendingRectifications()),
		Complete:       cl.IsComplete(),
	}
	for i, sec := range cl.Sections() {
		def := catalog.Sections[i]
		sv := SectionView{
			ID:        sec.ID,
			Label:     sec.Label.In(lang),
			Uploaders: def.Uploaders,
			CanUpload: slices.Contains(def.Uploaders, role),
			Slots:     make([]SlotView, 0, len(sec.Slots)),
		}
		for _, slot := range sec.Slots {
			label := slot.DocType
			if dt, err := catalog.Lookup(slot.DocType); err == nil {
				label = dt.Label.In(lang)
			}
			sv.Slots = append(sv.Slots, SlotView{
				Slot:        slot,
				Label:       label,
				StatusLabel: i18n.T(lang, "slot."+string(slot.Status)),
			})
		}
		v.Sections = append(v.Sections, sv)
	}
	return v
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func remoteDocuments(q *backend.Quotation) []checklist.RemoteDocument {
	out := make([]checklist.RemoteDocument, 0, len(q.Documents))
	for _, d := range q.Documents {
		out = append(out, checklist.RemoteDocument{
			ID:         d.ID,
			Type:       d.Type,
			Name:       d.Name,
			URL:        d.URL,
			Comment:    d.Comment,
			Rectify:    d.NeedsRectification(),
			UploadedAt: d.UploadedAt,
		})
	}
	return out
}

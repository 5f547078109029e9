package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/diewo77/ejaar/auth"
	"github.com/diewo77/ejaar/gate"
	"github.com/diewo77/ejaar/internal/backend"
	"github.com/diewo77/ejaar/internal/checklist"
	"github.com/diewo77/ejaar/internal/lifecycle"
)

var (
	// ErrNotEditable is returned when a quotation can no longer be edited.
	ErrNotEditable = errors.New("quotation is not editable at this status")
	// ErrUploadClosed is returned when documents cannot change at the
	// current status.
	ErrUploadClosed = errors.New("documents cannot change at this status")
	// ErrNoContract is returned when no signed contract can be downloaded.
	ErrNoContract = errors.New("no signed contract available")
)

func denied(format string, args ...any) error {
	return fmt.Errorf("%w: %s", gate.ErrDenied, fmt.Sprintf(format, args...))
}

// Participates reports whether p takes part in q: admins always, clients
// and suppliers on their own quotations, banks once the folder reached them.
func Participates(p *auth.Principal, q *backend.Quotation) bool {
	switch p.Role {
	case lifecycle.RoleAdmin:
		return true
	case lifecycle.RoleClient:
		return q.ClientUserID() != "" && q.ClientUserID() == p.UserID
	case lifecycle.RoleSupplier:
		return q.SupplierUserID() != "" && q.SupplierUserID() == p.UserID
	case lifecycle.RoleBank:
		return q.Status.AtLeast(lifecycle.StatusSentToBank)
	}
	return false
}

// QuotationPolicy guards quotations. Lifecycle actions are checked against
// the machine.
type QuotationPolicy struct {
	machine *lifecycle.Machine
}

func NewQuotationPolicy(m *lifecycle.Machine) *QuotationPolicy {
	if m == nil {
		m = lifecycle.Default()
	}
	return &QuotationPolicy{machine: m}
}

func (qp *QuotationPolicy) Authorize(_ context.Context, p *auth.Principal, action gate.Action, resource any) error {
	q, ok := resource.(*backend.Quotation)
	if !ok || q == nil {
		return denied("not a quotation")
	}
	if !Participates(p, q) {
		return denied("%s %s does not take part in quotation %s", p.Role, p.UserID, q.ID)
	}
	switch action {
	case gate.ActionView, gate.ActionList:
		return nil
	case gate.ActionUpdate:
		if p.Role != lifecycle.RoleSupplier && p.Role != lifecycle.RoleAdmin {
			return denied("%s cannot edit quotations", p.Role)
		}
		if q.Status != lifecycle.StatusGenerated {
			return ErrNotEditable
		}
		return nil
	}
	a, err := lifecycle.ParseAction(string(action))
	if err != nil {
		return denied("unknown quotation action %q", action)
	}
	if _, ok := qp.machine.Transition(q.Status, a); !ok {
		return fmt.Errorf("%w: %s from %s", lifecycle.ErrInvalidTransition, a, q.Status.Slug())
	}
	if !qp.machine.Can(p.Role, a, q.Status) {
		return fmt.Errorf("%w: %s cannot %s", lifecycle.ErrActionForbidden, p.Role, a)
	}
	return nil
}

// DocumentTarget is the resource of document checks.
type DocumentTarget struct {
	Quotation *backend.Quotation
	DocType   string
	// Slot is the current state of the slot; the zero value reads as empty.
	Slot checklist.SlotStatus
}

// DocumentPolicy guards checklist documents.
//
// While the quotation is generated every uploader of the section may change
// its documents. During verification only slots flagged for rectification
// may be replaced by their uploaders, and only admins may flag them. Admins
// may also fix documents after the client validation.
type DocumentPolicy struct {
	catalog *checklist.Catalog
}

func NewDocumentPolicy(c *checklist.Catalog) *DocumentPolicy {
	if c == nil {
		c = checklist.DefaultCatalog()
	}
	return &DocumentPolicy{catalog: c}
}

func (dp *DocumentPolicy) Authorize(_ context.Context, p *auth.Principal, action gate.Action, resource any) error {
	t, ok := resource.(*DocumentTarget)
	if !ok || t == nil || t.Quotation == nil {
		return denied("not a document")
	}
	if !Participates(p, t.Quotation) {
		return denied("%s %s does not take part in quotation %s", p.Role, p.UserID, t.Quotation.ID)
	}
	if action == gate.ActionView || action == gate.ActionList {
		return nil
	}
	if _, err := dp.catalog.Lookup(t.DocType); err != nil {
		return err
	}
	status := t.Quotation.Status
	admin := p.Role == lifecycle.RoleAdmin

	switch action {
	case gate.ActionRectify:
		if !admin {
			return denied("only admins request rectifications")
		}
		if status != lifecycle.StatusVerification {
			return ErrUploadClosed
		}
		return nil
	case gate.ActionUpload, gate.ActionDelete:
		if !dp.catalog.CanUpload(p.Role, t.DocType) {
			return denied("%s cannot upload %s", p.Role, t.DocType)
		}
		switch status {
		case lifecycle.StatusGenerated:
			return nil
		case lifecycle.StatusClientValidated:
			if admin {
				return nil
			}
		case lifecycle.StatusVerification:
			if admin || (action == gate.ActionUpload && t.Slot == checklist.SlotRectification) {
				return nil
			}
		}
		return ErrUploadClosed
	}
	return denied("unknown document action %q", action)
}

// ContractPolicy guards the signed contract download.
type ContractPolicy struct{}

func (ContractPolicy) Authorize(_ context.Context, p *auth.Principal, action gate.Action, resource any) error {
	q, ok := resource.(*backend.Quotation)
	if !ok || q == nil {
		return denied("not a quotation")
	}
	if !Participates(p, q) {
		return denied("%s %s does not take part in quotation %s", p.Role, p.UserID, q.ID)
	}
	if action != gate.ActionDownload && action != gate.ActionView {
		return denied("unknown contract action %q", action)
	}
	if q.Status != lifecycle.StatusValidated || !q.HasSignedContract() {
		return ErrNoContract
	}
	return nil
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/diewo77/ejaar/auth"
	"github.com/diewo77/ejaar/gate"
	"github.com/diewo77/ejaar/i18n"
	"github.com/diewo77/ejaar/internal/backend"
	"github.com/diewo77/ejaar/internal/checklist"
	"github.com/diewo77/ejaar/internal/lifecycle"
	"github.com/diewo77/ejaar/internal/metrics"
	"github.com/diewo77/ejaar/internal/models"
	"github.com/diewo77/ejaar/internal/policy"
	"github.com/diewo77/ejaar/validation"
)

// ErrContractRequired is returned when validating without a signed
// contract file.
var ErrContractRequired = errors.New("signed contract required")

// ValidationError carries field violations of an input.
type ValidationError struct {
	Violations validation.Violations
}

func (e *ValidationError) Error() string {
	fields := slices.Sorted(maps.Keys(e.Violations))
	return "validation failed: " + strings.Join(fields, ", ")
}

// Backend is the backend API used by the services.
type Backend interface {
	ListQuotations(ctx context.Context, opts backend.ListOptions) (*backend.QuotationPage, error)
	GetQuotation(ctx context.Context, id string) (*backend.Quotation, error)
	CreateQuotation(ctx context.Context, in backend.QuotationInput) (*backend.Quotation, error)
	UpdateQuotation(ctx context.Context, id string, in backend.QuotationInput) (*backend.Quotation, error)
	UpdateStatus(ctx context.Context, id string, status lifecycle.Status, comment string) (*backend.Quotation, error)
	UploadDocument(ctx context.Context, quotationID, docType string, f backend.Upload) (*backend.Document, error)
	DeleteDocument(ctx context.Context, quotationID, documentID string) error
	FlagDocument(ctx context.Context, quotationID, documentID, comment string) error
	UploadContract(ctx context.Context, quotationID string, f backend.Upload) (*backend.Contract, error)
	DownloadContract(ctx context.Context, quotationID string) (*backend.Download, error)
	ListClients(ctx context.Context, query string) ([]backend.Party, error)
}

// Authorizer checks the principal of the context.
type Authorizer interface {
	Authorize(ctx context.Context, action gate.Action, resourceType string, resource any) error
}

// FileUpload is a file received from the browser.
type FileUpload struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

func (f FileUpload) meta() checklist.File {
	return checklist.File{Name: f.Name, MIMEType: f.ContentType, Size: f.Size}
}

func (f FileUpload) upload() backend.Upload {
	return backend.Upload{Name: f.Name, ContentType: f.ContentType, Content: f.Content}
}

// Draft bounds.
const (
	MinDuration = 6
	MaxDuration = 120
	maxNameLen  = 200
)

// DraftInput is the editable part of a quotation.
type DraftInput struct {
	ClientID string           `json:"client_id"`
	Amount   float64          `json:"amount"`
	Duration int              `json:"duration"`
	Devices  []backend.Device `json:"devices"`
}

// Validate checks the input. A zero amount defaults to the devices total.
func (in *DraftInput) Validate(create bool) validation.Violations {
	v := validation.Violations{}
	if create {
		validation.Required("client_id", in.ClientID, v)
	}
	validation.RangeInt("duration", in.Duration, MinDuration, MaxDuration, v)
	validation.MinItems("devices", len(in.Devices), 1, v)
	var total float64
	for i, d := range in.Devices {
		prefix := fmt.Sprintf("devices[%d].", i)
		validation.Required(prefix+"name", d.Name, v)
		validation.MaxLen(prefix+"name", d.Name, maxNameLen, v)
		if d.Quantity < 1 {
			v[prefix+"quantity"] = "must_be_positive"
		}
		validation.PositiveFloat(prefix+"unit_price", d.UnitPrice, v)
		total += d.Total()
	}
	if in.Amount == 0 {
		in.Amount = total
	}
	validation.PositiveFloat("amount", in.Amount, v)
	return v
}

func (in DraftInput) toBackend() backend.QuotationInput {
	return backend.QuotationInput{ClientID: in.ClientID, Amount: in.Amount, Duration: in.Duration, Devices: in.Devices}
}

// ListQuery filters a quotation listing. Status accepts a label or a slug.
type ListQuery struct {
	Status string
	Query  string
	Page   int
	Limit  int
}

// QuotationService drives quotations through their lifecycle on behalf of
// the context principal.
type QuotationService struct {
	db       *gorm.DB
	backend  Backend
	store    *checklist.Store
	authz    Authorizer
	machine  *lifecycle.Machine
	contract checklist.Limits
	log      logrus.FieldLogger
}

// QuotationOption configures a QuotationService.
type QuotationOption func(*QuotationService)

// WithMachine replaces the default lifecycle machine.
func WithMachine(m *lifecycle.Machine) QuotationOption {
	return func(s *QuotationService) { s.machine = m }
}

// WithContractMaxSize bounds the signed contract file.
func WithContractMaxSize(n int64) QuotationOption {
	return func(s *QuotationService) { s.contract.MaxSize = n }
}

func WithLogger(l logrus.FieldLogger) QuotationOption {
	return func(s *QuotationService) { s.log = l }
}

func NewQuotationService(db *gorm.DB, be Backend, store *checklist.Store, authz Authorizer, opts ...QuotationOption) *QuotationService {
	s := &QuotationService{
		db:       db,
		backend:  be,
		store:    store,
		authz:    authz,
		machine:  lifecycle.Default(),
		contract: checklist.Limits{MaxSize: checklist.DefaultMaxSize, MIMETypes: []string{"application/pdf"}},
		log:      logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Catalog returns the document catalog.
func (s *QuotationService) Catalog() *checklist.Catalog { return s.store.Catalog() }

func principalFrom(ctx context.Context) (*auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return nil, gate.ErrUnauthenticated
	}
	return p, nil
}

// load fetches the quotation and checks action on it.
func (s *QuotationService) load(ctx context.Context, id string, action gate.Action) (*auth.Principal, *backend.Quotation, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, nil, err
	}
	q, err := s.backend.GetQuotation(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := s.authz.Authorize(ctx, action, policy.ResourceQuotation, q); err != nil {
		return nil, nil, err
	}
	return p, q, nil
}

// allowedActions lists the lifecycle actions the principal may run on q.
func (s *QuotationService) allowedActions(ctx context.Context, p *auth.Principal, q *backend.Quotation) []lifecycle.Action {
	out := []lifecycle.Action{}
	for _, a := range s.machine.Allowed(p.Role, q.Status) {
		if s.authz.Authorize(ctx, gate.Action(a), policy.ResourceQuotation, q) == nil {
			out = append(out, a)
		}
	}
	return out
}

func (s *QuotationService) view(ctx context.Context, p *auth.Principal, q *backend.Quotation, cl *checklist.Checklist) *QuotationView {
	lang := i18n.LangFromContext(ctx)
	form := s.machine.FormFor(q.Status, p.Role)
	form.Actions = s.allowedActions(ctx, p, q)
	return &QuotationView{
		Quotation:         q,
		StatusSlug:        q.Status.Slug(),
		StatusLabel:       statusLabel(lang, q.Status),
		AmountLabel:       i18n.FormatAmount(lang, q.Amount),
		Form:              formView(lang, form),
		Checklist:         checklistView(lang, p.Role, cl),
		ContractAvailable: s.authz.Authorize(ctx, gate.ActionDownload, policy.ResourceContract, q) == nil,
	}
}

// List returns the quotations visible to the principal.
func (s *QuotationService) List(ctx context.Context, lq ListQuery) (*ListResult, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, gate.ActionList, policy.ResourceQuotation, nil); err != nil {
		return nil, err
	}
	opts := backend.ListOptions{Query: lq.Query, Page: lq.Page, Limit: lq.Limit}
	if lq.Status != "" {
		st, err := lifecycle.ParseStatus(lq.Status)
		if err != nil {
			return nil, &ValidationError{Violations: validation.Violations{"status": "invalid"}}
		}
		opts.Status = st
	}
	page, err := s.backend.ListQuotations(ctx, opts)
	if err != nil {
		return nil, err
	}
	lang := i18n.LangFromContext(ctx)
	res := &ListResult{Items: []QuotationSummary{}, Total: page.Total, Page: page.Page, Limit: page.Limit}
	for i := range page.Items {
		q := &page.Items[i]
		if s.authz.Authorize(ctx, gate.ActionView, policy.ResourceQuotation, q) != nil {
			res.Total--
			continue
		}
		res.Items = append(res.Items, summarize(lang, q, s.allowedActions(ctx, p, q)))
	}
	res.Total = max(res.Total, len(res.Items))
	return res, nil
}

// Get returns the quotation with its reconciled checklist.
func (s *QuotationService) Get(ctx context.Context, id string) (*QuotationView, error) {
	p, q, err := s.load(ctx, id, gate.ActionView)
	if err != nil {
		return nil, err
	}
	cl, err := s.store.Sync(ctx, q.ID, remoteDocuments(q))
	if err != nil {
		return nil, err
	}
	return s.view(ctx, p, q, cl), nil
}

// Checklist returns the reconciled checklist of a quotation.
func (s *QuotationService) Checklist(ctx context.Context, id string) (*ChecklistView, error) {
	p, q, err := s.load(ctx, id, gate.ActionView)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, gate.ActionView, policy.ResourceDocument, &policy.DocumentTarget{Quotation: q}); err != nil {
		return nil, err
	}
	cl, err := s.store.Sync(ctx, q.ID, remoteDocuments(q))
	if err != nil {
		return nil, err
	}
	return checklistView(i18n.LangFromContext(ctx), p.Role, cl), nil
}

// Create opens a draft quotation for a client.
func (s *QuotationService) Create(ctx context.Context, in DraftInput) (*QuotationView, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, gate.ActionCreate, policy.ResourceQuotation, nil); err != nil {
		return nil, err
	}
	if v := in.Validate(true); !v.Empty() {
		return nil, &ValidationError{Violations: v}
	}
	q, err := s.backend.CreateQuotation(ctx, in.toBackend())
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"quotation_id": q.ID, "number": q.Number, "user_id": p.UserID}).Info("quotation created")
	cl, err := s.store.Sync(ctx, q.ID, remoteDocuments(q))
	if err != nil {
		return nil, err
	}
	return s.view(ctx, p, q, cl), nil
}

// Update edits a draft. Only generated quotations are editable.
func (s *QuotationService) Update(ctx context.Context, id string, in DraftInput) (*QuotationView, error) {
	p, q, err := s.load(ctx, id, gate.ActionUpdate)
	if err != nil {
		return nil, err
	}
	if v := in.Validate(false); !v.Empty() {
		return nil, &ValidationError{Violations: v}
	}
	updated, err := s.backend.UpdateQuotation(ctx, q.ID, in.toBackend())
	if err != nil {
		return nil, err
	}
	cl, err := s.store.Sync(ctx, updated.ID, remoteDocuments(updated))
	if err != nil {
		return nil, err
	}
	return s.view(ctx, p, updated, cl), nil
}

// Transition applies a lifecycle action. Validation needs the signed
// contract and goes through Validate.
func (s *QuotationService) Transition(ctx context.Context, id string, action lifecycle.Action, comment string) (view *QuotationView, err error) {
	defer func() { metrics.RecordTransition(string(action), err) }()
	p, q, err := s.load(ctx, id, gate.ActionView)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, gate.Action(action), policy.ResourceQuotation, q); err != nil {
		return nil, err
	}
	// validation carries the signed contract
	if action == lifecycle.ActionValidate {
		return nil, ErrContractRequired
	}
	cl, err := s.store.Sync(ctx, q.ID, remoteDocuments(q))
	if err != nil {
		return nil, err
	}
	from := q.Status
	var guards []lifecycle.Guard
	switch action {
	case lifecycle.ActionSubmit, lifecycle.ActionForward:
		guards = append(guards, cl.RequireComplete)
	}
	next, err := s.machine.Apply(p.Role, action, from, guards...)
	if err != nil {
		return nil, err
	}
	updated, err := s.backend.UpdateStatus(ctx, q.ID, next, comment)
	if err != nil {
		return nil, err
	}
	if updated == nil || updated.ID == "" {
		q.Status = next
		updated = q
	}
	s.record(ctx, p, q.Number, q.ID, action, from, next, comment, map[string]any{
		"progress":       cl.Progress(),
		"rectifications": orEmpty(cl.PendingRectifications()),
	})
	return s.view(ctx, p, updated, cl), nil
}

// Validate attaches the signed contract and moves the quotation to
// validated.
func (s *QuotationService) Validate(ctx context.Context, id string, contract FileUpload, comment string) (view *QuotationView, err error) {
	defer func() { metrics.RecordTransition(string(lifecycle.ActionValidate), err) }()
	p, q, err := s.load(ctx, id, gate.ActionView)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, gate.Action(lifecycle.ActionValidate), policy.ResourceQuotation, q); err != nil {
		return nil, err
	}
	hasFile := func() error {
		if contract.Content == nil || contract.Size <= 0 {
			return ErrContractRequired
		}
		return s.contract.Check(contract.meta())
	}
	from := q.Status
	next, err := s.machine.Apply(p.Role, lifecycle.ActionValidate, from, hasFile)
	if err != nil {
		return nil, err
	}
	signed, err := s.backend.UploadContract(ctx, q.ID, contract.upload())
	if err != nil {
		return nil, err
	}
	updated, err := s.backend.UpdateStatus(ctx, q.ID, next, comment)
	if err != nil {
		s.log.WithError(err).WithField("quotation_id", q.ID).Error("contract stored but status update failed")
		return nil, err
	}
	if updated == nil || updated.ID == "" {
		q.Status, q.Contract = next, signed
		updated = q
	}
	s.record(ctx, p, q.Number, q.ID, lifecycle.ActionValidate, from, next, comment, map[string]any{
		"contract_id":   signed.ID,
		"contract_name": contract.Name,
	})
	cl, err := s.store.Load(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, p, updated, cl), nil
}

func (s *QuotationService) record(ctx context.Context, p *auth.Principal, number, id string, action lifecycle.Action, from, to lifecycle.Status, comment string, payload map[string]any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte("{}")
	}
	row := models.TransitionLog{
		QuotationID: id,
		Number:      number,
		Action:      string(action),
		FromStatus:  from.Slug(),
		ToStatus:    to.Slug(),
		ActorID:     p.UserID,
		ActorRole:   string(p.Role),
		Comment:     comment,
		Payload:     datatypes.JSON(raw),
	}
	fields := logrus.Fields{"quotation_id": id, "action": action, "from": from.Slug(), "to": to.Slug(), "user_id": p.UserID}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.log.WithError(err).WithFields(fields).Error("transition log not written")
		return
	}
	s.log.WithFields(fields).Info("quotation transition")
}

// History lists the transitions applied to a quotation, oldest first.
func (s *QuotationService) History(ctx context.Context, id string) ([]models.TransitionLog, error) {
	_, q, err := s.load(ctx, id, gate.ActionView)
	if err != nil {
		return nil, err
	}
	var rows []models.TransitionLog
	if err := s.db.WithContext(ctx).Where("quotation_id = ?", q.ID).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// documentTarget loads the quotation, reconciles its checklist and checks
// action on one document slot.
func (s *QuotationService) documentTarget(ctx context.Context, id, docType string, action gate.Action) (*auth.Principal, *backend.Quotation, checklist.Slot, error) {
	p, q, err := s.load(ctx, id, gate.ActionView)
	if err != nil {
		return nil, nil, checklist.Slot{}, err
	}
	cl, err := s.store.Sync(ctx, q.ID, remoteDocuments(q))
	if err != nil {
		return nil, nil, checklist.Slot{}, err
	}
	slot, err := cl.Slot(docType)
	if err != nil {
		return nil, nil, checklist.Slot{}, err
	}
	target := &policy.DocumentTarget{Quotation: q, DocType: docType, Slot: slot.Status}
	if err := s.authz.Authorize(ctx, action, policy.ResourceDocument, target); err != nil {
		return nil, nil, checklist.Slot{}, err
	}
	return p, q, slot, nil
}

// UploadDocument stores a file in a checklist slot. The slot is marked
// uploading first so a concurrent upload of the same document is refused.
func (s *QuotationService) UploadDocument(ctx context.Context, id, docType string, f FileUpload) (view *ChecklistView, err error) {
	p, q, slot, err := s.documentTarget(ctx, id, docType, gate.ActionUpload)
	if err != nil {
		return nil, err
	}
	defer func() { metrics.RecordUpload(slot.Section, err) }()
	fields := logrus.Fields{"quotation_id": q.ID, "doc_type": docType, "user_id": p.UserID}

	if _, err := s.store.Update(ctx, q.ID, p.UserID, func(cl *checklist.Checklist) error {
		return cl.Begin(docType, f.meta())
	}); err != nil {
		return nil, err
	}
	doc, upErr := s.backend.UploadDocument(ctx, q.ID, docType, f.upload())
	if upErr != nil {
		s.log.WithError(upErr).WithFields(fields).Warn("document upload failed")
		if _, err := s.store.Update(ctx, q.ID, p.UserID, func(cl *checklist.Checklist) error {
			return cl.Fail(docType, upErr.Error())
		}); err != nil {
			s.log.WithError(err).WithFields(fields).Error("upload failure not recorded")
		}
		return nil, upErr
	}
	cl, err := s.store.Update(ctx, q.ID, p.UserID, func(cl *checklist.Checklist) error {
		return cl.Complete(docType, doc.ID, doc.URL)
	})
	if err != nil {
		return nil, err
	}
	if slot.RemoteID != "" && slot.RemoteID != doc.ID {
		if err := s.backend.DeleteDocument(ctx, q.ID, slot.RemoteID); err != nil && !errors.Is(err, backend.ErrNotFound) {
			s.log.WithError(err).WithFields(fields).WithField("document_id", slot.RemoteID).Warn("replaced document not deleted")
		}
	}
	s.log.WithFields(fields).Info("document uploaded")
	return checklistView(i18n.LangFromContext(ctx), p.Role, cl), nil
}

// RemoveDocument deletes the stored file of a slot.
func (s *QuotationService) RemoveDocument(ctx context.Context, id, docType string) (*ChecklistView, error) {
	p, q, slot, err := s.documentTarget(ctx, id, docType, gate.ActionDelete)
	if err != nil {
		return nil, err
	}
	if slot.RemoteID != "" {
		if err := s.backend.DeleteDocument(ctx, q.ID, slot.RemoteID); err != nil && !errors.Is(err, backend.ErrNotFound) {
			return nil, err
		}
	}
	cl, err := s.store.Update(ctx, q.ID, p.UserID, func(cl *checklist.Checklist) error {
		return cl.Remove(docType)
	})
	if err != nil {
		return nil, err
	}
	return checklistView(i18n.LangFromContext(ctx), p.Role, cl), nil
}

// RequestRectification flags a stored document so its uploader replaces it.
func (s *QuotationService) RequestRectification(ctx context.Context, id, docType, comment string) (*ChecklistView, error) {
	p, q, slot, err := s.documentTarget(ctx, id, docType, gate.ActionRectify)
	if err != nil {
		return nil, err
	}
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil, checklist.ErrRectificationNote
	}
	if !slot.HasFile() {
		return nil, checklist.ErrNothingToRectify
	}
	if err := s.backend.FlagDocument(ctx, q.ID, slot.RemoteID, comment); err != nil {
		return nil, err
	}
	cl, err := s.store.Update(ctx, q.ID, p.UserID, func(cl *checklist.Checklist) error {
		return cl.RequestRectification(docType, comment)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"quotation_id": q.ID, "doc_type": docType, "user_id": p.UserID}).Info("rectification requested")
	return checklistView(i18n.LangFromContext(ctx), p.Role, cl), nil
}

// Contract streams the signed contract. The caller closes the body.
func (s *QuotationService) Contract(ctx context.Context, id string) (*backend.Download, error) {
	_, q, err := s.load(ctx, id, gate.ActionView)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, gate.ActionDownload, policy.ResourceContract, q); err != nil {
		return nil, err
	}
	return s.backend.DownloadContract(ctx, q.ID)
}

// Clients lists the clients a quotation can be created for.
func (s *QuotationService) Clients(ctx context.Context, query string) ([]backend.Party, error) {
	if _, err := principalFrom(ctx); err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, gate.ActionList, policy.ResourceClient, nil); err != nil {
		return nil, err
	}
	return s.backend.ListClients(ctx, query)
}

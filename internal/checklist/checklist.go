package checklist

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// SlotStatus is the upload state of one document slot.
type SlotStatus string

const (
	SlotEmpty         SlotStatus = "empty"
	SlotUploading     SlotStatus = "uploading"
	SlotSuccess       SlotStatus = "success"
	SlotError         SlotStatus = "error"
	SlotRectification SlotStatus = "rectification"
)

func (s SlotStatus) Valid() bool {
	switch s {
	case SlotEmpty, SlotUploading, SlotSuccess, SlotError, SlotRectification:
		return true
	}
	return false
}

var (
	ErrUploadInProgress  = errors.New("an upload is already in progress for this document")
	ErrNotUploading      = errors.New("no upload in progress for this document")
	ErrNothingToRectify  = errors.New("document has no stored file to rectify")
	ErrFileTooLarge      = errors.New("file exceeds the maximum size")
	ErrEmptyFile         = errors.New("file is empty")
	ErrUnsupportedType   = errors.New("file type not accepted")
	ErrMissingFileName   = errors.New("file name is required")
	ErrRectificationNote = errors.New("a rectification comment is required")
)

const (
	DefaultMaxSize    int64 = 10 << 20
	DefaultStaleAfter       = 10 * time.Minute
)

// DefaultMIMETypes are the content types accepted for uploads.
var DefaultMIMETypes = []string{"application/pdf", "image/jpeg", "image/png"}

// Limits bounds the files accepted into a slot.
type Limits struct {
	MaxSize   int64
	MIMETypes []string
}

// Check validates a file against the limits.
func (l Limits) Check(f File) error {
	if strings.TrimSpace(f.Name) == "" {
		return ErrMissingFileName
	}
	if f.Size <= 0 {
		return ErrEmptyFile
	}
	maxSize := l.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if f.Size > maxSize {
		return fmt.Errorf("%w (%d > %d bytes)", ErrFileTooLarge, f.Size, maxSize)
	}
	types := l.MIMETypes
	if len(types) == 0 {
		types = DefaultMIMETypes
	}
	mt := strings.ToLower(strings.TrimSpace(strings.Split(f.MIMEType, ";")[0]))
	if !slices.Contains(types, mt) {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, f.MIMEType)
	}
	return nil
}

// File describes an incoming upload.
type File struct {
	Name     string
	MIMEType string
	Size     int64
}

// Slot is the state of one document type for a quotation.
type Slot struct {
	DocType   string     `json:"type"`
	Section   string     `json:"section"`
	Required  bool       `json:"required"`
	Status    SlotStatus `json:"status"`
	FileName  string     `json:"file_name,omitempty"`
	MIMEType  string     `json:"mime_type,omitempty"`
	Size      int64      `json:"size,omitempty"`
	RemoteID  string     `json:"remote_id,omitempty"`
	URL       string     `json:"url,omitempty"`
	Comment   string     `json:"comment,omitempty"`
	Error     string     `json:"error,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`

	rowID   uint
	version int
	dirty   bool
}

// HasFile reports whether the backend holds a file for this slot.
func (s Slot) HasFile() bool { return s.Status == SlotSuccess || s.Status == SlotRectification }

// Option configures a Checklist.
type Option func(*Checklist)

func WithLimits(l Limits) Option { return func(c *Checklist) { c.limits = l } }

func WithClock(now func() time.Time) Option { return func(c *Checklist) { c.now = now } }

// WithStaleAfter sets how long an upload may stay in progress before a
// new one is allowed to replace it.
func WithStaleAfter(d time.Duration) Option { return func(c *Checklist) { c.staleAfter = d } }

// Checklist tracks the document slots of one quotation.
type Checklist struct {
	QuotationID string

	catalog    *Catalog
	slots      map[string]*Slot
	limits     Limits
	staleAfter time.Duration
	now        func() time.Time
}

// New returns a checklist with every slot empty.
func New(catalog *Catalog, quotationID string, opts ...Option) *Checklist {
	c := &Checklist{
		QuotationID: quotationID,
		catalog:     catalog,
		slots:       make(map[string]*Slot),
		staleAfter:  DefaultStaleAfter,
		now:         time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	for _, d := range catalog.Documents() {
		c.slots[d.ID] = &Slot{DocType: d.ID, Section: d.Section, Required: d.Required, Status: SlotEmpty}
	}
	return c
}

// Catalog returns the catalog the checklist was built from.
func (c *Checklist) Catalog() *Catalog { return c.catalog }

func (c *Checklist) slot(docType string) (*Slot, error) {
	s, ok := c.slots[docType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDocumentType, docType)
	}
	return s, nil
}

// Slot returns a copy of the slot state.
func (c *Checklist) Slot(docType string) (Slot, error) {
	s, err := c.slot(docType)
	if err != nil {
		return Slot{}, err
	}
	return *s, nil
}

func (c *Checklist) touch(s *Slot) {
	s.UpdatedAt = c.now()
	s.dirty = true
}

func (c *Checklist) stale(s *Slot) bool {
	return s.StartedAt == nil || c.now().Sub(*s.StartedAt) > c.staleAfter
}

// Begin marks a slot as uploading. A new file replaces any previous one,
// but only one upload may run at a time unless the running one is stale.
func (c *Checklist) Begin(docType string, f File) error {
	s, err := c.slot(docType)
	if err != nil {
		return err
	}
	if err := c.limits.Check(f); err != nil {
		return err
	}
	if s.Status == SlotUploading && !c.stale(s) {
		return ErrUploadInProgress
	}
	now := c.now()
	s.Status = SlotUploading
	s.FileName = f.Name
	s.MIMEType = f.MIMEType
	s.Size = f.Size
	s.Error = ""
	s.StartedAt = &now
	c.touch(s)
	return nil
}

// Complete records the stored file returned by the backend.
func (c *Checklist) Complete(docType, remoteID, url string) error {
	s, err := c.slot(docType)
	if err != nil {
		return err
	}
	if s.Status != SlotUploading {
		return ErrNotUploading
	}
	s.Status = SlotSuccess
	s.RemoteID = remoteID
	s.URL = url
	s.Comment = ""
	s.Error = ""
	s.StartedAt = nil
	c.touch(s)
	return nil
}

// Fail records a failed upload.
func (c *Checklist) Fail(docType, reason string) error {
	s, err := c.slot(docType)
	if err != nil {
		return err
	}
	if s.Status != SlotUploading {
		return ErrNotUploading
	}
	s.Status = SlotError
	s.Error = reason
	s.RemoteID = ""
	s.URL = ""
	s.StartedAt = nil
	c.touch(s)
	return nil
}

// RequestRectification flags a stored document as needing a new file.
func (c *Checklist) RequestRectification(docType, comment string) error {
	s, err := c.slot(docType)
	if err != nil {
		return err
	}
	if strings.TrimSpace(comment) == "" {
		return ErrRectificationNote
	}
	if !s.HasFile() {
		return ErrNothingToRectify
	}
	s.Status = SlotRectification
	s.Comment = strings.TrimSpace(comment)
	c.touch(s)
	return nil
}

// Remove empties a slot.
func (c *Checklist) Remove(docType string) error {
	s, err := c.slot(docType)
	if err != nil {
		return err
	}
	if s.Status == SlotUploading && !c.stale(s) {
		return ErrUploadInProgress
	}
	c.reset(s)
	return nil
}

func (c *Checklist) reset(s *Slot) {
	s.Status = SlotEmpty
	s.FileName, s.MIMEType, s.Size = "", "", 0
	s.RemoteID, s.URL, s.Comment, s.Error = "", "", "", ""
	s.StartedAt = nil
	c.touch(s)
}

// Slots returns every slot in catalog order.
func (c *Checklist) Slots() []Slot {
	out := make([]Slot, 0, len(c.slots))
	for _, d := range c.catalog.Documents() {
		out = append(out, *c.slots[d.ID])
	}
	return out
}

// SectionView groups slots under their section.
type SectionView struct {
	ID    string `json:"id"`
	Label Label  `json:"label"`
	Slots []Slot `json:"slots"`
}

func (c *Checklist) Sections() []SectionView {
	out := make([]SectionView, 0, len(c.catalog.Sections))
	for _, sec := range c.catalog.Sections {
		v := SectionView{ID: sec.ID, Label: sec.Label}
		for _, d := range sec.Documents {
			v.Slots = append(v.Slots, *c.slots[d.ID])
		}
		out = append(out, v)
	}
	return out
}

// Progress counts required slots holding an accepted file.
type Progress struct {
	Uploaded int `json:"uploaded"`
	Required int `json:"required"`
	Percent  int `json:"percent"`
}

func (c *Checklist) Progress() Progress {
	var p Progress
	for _, s := range c.slots {
		if !s.Required {
			continue
		}
		p.Required++
		if s.Status == SlotSuccess {
			p.Uploaded++
		}
	}
	if p.Required > 0 {
		p.Percent = p.Uploaded * 100 / p.Required
	} else {
		p.Percent = 100
	}
	return p
}

// Missing lists required document types without an accepted file.
func (c *Checklist) Missing() []string {
	var out []string
	for _, d := range c.catalog.Required() {
		if c.slots[d.ID].Status != SlotSuccess {
			out = append(out, d.ID)
		}
	}
	return out
}

// Blocking lists slots that prevent the folder from moving on:
// uploads in progress, failures and pending rectifications.
func (c *Checklist) Blocking() []Slot {
	var out []Slot
	for _, s := range c.Slots() {
		switch s.Status {
		case SlotUploading, SlotError, SlotRectification:
			out = append(out, s)
		}
	}
	return out
}

// PendingRectifications lists the document types flagged for rectification.
func (c *Checklist) PendingRectifications() []string {
	var out []string
	for _, s := range c.Slots() {
		if s.Status == SlotRectification {
			out = append(out, s.DocType)
		}
	}
	return out
}

// IsComplete reports whether every required slot is accepted and nothing
// is blocking.
func (c *Checklist) IsComplete() bool {
	return len(c.Missing()) == 0 && len(c.Blocking()) == 0
}

// IncompleteError describes why a checklist is not complete.
type IncompleteError struct {
	Missing  []string
	Blocking []string
}

func (e *IncompleteError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Blocking) > 0 {
		parts = append(parts, "blocking "+strings.Join(e.Blocking, ", "))
	}
	return "checklist incomplete: " + strings.Join(parts, "; ")
}

// RequireComplete returns an *IncompleteError when IsComplete is false.
func (c *Checklist) RequireComplete() error {
	if c.IsComplete() {
		return nil
	}
	e := &IncompleteError{Missing: c.Missing()}
	for _, s := range c.Blocking() {
		e.Blocking = append(e.Blocking, s.DocType)
	}
	return e
}

// RemoteDocument is a stored file as reported by the backend.
type RemoteDocument struct {
	ID      string
	Type    string
	Name    string
	URL     string
	Comment string
	// Rectify is set when the backend flags the file for rectification.
	Rectify    bool
	UploadedAt time.Time
}

// Reconcile aligns the slots with the documents the backend holds. The
// backend is authoritative for stored files; uploads still in progress
// locally are kept, and documents of unknown type are ignored. A slot
// holds one file: when the backend lists several of one type the most
// recently uploaded wins.
func (c *Checklist) Reconcile(remote []RemoteDocument) {
	latest := make(map[string]RemoteDocument, len(remote))
	for _, r := range remote {
		if cur, ok := latest[r.Type]; ok && r.UploadedAt.Before(cur.UploadedAt) {
			continue
		}
		latest[r.Type] = r
	}
	seen := make(map[string]bool, len(latest))
	for _, r := range latest {
		s, ok := c.slots[r.Type]
		if !ok {
			continue
		}
		seen[r.Type] = true
		if s.Status == SlotUploading && !c.stale(s) {
			continue
		}
		status := SlotSuccess
		comment := ""
		if r.Rectify {
			status = SlotRectification
			comment = r.Comment
			if comment == "" {
				comment = s.Comment
			}
		} else if s.Status == SlotRectification && s.RemoteID == r.ID {
			// flag raised locally, backend not updated yet
			status, comment = SlotRectification, s.Comment
		}
		if s.Status == status && s.RemoteID == r.ID && s.URL == r.URL && s.Comment == comment {
			continue
		}
		s.Status = status
		s.RemoteID = r.ID
		s.URL = r.URL
		if r.Name != "" {
			s.FileName = r.Name
		}
		s.Comment = comment
		s.Error = ""
		s.StartedAt = nil
		c.touch(s)
	}
	for _, s := range c.slots {
		if seen[s.DocType] {
			continue
		}
		if s.HasFile() || (s.Status == SlotUploading && c.stale(s)) {
			c.reset(s)
		}
	}
}

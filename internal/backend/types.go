package backend

import (
	"io"
	"time"

	"github.com/diewo77/ejaar/internal/lifecycle"
)

// User is the authenticated account as returned by the backend.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// Tokens is the login and refresh response.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"` // seconds
	User         *User  `json:"user,omitempty"`
}

// Party is the client or supplier attached to a quotation.
type Party struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	ICE    string `json:"ice,omitempty"`
	Phone  string `json:"phone,omitempty"`
}

// Device is one leased equipment line.
type Device struct {
	Name      string  `json:"name"`
	Brand     string  `json:"brand,omitempty"`
	Reference string  `json:"reference,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Total is the line amount.
func (d Device) Total() float64 { return float64(d.Quantity) * d.UnitPrice }

// Document is a stored checklist file.
type Document struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Name       string    `json:"name"`
	URL        string    `json:"url,omitempty"`
	Status     string    `json:"status,omitempty"`
	Comment    string    `json:"comment,omitempty"`
	UploadedAt time.Time `json:"uploaded_at,omitempty"`
}

// DocumentStatusRectification is the backend status of a document flagged
// for rectification.
const DocumentStatusRectification = "to_rectify"

// NeedsRectification reports whether the backend flagged the document.
func (d Document) NeedsRectification() bool { return d.Status == DocumentStatusRectification }

// Contract is the signed leasing contract.
type Contract struct {
	ID       string     `json:"id"`
	Name     string     `json:"name,omitempty"`
	URL      string     `json:"url,omitempty"`
	SignedAt *time.Time `json:"signed_at,omitempty"`
}

// Quotation is a leasing folder.
type Quotation struct {
	ID        string           `json:"id"`
	Number    string           `json:"number"`
	Status    lifecycle.Status `json:"status"`
	Amount    float64          `json:"amount"`
	Duration  int              `json:"duration"` // months
	Devices   []Device         `json:"devices"`
	Client    *Party           `json:"client,omitempty"`
	Supplier  *Party           `json:"supplier,omitempty"`
	Contract  *Contract        `json:"contract,omitempty"`
	Documents []Document       `json:"documents"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// ClientUserID returns the user id of the client, empty when unknown.
func (q *Quotation) ClientUserID() string {
	if q.Client == nil {
		return ""
	}
	return q.Client.UserID
}

// SupplierUserID returns the user id of the supplier, empty when unknown.
func (q *Quotation) SupplierUserID() string {
	if q.Supplier == nil {
		return ""
	}
	return q.Supplier.UserID
}

// HasSignedContract reports whether a contract file is attached.
func (q *Quotation) HasSignedContract() bool {
	return q.Contract != nil && q.Contract.ID != ""
}

// DevicesTotal sums the device lines.
func (q *Quotation) DevicesTotal() float64 {
	var total float64
	for _, d := range q.Devices {
		total += d.Total()
	}
	return total
}

// DocumentByType returns the stored document of the given type.
func (q *Quotation) DocumentByType(docType string) (Document, bool) {
	for _, d := range q.Documents {
		if d.Type == docType {
			return d, true
		}
	}
	return Document{}, false
}

// QuotationInput is the payload to create or update a draft.
type QuotationInput struct {
	ClientID string   `json:"client_id,omitempty"`
	Amount   float64  `json:"amount"`
	Duration int      `json:"duration"`
	Devices  []Device `json:"devices"`
}

// QuotationPage is one page of a quotation listing.
type QuotationPage struct {
	Items []Quotation `json:"items"`
	Total int         `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

// ListOptions filters a quotation listing.
type ListOptions struct {
	Status lifecycle.Status
	Query  string
	Page   int
	Limit  int
}

// StatusUpdate is the payload of PATCH /quotations/{id}/status.
type StatusUpdate struct {
	Status  lifecycle.Status `json:"status"`
	Comment string           `json:"comment,omitempty"`
}

// DocumentFlag flags a stored document for rectification.
type DocumentFlag struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
}

// Download is a streamed file. Body must be closed by the caller.
type Download struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

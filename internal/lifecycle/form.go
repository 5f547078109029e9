package lifecycle

import "slices"

// FormID identifies the screen a front end must render for a quotation.
type FormID string

const (
	FormQuotationDraft          FormID = "quotation-draft"
	FormDocumentsUpload         FormID = "documents-upload"
	FormClientValidationSummary FormID = "client-validation-summary"
	FormVerificationReview      FormID = "verification-review"
	FormDocumentsRectification  FormID = "documents-rectification"
	FormBankReview              FormID = "bank-review"
	FormContractDownload        FormID = "contract-download"
	FormReadOnly                FormID = "read-only"
)

// Form describes what a role sees and may do at a given status.
type Form struct {
	ID       FormID   `json:"id"`
	Status   Status   `json:"status"`
	Editable []string `json:"editable,omitempty"`
	Uploads  bool     `json:"uploads"`
	Actions  []Action `json:"actions"`
}

// DraftFields are the quotation fields editable while generated.
var DraftFields = []string{"amount", "duration", "devices"}

type formRule struct {
	id       FormID
	editable []string
	uploads  bool
}

var forms = map[Status]map[Role]formRule{
	StatusGenerated: {
		RoleSupplier: {id: FormQuotationDraft, editable: DraftFields, uploads: true},
		RoleAdmin:    {id: FormQuotationDraft, editable: DraftFields, uploads: true},
		RoleClient:   {id: FormDocumentsUpload, uploads: true},
	},
	StatusClientValidated: {
		RoleClient:   {id: FormClientValidationSummary},
		RoleSupplier: {id: FormClientValidationSummary},
		RoleAdmin:    {id: FormClientValidationSummary},
	},
	StatusVerification: {
		RoleAdmin:  {id: FormVerificationReview, uploads: true},
		RoleClient: {id: FormDocumentsRectification, uploads: true},
	},
	StatusSentToBank: {
		RoleBank: {id: FormBankReview},
	},
	StatusValidated: {
		RoleClient:   {id: FormContractDownload},
		RoleSupplier: {id: FormContractDownload},
		RoleAdmin:    {id: FormContractDownload},
		RoleBank:     {id: FormContractDownload},
	},
}

// FormFor maps a status and role to the form to display. Unknown
// combinations fall back to FormReadOnly.
func (m *Machine) FormFor(status Status, role Role) Form {
	f := Form{ID: FormReadOnly, Status: status, Actions: []Action{}}
	if rule, ok := forms[status][role]; ok {
		f.ID = rule.id
		f.Editable = slices.Clone(rule.editable)
		f.Uploads = rule.uploads
	}
	if allowed := m.Allowed(role, status); len(allowed) > 0 {
		f.Actions = allowed
	}
	return f
}

// FormFor uses the default machine.
func FormFor(status Status, role Role) Form { return Default().FormFor(status, role) }

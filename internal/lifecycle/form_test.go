package lifecycle

import "testing"

func TestFormFor(t *testing.T) {
	tests := []struct {
		status  Status
		role    Role
		want    FormID
		uploads bool
	}{
		{StatusGenerated, RoleSupplier, FormQuotationDraft, true},
		{StatusGenerated, RoleAdmin, FormQuotationDraft, true},
		{StatusGenerated, RoleClient, FormDocumentsUpload, true},
		{StatusGenerated, RoleBank, FormReadOnly, false},
		{StatusClientValidated, RoleClient, FormClientValidationSummary, false},
		{StatusVerification, RoleAdmin, FormVerificationReview, true},
		{StatusVerification, RoleClient, FormDocumentsRectification, true},
		{StatusVerification, RoleSupplier, FormReadOnly, false},
		{StatusSentToBank, RoleBank, FormBankReview, false},
		{StatusSentToBank, RoleClient, FormReadOnly, false},
		{StatusValidated, RoleBank, FormContractDownload, false},
		{Status("unknown"), RoleAdmin, FormReadOnly, false},
	}
	for _, tt := range tests {
		f := FormFor(tt.status, tt.role)
		if f.ID != tt.want {
			t.Errorf("FormFor(%s, %s) = %s, want %s", tt.status.Slug(), tt.role, f.ID, tt.want)
		}
		if f.Uploads != tt.uploads {
			t.Errorf("FormFor(%s, %s).Uploads = %v", tt.status.Slug(), tt.role, f.Uploads)
		}
		if f.Actions == nil {
			t.Errorf("actions must never be nil")
		}
	}
}

func TestFormForCarriesActions(t *testing.T) {
	f := FormFor(StatusGenerated, RoleClient)
	if len(f.Actions) != 1 || f.Actions[0] != ActionSubmit {
		t.Fatalf("expected submit action, got %v", f.Actions)
	}
	draft := FormFor(StatusGenerated, RoleSupplier)
	if len(draft.Editable) != len(DraftFields) {
		t.Fatalf("expected draft fields editable, got %v", draft.Editable)
	}
	if ro := FormFor(StatusClientValidated, RoleSupplier); len(ro.Editable) != 0 {
		t.Fatalf("summary form must not be editable")
	}
}

func TestFormEditableIsACopy(t *testing.T) {
	f := FormFor(StatusGenerated, RoleSupplier)
	f.Editable[0] = "changed"
	if DraftFields[0] == "changed" {
		t.Fatal("editing a form changed the draft field table")
	}
	if again := FormFor(StatusGenerated, RoleAdmin); again.Editable[0] != "amount" {
		t.Fatalf("editable = %v", again.Editable)
	}
}

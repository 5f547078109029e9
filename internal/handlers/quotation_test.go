package handlers

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diewo77/ejaar/auth"
	"github.com/diewo77/ejaar/internal/backend"
	"github.com/diewo77/ejaar/internal/backend/backendtest"
	"github.com/diewo77/ejaar/internal/checklist"
	"github.com/diewo77/ejaar/internal/lifecycle"
	"github.com/diewo77/ejaar/internal/policy"
	"github.com/diewo77/ejaar/internal/services"
)

var (
	clientUser   = backend.User{ID: "c1", Email: "client@atlas.ma", Name: "Atlas Textile", Role: "client"}
	supplierUser = backend.User{ID: "s1", Email: "ventes@equip.ma", Name: "Equip Maroc", Role: "supplier"}
	bankUser     = backend.User{ID: "b1", Email: "credit@banque.ma", Name: "Banque Populaire", Role: "bank"}
)

type handlerFixture struct {
	backend *backendtest.Server
	handler *QuotationHandler
}

func newHandlerFixture(t *testing.T, maxUpload int64) *handlerFixture {
	t.Helper()
	srv := backendtest.New(
		backendtest.Account{User: clientUser, Password: "pw"},
		backendtest.Account{User: supplierUser, Password: "pw"},
		backendtest.Account{User: bankUser, Password: "pw"},
	)
	t.Cleanup(srv.Close)
	be, err := backend.New(srv.URL)
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)
	gdb := setupTestDB(t)
	catalog := checklist.DefaultCatalog()
	cfg := policy.NewRouterConfig(gdb, time.Minute, catalog, nil)
	store := checklist.NewStore(gdb, catalog)
	svc := services.NewQuotationService(gdb, be, store, cfg.AuthGate, services.WithLogger(log))
	return &handlerFixture{backend: srv, handler: NewQuotationHandler(svc, maxUpload)}
}

// as authenticates req as u.
func (f *handlerFixture) as(req *http.Request, u backend.User) *http.Request {
	role, err := lifecycle.ParseRole(u.Role)
	if err != nil {
		panic(err)
	}
	ctx := backend.WithToken(req.Context(), f.backend.IssueToken(u, time.Hour))
	ctx = auth.WithPrincipal(ctx, &auth.Principal{SessionID: "s-" + u.ID, UserID: u.ID, Email: u.Email, Name: u.Name, Role: role})
	return req.WithContext(ctx)
}

func (f *handlerFixture) put(status lifecycle.Status) string {
	f.backend.Put(backend.Quotation{
		ID:       "q1",
		Number:   "DEV-0001",
		Status:   status,
		Amount:   340000,
		Duration: 36,
		Client:   &backend.Party{ID: clientUser.ID, UserID: clientUser.ID, Name: clientUser.Name},
		Supplier: &backend.Party{ID: supplierUser.ID, UserID: supplierUser.ID, Name: supplierUser.Name},
	})
	return "q1"
}

func multipartBody(t *testing.T, name, ctype string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if name != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, name))
		if ctype != "" {
			h.Set("Content-Type", ctype)
		}
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func uploadReq(t *testing.T, path, name, ctype string, content []byte) *http.Request {
	t.Helper()
	body, contentType := multipartBody(t, name, ctype, content, nil)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	return req
}

func TestUploadDocument_SniffsContentType(t *testing.T) {
	f := newHandlerFixture(t, 1<<20)
	id := f.put(lifecycle.StatusGenerated)

	req := uploadReq(t, "/quotations/"+id+"/documents/statuts", "statuts.pdf", "application/octet-stream", []byte("%PDF-1.4 statuts"))
	req.SetPathValue("id", id)
	req.SetPathValue("type", "statuts")
	rr := httptest.NewRecorder()
	f.handler.UploadDocument(rr, f.as(req, clientUser))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"mime_type":"application/pdf"`)
	assert.Contains(t, rr.Body.String(), `"status":"success"`)
}

func TestUploadDocument_Rejections(t *testing.T) {
	f := newHandlerFixture(t, 64)
	id := f.put(lifecycle.StatusGenerated)

	tests := []struct {
		name    string
		req     *http.Request
		status  int
		code    string
		docType string
	}{
		{"no file part", func() *http.Request {
			body, ct := multipartBody(t, "", "", nil, map[string]string{"note": "x"})
			r := httptest.NewRequest(http.MethodPost, "/", body)
			r.Header.Set("Content-Type", ct)
			return r
		}(), http.StatusBadRequest, "bad_request", "statuts"},
		{"not multipart", httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}")), http.StatusBadRequest, "bad_request", "statuts"},
		{"too large", uploadReq(t, "/", "big.pdf", "application/pdf", bytes.Repeat([]byte("a"), 2<<20)), http.StatusRequestEntityTooLarge, "upload_rejected", "statuts"},
		{"unknown document", uploadReq(t, "/", "x.pdf", "application/pdf", []byte("%PDF")), http.StatusNotFound, "unknown_document", "passeport"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.SetPathValue("id", id)
			tt.req.SetPathValue("type", tt.docType)
			rr := httptest.NewRecorder()
			f.handler.UploadDocument(rr, f.as(tt.req, clientUser))
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
			assert.Contains(t, rr.Body.String(), `"error":"`+tt.code+`"`)
		})
	}
}

func TestValidate_RequiresContract(t *testing.T) {
	f := newHandlerFixture(t, 1<<20)
	id := f.put(lifecycle.StatusSentToBank)

	req := httptest.NewRequest(http.MethodPost, "/quotations/"+id+"/validate", nil)
	req.SetPathValue("id", id)
	rr := httptest.NewRecorder()
	f.handler.Validate(rr, f.as(req, bankUser))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), `"error":"contract_required"`)
}

func TestValidateThenDownloadContract(t *testing.T) {
	f := newHandlerFixture(t, 1<<20)
	id := f.put(lifecycle.StatusSentToBank)

	body, ct := multipartBody(t, "contrat.pdf", "application/pdf", []byte("%PDF-1.4 signed"), map[string]string{"comment": "Accord"})
	req := httptest.NewRequest(http.MethodPost, "/quotations/"+id+"/validate", body)
	req.Header.Set("Content-Type", ct)
	req.SetPathValue("id", id)
	rr := httptest.NewRecorder()
	f.handler.Validate(rr, f.as(req, bankUser))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"contract_available":true`)

	stored, ok := f.backend.Quotation(id)
	require.True(t, ok)
	assert.Equal(t, lifecycle.StatusValidated, stored.Status)

	req = httptest.NewRequest(http.MethodGet, "/quotations/"+id+"/contract", nil)
	req.SetPathValue("id", id)
	rr = httptest.NewRecorder()
	f.handler.Contract(rr, f.as(req, clientUser))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "contrat.pdf")
	assert.Equal(t, "%PDF-1.4 contract "+id, rr.Body.String())
}

func TestTransition_BadAction(t *testing.T) {
	f := newHandlerFixture(t, 1<<20)
	id := f.put(lifecycle.StatusGenerated)

	for _, body := range []string{`{"action":"teleport"}`, `{"action":`} {
		req := httptest.NewRequest(http.MethodPost, "/quotations/"+id+"/transitions", strings.NewReader(body))
		req.SetPathValue("id", id)
		rr := httptest.NewRecorder()
		f.handler.Transition(rr, f.as(req, clientUser))
		assert.Contains(t, []int{http.StatusBadRequest, http.StatusUnprocessableEntity}, rr.Code, body)
	}

	validate := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/quotations/"+id+"/transitions", strings.NewReader(`{"action":"validate"}`))
		req.SetPathValue("id", id)
		rr := httptest.NewRecorder()
		f.handler.Transition(rr, f.as(req, bankUser))
		return rr
	}
	rr := validate()
	assert.Contains(t, []int{http.StatusForbidden, http.StatusNotFound}, rr.Code, "folder not yet sent to the bank")

	f.put(lifecycle.StatusSentToBank)
	rr = validate()
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), "contract_required")
}

func TestClients(t *testing.T) {
	f := newHandlerFixture(t, 1<<20)
	req := httptest.NewRequest(http.MethodGet, "/clients", nil)
	rr := httptest.NewRecorder()
	f.handler.Clients(rr, f.as(req, supplierUser))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), clientUser.Name)
}

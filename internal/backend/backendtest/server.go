// Package backendtest provides an in-memory EJAAR backend for tests.
package backendtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/diewo77/ejaar/internal/backend"
	"github.com/diewo77/ejaar/internal/lifecycle"
)

// Secret signs the access tokens issued by the fake backend.
var Secret = []byte("backendtest-secret")

// Account is a user known to the fake backend.
type Account struct {
	backend.User
	Password string
}

// Server is a fake backend. Exported fields are read by tests once the
// requests under test have returned.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	accounts   map[string]Account // by email
	quotations map[string]*backend.Quotation
	nextID     int
	// TokenTTL is the lifetime of issued access tokens.
	TokenTTL time.Duration
	// Requests records "METHOD path" of every call.
	Requests []string
	// Headers records the headers of the last call.
	Headers http.Header
	// FailUploads makes document uploads answer 503.
	FailUploads bool
	// Refreshes counts refresh calls.
	Refreshes int
}

// New starts a fake backend with the given accounts.
func New(accounts ...Account) *Server {
	s := &Server{
		accounts:   make(map[string]Account),
		quotations: make(map[string]*backend.Quotation),
		TokenTTL:   time.Hour,
	}
	for _, a := range accounts {
		s.accounts[a.Email] = a
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", s.login)
	mux.HandleFunc("POST /auth/refresh", s.refresh)
	mux.HandleFunc("GET /users/me", s.authed(s.me))
	mux.HandleFunc("GET /quotations", s.authed(s.list))
	mux.HandleFunc("POST /quotations", s.authed(s.create))
	mux.HandleFunc("GET /quotations/{id}", s.authed(s.get))
	mux.HandleFunc("PUT /quotations/{id}", s.authed(s.update))
	mux.HandleFunc("PATCH /quotations/{id}/status", s.authed(s.status))
	mux.HandleFunc("POST /quotations/{id}/documents", s.authed(s.uploadDocument))
	mux.HandleFunc("DELETE /quotations/{id}/documents/{doc}", s.authed(s.deleteDocument))
	mux.HandleFunc("PATCH /quotations/{id}/documents/{doc}", s.authed(s.flagDocument))
	mux.HandleFunc("POST /quotations/{id}/contract", s.authed(s.uploadContract))
	mux.HandleFunc("GET /quotations/{id}/contract", s.authed(s.downloadContract))
	mux.HandleFunc("GET /clients", s.authed(s.clients))
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.Requests = append(s.Requests, r.Method+" "+r.URL.Path)
		s.Headers = r.Header.Clone()
		s.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	return s
}

// Put stores a quotation as is.
func (s *Server) Put(q backend.Quotation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q.Documents == nil {
		q.Documents = []backend.Document{}
	}
	s.quotations[q.ID] = &q
}

// Quotation returns a copy of a stored quotation.
func (s *Server) Quotation(id string) (backend.Quotation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotations[id]
	if !ok {
		return backend.Quotation{}, false
	}
	return *q, true
}

// SetFailUploads toggles FailUploads between requests.
func (s *Server) SetFailUploads(fail bool) {
	s.mu.Lock()
	s.FailUploads = fail
	s.mu.Unlock()
}

// IssueToken signs an access token for the account.
func (s *Server) IssueToken(u backend.User, ttl time.Duration) string {
	now := time.Now()
	claims := backend.Claims{
		Role:  u.Role,
		Email: u.Email,
		Name:  u.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(Secret)
	if err != nil {
		panic(err)
	}
	return tok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": map[string]string{"message": msg}})
}

func (s *Server) authed(next func(http.ResponseWriter, *http.Request, backend.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		claims, err := backend.ParseClaims(raw, Secret)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r, backend.User{ID: claims.Subject, Email: claims.Email, Name: claims.Name, Role: claims.Role})
	}
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var in struct{ Email, Password string }
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	s.mu.Lock()
	acc, ok := s.accounts[in.Email]
	ttl := s.TokenTTL
	s.mu.Unlock()
	if !ok || acc.Password != in.Password {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	u := acc.User
	writeJSON(w, http.StatusOK, backend.Tokens{
		AccessToken:  s.IssueToken(u, ttl),
		RefreshToken: "refresh-" + u.ID,
		ExpiresIn:    int(ttl.Seconds()),
		User:         &u,
	})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	s.mu.Lock()
	s.Refreshes++
	var found *backend.User
	for _, a := range s.accounts {
		if "refresh-"+a.ID == in.RefreshToken {
			u := a.User
			found = &u
		}
	}
	s.mu.Unlock()
	if found == nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	writeJSON(w, http.StatusOK, backend.Tokens{
		AccessToken:  s.IssueToken(*found, time.Hour),
		RefreshToken: in.RefreshToken,
		ExpiresIn:    3600,
	})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request, u backend.User) {
	writeJSON(w, http.StatusOK, u)
}

func visible(q *backend.Quotation, u backend.User) bool {
	switch u.Role {
	case "admin":
		return true
	case "client":
		return q.ClientUserID() == u.ID
	case "supplier":
		return q.SupplierUserID() == u.ID
	case "bank":
		return q.Status.AtLeast(lifecycle.StatusSentToBank)
	}
	return false
}

// lookup returns the quotation if the user may see it, writing a 404 otherwise.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request, u backend.User) *backend.Quotation {
	q, ok := s.quotations[r.PathValue("id")]
	if !ok || !visible(q, u) {
		writeError(w, http.StatusNotFound, "quotation not found")
		return nil
	}
	return q
}

func (s *Server) list(w http.ResponseWriter, r *http.Request, u backend.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := r.URL.Query().Get("status")
	items := []backend.Quotation{}
	for _, q := range s.quotations {
		if !visible(q, u) {
			continue
		}
		if status != "" && string(q.Status) != status {
			continue
		}
		items = append(items, *q)
	}
	slices.SortFunc(items, func(a, b backend.Quotation) int { return strings.Compare(a.ID, b.ID) })
	total := len(items)
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if page > 0 && limit > 0 {
		lo := min((page-1)*limit, total)
		items = items[lo:min(lo+limit, total)]
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": items, "total": total, "page": page, "limit": limit})
}

func (s *Server) get(w http.ResponseWriter, r *http.Request, u backend.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q := s.lookup(w, r, u); q != nil {
		writeJSON(w, http.StatusOK, q)
	}
}

func (s *Server) create(w http.ResponseWriter, r *http.Request, u backend.User) {
	var in backend.QuotationInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var client *backend.Party
	for _, a := range s.accounts {
		if a.Role == "client" && a.ID == in.ClientID {
			client = &backend.Party{ID: a.ID, UserID: a.ID, Name: a.Name, Email: a.Email}
		}
	}
	if client == nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "validation failed",
			"errors":  map[string][]string{"client_id": {"unknown client"}},
		})
		return
	}
	s.nextID++
	now := time.Now().UTC()
	q := &backend.Quotation{
		ID:        fmt.Sprintf("q%d", s.nextID),
		Number:    fmt.Sprintf("DEV-%04d", s.nextID),
		Status:    lifecycle.StatusGenerated,
		Amount:    in.Amount,
		Duration:  in.Duration,
		Devices:   in.Devices,
		Client:    client,
		Supplier:  &backend.Party{ID: u.ID, UserID: u.ID, Name: u.Name},
		Documents: []backend.Document{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.quotations[q.ID] = q
	writeJSON(w, http.StatusCreated, q)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request, u backend.User) {
	var in backend.QuotationInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.lookup(w, r, u)
	if q == nil {
		return
	}
	q.Amount, q.Duration, q.Devices = in.Amount, in.Duration, in.Devices
	q.UpdatedAt = time.Now().UTC()
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request, u backend.User) {
	var in backend.StatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.lookup(w, r, u)
	if q == nil {
		return
	}
	if next, ok := q.Status.Next(); !ok || next != in.Status {
		writeJSON(w, http.StatusConflict, map[string]string{"code": "invalid_status", "message": "status cannot change"})
		return
	}
	q.Status = in.Status
	q.UpdatedAt = time.Now().UTC()
	writeJSON(w, http.StatusOK, q)
}

func readFile(r *http.Request) (name, ctype string, data []byte, err error) {
	if err = r.ParseMultipartForm(32 << 20); err != nil {
		return
	}
	f, h, err := r.FormFile("file")
	if err != nil {
		return
	}
	defer f.Close()
	data, err = io.ReadAll(f)
	return h.Filename, h.Header.Get("Content-Type"), data, err
}

func (s *Server) uploadDocument(w http.ResponseWriter, r *http.Request, u backend.User) {
	name, _, _, err := readFile(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	docType := r.FormValue("type")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUploads {
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	q := s.lookup(w, r, u)
	if q == nil {
		return
	}
	s.nextID++
	doc := backend.Document{
		ID:         fmt.Sprintf("d%d", s.nextID),
		Type:       docType,
		Name:       name,
		URL:        s.URL + "/files/" + fmt.Sprintf("d%d", s.nextID),
		Status:     "valid",
		UploadedAt: time.Now().UTC(),
	}
	q.Documents = append(q.Documents, doc)
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request, u backend.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.lookup(w, r, u)
	if q == nil {
		return
	}
	id := r.PathValue("doc")
	kept := q.Documents[:0]
	found := false
	for _, d := range q.Documents {
		if d.ID == id {
			found = true
			continue
		}
		kept = append(kept, d)
	}
	q.Documents = kept
	if !found {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) flagDocument(w http.ResponseWriter, r *http.Request, u backend.User) {
	var in backend.DocumentFlag
	_ = json.NewDecoder(r.Body).Decode(&in)
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.lookup(w, r, u)
	if q == nil {
		return
	}
	for i := range q.Documents {
		if q.Documents[i].ID == r.PathValue("doc") {
			q.Documents[i].Status = in.Status
			q.Documents[i].Comment = in.Comment
			writeJSON(w, http.StatusOK, q.Documents[i])
			return
		}
	}
	writeError(w, http.StatusNotFound, "document not found")
}

func (s *Server) uploadContract(w http.ResponseWriter, r *http.Request, u backend.User) {
	name, _, _, err := readFile(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.lookup(w, r, u)
	if q == nil {
		return
	}
	now := time.Now().UTC()
	q.Contract = &backend.Contract{ID: "c-" + q.ID, Name: name, URL: s.URL + "/contracts/" + q.ID, SignedAt: &now}
	writeJSON(w, http.StatusCreated, q.Contract)
}

func (s *Server) downloadContract(w http.ResponseWriter, r *http.Request, u backend.User) {
	s.mu.Lock()
	q := s.lookup(w, r, u)
	s.mu.Unlock()
	if q == nil {
		return
	}
	if q.Contract == nil {
		writeError(w, http.StatusNotFound, "no contract")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+q.Contract.Name+`"`)
	_, _ = w.Write([]byte("%PDF-1.4 contract " + q.ID))
}

func (s *Server) clients(w http.ResponseWriter, r *http.Request, u backend.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []backend.Party{}
	for _, a := range s.accounts {
		if a.Role == "client" {
			out = append(out, backend.Party{ID: a.ID, UserID: a.ID, Name: a.Name, Email: a.Email})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/diewo77/ejaar/httpx"
	"github.com/diewo77/ejaar/internal/lifecycle"
	"github.com/diewo77/ejaar/internal/services"
)

// multipartOverhead is the room left for form fields around the file.
const multipartOverhead = 1 << 20

// QuotationHandler serves quotations, their checklist and their contract.
type QuotationHandler struct {
	svc       *services.QuotationService
	maxUpload int64
}

func NewQuotationHandler(svc *services.QuotationService, maxUpload int64) *QuotationHandler {
	return &QuotationHandler{svc: svc, maxUpload: maxUpload}
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// List handles GET /quotations?status=&q=&page=&limit=.
func (h *QuotationHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.svc.List(r.Context(), services.ListQuery{
		Status: q.Get("status"),
		Query:  strings.TrimSpace(q.Get("q")),
		Page:   queryInt(r, "page"),
		Limit:  min(queryInt(r, "limit"), 100),
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *QuotationHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *QuotationHandler) decodeDraft(w http.ResponseWriter, r *http.Request) (services.DraftInput, bool) {
	var in services.DraftInput
	if err := httpx.DecodeJSON(w, r, maxJSONBody, &in); err != nil {
		if errors.Is(err, httpx.ErrBodyTooLarge) {
			WriteError(w, r, err)
		} else {
			writeCode(w, r, http.StatusBadRequest, "invalid_json", nil)
		}
		return in, false
	}
	return in, true
}

// Create handles POST /quotations.
func (h *QuotationHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeDraft(w, r)
	if !ok {
		return
	}
	v, err := h.svc.Create(r.Context(), in)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	w.Header().Set("Location", "/quotations/"+v.Quotation.ID)
	httpx.JSON(w, http.StatusCreated, v)
}

// Update handles PUT /quotations/{id}.
func (h *QuotationHandler) Update(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeDraft(w, r)
	if !ok {
		return
	}
	v, err := h.svc.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

type transitionRequest struct {
	Action  string `json:"action"`
	Comment string `json:"comment"`
}

// Transition handles POST /quotations/{id}/transitions.
func (h *QuotationHandler) Transition(w http.ResponseWriter, r *http.Request) {
	var in transitionRequest
	if err := httpx.DecodeJSON(w, r, maxJSONBody, &in); err != nil {
		writeCode(w, r, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	action, err := lifecycle.ParseAction(in.Action)
	if err != nil {
		writeCode(w, r, http.StatusUnprocessableEntity, "validation_failed", map[string]string{"action": "invalid"})
		return
	}
	v, err := h.svc.Transition(r.Context(), r.PathValue("id"), action, strings.TrimSpace(in.Comment))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

// readFile extracts the "file" part of a multipart request. The caller
// closes the returned file.
func (h *QuotationHandler) readFile(w http.ResponseWriter, r *http.Request) (services.FileUpload, io.Closer, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return services.FileUpload{}, nil, httpx.ErrBodyTooLarge
		}
		return services.FileUpload{}, nil, err
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		return services.FileUpload{}, nil, err
	}
	ctype := hdr.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(ctype); err == nil {
		ctype = mt
	}
	if ctype == "" || ctype == "application/octet-stream" {
		head := make([]byte, 512)
		n, _ := io.ReadFull(f, head)
		ctype, _, _ = mime.ParseMediaType(http.DetectContentType(head[:n]))
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return services.FileUpload{}, nil, err
		}
	}
	return services.FileUpload{Name: hdr.Filename, ContentType: ctype, Size: hdr.Size, Content: f}, f, nil
}

func (h *QuotationHandler) badUpload(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, httpx.ErrBodyTooLarge) {
		writeCode(w, r, http.StatusRequestEntityTooLarge, "upload_rejected", nil)
		return
	}
	writeCode(w, r, http.StatusBadRequest, "bad_request", map[string]string{"file": "required"})
}

// Validate handles POST /quotations/{id}/validate, a multipart form with the
// signed contract in "file" and an optional "comment".
func (h *QuotationHandler) Validate(w http.ResponseWriter, r *http.Request) {
	file, closer, err := h.readFile(w, r)
	if err != nil && !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart) {
		h.badUpload(w, r, err)
		return
	}
	if closer != nil {
		defer closer.Close()
	}
	v, err := h.svc.Validate(r.Context(), r.PathValue("id"), file, strings.TrimSpace(r.FormValue("comment")))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

// History handles GET /quotations/{id}/history.
func (h *QuotationHandler) History(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.History(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": rows})
}

// Checklist handles GET /quotations/{id}/checklist.
func (h *QuotationHandler) Checklist(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Checklist(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

// UploadDocument handles POST /quotations/{id}/documents/{type}.
func (h *QuotationHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	file, closer, err := h.readFile(w, r)
	if err != nil {
		h.badUpload(w, r, err)
		return
	}
	defer closer.Close()
	v, err := h.svc.UploadDocument(r.Context(), r.PathValue("id"), r.PathValue("type"), file)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

// RemoveDocument handles DELETE /quotations/{id}/documents/{type}.
func (h *QuotationHandler) RemoveDocument(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.RemoveDocument(r.Context(), r.PathValue("id"), r.PathValue("type"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

type rectificationRequest struct {
	Comment string `json:"comment"`
}

// RequestRectification handles POST /quotations/{id}/documents/{type}/rectification.
func (h *QuotationHandler) RequestRectification(w http.ResponseWriter, r *http.Request) {
	var in rectificationRequest
	if err := httpx.DecodeJSON(w, r, maxJSONBody, &in); err != nil {
		writeCode(w, r, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	v, err := h.svc.RequestRectification(r.Context(), r.PathValue("id"), r.PathValue("type"), in.Comment)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

// Contract handles GET /quotations/{id}/contract by streaming the signed
// contract from the backend.
func (h *QuotationHandler) Contract(w http.ResponseWriter, r *http.Request) {
	dl, err := h.svc.Contract(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	defer dl.Body.Close()
	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": dl.Name}))
	if dl.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(dl.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, dl.Body)
}

// Clients handles GET /clients?q=.
func (h *QuotationHandler) Clients(w http.ResponseWriter, r *http.Request) {
	parties, err := h.svc.Clients(r.Context(), strings.TrimSpace(r.URL.Query().Get("q")))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": parties})
}

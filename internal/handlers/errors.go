package handlers

import (
	"errors"
	"net/http"

	"github.com/diewo77/ejaar/gate"
	"github.com/diewo77/ejaar/httpx"
	"github.com/diewo77/ejaar/i18n"
	"github.com/diewo77/ejaar/internal/backend"
	"github.com/diewo77/ejaar/internal/checklist"
	"github.com/diewo77/ejaar/internal/lifecycle"
	"github.com/diewo77/ejaar/internal/logging"
	"github.com/diewo77/ejaar/internal/policy"
	"github.com/diewo77/ejaar/internal/services"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

// errorMapping maps an error to its status and code. The first match wins,
// so specific errors come before the generic ones they may wrap.
var errorMapping = []struct {
	target error
	status int
	code   string
}{
	{gate.ErrUnauthenticated, http.StatusUnauthorized, "unauthorized"},
	{backend.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{services.ErrContractRequired, http.StatusUnprocessableEntity, "contract_required"},
	{lifecycle.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{lifecycle.ErrActionForbidden, http.StatusForbidden, "forbidden"},
	{policy.ErrNotEditable, http.StatusConflict, "not_editable"},
	{policy.ErrUploadClosed, http.StatusConflict, "upload_closed"},
	{policy.ErrNoContract, http.StatusNotFound, "not_found"},
	{checklist.ErrUnknownDocumentType, http.StatusNotFound, "unknown_document"},
	{checklist.ErrUploadInProgress, http.StatusConflict, "upload_in_progress"},
	{checklist.ErrFileTooLarge, http.StatusUnprocessableEntity, "upload_rejected"},
	{checklist.ErrEmptyFile, http.StatusUnprocessableEntity, "upload_rejected"},
	{checklist.ErrUnsupportedType, http.StatusUnprocessableEntity, "upload_rejected"},
	{checklist.ErrMissingFileName, http.StatusUnprocessableEntity, "upload_rejected"},
	{checklist.ErrRectificationNote, http.StatusUnprocessableEntity, "validation_failed"},
	{checklist.ErrNothingToRectify, http.StatusConflict, "invalid_transition"},
	{checklist.ErrConcurrentUpdate, http.StatusConflict, "conflict"},
	{lifecycle.ErrGuardFailed, http.StatusConflict, "invalid_transition"},
	{gate.ErrDenied, http.StatusForbidden, "forbidden"},
	{backend.ErrForbidden, http.StatusForbidden, "forbidden"},
	{backend.ErrNotFound, http.StatusNotFound, "not_found"},
	{backend.ErrConflict, http.StatusConflict, "conflict"},
	{backend.ErrValidation, http.StatusUnprocessableEntity, "validation_failed"},
	{backend.ErrUnavailable, http.StatusServiceUnavailable, "backend_unavailable"},
	{httpx.ErrBodyTooLarge, http.StatusRequestEntityTooLarge, "bad_request"},
}

// WriteError answers with the JSON error envelope matching err, with a
// message in the request language.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	lang := i18n.LangFromContext(r.Context())

	var verr *services.ValidationError
	if errors.As(err, &verr) {
		httpx.JSONErrorMessage(w, http.StatusUnprocessableEntity, "validation_failed", i18n.T(lang, "validation_failed"),
			verr.Violations.Translate(func(code string) string { return i18n.T(lang, code) }))
		return
	}
	var incomplete *checklist.IncompleteError
	if errors.As(err, &incomplete) {
		httpx.JSONErrorMessage(w, http.StatusConflict, "checklist_incomplete", i18n.T(lang, "checklist_incomplete"), map[string]any{
			"missing":  orEmpty(incomplete.Missing),
			"blocking": orEmpty(incomplete.Blocking),
		})
		return
	}
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && len(apiErr.Fields) > 0 && errors.Is(err, backend.ErrValidation) {
		httpx.JSONErrorMessage(w, http.StatusUnprocessableEntity, "validation_failed", i18n.T(lang, "validation_failed"), apiErr.Fields)
		return
	}
	for _, m := range errorMapping {
		if errors.Is(err, m.target) {
			if m.status >= 500 {
				logging.FromContext(r.Context()).WithError(err).Warn("request failed")
			}
			httpx.JSONErrorMessage(w, m.status, m.code, i18n.T(lang, m.code), nil)
			return
		}
	}
	logging.FromContext(r.Context()).WithError(err).Error("unhandled error")
	httpx.JSONErrorMessage(w, http.StatusInternalServerError, "internal_error", i18n.T(lang, "internal_error"), nil)
}

// writeCode answers with a bare error code.
func writeCode(w http.ResponseWriter, r *http.Request, status int, code string, details any) {
	httpx.JSONErrorMessage(w, status, code, i18n.T(i18n.LangFromContext(r.Context()), code), details)
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

package i18n

import (
	"context"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Default is the language used when nothing better matches.
const Default = "fr"

var supported = []language.Tag{language.French, language.English}

var matcher = language.NewMatcher(supported)

// DetectLanguage picks a supported language from an Accept-Language header.
func DetectLanguage(acceptLanguage string) string {
	if strings.TrimSpace(acceptLanguage) == "" {
		return Default
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return Default
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return Default
	}
	base, _ := supported[idx].Base()
	return base.String()
}

// Normalize returns lang when supported, Default otherwise.
func Normalize(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if _, ok := messages[lang]; ok {
		return lang
	}
	return Default
}

// T translates code. Unknown languages fall back to French and unknown
// codes are returned as is.
func T(lang, code string) string {
	if m, ok := messages[lang]; ok {
		if s, ok := m[code]; ok {
			return s
		}
	}
	if s, ok := messages[Default][code]; ok {
		return s
	}
	return code
}

// FormatAmount renders an amount in dirhams with the language's grouping.
func FormatAmount(lang string, amount float64) string {
	tag := language.French
	if Normalize(lang) == "en" {
		tag = language.English
	}
	return message.NewPrinter(tag).Sprintf("%.2f MAD", amount)
}

type ctxKey struct{}

// WithLang stores the negotiated language in ctx.
func WithLang(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, ctxKey{}, lang)
}

// LangFromContext returns the negotiated language or Default.
func LangFromContext(ctx context.Context) string {
	if l, ok := ctx.Value(ctxKey{}).(string); ok && l != "" {
		return l
	}
	return Default
}

var messages = map[string]map[string]string{
	"fr": {
		"required":         "Requis",
		"must_be_positive": "Doit être positif",
		"out_of_range":     "Hors limites",
		"too_long":         "Trop long",
		"min_items":        "Au moins un élément requis",
		"invalid":          "Invalide",

		"unauthorized":         "Authentification requise",
		"forbidden":            "Action non autorisée",
		"not_found":            "Introuvable",
		"bad_request":          "Requête invalide",
		"invalid_json":         "JSON invalide",
		"validation_failed":    "Données invalides",
		"invalid_credentials":  "Identifiants invalides",
		"too_many_requests":    "Trop de tentatives, réessayez plus tard",
		"invalid_transition":   "Transition impossible depuis ce statut",
		"checklist_incomplete": "Le dossier documentaire est incomplet",
		"contract_required":    "Le contrat signé est requis",
		"not_editable":         "Le devis n'est plus modifiable",
		"upload_in_progress":   "Un envoi est déjà en cours pour ce document",
		"upload_rejected":      "Fichier refusé",
		"upload_closed":        "Les envois sont fermés pour ce document",
		"unknown_document":     "Type de document inconnu",
		"conflict":             "Conflit de mise à jour, réessayez",
		"backend_unavailable":  "Service indisponible",
		"internal_error":       "Erreur interne",

		"status.generated":        "Généré",
		"status.client_validated": "Validé client",
		"status.verification":     "En cours de vérification",
		"status.sent_to_bank":     "Envoyé à la banque",
		"status.validated":        "Validé",

		"action.submit":   "Valider mon dossier",
		"action.review":   "Prendre en vérification",
		"action.forward":  "Envoyer à la banque",
		"action.validate": "Valider et joindre le contrat",

		"form.quotation-draft":           "Devis",
		"form.documents-upload":          "Pièces justificatives",
		"form.client-validation-summary": "Récapitulatif de la validation client",
		"form.verification-review":       "Vérification du dossier",
		"form.documents-rectification":   "Documents à rectifier",
		"form.bank-review":               "Étude bancaire",
		"form.contract-download":         "Contrat",
		"form.read-only":                 "Consultation",

		"slot.empty":         "À fournir",
		"slot.uploading":     "Envoi en cours",
		"slot.success":       "Reçu",
		"slot.error":         "Échec de l'envoi",
		"slot.rectification": "À rectifier",
	},
	"en": {
		"required":         "Required",
		"must_be_positive": "Must be positive",
		"out_of_range":     "Out of range",
		"too_long":         "Too long",
		"min_items":        "At least one item is required",
		"invalid":          "Invalid",

		"unauthorized":         "Authentication required",
		"forbidden":            "Action not allowed",
		"not_found":            "Not found",
		"bad_request":          "Bad request",
		"invalid_json":         "Invalid JSON",
		"validation_failed":    "Invalid data",
		"invalid_credentials":  "Invalid credentials",
		"too_many_requests":    "Too many attempts, try again later",
		"invalid_transition":   "Transition not possible from this status",
		"checklist_incomplete": "The document checklist is incomplete",
		"contract_required":    "The signed contract is required",
		"not_editable":         "The quotation can no longer be edited",
		"upload_in_progress":   "An upload is already in progress for this document",
		"upload_rejected":      "File rejected",
		"upload_closed":        "Uploads are closed for this document",
		"unknown_document":     "Unknown document type",
		"conflict":             "Update conflict, please retry",
		"backend_unavailable":  "Service unavailable",
		"internal_error":       "Internal error",

		"status.generated":        "Generated",
		"status.client_validated": "Client validated",
		"status.verification":     "Under verification",
		"status.sent_to_bank":     "Sent to bank",
		"status.validated":        "Validated",

		"action.submit":   "Submit my folder",
		"action.review":   "Start verification",
		"action.forward":  "Send to bank",
		"action.validate": "Validate and attach contract",

		"form.quotation-draft":           "Quotation",
		"form.documents-upload":          "Supporting documents",
		"form.client-validation-summary": "Client validation summary",
		"form.verification-review":       "Folder verification",
		"form.documents-rectification":   "Documents to rectify",
		"form.bank-review":               "Bank review",
		"form.contract-download":         "Contract",
		"form.read-only":                 "Details",

		"slot.empty":         "To provide",
		"slot.uploading":     "Uploading",
		"slot.success":       "Received",
		"slot.error":         "Upload failed",
		"slot.rectification": "To rectify",
	},
}

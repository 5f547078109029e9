package validation

import (
	"strings"
	"unicode/utf8"
)

type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Basic validators
func Required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v[field] = "required"
	}
}

func PositiveFloat(field string, val float64, v Violations) {
	if val <= 0 {
		v[field] = "must_be_positive"
	}
}

func RangeFloat(field string, val, minVal, maxVal float64, v Violations) {
	if val < minVal || val > maxVal {
		v[field] = "out_of_range"
	}
}

func RangeInt(field string, val, minVal, maxVal int, v Violations) {
	if val < minVal || val > maxVal {
		v[field] = "out_of_range"
	}
}

func MaxLen(field, value string, maxLen int, v Violations) {
	if utf8.RuneCountInString(value) > maxLen {
		v[field] = "too_long"
	}
}

func MinItems(field string, n, minItems int, v Violations) {
	if n < minItems {
		v[field] = "min_items"
	}
}

// Translate maps every violation code through tr, usually i18n.T bound
// to the request language.
func (v Violations) Translate(tr func(code string) string) map[string]string {
	out := make(map[string]string, len(v))
	for field, code := range v {
		out[field] = tr(code)
	}
	return out
}

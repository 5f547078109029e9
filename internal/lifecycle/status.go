package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the lifecycle state of a quotation. The value is the wire
// label exchanged with the backend.
type Status string

const (
	StatusGenerated       Status = "Généré"
	StatusClientValidated Status = "Validé client"
	StatusVerification    Status = "En cours de vérification"
	StatusSentToBank      Status = "Envoyé à la banque"
	StatusValidated       Status = "Validé"
)

// ErrUnknownStatus is returned when a label or slug matches no status.
var ErrUnknownStatus = errors.New("unknown quotation status")

var ordered = []Status{
	StatusGenerated,
	StatusClientValidated,
	StatusVerification,
	StatusSentToBank,
	StatusValidated,
}

var slugs = map[Status]string{
	StatusGenerated:       "generated",
	StatusClientValidated: "client_validated",
	StatusVerification:    "verification",
	StatusSentToBank:      "sent_to_bank",
	StatusValidated:       "validated",
}

// Statuses returns every status in lifecycle order.
func Statuses() []Status {
	out := make([]Status, len(ordered))
	copy(out, ordered)
	return out
}

// ParseStatus accepts either the wire label or the slug.
func ParseStatus(s string) (Status, error) {
	s = strings.TrimSpace(s)
	for _, st := range ordered {
		if s == string(st) || strings.EqualFold(s, string(st)) || s == slugs[st] {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// Slug is the ASCII identifier used in URLs, metrics and translation keys.
func (s Status) Slug() string { return slugs[s] }

func (s Status) Valid() bool {
	_, ok := slugs[s]
	return ok
}

// Rank is the 1-based position in the lifecycle, 0 for an unknown status.
func (s Status) Rank() int {
	for i, st := range ordered {
		if st == s {
			return i + 1
		}
	}
	return 0
}

// Next returns the status that directly follows s.
func (s Status) Next() (Status, bool) {
	r := s.Rank()
	if r == 0 || r == len(ordered) {
		return "", false
	}
	return ordered[r], true
}

func (s Status) IsTerminal() bool { return s == StatusValidated }

// Before reports whether s comes strictly earlier than o.
func (s Status) Before(o Status) bool { return s.Valid() && o.Valid() && s.Rank() < o.Rank() }

// After reports whether s comes strictly later than o.
func (s Status) After(o Status) bool { return s.Valid() && o.Valid() && s.Rank() > o.Rank() }

// AtLeast reports whether s is o or any later status.
func (s Status) AtLeast(o Status) bool { return s.Valid() && o.Valid() && s.Rank() >= o.Rank() }

// UnmarshalText rejects labels outside the lifecycle so a malformed
// backend payload fails at decode time.
func (s *Status) UnmarshalText(b []byte) error {
	st, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

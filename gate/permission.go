package gate

import "strings"

// Permission is a "resource:action" pair, e.g. "quotation:submit".
// Either side may be the wildcard "*".
type Permission string

const (
	Wildcard = "*"
	// PermissionAll grants everything.
	PermissionAll Permission = "*:*"
)

func NewPermission(resourceType string, action Action) Permission {
	return Permission(resourceType + ":" + string(action))
}

// Parse splits the permission. Malformed permissions return empty parts.
func (p Permission) Parse() (resourceType string, action Action) {
	res, act, ok := strings.Cut(string(p), ":")
	if !ok || res == "" || act == "" {
		return "", ""
	}
	return res, Action(act)
}

// Valid reports whether the permission has both parts.
func (p Permission) Valid() bool {
	res, _ := p.Parse()
	return res != ""
}

// Matches reports whether p grants requested. "quotation:*" grants every
// quotation action and "*:view" grants view on every resource.
func (p Permission) Matches(requested Permission) bool {
	if p == PermissionAll || p == requested {
		return true
	}
	res, act := p.Parse()
	reqRes, reqAct := requested.Parse()
	if res == "" || reqRes == "" {
		return false
	}
	return (res == Wildcard || res == reqRes) && (string(act) == Wildcard || act == reqAct)
}

package lifecycle

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrInvalidTransition is returned when the action does not exist at
	// the current status.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrActionForbidden is returned when the action exists but the role
	// may not perform it.
	ErrActionForbidden = errors.New("action not allowed for role")
	// ErrGuardFailed wraps the error returned by a failing guard.
	ErrGuardFailed = errors.New("transition guard failed")
)

// Transition is one edge of the lifecycle graph.
type Transition struct {
	From   Status
	Action Action
	To     Status
	Roles  []Role
}

func (t Transition) allows(r Role) bool { return slices.Contains(t.Roles, r) }

// Guard is a precondition evaluated before a transition is applied.
type Guard func() error

// DefaultTransitions is the quotation lifecycle.
var DefaultTransitions = []Transition{
	{From: StatusGenerated, Action: ActionSubmit, To: StatusClientValidated, Roles: []Role{RoleClient, RoleAdmin}},
	{From: StatusClientValidated, Action: ActionReview, To: StatusVerification, Roles: []Role{RoleAdmin}},
	{From: StatusVerification, Action: ActionForward, To: StatusSentToBank, Roles: []Role{RoleAdmin}},
	{From: StatusSentToBank, Action: ActionValidate, To: StatusValidated, Roles: []Role{RoleBank}},
}

// Machine holds the allowed transitions indexed by origin status.
type Machine struct {
	edges map[Status]map[Action]Transition
}

// NewMachine builds a machine and rejects any edge that is not a single
// forward step.
func NewMachine(ts ...Transition) (*Machine, error) {
	m := &Machine{edges: make(map[Status]map[Action]Transition)}
	for _, t := range ts {
		next, ok := t.From.Next()
		if !ok || next != t.To {
			return nil, fmt.Errorf("lifecycle: %s -> %s is not a single forward step", t.From.Slug(), t.To.Slug())
		}
		if len(t.Roles) == 0 {
			return nil, fmt.Errorf("lifecycle: %s has no roles", t.Action)
		}
		if m.edges[t.From] == nil {
			m.edges[t.From] = make(map[Action]Transition)
		}
		m.edges[t.From][t.Action] = t
	}
	return m, nil
}

var defaultMachine = func() *Machine {
	m, err := NewMachine(DefaultTransitions...)
	if err != nil {
		panic(err)
	}
	return m
}()

// Default returns the machine for DefaultTransitions.
func Default() *Machine { return defaultMachine }

// Transition looks up the edge leaving from for the action.
func (m *Machine) Transition(from Status, a Action) (Transition, bool) {
	t, ok := m.edges[from][a]
	return t, ok
}

// Can reports whether role may trigger a at status, ignoring guards.
func (m *Machine) Can(role Role, a Action, status Status) bool {
	t, ok := m.Transition(status, a)
	return ok && t.allows(role)
}

// Allowed returns the actions a role may trigger at status, in lifecycle order.
func (m *Machine) Allowed(role Role, status Status) []Action {
	var out []Action
	for _, a := range Actions() {
		if m.Can(role, a, status) {
			out = append(out, a)
		}
	}
	return out
}

// Apply checks the edge, the role and the guards, then returns the
// destination status.
func (m *Machine) Apply(role Role, a Action, from Status, guards ...Guard) (Status, error) {
	t, ok := m.Transition(from, a)
	if !ok {
		return "", fmt.Errorf("%w: %s from %s", ErrInvalidTransition, a, from.Slug())
	}
	if !t.allows(role) {
		return "", fmt.Errorf("%w: %s cannot %s", ErrActionForbidden, role, a)
	}
	for _, g := range guards {
		if g == nil {
			continue
		}
		if err := g(); err != nil {
			return "", fmt.Errorf("%w: %w", ErrGuardFailed, err)
		}
	}
	return t.To, nil
}

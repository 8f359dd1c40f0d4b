package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tontiflex/internal/core/domain"
)

// State is a workflow state code.
type State string

// Action is a transition action name.
type Action string

// Instance carries the state metadata the engine owns. The concrete request
// record (membership, loan, withdrawal) stays with its service; the engine
// never touches entity data.
type Instance struct {
	ID            string
	State         State
	UpdatedAt     time.Time
	EffectPending bool
}

// AuditEntry is an immutable record of an applied transition.
type AuditEntry struct {
	Action    Action      `json:"action"`
	Role      domain.Role `json:"actor_role"`
	FromState State       `json:"from_state"`
	ToState   State       `json:"to_state"`
	At        time.Time   `json:"at"`
}

// Guard validates a transition before any mutation. A failing guard returns
// a *domain.Rejection (or plain error for service-level failures) and leaves
// the instance untouched.
type Guard func(ctx context.Context, inst *Instance, payload interface{}) error

// Effect is a transition side effect. A required effect is a precondition:
// it runs before the state commit and a failure aborts the transition. A
// non-required effect runs after the commit; a failure flags the instance
// as EffectPending instead of reverting.
type Effect func(ctx context.Context, inst *Instance, payload interface{}) error

// Transition describes one entry of the transition table.
type Transition struct {
	Roles          []domain.Role
	Guard          Guard
	Next           State
	Effect         Effect
	EffectRequired bool
}

type key struct {
	from   State
	action Action
}

// Definition is a finite set of states with a guarded transition table.
type Definition struct {
	Name        string
	Initial     State
	terminals   map[State]bool
	transitions map[key]Transition

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a workflow definition.
func New(name string, initial State, terminals ...State) *Definition {
	d := &Definition{
		Name:        name,
		Initial:     initial,
		terminals:   make(map[State]bool, len(terminals)),
		transitions: make(map[key]Transition),
		locks:       make(map[string]*sync.Mutex),
	}
	for _, s := range terminals {
		d.terminals[s] = true
	}
	return d
}

// Allow registers a transition for (from, action). Registering the same pair
// twice panics: the table is declared once at startup.
func (d *Definition) Allow(from State, action Action, t Transition) *Definition {
	k := key{from: from, action: action}
	if _, exists := d.transitions[k]; exists {
		panic(fmt.Sprintf("workflow %s: duplicate transition (%s, %s)", d.Name, from, action))
	}
	if d.terminals[from] {
		panic(fmt.Sprintf("workflow %s: transition out of terminal state %s", d.Name, from))
	}
	d.transitions[k] = t
	return d
}

// IsTerminal reports whether the state is terminal.
func (d *Definition) IsTerminal(s State) bool {
	return d.terminals[s]
}

func (d *Definition) instanceLock(id string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.locks[id]
	if !ok {
		l = &sync.Mutex{}
		d.locks[id] = l
	}
	return l
}

// Apply executes a transition on the instance. In-process, transitions on
// the same instance are serialized through a keyed mutex. The instance is a
// snapshot of a stored row, so the mutex alone cannot order callers that
// rehydrated the same stale state: the owning service completes the unit by
// committing the row conditionally on the from-state (UpdateFrom) inside
// the transaction that ran the guards, and treats zero affected rows as
// INVALID_TRANSITION.
//
// Order of checks matches the table contract: unknown (state, action) pairs
// fail with INVALID_TRANSITION, then role authorization, then the guard.
// Only after all three pass is the state mutated and an audit entry emitted.
func (d *Definition) Apply(ctx context.Context, inst *Instance, action Action, role domain.Role, payload interface{}) (*AuditEntry, error) {
	lock := d.instanceLock(inst.ID)
	lock.Lock()
	defer lock.Unlock()

	t, ok := d.transitions[key{from: inst.State, action: action}]
	if !ok {
		return nil, domain.Reject(domain.CodeInvalidTransition,
			fmt.Sprintf("action %s is not allowed from state %s", action, inst.State))
	}

	if !roleAllowed(t.Roles, role) {
		return nil, domain.Reject(domain.CodeUnauthorized,
			fmt.Sprintf("role %s may not perform %s", role, action))
	}

	if t.Guard != nil {
		if err := t.Guard(ctx, inst, payload); err != nil {
			return nil, err
		}
	}

	if t.Effect != nil && t.EffectRequired {
		if err := t.Effect(ctx, inst, payload); err != nil {
			if _, ok := domain.AsRejection(err); ok {
				return nil, err
			}
			return nil, domain.Reject(domain.CodeExternalDependency, err.Error())
		}
	}

	from := inst.State
	now := time.Now()
	inst.State = t.Next
	inst.UpdatedAt = now

	if t.Effect != nil && !t.EffectRequired {
		if err := t.Effect(ctx, inst, payload); err != nil {
			inst.EffectPending = true
		}
	}

	return &AuditEntry{
		Action:    action,
		Role:      role,
		FromState: from,
		ToState:   t.Next,
		At:        now,
	}, nil
}

// Replay folds an audit trail from the initial state and returns the final
// state. Replaying a trail recorded by Apply is deterministic; a trail that
// does not match the table fails.
func (d *Definition) Replay(entries []AuditEntry) (State, error) {
	state := d.Initial
	for i, e := range entries {
		// Creation entries record the birth of the instance in its
		// initial state and are not part of the transition table.
		if i == 0 && e.FromState == "" && e.ToState == d.Initial {
			continue
		}
		if e.FromState != state {
			return state, fmt.Errorf("workflow %s: entry %d replays from %s but state is %s",
				d.Name, i, e.FromState, state)
		}
		t, ok := d.transitions[key{from: state, action: e.Action}]
		if !ok {
			return state, fmt.Errorf("workflow %s: entry %d action %s not in table for state %s",
				d.Name, i, e.Action, state)
		}
		if t.Next != e.ToState {
			return state, fmt.Errorf("workflow %s: entry %d lands on %s, table says %s",
				d.Name, i, e.ToState, t.Next)
		}
		state = t.Next
	}
	return state, nil
}

func roleAllowed(allowed []domain.Role, role domain.Role) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

package permission

import (
	"slices"
	"sync"

	id "opgate/pkg/domain"
)

// set is a set of operations.
type set map[Operation]struct{}

func (s set) sorted() []Operation {
	out := make([]Operation, 0, len(s))
	for op := range s {
		out = append(out, op)
	}
	slices.Sort(out)
	return out
}

// Profile is an authorization principal: a role label, the operator code
// recorded on audit entries, and the operations granted to it globally or
// per unit. Grants are additive; nothing in this package revokes them.
//
// A Profile is safe for concurrent use. Grants and decisions on the same
// profile are mutually exclusive, so a decision never observes a partially
// applied grant.
type Profile struct {
	name         string
	baseRole     string
	operatorCode id.OperatorCode

	mu     sync.RWMutex
	global set
	units  map[id.UnitID]set
}

// NewProfile creates a profile with no grants.
func NewProfile(name, baseRole string, operatorCode id.OperatorCode) *Profile {
	return &Profile{
		name:         name,
		baseRole:     baseRole,
		operatorCode: operatorCode,
		global:       make(set),
		units:        make(map[id.UnitID]set),
	}
}

func (p *Profile) Name() string                  { return p.name }
func (p *Profile) BaseRole() string              { return p.baseRole }
func (p *Profile) OperatorCode() id.OperatorCode { return p.operatorCode }

// GrantGlobal allows op in every unit and for unscoped requests. Idempotent.
func (p *Profile) GrantGlobal(op Operation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.global[op] = struct{}{}
}

// GrantForUnit allows op only for requests scoped to unitID. Idempotent.
// Granting for the nil unit is a no-op: unit grants never apply to unscoped
// requests, so such a grant could never be used.
func (p *Profile) GrantForUnit(unitID id.UnitID, op Operation) {
	if unitID.IsNil() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ops, ok := p.units[unitID]
	if !ok {
		ops = make(set)
		p.units[unitID] = ops
	}
	ops[op] = struct{}{}
}

// Can reports whether the profile may perform op, optionally within unitID.
func (p *Profile) Can(op Operation, unitID id.UnitID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if _, ok := p.global[op]; ok {
		return true
	}
	if unitID.IsNil() {
		return false
	}
	ops, ok := p.units[unitID]
	if !ok {
		return false
	}
	_, ok = ops[op]
	return ok
}

// GlobalPermissions returns the globally granted operations, sorted.
func (p *Profile) GlobalPermissions() []Operation {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.global.sorted()
}

// UnitPermissions returns the operations granted for unitID, sorted.
func (p *Profile) UnitPermissions(unitID id.UnitID) []Operation {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.units[unitID].sorted()
}

// Units returns the units the profile holds any grant in, sorted.
func (p *Profile) Units() []id.UnitID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]id.UnitID, 0, len(p.units))
	for u := range p.units {
		out = append(out, u)
	}
	slices.Sort(out)
	return out
}

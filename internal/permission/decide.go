package permission

import id "opgate/pkg/domain"

// Decide applies the decision rule: op is allowed when it is granted
// globally, or when unitID is set and op is granted for that unit. Global
// grants are checked first and override unit scoping.
//
// This is pure domain logic with no side effects. A nil profile is denied.
func Decide(p *Profile, op Operation, unitID id.UnitID) bool {
	if p == nil {
		return false
	}
	return p.Can(op, unitID)
}

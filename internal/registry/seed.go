package registry

import (
	"encoding/json"
	"fmt"
	"io"

	"opgate/internal/permission"
	id "opgate/pkg/domain"
	dErrors "opgate/pkg/domain-errors"
)

// Policy is the JSON document accepted by Seed.
//
//	{
//	  "units": [{"id": "UNIT1", "name": "Marketing"}],
//	  "profiles": [{
//	    "name": "admin1", "base_role": "administrator", "operator_code": "ADM001",
//	    "global": ["manage_unit"],
//	    "units": {"UNIT1": ["generate_reports", "view_reports"]}
//	  }]
//	}
type Policy struct {
	Units    []Unit          `json:"units"`
	Profiles []ProfilePolicy `json:"profiles"`
}

// ProfilePolicy declares one profile and its grants.
type ProfilePolicy struct {
	Name         string              `json:"name"`
	BaseRole     string              `json:"base_role"`
	OperatorCode string              `json:"operator_code"`
	Global       []string            `json:"global"`
	Units        map[string][]string `json:"units"`
}

// DecodePolicy parses a policy document, rejecting unknown fields.
func DecodePolicy(r io.Reader) (Policy, error) {
	var p Policy
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return Policy{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid policy document")
	}
	return p, nil
}

// Seed decodes a policy document and applies it.
func (r *Registry) Seed(src io.Reader) error {
	p, err := DecodePolicy(src)
	if err != nil {
		return err
	}
	return r.Apply(p)
}

// Apply registers the policy's units, then its profiles and their grants.
// Unit grants must reference a unit declared in the registry. Apply stops at
// the first error; entries applied before it remain.
func (r *Registry) Apply(p Policy) error {
	for _, u := range p.Units {
		if _, err := r.AddUnit(u.ID.String(), u.Name); err != nil {
			return fmt.Errorf("seed unit %q: %w", u.ID, err)
		}
	}

	for _, pp := range p.Profiles {
		if err := r.applyProfile(pp); err != nil {
			return fmt.Errorf("seed profile %q: %w", pp.Name, err)
		}
	}
	return nil
}

func (r *Registry) applyProfile(pp ProfilePolicy) error {
	global, err := parseOperations(pp.Global)
	if err != nil {
		return err
	}
	scoped := make(map[id.UnitID][]permission.Operation, len(pp.Units))
	for unit, names := range pp.Units {
		uid := id.UnitID(unit)
		if _, ok := r.GetUnit(uid); !ok {
			return dErrors.New(dErrors.CodeNotFound, "grant references unknown unit "+unit)
		}
		ops, err := parseOperations(names)
		if err != nil {
			return err
		}
		scoped[uid] = ops
	}

	profile, err := r.CreateProfile(pp.Name, pp.BaseRole, pp.OperatorCode)
	if err != nil {
		return err
	}
	for _, op := range global {
		profile.GrantGlobal(op)
	}
	for uid, ops := range scoped {
		for _, op := range ops {
			profile.GrantForUnit(uid, op)
		}
	}
	return nil
}

func parseOperations(names []string) ([]permission.Operation, error) {
	ops := make([]permission.Operation, 0, len(names))
	for _, n := range names {
		op, err := permission.ParseOperation(n)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

package registry

import (
	"log/slog"
	"slices"
	"strings"
	"sync"

	"opgate/internal/permission"
	id "opgate/pkg/domain"
	dErrors "opgate/pkg/domain-errors"
	"opgate/pkg/platform/sentinel"
)

// Unit is an organizational scope that permissions can be restricted to.
type Unit struct {
	ID   id.UnitID `json:"id"`
	Name string    `json:"name"`
}

// Registry owns the process's profiles (keyed by name) and units (keyed by
// ID). Keys are unique: creating an existing key is rejected rather than
// silently replacing the earlier value.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]*permission.Profile
	units    map[id.UnitID]Unit
	logger   *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// New constructs an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		profiles: make(map[string]*permission.Profile),
		units:    make(map[id.UnitID]Unit),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateProfile registers a profile with no grants.
//
// Errors: CodeInvalidInput for an empty name or role or a malformed operator
// code; CodeConflict when a profile with the same name exists.
func (r *Registry) CreateProfile(name, baseRole, operatorCode string) (*permission.Profile, error) {
	name = strings.TrimSpace(name)
	baseRole = strings.TrimSpace(baseRole)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "profile name cannot be empty")
	}
	if baseRole == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "profile base role cannot be empty")
	}
	code, err := id.ParseOperatorCode(operatorCode)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.profiles[name]; exists {
		return nil, dErrors.Wrap(sentinel.ErrConflict, dErrors.CodeConflict, "profile "+name+" already exists")
	}
	p := permission.NewProfile(name, baseRole, code)
	r.profiles[name] = p
	r.logDebug("profile created", "profile", name, "operator_code", code.String())
	return p, nil
}

// AddUnit registers a unit.
//
// Errors: CodeInvalidInput for a malformed ID or empty name; CodeConflict
// when the ID is taken.
func (r *Registry) AddUnit(unitID, name string) (Unit, error) {
	uid, err := id.ParseUnitID(unitID)
	if err != nil {
		return Unit{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Unit{}, dErrors.New(dErrors.CodeInvalidInput, "unit name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.units[uid]; exists {
		return Unit{}, dErrors.Wrap(sentinel.ErrConflict, dErrors.CodeConflict, "unit "+unitID+" already exists")
	}
	u := Unit{ID: uid, Name: name}
	r.units[uid] = u
	r.logDebug("unit added", "unit_id", unitID, "name", name)
	return u, nil
}

// GetProfile looks up a profile by name. Absence is reported through ok.
func (r *Registry) GetProfile(name string) (*permission.Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[name]
	return p, ok
}

// GetUnit looks up a unit by ID. Absence is reported through ok.
func (r *Registry) GetUnit(unitID id.UnitID) (Unit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.units[unitID]
	return u, ok
}

// Profile is GetProfile for callers that want absence as a CodeNotFound error.
func (r *Registry) Profile(name string) (*permission.Profile, error) {
	p, ok := r.GetProfile(name)
	if !ok {
		return nil, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, "profile "+name+" not found")
	}
	return p, nil
}

// Unit is GetUnit for callers that want absence as a CodeNotFound error.
func (r *Registry) Unit(unitID id.UnitID) (Unit, error) {
	u, ok := r.GetUnit(unitID)
	if !ok {
		return Unit{}, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, "unit "+unitID.String()+" not found")
	}
	return u, nil
}

// Profiles returns every profile ordered by name.
func (r *Registry) Profiles() []*permission.Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*permission.Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *permission.Profile) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return out
}

// Units returns every unit ordered by ID.
func (r *Registry) Units() []Unit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Unit, 0, len(r.units))
	for _, u := range r.units {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b Unit) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return out
}

func (r *Registry) logDebug(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}

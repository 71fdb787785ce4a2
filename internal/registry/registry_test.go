package registry

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"

	"opgate/internal/permission"
	id "opgate/pkg/domain"
	dErrors "opgate/pkg/domain-errors"
	"opgate/pkg/platform/sentinel"
)

type RegistrySuite struct {
	suite.Suite
	registry *Registry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.registry = New()
}

func (s *RegistrySuite) TestProfiles() {
	s.Run("creates and finds profile by name", func() {
		p, err := s.registry.CreateProfile("admin1", "administrator", "ADM001")
		s.Require().NoError(err)

		found, ok := s.registry.GetProfile("admin1")
		s.Require().True(ok)
		s.Same(p, found)
		s.Equal(id.OperatorCode("ADM001"), found.OperatorCode())
	})

	s.Run("absent profile is not an error", func() {
		found, ok := s.registry.GetProfile("ghost")
		s.False(ok)
		s.Nil(found)
	})

	s.Run("Profile reports absence as not found", func() {
		_, err := s.registry.Profile("ghost")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("rejects duplicate name and keeps the original", func() {
		original, _ := s.registry.GetProfile("admin1")
		original.GrantGlobal(permission.OperationManageUnit)

		_, err := s.registry.CreateProfile("admin1", "auditor", "AUD001")
		s.Require().ErrorIs(err, sentinel.ErrConflict)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		kept, _ := s.registry.GetProfile("admin1")
		s.Equal("administrator", kept.BaseRole())
		s.True(permission.Decide(kept, permission.OperationManageUnit, ""))
	})

	s.Run("validates input", func() {
		cases := []struct{ name, role, code string }{
			{"", "administrator", "ADM010"},
			{"admin10", " ", "ADM010"},
			{"admin10", "administrator", "bad code"},
		}
		for _, c := range cases {
			_, err := s.registry.CreateProfile(c.name, c.role, c.code)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput), "%+v", c)
		}
	})
}

func (s *RegistrySuite) TestUnits() {
	s.Run("adds and finds unit", func() {
		u, err := s.registry.AddUnit("UNIT1", "Marketing")
		s.Require().NoError(err)
		s.Equal(Unit{ID: "UNIT1", Name: "Marketing"}, u)

		found, ok := s.registry.GetUnit("UNIT1")
		s.True(ok)
		s.Equal(u, found)
	})

	s.Run("rejects duplicate ID", func() {
		_, err := s.registry.AddUnit("UNIT1", "Sales")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		found, _ := s.registry.GetUnit("UNIT1")
		s.Equal("Marketing", found.Name)
	})

	s.Run("absent unit", func() {
		_, ok := s.registry.GetUnit("UNIT404")
		s.False(ok)
		_, err := s.registry.Unit("UNIT404")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("validates input", func() {
		_, err := s.registry.AddUnit("", "Empty")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		_, err = s.registry.AddUnit("UNIT9", "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *RegistrySuite) TestListings() {
	for _, u := range []string{"UNIT2", "UNIT1"} {
		_, err := s.registry.AddUnit(u, "Unit "+u)
		s.Require().NoError(err)
	}
	for _, n := range []string{"zed", "amy"} {
		_, err := s.registry.CreateProfile(n, "operator", strings.ToUpper(n))
		s.Require().NoError(err)
	}

	units := s.registry.Units()
	s.Require().Len(units, 2)
	s.Equal(id.UnitID("UNIT1"), units[0].ID)

	profiles := s.registry.Profiles()
	s.Require().Len(profiles, 2)
	s.Equal("amy", profiles[0].Name())
}

// TestConcurrentCreate verifies exactly one of many racing creates wins.
func (s *RegistrySuite) TestConcurrentCreate() {
	const goroutines = 40
	var wg sync.WaitGroup
	var wins, conflicts atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.registry.CreateProfile("racer", "operator", "RCR001")
			switch {
			case err == nil:
				wins.Add(1)
			case dErrors.HasCode(err, dErrors.CodeConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
}

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "opgate/pkg/domain"
	audit "opgate/pkg/platform/audit"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) newEntry(code string) audit.Entry {
	return audit.Entry{
		ID:           id.NewEntryID(),
		OperatorCode: id.OperatorCode(code),
		OperatorRole: "administrator",
		Operation:    "view_reports",
		Timestamp:    time.Now().UTC(),
		Status:       audit.StatusSuccess,
	}
}

func (s *InMemoryStoreSuite) TestLoad() {
	s.Run("empty store loads an empty slice", func() {
		entries, err := s.store.Load(s.ctx)
		s.Require().NoError(err)
		s.NotNil(entries)
		s.Empty(entries)
	})

	s.Run("preserves append order", func() {
		first, second := s.newEntry("ADM001"), s.newEntry("ADM002")
		s.Require().NoError(s.store.Append(s.ctx, first))
		s.Require().NoError(s.store.Append(s.ctx, second))

		entries, err := s.store.Load(s.ctx)
		s.Require().NoError(err)
		s.Equal([]audit.Entry{first, second}, entries)
	})

	s.Run("returned slice is a copy", func() {
		s.store.Clear()
		s.Require().NoError(s.store.Append(s.ctx, s.newEntry("ADM001")))

		entries, err := s.store.Load(s.ctx)
		s.Require().NoError(err)
		entries[0].Details = "mutated"

		again, err := s.store.Load(s.ctx)
		s.Require().NoError(err)
		s.Empty(again[0].Details)
	})
}

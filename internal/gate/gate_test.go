package gate_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"opgate/internal/gate"
	"opgate/internal/gate/metrics"
	"opgate/internal/permission"
	id "opgate/pkg/domain"
	dErrors "opgate/pkg/domain-errors"
	audit "opgate/pkg/platform/audit"
	"opgate/pkg/platform/audit/mocks"
	"opgate/pkg/platform/audit/publishers/compliance"
	"opgate/pkg/platform/audit/store/memory"
)

type GateSuite struct {
	suite.Suite
	ctx     context.Context
	trail   *audit.Trail
	metrics *metrics.Metrics
	gate    *gate.Gate
	admin1  *permission.Profile
	admin2  *permission.Profile
	calls   atomic.Int32
	now     time.Time
}

func TestGateSuite(t *testing.T) {
	suite.Run(t, new(GateSuite))
}

func (s *GateSuite) SetupTest() {
	s.ctx = context.Background()
	s.calls.Store(0)
	s.now = time.Date(2024, 3, 1, 9, 30, 0, 123456789, time.FixedZone("CET", 3600))
	s.gate, s.trail, s.metrics = s.newGate(memory.NewInMemoryStore())

	s.admin1 = permission.NewProfile("admin1", "administrator", "ADM001")
	s.admin1.GrantForUnit("UNIT1", permission.OperationGenerateReports)
	s.admin1.GrantForUnit("UNIT1", permission.OperationViewReports)

	s.admin2 = permission.NewProfile("admin2", "administrator", "ADM002")
	s.admin2.GrantForUnit("UNIT1", permission.OperationViewReports)
}

func (s *GateSuite) newGate(store audit.Store) (*gate.Gate, *audit.Trail, *metrics.Metrics) {
	trail, err := audit.Open(s.ctx, store)
	s.Require().NoError(err)
	m := metrics.New(prometheus.NewRegistry())
	g, err := gate.New(compliance.New(trail),
		gate.WithMetrics(m),
		gate.WithClock(func() time.Time { return s.now }),
		gate.WithLogger(discardLogger()),
	)
	s.Require().NoError(err)
	return g, trail, m
}

func (s *GateSuite) reportAction() gate.Action[string] {
	return gate.NewAction(permission.OperationGenerateReports,
		func(_ context.Context, _ *permission.Profile, unitID id.UnitID) (string, error) {
			s.calls.Add(1)
			return "report for " + unitID.String(), nil
		},
		func(string) string { return "Report generated successfully" },
	)
}

func (s *GateSuite) TestAllowed() {
	s.Run("admin1 generates a report for UNIT1", func() {
		got, err := gate.Execute(s.ctx, s.gate, s.reportAction(), s.admin1, "UNIT1")
		s.Require().NoError(err)
		s.Equal("report for UNIT1", got)
		s.Equal(int32(1), s.calls.Load())

		entries := s.trail.Entries()
		s.Require().Len(entries, 1)
		e := entries[0]
		s.Equal(id.OperatorCode("ADM001"), e.OperatorCode)
		s.Equal("administrator", e.OperatorRole)
		s.Equal("generate_reports", e.Operation)
		s.Equal(id.UnitID("UNIT1"), e.UnitID)
		s.Equal(audit.StatusSuccess, e.Status)
		s.Equal("Report generated successfully", e.Details)
		s.Equal(s.now.UTC().Truncate(time.Microsecond), e.Timestamp)
		s.False(e.ID.IsNil())
	})

	s.Run("default success details name the operation", func() {
		action := gate.NewAction(permission.OperationViewReports,
			func(context.Context, *permission.Profile, id.UnitID) (int, error) { return 7, nil }, nil)

		got, err := gate.Execute(s.ctx, s.gate, action, s.admin2, "UNIT1")
		s.Require().NoError(err)
		s.Equal(7, got)
		s.Equal("view_reports completed successfully", s.trail.Recent(1)[0].Details)
	})

	s.Run("global grant allows unscoped execution", func() {
		root := permission.NewProfile("root", "superuser", "ROOT01")
		root.GrantGlobal(permission.OperationGenerateReports)

		_, err := gate.Execute(s.ctx, s.gate, s.reportAction(), root, "")
		s.Require().NoError(err)
		last := s.trail.Recent(1)[0]
		s.True(last.UnitID.IsNil())
		s.Equal(audit.StatusSuccess, last.Status)
	})
}

func (s *GateSuite) TestDenied() {
	s.Run("admin2 cannot generate reports and the body never runs", func() {
		_, err := gate.Execute(s.ctx, s.gate, s.reportAction(), s.admin2, "UNIT1")
		s.Require().Error(err)

		var denied *gate.PermissionDeniedError
		s.Require().ErrorAs(err, &denied)
		s.Equal(permission.OperationGenerateReports, denied.Operation)
		s.Equal(id.UnitID("UNIT1"), denied.UnitID)
		s.Equal(id.OperatorCode("ADM002"), denied.OperatorCode)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Zero(s.calls.Load())

		entries := s.trail.Entries()
		s.Require().Len(entries, 1)
		s.Equal(audit.StatusFailed, entries[0].Status)
		s.Equal(audit.DetailsInsufficientPermissions, entries[0].Details)
		s.Equal(id.OperatorCode("ADM002"), entries[0].OperatorCode)
	})

	s.Run("unit grant does not apply to another unit", func() {
		_, err := gate.Execute(s.ctx, s.gate, s.reportAction(), s.admin1, "UNIT2")
		s.True(gate.IsPermissionDenied(err))
		s.Zero(s.calls.Load())
	})

	s.Run("unit grant does not apply to unscoped requests", func() {
		_, err := gate.Execute(s.ctx, s.gate, s.reportAction(), s.admin1, "")
		s.True(gate.IsPermissionDenied(err))
		s.Zero(s.calls.Load())
	})

	s.InDelta(3, testutil.ToFloat64(s.metrics.Decisions.WithLabelValues("generate_reports", "denied")), 0)
}

func (s *GateSuite) TestActionFaults() {
	s.Run("body error is recorded and returned unchanged", func() {
		bodyErr := errors.New("report template missing")
		action := gate.NewAction(permission.OperationGenerateReports,
			func(context.Context, *permission.Profile, id.UnitID) (string, error) { return "", bodyErr }, nil)

		_, err := gate.Execute(s.ctx, s.gate, action, s.admin1, "UNIT1")
		s.Require().Error(err)
		s.True(err == bodyErr, "same error value")

		last := s.trail.Recent(1)[0]
		s.Equal(audit.StatusError, last.Status)
		s.Equal("report template missing", last.Details)
	})

	s.Run("panic is recorded then propagated", func() {
		action := gate.NewAction(permission.OperationGenerateReports,
			func(context.Context, *permission.Profile, id.UnitID) (string, error) { panic("renderer crashed") }, nil)
		before := s.trail.Len()

		s.PanicsWithValue("renderer crashed", func() {
			_, _ = gate.Execute(s.ctx, s.gate, action, s.admin1, "UNIT1")
		})

		s.Equal(before+1, s.trail.Len())
		last := s.trail.Recent(1)[0]
		s.Equal(audit.StatusError, last.Status)
		s.Equal("renderer crashed", last.Details)
	})
}

func (s *GateSuite) TestPersistenceFailure() {
	newFailingGate := func() (*gate.Gate, *audit.Trail, *metrics.Metrics) {
		ctrl := gomock.NewController(s.T())
		store := mocks.NewMockStore(ctrl)
		store.EXPECT().Load(gomock.Any()).Return([]audit.Entry{}, nil)
		store.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("disk full")).AnyTimes()
		return s.newGate(store)
	}

	s.Run("success is not reported without a written entry", func() {
		g, trail, m := newFailingGate()

		got, err := gate.Execute(s.ctx, g, s.reportAction(), s.admin1, "UNIT1")
		s.Require().Error(err)
		s.True(audit.IsPersistenceError(err))
		var perr *audit.PersistenceError
		s.Require().ErrorAs(err, &perr)
		s.Equal("generate_reports", perr.Operation)
		s.Empty(got)
		s.Zero(trail.Len())
		s.InDelta(1, testutil.ToFloat64(m.AuditFailures), 0)
	})

	s.Run("denial surfaces both the denial and the persistence failure", func() {
		g, _, _ := newFailingGate()

		_, err := gate.Execute(s.ctx, g, s.reportAction(), s.admin2, "UNIT1")
		s.True(audit.IsPersistenceError(err))
		s.True(gate.IsPermissionDenied(err))
	})

	s.Run("body error is kept alongside the persistence failure", func() {
		g, _, _ := newFailingGate()
		bodyErr := errors.New("boom")
		action := gate.NewAction(permission.OperationGenerateReports,
			func(context.Context, *permission.Profile, id.UnitID) (string, error) { return "", bodyErr }, nil)

		_, err := gate.Execute(s.ctx, g, action, s.admin1, "UNIT1")
		s.ErrorIs(err, bodyErr)
		s.ErrorIs(err, audit.ErrPersistence)
	})
}

func (s *GateSuite) TestInvalidInvocation() {
	cases := map[string]struct {
		action  gate.Action[string]
		profile *permission.Profile
	}{
		"nil profile":       {action: s.reportAction(), profile: nil},
		"unknown operation": {action: gate.NewAction[string]("fly", s.reportAction().Body, nil), profile: s.admin1},
		"missing body":      {action: gate.Action[string]{Operation: permission.OperationGenerateReports}, profile: s.admin1},
	}
	for name, tc := range cases {
		s.Run(name, func() {
			_, err := gate.Execute(s.ctx, s.gate, tc.action, tc.profile, "UNIT1")
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
	s.Zero(s.trail.Len())
	s.Zero(s.calls.Load())
}

// TestUnattributableProfile: a profile without an operator code cannot be
// audited, so even a global grant must not let its body run.
func (s *GateSuite) TestUnattributableProfile() {
	anonymous := permission.NewProfile("svc", "service", "")
	anonymous.GrantGlobal(permission.OperationGenerateReports)

	_, err := gate.Execute(s.ctx, s.gate, s.reportAction(), anonymous, "UNIT1")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	s.False(audit.IsPersistenceError(err))
	s.Zero(s.calls.Load(), "body must not run")
	s.Zero(s.trail.Len())
}

// TestOneEntryPerExecute: N executions across allowed, denied and failing
// actions leave exactly N entries, including under concurrency.
func (s *GateSuite) TestOneEntryPerExecute() {
	failing := gate.NewAction(permission.OperationViewReports,
		func(context.Context, *permission.Profile, id.UnitID) (string, error) { return "", errors.New("x") }, nil)

	const rounds = 30
	var wg sync.WaitGroup
	for i := range rounds {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch i % 3 {
			case 0:
				_, _ = gate.Execute(s.ctx, s.gate, s.reportAction(), s.admin1, "UNIT1")
			case 1:
				_, _ = gate.Execute(s.ctx, s.gate, s.reportAction(), s.admin2, "UNIT1")
			default:
				_, _ = gate.Execute(s.ctx, s.gate, failing, s.admin2, "UNIT1")
			}
		}()
	}
	wg.Wait()

	s.Equal(rounds, s.trail.Len())
	s.Len(s.trail.ByStatus(audit.StatusSuccess), rounds/3)
	s.Len(s.trail.ByStatus(audit.StatusFailed), rounds/3)
	s.Len(s.trail.ByStatus(audit.StatusError), rounds/3)
	s.Equal(int32(rounds/3), s.calls.Load())
}

func (s *GateSuite) TestNewRequiresRecorder() {
	_, err := gate.New(nil)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"opgate/internal/gate"
	"opgate/internal/permission"
	"opgate/internal/platform/config"
	"opgate/internal/reports"
	audit "opgate/pkg/platform/audit"
)

type AppSuite struct {
	suite.Suite
	ctx    context.Context
	logger *slog.Logger
}

func TestAppSuite(t *testing.T) {
	suite.Run(t, new(AppSuite))
}

func (s *AppSuite) SetupTest() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.DiscardHandler)
}

func (s *AppSuite) fileConfig(path, format string) config.Config {
	return config.Config{
		Audit: config.AuditConfig{Backend: config.BackendFile, File: path, Format: format},
	}
}

func (s *AppSuite) TestMemoryBackend() {
	a, err := Open(s.ctx, config.Config{Audit: config.AuditConfig{Backend: config.BackendMemory}}, s.logger)
	s.Require().NoError(err)
	defer a.Close(s.ctx)

	admin := permission.NewProfile("admin1", "administrator", "ADM001")
	admin.GrantForUnit("UNIT1", permission.OperationGenerateReports)

	_, err = gate.Execute(s.ctx, a.Gate, reports.GenerateAction(io.Discard, nil), admin, "UNIT1")
	s.Require().NoError(err)
	s.Equal(1, a.Trail.Len())

	families, err := a.Registry.Gather()
	s.Require().NoError(err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	s.True(names["opgate_gate_decisions_total"])
	s.True(names["opgate_audit_entries_recorded_total"])
	s.True(names["opgate_audit_trail_entries"])
	s.Contains(a.HealthChecks(), "trail")
}

// TestFileBackendSurvivesRestart: entries recorded by one process are loaded
// by the next.
func (s *AppSuite) TestFileBackendSurvivesRestart() {
	for _, format := range []string{"array", "lines"} {
		s.Run(format, func() {
			cfg := s.fileConfig(filepath.Join(s.T().TempDir(), "operation_logs.json"), format)
			admin2 := permission.NewProfile("admin2", "administrator", "ADM002")

			first, err := Open(s.ctx, cfg, s.logger)
			s.Require().NoError(err)
			_, err = gate.Execute(s.ctx, first.Gate, reports.GenerateAction(io.Discard, nil), admin2, "UNIT1")
			s.True(gate.IsPermissionDenied(err))
			s.Require().NoError(first.Close(s.ctx))

			second, err := Open(s.ctx, cfg, s.logger)
			s.Require().NoError(err)
			defer second.Close(s.ctx)
			entries := second.Trail.Entries()
			s.Require().Len(entries, 1)
			s.Equal(audit.StatusFailed, entries[0].Status)
		})
	}
}

func (s *AppSuite) TestUnknownBackend() {
	_, err := Open(s.ctx, config.Config{Audit: config.AuditConfig{Backend: "tape"}}, s.logger)
	s.Error(err)
}

func (s *AppSuite) TestCorruptFileFailsToOpen() {
	path := filepath.Join(s.T().TempDir(), "log.json")
	s.Require().NoError(writeFile(path, "{"))
	_, err := Open(s.ctx, s.fileConfig(path, "array"), s.logger)
	s.Error(err)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "opgate/pkg/domain-errors"
	audit "opgate/pkg/platform/audit"
)

// run executes opgatectl with args and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("NO_COLOR", "1")
	t.Setenv("OPGATE_KAFKA_BROKERS", "")
	t.Setenv("OPGATE_AUDIT_BACKEND", "memory")

	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestDemo(t *testing.T) {
	t.Run("admin1 generates and admin2 is denied", func(t *testing.T) {
		out, err := run(t, "demo", "--backend", "memory")
		require.NoError(t, err)

		assert.Contains(t, out, "Generating report for unit UNIT1")
		assert.Contains(t, out, "permission denied: ADM002 may not generate_reports in unit UNIT1")
		assert.Contains(t, out, "Recent Operations:")
		assert.Contains(t, out, "Status: SUCCESS")
		assert.Contains(t, out, "Status: FAILED")
		assert.Contains(t, out, "Details: Report generated successfully")
		assert.Contains(t, out, "Details: Insufficient permissions")
	})

	t.Run("unknown profile fails", func(t *testing.T) {
		_, err := run(t, "demo", "--backend", "memory", "--profile", "ghost")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("entries survive across runs with the file backend", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "operation_logs.json")
		for range 2 {
			_, err := run(t, "demo", "--backend", "file", "--file", path)
			require.NoError(t, err)
		}

		out, err := run(t, "log", "--backend", "file", "--file", path, "--json")
		require.NoError(t, err)
		var records []audit.Record
		require.NoError(t, json.Unmarshal([]byte(out), &records))
		assert.Len(t, records, 4)
	})
}

func TestLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "operation_logs.json")
	_, err := run(t, "demo", "--backend", "file", "--file", path)
	require.NoError(t, err)

	logArgs := func(extra ...string) []string {
		return append([]string{"log", "--backend", "file", "--file", path}, extra...)
	}

	t.Run("filters by operator", func(t *testing.T) {
		out, err := run(t, logArgs("--operator", "ADM002", "--json")...)
		require.NoError(t, err)
		var records []audit.Record
		require.NoError(t, json.Unmarshal([]byte(out), &records))
		require.Len(t, records, 1)
		assert.Equal(t, "FAILED", records[0].Status)
	})

	t.Run("filters by status", func(t *testing.T) {
		out, err := run(t, logArgs("--status", "SUCCESS")...)
		require.NoError(t, err)
		assert.Contains(t, out, "ADM001")
		assert.NotContains(t, out, "ADM002")
	})

	t.Run("reports empty matches", func(t *testing.T) {
		out, err := run(t, logArgs("--unit", "UNIT2")...)
		require.NoError(t, err)
		assert.Equal(t, "No audit entries found matching the filters.\n", out)
	})

	t.Run("reports an empty trail", func(t *testing.T) {
		out, err := run(t, "log", "--backend", "memory")
		require.NoError(t, err)
		assert.Equal(t, "No audit entries found.\n", out)
	})

	t.Run("limits and reverses", func(t *testing.T) {
		out, err := run(t, logArgs("-n", "1", "--reverse", "--json")...)
		require.NoError(t, err)
		var records []audit.Record
		require.NoError(t, json.Unmarshal([]byte(out), &records))
		require.Len(t, records, 1)
		assert.Equal(t, "ADM002", records[0].OperatorCode)
	})

	t.Run("rejects bad filters", func(t *testing.T) {
		for _, args := range [][]string{
			{"--status", "MAYBE"},
			{"--operation", "drop_tables"},
			{"--since", "yesterday"},
		} {
			_, err := run(t, logArgs(args...)...)
			require.Error(t, err, args)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), args)
		}
	})
}

func TestProfiles(t *testing.T) {
	out, err := run(t, "profiles")
	require.NoError(t, err)
	assert.Contains(t, out, "'UNIT1'  Marketing")
	assert.Contains(t, out, "admin1 'ADM001' (administrator)")
	assert.Contains(t, out, "UNIT1: generate_reports, view_reports")

	t.Run("reads a policy file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "policy.json")
		policy := `{"profiles":[{"name":"root","base_role":"superuser","operator_code":"ROOT01","global":["manage_unit"]}]}`
		require.NoError(t, os.WriteFile(path, []byte(policy), 0o600))

		out, err := run(t, "profiles", "--policy", path)
		require.NoError(t, err)
		assert.Contains(t, out, "global: manage_unit")
	})
}

func TestReplicateRequiresBrokers(t *testing.T) {
	_, err := run(t, "replicate")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestParseBound(t *testing.T) {
	t.Run("empty is unbounded", func(t *testing.T) {
		got, err := parseBound("", false)
		require.NoError(t, err)
		assert.True(t, got.IsZero())
	})

	t.Run("RFC 3339 is exact", func(t *testing.T) {
		got, err := parseBound("2024-03-01T09:00:00Z", true)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), got.UTC())
	})

	t.Run("a date as lower bound starts the day", func(t *testing.T) {
		got, err := parseBound("2024-03-01", false)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local), got)
	})

	t.Run("a date as upper bound covers the day", func(t *testing.T) {
		got, err := parseBound("2024-03-01", true)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 3, 1, 23, 59, 59, 999999999, time.Local), got)
	})
}

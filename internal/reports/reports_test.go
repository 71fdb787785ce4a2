package reports

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opgate/internal/permission"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed pipe") }

func TestGenerateAction(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	profile := permission.NewProfile("admin1", "administrator", "ADM001")

	t.Run("binds generate_reports and renders progress", func(t *testing.T) {
		var out bytes.Buffer
		action := GenerateAction(&out, func() time.Time { return fixed })
		assert.Equal(t, permission.OperationGenerateReports, action.Operation)

		report, err := action.Body(context.Background(), profile, "UNIT1")
		require.NoError(t, err)
		assert.Equal(t, Report{UnitID: "UNIT1", GeneratedBy: "ADM001", GeneratedAt: fixed}, report)
		assert.Equal(t, "Generating report for unit UNIT1\n", out.String())
		assert.Equal(t, DetailsGenerated, action.SuccessDetails(report))
	})

	t.Run("write failures become action errors", func(t *testing.T) {
		action := GenerateAction(failingWriter{}, nil)
		_, err := action.Body(context.Background(), profile, "UNIT1")
		assert.ErrorContains(t, err, "closed pipe")
	})

	t.Run("cancelled context stops before rendering", func(t *testing.T) {
		var out bytes.Buffer
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := GenerateAction(&out, nil).Body(ctx, profile, "UNIT1")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, out.String())
	})
}

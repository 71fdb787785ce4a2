package permission

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "opgate/pkg/domain"
	dErrors "opgate/pkg/domain-errors"
)

func newAdmin() *Profile {
	return NewProfile("admin1", "administrator", "ADM001")
}

// TestDecide_GlobalOverride: a global grant allows the operation for any unit,
// an unknown unit, and no unit at all.
func TestDecide_GlobalOverride(t *testing.T) {
	for _, op := range Operations() {
		t.Run(op.String(), func(t *testing.T) {
			p := newAdmin()
			p.GrantGlobal(op)

			assert.True(t, Decide(p, op, ""))
			assert.True(t, Decide(p, op, "UNIT1"))
			assert.True(t, Decide(p, op, "NO-SUCH-UNIT"))
		})
	}
}

// TestDecide_UnitScoping: a unit grant applies to that unit only and never to
// unscoped requests.
func TestDecide_UnitScoping(t *testing.T) {
	for _, op := range Operations() {
		t.Run(op.String(), func(t *testing.T) {
			p := newAdmin()
			p.GrantForUnit("UNIT1", op)

			assert.True(t, Decide(p, op, "UNIT1"))
			assert.False(t, Decide(p, op, "UNIT2"))
			assert.False(t, Decide(p, op, ""))
		})
	}
}

func TestDecide_Denials(t *testing.T) {
	t.Run("no grants denies everything", func(t *testing.T) {
		p := newAdmin()
		for _, op := range Operations() {
			assert.False(t, Decide(p, op, "UNIT1"))
			assert.False(t, Decide(p, op, ""))
		}
	})

	t.Run("other operation in the same unit is denied", func(t *testing.T) {
		p := NewProfile("admin2", "administrator", "ADM002")
		p.GrantForUnit("UNIT1", OperationViewReports)
		assert.False(t, Decide(p, OperationGenerateReports, "UNIT1"))
	})

	t.Run("nil profile is denied", func(t *testing.T) {
		assert.False(t, Decide(nil, OperationViewReports, "UNIT1"))
	})

	t.Run("grant for the nil unit is ignored", func(t *testing.T) {
		p := newAdmin()
		p.GrantForUnit("", OperationEditUser)
		assert.False(t, Decide(p, OperationEditUser, ""))
		assert.Empty(t, p.Units())
	})
}

// TestGrants_Idempotent: granting twice leaves exactly one entry.
func TestGrants_Idempotent(t *testing.T) {
	p := newAdmin()

	p.GrantGlobal(OperationManageUnit)
	p.GrantGlobal(OperationManageUnit)
	assert.Equal(t, []Operation{OperationManageUnit}, p.GlobalPermissions())

	p.GrantForUnit("UNIT1", OperationViewReports)
	p.GrantForUnit("UNIT1", OperationViewReports)
	p.GrantForUnit("UNIT1", OperationGenerateReports)
	assert.Equal(t, []Operation{OperationGenerateReports, OperationViewReports}, p.UnitPermissions("UNIT1"))
	assert.Equal(t, []id.UnitID{"UNIT1"}, p.Units())
}

func TestProfile_Accessors(t *testing.T) {
	p := newAdmin()
	assert.Equal(t, "admin1", p.Name())
	assert.Equal(t, "administrator", p.BaseRole())
	assert.Equal(t, id.OperatorCode("ADM001"), p.OperatorCode())
	assert.Empty(t, p.UnitPermissions("UNIT9"))
}

// TestProfile_ConcurrentGrantAndDecide runs grants and decisions together;
// run with -race to check the lock discipline.
func TestProfile_ConcurrentGrantAndDecide(t *testing.T) {
	p := newAdmin()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			op := Operations()[i%len(Operations())]
			p.GrantForUnit("UNIT1", op)
		}()
		go func() {
			defer wg.Done()
			_ = Decide(p, OperationViewReports, "UNIT1")
		}()
	}
	wg.Wait()

	for _, op := range Operations() {
		assert.True(t, Decide(p, op, "UNIT1"))
	}
}

func TestParseOperation(t *testing.T) {
	t.Run("accepts every declared operation", func(t *testing.T) {
		for _, op := range Operations() {
			got, err := ParseOperation(op.String())
			require.NoError(t, err)
			assert.Equal(t, op, got)
		}
	})

	t.Run("rejects empty and unknown values", func(t *testing.T) {
		for _, in := range []string{"", "GENERATE_REPORTS", "drop_tables"} {
			_, err := ParseOperation(in)
			require.Error(t, err, in)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		}
	})

	t.Run("operations returns a copy", func(t *testing.T) {
		ops := Operations()
		ops[0] = "tampered"
		assert.Equal(t, OperationCreateUser, Operations()[0])
	})
}

package pipeline

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/veil/internal/classify"
	"github.com/dativo-io/veil/internal/noise"
	"github.com/dativo-io/veil/internal/policy"
	"github.com/dativo-io/veil/internal/table"
	"github.com/dativo-io/veil/internal/testutil"
)

func payrollTable(t *testing.T) *table.Table {
	t.Helper()
	tbl, err := table.New(
		table.Column{Name: "name", DType: table.Textual, Cells: []table.Cell{
			table.Text("Alice"), table.Text("Bob"),
		}},
		table.Column{Name: "cep", DType: table.Textual, Cells: []table.Cell{
			table.Text("01310-100"), table.Text("04567-000"),
		}},
		table.Column{Name: "salario", DType: table.Numeric, Cells: []table.Cell{
			table.Number(5000), table.Number(7000),
		}},
	)
	require.NoError(t, err)
	return tbl
}

func payrollGateway() *testutil.ScriptedGateway {
	return testutil.NewScriptedGateway(map[string]classify.Record{
		"name":    testutil.Sensitive(classify.CategoryIdentifier, "full names"),
		"cep":     testutil.Sensitive(classify.CategoryQuasiIdentifier, "postal codes"),
		"salario": testutil.Sensitive(classify.CategoryFinancial, "salaries"),
	})
}

func TestAnonymizePayroll(t *testing.T) {
	in := payrollTable(t)
	orch := New(payrollGateway())

	res, err := orch.Anonymize(context.Background(), in)
	require.NoError(t, err)

	// identifier dropped, row count preserved
	_, ok := res.Table.Column("name")
	assert.False(t, ok)
	assert.Equal(t, 2, res.Table.Rows())

	// quasi-identifier masked in place
	cep, ok := res.Table.Column("cep")
	require.True(t, ok)
	assert.Equal(t, "01310***", cep.Cells[0].Text())
	assert.Equal(t, "04567***", cep.Cells[1].Text())

	// financial numeric deferred, values untouched
	salario, ok := res.Table.Column("salario")
	require.True(t, ok)
	assert.Equal(t, 5000.0, salario.Cells[0].Number())
	assert.Equal(t, 7000.0, salario.Cells[1].Number())
	assert.Equal(t, []string{"salario"}, res.Deferred)

	// input table is untouched (copy-on-write per phase)
	_, ok = in.Column("name")
	assert.True(t, ok)

	// audit trail covers every classified column
	actions := map[string]policy.Action{}
	for _, rep := range res.Reports {
		actions[rep.Record.Column] = rep.Action
	}
	assert.Equal(t, policy.Drop, actions["name"])
	assert.Equal(t, policy.Mask, actions["cep"])
	assert.Equal(t, policy.DeferNoise, actions["salario"])
}

func TestAnonymizeKeepIsNoOp(t *testing.T) {
	tbl, err := table.New(
		table.Column{Name: "notes", DType: table.Textual, Cells: []table.Cell{
			table.Text("plain"), table.Null(), table.Text("text"),
		}},
	)
	require.NoError(t, err)

	orch := New(testutil.NewScriptedGateway(nil)) // unscripted → non-sensitive text
	res, err := orch.Anonymize(context.Background(), tbl)
	require.NoError(t, err)

	got, ok := res.Table.Column("notes")
	require.True(t, ok)
	want, _ := tbl.Column("notes")
	for i := range want.Cells {
		assert.True(t, want.Cells[i].Equal(got.Cells[i]), "kept column must be value-for-value identical")
	}
	assert.Empty(t, res.Deferred)
}

func TestAnonymizeSkipsAllNullColumns(t *testing.T) {
	tbl, err := table.New(
		table.Column{Name: "empty", DType: table.Textual, Cells: []table.Cell{table.Null(), table.Null()}},
		table.Column{Name: "name", DType: table.Textual, Cells: []table.Cell{table.Text("Alice"), table.Text("Bob")}},
	)
	require.NoError(t, err)

	gw := testutil.NewScriptedGateway(map[string]classify.Record{
		"name":  testutil.Sensitive(classify.CategoryIdentifier, "names"),
		"empty": testutil.Sensitive(classify.CategoryIdentifier, "should never be asked"),
	})
	orch := New(gw)

	res, err := orch.Anonymize(context.Background(), tbl)
	require.NoError(t, err)

	// the all-null column is left as-is and never classified
	_, ok := res.Table.Column("empty")
	assert.True(t, ok)
	assert.NotContains(t, gw.Calls(), "empty")

	_, ok = res.Table.Column("name")
	assert.False(t, ok)
}

func TestAnonymizeNilTable(t *testing.T) {
	orch := New(testutil.NewScriptedGateway(nil))
	_, err := orch.Anonymize(context.Background(), nil)
	assert.ErrorIs(t, err, table.ErrSourceMissing)
}

func TestAnonymizeFailOpenFallback(t *testing.T) {
	tbl := payrollTable(t)
	gw := payrollGateway()
	gw.Fail["name"] = true // gateway breaks on this column

	orch := New(gw)
	res, err := orch.Anonymize(context.Background(), tbl)
	require.NoError(t, err, "per-column failures never abort the run")

	// fail-open: unclassifiable column treated as non-sensitive text, kept
	name, ok := res.Table.Column("name")
	require.True(t, ok)
	assert.Equal(t, "Alice", name.Cells[0].Text())

	// the rest of the pipeline still ran
	_, ok = res.Table.Column("cep")
	require.True(t, ok)
	assert.Equal(t, []string{"salario"}, res.Deferred)
}

func TestAnonymizeFailClosedDrops(t *testing.T) {
	tbl := payrollTable(t)
	gw := payrollGateway()
	gw.Fail["name"] = true

	orch := New(gw, WithFailClosed(true))
	res, err := orch.Anonymize(context.Background(), tbl)
	require.NoError(t, err)

	_, ok := res.Table.Column("name")
	assert.False(t, ok, "fail-closed drops columns the gateway could not classify")
}

func TestAnonymizeIsDeterministic(t *testing.T) {
	orch := New(payrollGateway(), WithWorkers(8))

	first, err := orch.Anonymize(context.Background(), payrollTable(t))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := orch.Anonymize(context.Background(), payrollTable(t))
		require.NoError(t, err)

		assert.Equal(t, first.Table.Names(), again.Table.Names())
		assert.Equal(t, first.Deferred, again.Deferred)
		for _, name := range first.Table.Names() {
			a, _ := first.Table.Column(name)
			b, _ := again.Table.Column(name)
			for j := range a.Cells {
				assert.True(t, a.Cells[j].Equal(b.Cells[j]))
			}
		}
	}
}

func TestApplyNoiseFixture(t *testing.T) {
	// Spec fixture: epsilon=1.0 over [10.0, 0.0, null, 20.0].
	tbl, err := table.New(
		table.Column{Name: "v", DType: table.Numeric, Cells: []table.Cell{
			table.Number(10.0), table.Number(0.0), table.Null(), table.Number(20.0),
		}},
	)
	require.NoError(t, err)

	orch := New(testutil.NewScriptedGateway(nil))
	out, err := orch.ApplyNoise(context.Background(), tbl, []string{"v"}, 1.0,
		noise.WithSource(rand.NewSource(11)))
	require.NoError(t, err)

	col, _ := out.Column("v")
	assert.NotEqual(t, 10.0, col.Cells[0].Number())
	assert.Equal(t, 0.0, col.Cells[1].Number())
	assert.True(t, col.Cells[2].IsNull())
	assert.NotEqual(t, 20.0, col.Cells[3].Number())

	// input table untouched
	orig, _ := tbl.Column("v")
	assert.Equal(t, 10.0, orig.Cells[0].Number())
}

func TestApplyNoiseOnlyTouchesDeferred(t *testing.T) {
	tbl, err := table.New(
		table.Column{Name: "salario", DType: table.Numeric, Cells: []table.Cell{table.Number(5000), table.Number(7000)}},
		table.Column{Name: "score", DType: table.Numeric, Cells: []table.Cell{table.Number(1), table.Number(2)}},
	)
	require.NoError(t, err)

	orch := New(testutil.NewScriptedGateway(nil))
	out, err := orch.ApplyNoise(context.Background(), tbl, []string{"salario"}, 0.5,
		noise.WithSource(rand.NewSource(3)))
	require.NoError(t, err)

	score, _ := out.Column("score")
	assert.Equal(t, 1.0, score.Cells[0].Number())
	assert.Equal(t, 2.0, score.Cells[1].Number())

	salario, _ := out.Column("salario")
	assert.NotEqual(t, 5000.0, salario.Cells[0].Number())
}

func TestApplyNoiseSkipsMissingColumn(t *testing.T) {
	tbl, err := table.New(
		table.Column{Name: "present", DType: table.Numeric, Cells: []table.Cell{table.Number(9)}},
	)
	require.NoError(t, err)

	orch := New(testutil.NewScriptedGateway(nil))
	out, err := orch.ApplyNoise(context.Background(), tbl, []string{"ghost", "present"}, 1.0,
		noise.WithSource(rand.NewSource(5)))
	require.NoError(t, err, "a listed column absent from the table is a warning, not an error")

	col, _ := out.Column("present")
	assert.NotEqual(t, 9.0, col.Cells[0].Number())
}

func TestApplyNoiseRunsDiffer(t *testing.T) {
	tbl, err := table.New(
		table.Column{Name: "v", DType: table.Numeric, Cells: []table.Cell{
			table.Number(100), table.Number(200), table.Number(300), table.Number(400),
		}},
	)
	require.NoError(t, err)

	orch := New(testutil.NewScriptedGateway(nil))
	a, err := orch.ApplyNoise(context.Background(), tbl, []string{"v"}, 1.0)
	require.NoError(t, err)
	b, err := orch.ApplyNoise(context.Background(), tbl, []string{"v"}, 1.0)
	require.NoError(t, err)

	colA, _ := a.Column("v")
	colB, _ := b.Column("v")
	same := true
	for i := range colA.Cells {
		if colA.Cells[i].Number() != colB.Cells[i].Number() {
			same = false
		}
	}
	assert.False(t, same, "noise is independently randomized per run")
}

func TestApplyNoiseNilTable(t *testing.T) {
	orch := New(testutil.NewScriptedGateway(nil))
	_, err := orch.ApplyNoise(context.Background(), nil, []string{"v"}, 1.0)
	assert.Error(t, err)
}

func TestMaskedNumericQuasiIdentifier(t *testing.T) {
	tbl, err := table.New(
		table.Column{Name: "cep", DType: table.Numeric, Cells: []table.Cell{
			table.Number(1310100), table.Number(4567000),
		}},
	)
	require.NoError(t, err)

	gw := testutil.NewScriptedGateway(map[string]classify.Record{
		"cep": testutil.Sensitive(classify.CategoryQuasiIdentifier, "postal codes stored as numbers"),
	})
	res, err := New(gw).Anonymize(context.Background(), tbl)
	require.NoError(t, err)

	col, ok := res.Table.Column("cep")
	require.True(t, ok)
	assert.Equal(t, table.Textual, col.DType, "a masked numeric column becomes textual")
	assert.Equal(t, "13101***", col.Cells[0].Text())
	assert.Equal(t, "45670***", col.Cells[1].Text())
}

func TestMaskedTemporalColumn(t *testing.T) {
	tbl, err := table.New(
		table.Column{Name: "admissao", DType: table.Temporal, Cells: []table.Cell{
			table.Time(time.Date(2021, time.March, 15, 9, 30, 0, 0, time.UTC)),
			table.Null(),
		}},
	)
	require.NoError(t, err)

	gw := testutil.NewScriptedGateway(map[string]classify.Record{
		"admissao": testutil.Sensitive(classify.CategoryQuasiIdentifier, "hire dates"),
	})
	res, err := New(gw).Anonymize(context.Background(), tbl)
	require.NoError(t, err)

	col, _ := res.Table.Column("admissao")
	assert.Equal(t, time.Date(2021, time.March, 1, 0, 0, 0, 0, time.UTC), col.Cells[0].Time())
	assert.True(t, col.Cells[1].IsNull())
}

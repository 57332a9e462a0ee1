package classify

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/veil/internal/table"
)

func textColumn(name string, values ...string) table.Column {
	cells := make([]table.Cell, len(values))
	for i, v := range values {
		if v == "" {
			cells[i] = table.Null()
		} else {
			cells[i] = table.Text(v)
		}
	}
	return table.Column{Name: name, DType: table.Textual, Cells: cells}
}

func TestSampleSkipsNullsAndDuplicates(t *testing.T) {
	col := textColumn("c", "a", "", "b", "a", "", "c")
	got := Sample(col, 10)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, got)
}

func TestSampleCapsAtN(t *testing.T) {
	values := make([]string, 40)
	for i := range values {
		values[i] = fmt.Sprintf("v%02d", i)
	}
	col := textColumn("c", values...)

	got := Sample(col, 10)
	assert.Len(t, got, 10)

	got = Sample(col, 5)
	assert.Len(t, got, 5)

	// out-of-range n falls back to the cap
	got = Sample(col, 0)
	assert.Len(t, got, MaxSamples)
	got = Sample(col, 99)
	assert.Len(t, got, MaxSamples)
}

func TestSampleIsDeterministic(t *testing.T) {
	values := make([]string, 50)
	for i := range values {
		values[i] = fmt.Sprintf("v%02d", i)
	}
	col := textColumn("c", values...)

	first := Sample(col, 10)
	require.Len(t, first, 10)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Sample(col, 10), "identical input must yield identical samples")
	}
}

func TestSampleEmptyColumn(t *testing.T) {
	col := textColumn("c", "", "", "")
	assert.Empty(t, Sample(col, 10))
}

func TestSampleNumericRendering(t *testing.T) {
	col := table.Column{Name: "n", DType: table.Numeric, Cells: []table.Cell{
		table.Number(5000), table.Number(7000.5),
	}}
	got := Sample(col, 10)
	assert.ElementsMatch(t, []string{"5000", "7000.5"}, got)
}

package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dativo-io/veil/internal/classify"
	"github.com/dativo-io/veil/internal/table"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name      string
		category  classify.Category
		sensitive bool
		dtype     table.DType
		want      Action
	}{
		{"not sensitive is always kept", classify.CategoryText, false, table.Textual, Keep},
		{"not sensitive numeric kept", classify.CategoryText, false, table.Numeric, Keep},
		{"identifier dropped regardless of dtype", classify.CategoryIdentifier, true, table.Textual, Drop},
		{"identifier numeric still dropped", classify.CategoryIdentifier, true, table.Numeric, Drop},
		{"financial numeric deferred", classify.CategoryFinancial, true, table.Numeric, DeferNoise},
		{"financial textual dropped", classify.CategoryFinancial, true, table.Textual, Drop},
		{"demographic numeric deferred", classify.CategoryDemographic, true, table.Numeric, DeferNoise},
		{"demographic temporal dropped", classify.CategoryDemographic, true, table.Temporal, Drop},
		{"health numeric deferred", classify.CategoryHealth, true, table.Numeric, DeferNoise},
		{"health textual dropped", classify.CategoryHealth, true, table.Textual, Drop},
		{"religion numeric deferred", classify.CategoryReligion, true, table.Numeric, DeferNoise},
		{"political textual dropped", classify.CategoryPolitical, true, table.Textual, Drop},
		{"quasi-identifier textual masked", classify.CategoryQuasiIdentifier, true, table.Textual, Mask},
		{"quasi-identifier temporal masked", classify.CategoryQuasiIdentifier, true, table.Temporal, Mask},
		{"quasi-identifier numeric masked", classify.CategoryQuasiIdentifier, true, table.Numeric, Mask},
		{"unmatched sensitive category dropped", classify.Category("weird"), true, table.Numeric, Drop},
		{"sensitive text dropped (default-safe)", classify.CategoryText, true, table.Textual, Drop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.category, tt.sensitive, tt.dtype))
		})
	}
}

func TestDecideIsDeterministic(t *testing.T) {
	for i := 0; i < 10; i++ {
		assert.Equal(t, DeferNoise, Decide(classify.CategoryFinancial, true, table.Numeric))
	}
}

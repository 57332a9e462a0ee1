package classify

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleGatewayDefaults(t *testing.T) {
	gw, err := NewRuleGateway("")
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		column  string
		samples []string
		want    Category
	}{
		{"nome", nil, CategoryIdentifier},
		{"cpf", nil, CategoryIdentifier},
		{"email", nil, CategoryIdentifier},
		{"cep", nil, CategoryQuasiIdentifier},
		{"data_nascimento", nil, CategoryQuasiIdentifier},
		{"salario", nil, CategoryFinancial},
		{"idade", nil, CategoryDemographic},
		{"diagnostico", nil, CategoryHealth},
		{"religiao", nil, CategoryReligion},
		{"partido", nil, CategoryPolitical},
		{"observacoes", nil, CategoryText},
	}
	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			rec, err := gw.Classify(ctx, tt.column, tt.samples)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.Category)
			assert.Equal(t, tt.want != CategoryText, rec.Sensitive)
		})
	}
}

func TestRuleGatewayValuePatterns(t *testing.T) {
	gw, err := NewRuleGateway("")
	require.NoError(t, err)
	ctx := context.Background()

	// column name says nothing; values look like emails
	rec, err := gw.Classify(ctx, "contact", []string{"a@b.com", "c@d.org", "hello"})
	require.NoError(t, err)
	assert.Equal(t, CategoryIdentifier, rec.Category)

	// postal-code-shaped values
	rec, err = gw.Classify(ctx, "location", []string{"01310-100", "04567-000"})
	require.NoError(t, err)
	assert.Equal(t, CategoryQuasiIdentifier, rec.Category)

	// minority of matching values is not enough
	rec, err = gw.Classify(ctx, "misc", []string{"a@b.com", "one", "two", "three"})
	require.NoError(t, err)
	assert.Equal(t, CategoryText, rec.Category)
}

func TestRuleGatewayUserOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	overlay := `rules:
  - name: project_codes
    category: quasi_identifier
    rationale: "internal project codes are re-identifying"
    name_patterns:
      - "(?i)^project_code$"
`
	require.NoError(t, os.WriteFile(path, []byte(overlay), 0o600))

	gw, err := NewRuleGateway(path)
	require.NoError(t, err)

	rec, err := gw.Classify(context.Background(), "project_code", nil)
	require.NoError(t, err)
	assert.Equal(t, CategoryQuasiIdentifier, rec.Category)

	// embedded defaults still apply
	rec, err = gw.Classify(context.Background(), "salario", nil)
	require.NoError(t, err)
	assert.Equal(t, CategoryFinancial, rec.Category)
}

func TestRuleGatewayMissingOverlayIsIgnored(t *testing.T) {
	gw, err := NewRuleGateway(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.NotNil(t, gw)
}

func TestRuleGatewayIsDeterministic(t *testing.T) {
	gw, err := NewRuleGateway("")
	require.NoError(t, err)

	first, err := gw.Classify(context.Background(), "salario", []string{"5000"})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := gw.Classify(context.Background(), "salario", []string{"5000"})
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/models"
)

func testContext() *models.ExecutionContext {
	ctx := models.NewExecutionContext("exec-1", "wf-1",
		map[string]any{
			"status":  "open",
			"count":   float64(3),
			"flag":    true,
			"nothing": nil,
		},
		map[string]any{
			"threshold": float64(10),
			"env":       "production",
		},
	)
	ctx.Results["node1"] = map[string]any{
		"status_code": 500,
		"body":        map[string]any{"id": "abc"},
	}

	return ctx
}

func TestEvaluateComparisons(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		want       bool
	}{
		{"string equality", `data.status == 'open'`, true},
		{"string inequality", `data.status != 'closed'`, true},
		{"numeric equality across int and float", `results.node1.status_code == 500`, true},
		{"numeric not equal", `results.node1.status_code != 200`, true},
		{"less than", `data.count < variables.threshold`, true},
		{"greater or equal false", `data.count >= variables.threshold`, false},
		{"nested path", `results.node1.body.id == 'abc'`, true},
		{"missing path is null", `data.missing == null`, true},
		{"missing deep path is null", `results.nope.deep.er == null`, true},
		{"boolean and", `data.flag && data.status == 'open'`, true},
		{"boolean or short circuit", `data.status == 'closed' || data.count == 3`, true},
		{"negation", `!(data.status == 'closed')`, true},
		{"bare path truthiness", `data.flag`, true},
		{"bare missing path is falsy", `data.missing`, false},
		{"string ordering", `data.status > 'a'`, true},
		{"negative number literal", `data.count > -1`, true},
		{"empty expression is true", `  `, true},
	}

	ctx := testContext()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.expression, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateParseErrors(t *testing.T) {
	tests := []string{
		`data.status ==`,
		`(data.status == 'open'`,
		`data.status == 'unterminated`,
		`data..status`,
		`== 'open'`,
		`data.status @ 'open'`,
	}

	ctx := testContext()

	for _, expression := range tests {
		t.Run(expression, func(t *testing.T) {
			_, err := Evaluate(expression, ctx)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrParse)
		})
	}
}

func TestEvaluateUnknownRoot(t *testing.T) {
	_, err := Evaluate(`env.HOME == 'x'`, testContext())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEval)
}

func TestEvaluateMixedOrderingFails(t *testing.T) {
	_, err := Evaluate(`data.count < 'ten'`, testContext())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEval)
}

func TestParseRejectsFunctionLikeSyntax(t *testing.T) {
	// The grammar has no call syntax; anything resembling code execution
	// must fail to parse.
	_, err := Parse(`__import__('os').system('rm')`)
	require.Error(t, err)
}

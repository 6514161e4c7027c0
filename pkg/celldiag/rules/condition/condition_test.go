package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	ev := NewEvaluator()
	ctx := map[string]any{
		"payload_kg":   7.5,
		"cycles":       1200,
		"tool":         "Gripper-A",
		"tool_changed": true,
		"zone":         "welding bay 3",
		"alarms":       []any{"C153", "C204"},
		"speed_pct":    "80",
	}

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"gt float", Condition{"payload_kg", OpGreaterThan, 5}, true},
		{"gte int vs float", Condition{"cycles", OpGreaterThanEqual, 1200.0}, true},
		{"lt false", Condition{"cycles", OpLessThan, 100}, false},
		{"lte numeric string field", Condition{"speed_pct", OpLessThanEqual, 80}, true},
		{"eq string case-insensitive", Condition{"tool", OpEqual, "gripper-a"}, true},
		{"ne string", Condition{"tool", OpNotEqual, "Welder"}, true},
		{"eq bool", Condition{"tool_changed", OpEqual, true}, true},
		{"eq bool mismatch", Condition{"tool_changed", OpEqual, false}, false},
		{"contains substring", Condition{"zone", OpContains, "Welding"}, true},
		{"contains list element", Condition{"alarms", OpContains, "C204"}, true},
		{"in list literal", Condition{"tool", OpIn, []any{"Welder", "Gripper-A"}}, true},
		{"in miss", Condition{"tool", OpIn, []string{"Welder"}}, false},
		{"missing field", Condition{"ambient_c", OpGreaterThan, 30}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ev.Evaluate(tt.cond, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMalformedOperandsAreNotSatisfied(t *testing.T) {
	ev := NewEvaluator()
	ctx := map[string]any{
		"tool":       "Gripper-A",
		"payload_kg": 7.5,
		"alarms":     []any{"C153", "C154"},
		"meta":       map[string]any{"shift": 2},
	}

	bad := []Condition{
		{"tool", OpGreaterThan, 3},             // non-numeric field
		{"payload_kg", OpGreaterThan, "heavy"}, // non-numeric literal
		{"payload_kg", OpContains, "7"},        // contains on a number
		{"tool", OpIn, "Gripper-A"},            // in without a list
		{"tool", "matches", ".*"},              // unknown operator
		{"payload_kg", OpNotEqual, "heavy"},    // number against a word
		{"payload_kg", OpEqual, "heavy"},
		{"alarms", OpNotEqual, 5},              // list against a scalar
		{"meta", OpNotEqual, true},             // map against a bool
		{"tool", OpNotEqual, true},             // string against a bool
	}
	for _, c := range bad {
		_, err := ev.Evaluate(c, ctx)
		assert.Error(t, err, c.String())
		assert.False(t, ev.Satisfied(c, ctx), c.String())
	}
}

func TestValidate(t *testing.T) {
	ev := NewEvaluator()
	assert.NoError(t, ev.Validate(Condition{"x", OpIn, []any{1}}))
	assert.Error(t, ev.Validate(Condition{"", OpEqual, 1}))
	assert.Error(t, ev.Validate(Condition{"x", "between", 1}))
}

package insight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONPlainObject(t *testing.T) {
	got := extractJSON(`{"quality_score": 80}`)
	assert.Equal(t, `{"quality_score": 80}`, got)
}

func TestExtractJSONFencedBlock(t *testing.T) {
	raw := "Here is the result:\n```json\n{\"complexity\": 40}\n```\nLet me know if you need more."
	assert.Equal(t, `{"complexity": 40}`, extractJSON(raw))
}

func TestExtractJSONBareFence(t *testing.T) {
	raw := "```\n{\"complexity\": 40}\n```"
	assert.Equal(t, `{"complexity": 40}`, extractJSON(raw))
}

func TestExtractJSONSurroundingProse(t *testing.T) {
	raw := `Sure! The analysis is {"quality_score": 70, "handoff_recommended": false} as requested.`
	assert.Equal(t, `{"quality_score": 70, "handoff_recommended": false}`, extractJSON(raw))
}

func TestDecodeModelJSONRepairsTrailingComma(t *testing.T) {
	var wire analysisWire
	err := decodeModelJSON(`{"quality_score": 80, "completion_percentage": 30, "handoff_recommended": false,}`, &wire)
	require.NoError(t, err)
	require.NotNil(t, wire.QualityScore)
	assert.Equal(t, 80, *wire.QualityScore)
}

func TestDecodeModelJSONTaskList(t *testing.T) {
	var wire decompositionWire
	raw := "```json\n{\"tasks\": [{\"title\": \"Sketch UI\", \"description\": \"rough screens\", \"skill_level\": 15, \"skill_category\": \"design\", \"estimated_minutes\": 30, \"user_can_do\": true}]}\n```"
	err := decodeModelJSON(raw, &wire)
	require.NoError(t, err)
	require.Len(t, wire.Tasks, 1)
	assert.Equal(t, "Sketch UI", wire.Tasks[0].Title)
	assert.True(t, wire.Tasks[0].UserCanDo)
}

func TestDecodeModelJSONUnparseable(t *testing.T) {
	var wire analysisWire
	err := decodeModelJSON(`the model refused to answer`, &wire)
	require.ErrorIs(t, err, ErrContract)
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0, clampScore(-5))
	assert.Equal(t, 100, clampScore(180))
	assert.Equal(t, 55, clampScore(55))
}

package tagger

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable(t *testing.T) *LabelTable {
	t.Helper()
	table, err := ParseLabels(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	return table
}

func TestPostprocessAllZero(t *testing.T) {
	table := testTable(t)
	scores := make([]float32, table.Len())

	result, err := Postprocess(scores, table, Options{
		Thresholds: map[Category]float32{
			CategoryGeneral:   0.35,
			CategoryCharacter: 0.85,
			CategoryRating:    0.01,
		},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Rating)
	assert.Empty(t, result.Character)
	assert.Empty(t, result.General)
}

func TestPostprocessSingleTag(t *testing.T) {
	table := testTable(t)
	scores := make([]float32, table.Len())
	scores[4] = 0.92 // 1girl, general

	result, err := Postprocess(scores, table, Options{
		Thresholds: map[Category]float32{CategoryRating: 0.5},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Rating)
	assert.Empty(t, result.Character)
	require.Len(t, result.General, 1)
	assert.Equal(t, "1girl", result.General[0].Tag)
	assert.InDelta(t, 0.92, result.General[0].Score, 0.0001)
}

func TestPostprocessLengthMismatch(t *testing.T) {
	table := testTable(t)

	for _, n := range []int{0, table.Len() - 1, table.Len() + 100} {
		_, err := Postprocess(make([]float32, n), table, Options{})
		var mismatch *LengthMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, n, mismatch.Scores)
		assert.Equal(t, table.Len(), mismatch.Labels)
	}
}

func TestPostprocessDefaultThresholds(t *testing.T) {
	table := testTable(t)
	scores := []float32{0.9, 0.05, 0.02, 0.01, 0.4, 0.3, 0.8}

	result, err := Postprocess(scores, table, Options{})
	require.NoError(t, err)

	// Rating threshold defaults to zero: every rating is reported.
	assert.Len(t, result.Rating, 4)
	// solo (0.3) is under the 0.35 general default, 1girl (0.4) is over.
	require.Len(t, result.General, 1)
	assert.Equal(t, "1girl", result.General[0].Tag)
	// hatsune_miku (0.8) is under the 0.85 character default.
	assert.Empty(t, result.Character)
}

func TestPostprocessThresholdOverride(t *testing.T) {
	table := testTable(t)
	scores := []float32{0.9, 0.05, 0.02, 0.01, 0.95, 0.9, 0.9}

	result, err := Postprocess(scores, table, Options{
		Thresholds: map[Category]float32{CategoryGeneral: 0.99},
	})
	require.NoError(t, err)
	assert.Empty(t, result.General)
	// Other categories keep their defaults.
	require.Len(t, result.Character, 1)
	assert.Equal(t, "hatsune_miku", result.Character[0].Tag)
}

func TestPostprocessInsertionOrder(t *testing.T) {
	table := testTable(t)
	scores := []float32{0, 0, 0, 0, 0.5, 0.9, 0}

	result, err := Postprocess(scores, table, Options{
		Thresholds: map[Category]float32{CategoryRating: 0.5},
	})
	require.NoError(t, err)
	// Label-index order even though solo scored higher.
	require.Len(t, result.General, 2)
	assert.Equal(t, "1girl", result.General[0].Tag)
	assert.Equal(t, "solo", result.General[1].Tag)

	sorted, err := Postprocess(scores, table, Options{
		Thresholds:  map[Category]float32{CategoryRating: 0.5},
		SortByScore: true,
	})
	require.NoError(t, err)
	require.Len(t, sorted.General, 2)
	assert.Equal(t, "solo", sorted.General[0].Tag)
}

func TestMCutThreshold(t *testing.T) {
	// Largest gap is between 0.8 and 0.3.
	assert.InDelta(t, 0.55, mcutThreshold([]float32{0.9, 0.8, 0.3, 0.2, 0.1}), 0.0001)
	assert.Equal(t, float32(0), mcutThreshold(nil))
	assert.Equal(t, float32(0), mcutThreshold([]float32{0.5}))
}

func TestPostprocessMCut(t *testing.T) {
	table := testTable(t)
	// General scores: 1girl 0.9, solo 0.1 -> mcut threshold 0.5.
	scores := []float32{0, 0, 0, 0, 0.9, 0.1, 0}

	result, err := Postprocess(scores, table, Options{
		Thresholds: map[Category]float32{
			CategoryGeneral: 0.05, // replaced by mcut
			CategoryRating:  0.5,
		},
		MCut: true,
	})
	require.NoError(t, err)
	require.Len(t, result.General, 1)
	assert.Equal(t, "1girl", result.General[0].Tag)
}

func TestResultMarshalJSON(t *testing.T) {
	result := &Result{
		Rating:  []TagScore{{Tag: "general", Score: 0.9}},
		General: []TagScore{{Tag: "1girl", Score: 0.5}, {Tag: "solo", Score: 0.25}},
	}
	data, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded struct {
		Rating    map[string]float32 `json:"rating"`
		Character map[string]float32 `json:"character"`
		General   map[string]float32 `json:"general"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.InDelta(t, 0.9, decoded.Rating["general"], 0.0001)
	assert.InDelta(t, 0.5, decoded.General["1girl"], 0.0001)
	assert.InDelta(t, 0.25, decoded.General["solo"], 0.0001)
	assert.Empty(t, decoded.Character)

	// Marshaling the value produces the same mappings as the pointer.
	fromValue, err := json.Marshal(*result)
	require.NoError(t, err)
	assert.Equal(t, data, fromValue)
}

func TestSigmoid(t *testing.T) {
	assert.InDelta(t, 0.5, Sigmoid(0), 0.0001)
	assert.InDelta(t, 1, Sigmoid(100), 0.0001)
	assert.InDelta(t, 0, Sigmoid(-100), 0.0001)
}

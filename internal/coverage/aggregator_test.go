package coverage

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) Report {
	t.Helper()
	var r Report
	require.NoError(t, json.Unmarshal([]byte(raw), &r))
	return r
}

func TestAggregator_StatementUnion(t *testing.T) {
	agg := NewAggregator()
	agg.AddCoverage(decode(t, `{"fileX": {"s": {"0": 1}}}`))
	agg.AddCoverage(decode(t, `{"fileX": {"s": {"0": 2, "1": 5}}}`))

	got := agg.Coverage()
	want := map[string]int{"0": 3, "1": 5}
	if diff := cmp.Diff(want, got["fileX"].S); diff != "" {
		t.Errorf("statement counts mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregator_Commutative(t *testing.T) {
	a := `{
		"src/a.js": {"path": "src/a.js", "b": {"0": [1, 0], "1": [2]}, "f": {"0": 1}, "s": {"0": 1, "1": 0}},
		"src/b.js": {"s": {"0": 4}}
	}`
	b := `{
		"src/a.js": {"path": "src/a.js", "b": {"0": [0, 3, 1]}, "f": {"0": 2, "1": 1}, "s": {"1": 7}}
	}`

	ab := NewAggregator()
	ab.AddCoverage(decode(t, a))
	ab.AddCoverage(decode(t, b))

	ba := NewAggregator()
	ba.AddCoverage(decode(t, b))
	ba.AddCoverage(decode(t, a))

	gotAB, gotBA := ab.Coverage(), ba.Coverage()
	opts := cmp.Comparer(func(x, y json.RawMessage) bool { return string(x) == string(y) })
	if diff := cmp.Diff(gotAB, gotBA, opts); diff != "" {
		t.Errorf("merge is order dependent (-ab +ba):\n%s", diff)
	}

	file := gotAB["src/a.js"]
	assert.Equal(t, []int{1, 3, 1}, file.B["0"])
	assert.Equal(t, []int{2}, file.B["1"])
	assert.Equal(t, map[string]int{"0": 3, "1": 1}, file.F)
	assert.Equal(t, map[string]int{"0": 1, "1": 7}, file.S)
	assert.Equal(t, map[string]int{"0": 4}, gotAB["src/b.js"].S)
}

func TestAggregator_FirstReportIsCopied(t *testing.T) {
	report := decode(t, `{"fileX": {"b": {"0": [1]}, "s": {"0": 1}}}`)
	agg := NewAggregator()
	agg.AddCoverage(report)

	report["fileX"].S["0"] = 100
	report["fileX"].B["0"][0] = 100

	agg.AddCoverage(decode(t, `{"fileX": {"s": {"0": 1}}}`))
	got := agg.Coverage()
	assert.Equal(t, 2, got["fileX"].S["0"])
	assert.Equal(t, []int{1}, got["fileX"].B["0"])
}

func TestAggregator_CoverageResets(t *testing.T) {
	agg := NewAggregator()
	assert.False(t, agg.HasCoverage())

	agg.AddCoverage(decode(t, `{"fileX": {"s": {"0": 1}}}`))
	assert.True(t, agg.HasCoverage())

	first := agg.Coverage()
	assert.Len(t, first, 1)
	assert.False(t, agg.HasCoverage())
	assert.Empty(t, agg.Coverage())
}

func TestFileCoverage_PreservesExtraFields(t *testing.T) {
	raw := `{"fileX":{"path":"src/x.js","statementMap":{"0":{"start":{"line":1}}},"s":{"0":1}}}`
	r := decode(t, raw)

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestDecode(t *testing.T) {
	t.Run("nil payload", func(t *testing.T) {
		r, err := Decode(nil)
		require.NoError(t, err)
		assert.Nil(t, r)
	})

	t.Run("structured payload", func(t *testing.T) {
		payload := map[string]any{
			"fileX": map[string]any{"s": map[string]any{"0": float64(2)}},
		}
		r, err := Decode(payload)
		require.NoError(t, err)
		assert.Equal(t, 2, r["fileX"].S["0"])
	})

	t.Run("malformed counters", func(t *testing.T) {
		_, err := Decode(map[string]any{"fileX": map[string]any{"s": "nope"}})
		assert.Error(t, err)
	})
}

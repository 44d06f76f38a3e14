package normalize

import (
	"encoding/json"
	"testing"

	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawFromJSON(t *testing.T, s string) types.RawMetrics {
	t.Helper()
	var raw types.RawMetrics
	require.NoError(t, json.Unmarshal([]byte(s), &raw))
	return raw
}

func TestNormalize(t *testing.T) {
	t.Run("mapping, prefix and parsing", func(t *testing.T) {
		raw := rawFromJSON(t, `{"yieldtoday": "3.5", "yieldtotal": 1234.0, "temp": "not_a_number"}`)
		cfg := types.CantaoConfig{
			MetricPrefix:  "solax",
			MetricMapping: map[string]string{"yieldtoday": "energy.today"},
		}

		res := Normalize(raw, cfg)
		assert.Equal(t, types.Metrics{
			"energy.today":     types.Float(3.5),
			"solax.yieldtotal": types.Float(1234),
		}, res.Metrics)
		assert.Equal(t, []string{"temp"}, res.Skipped)
	})

	t.Run("drops null and empty silently", func(t *testing.T) {
		raw := rawFromJSON(t, `{"a": null, "b": "", "c": 0}`)
		res := Normalize(raw, types.CantaoConfig{MetricPrefix: "p"})
		assert.Equal(t, types.Metrics{"p.c": types.Int(0)}, res.Metrics)
		assert.Empty(t, res.Skipped)
	})

	t.Run("bools and ints pass through", func(t *testing.T) {
		raw := rawFromJSON(t, `{"online": true, "acpower": 512, "ratio": 0.5}`)
		res := Normalize(raw, types.CantaoConfig{MetricPrefix: "solax"})
		assert.Equal(t, types.Metrics{
			"solax.online":  types.Bool(true),
			"solax.acpower": types.Int(512),
			"solax.ratio":   types.Float(0.5),
		}, res.Metrics)
	})

	t.Run("text numbers become floats", func(t *testing.T) {
		raw := rawFromJSON(t, `{"a": " 42 ", "b": "-1e2", "c": "nan", "d": "inf", "e": "1,5"}`)
		res := Normalize(raw, types.CantaoConfig{MetricPrefix: "s"})
		assert.Equal(t, types.Metrics{"s.a": types.Float(42), "s.b": types.Float(-100)}, res.Metrics)
		assert.Equal(t, []string{"c", "d", "e"}, res.Skipped)
	})

	t.Run("nested values are skipped", func(t *testing.T) {
		raw := rawFromJSON(t, `{"batteries": [{"soc": 10}], "soc": 10}`)
		res := Normalize(raw, types.CantaoConfig{MetricPrefix: "s"})
		assert.Equal(t, types.Metrics{"s.soc": types.Int(10)}, res.Metrics)
		assert.Equal(t, []string{"batteries"}, res.Skipped)
	})

	t.Run("colliding target keys keep the last value", func(t *testing.T) {
		raw := rawFromJSON(t, `{"power": 1, "acpower": 2}`)
		cfg := types.CantaoConfig{
			MetricPrefix:  "solax",
			MetricMapping: map[string]string{"power": "solax.acpower"},
		}
		res := Normalize(raw, cfg)
		assert.Equal(t, types.Metrics{"solax.acpower": types.Int(2)}, res.Metrics)

		raw = rawFromJSON(t, `{"acpower": 2, "power": 1}`)
		res = Normalize(raw, cfg)
		assert.Equal(t, types.Metrics{"solax.acpower": types.Int(1)}, res.Metrics)
	})

	t.Run("ignored fields", func(t *testing.T) {
		raw := rawFromJSON(t, `{"inverterSN": "123", "uploadTime": "2024", "soc": 50}`)
		cfg := types.CantaoConfig{MetricPrefix: "solax", IgnoredFields: []string{"INVERTERSN", "uploadtime"}}
		res := Normalize(raw, cfg)
		assert.Equal(t, types.Metrics{"solax.soc": types.Int(50)}, res.Metrics)
		assert.Empty(t, res.Skipped)
	})

	t.Run("decimal precision", func(t *testing.T) {
		raw := rawFromJSON(t, `{"a": 1.23456, "b": "2.5", "c": 7, "d": true}`)

		two := 2
		res := Normalize(raw, types.CantaoConfig{MetricPrefix: "s", DecimalPrecision: &two})
		assert.Equal(t, types.Metrics{
			"s.a": types.Float(1.23),
			"s.b": types.Float(2.5),
			"s.c": types.Int(7),
			"s.d": types.Bool(true),
		}, res.Metrics)

		zero := 0
		res = Normalize(raw, types.CantaoConfig{MetricPrefix: "s", DecimalPrecision: &zero})
		assert.Equal(t, types.Int(1), res.Metrics["s.a"])
		assert.Equal(t, types.Int(3), res.Metrics["s.b"])
	})

	t.Run("output never contains empty or unparsable entries", func(t *testing.T) {
		raw := rawFromJSON(t, `{"a": null, "b": "", "c": "x", "d": {}, "e": [], "f": "1"}`)
		res := Normalize(raw, types.CantaoConfig{MetricPrefix: "s"})
		for k, v := range res.Metrics {
			assert.False(t, v.IsNull(), k)
			assert.NotEqual(t, types.KindText, v.Kind(), k)
			assert.NotEqual(t, types.KindJSON, v.Kind(), k)
		}
		assert.Len(t, res.Metrics, 1)
	})
}

func TestMetricKey(t *testing.T) {
	cfg := types.CantaoConfig{MetricPrefix: "solax", MetricMapping: map[string]string{"soc": "battery.soc"}}
	assert.Equal(t, "battery.soc", MetricKey("soc", cfg))
	assert.Equal(t, "solax.acpower", MetricKey("acpower", cfg))
}

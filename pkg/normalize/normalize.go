// Package normalize turns raw Solax payloads into flat, prefixed metrics.
package normalize

import (
	"math"
	"strconv"
	"strings"

	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/types"
)

// Result is the outcome of Normalize.
type Result struct {
	Metrics types.Metrics
	// Skipped lists source keys whose values were present but not numeric.
	Skipped []string
}

// Normalize converts raw into metrics named after cfg's mapping and prefix.
// Null and empty values are dropped silently, non-numeric values are dropped
// and reported in Result.Skipped. When two source keys produce the same target
// key the later one in payload order wins.
func Normalize(raw types.RawMetrics, cfg types.CantaoConfig) Result {
	res := Result{Metrics: make(types.Metrics, raw.Len())}

	ignored := make(map[string]struct{}, len(cfg.IgnoredFields))
	for _, f := range cfg.IgnoredFields {
		ignored[strings.ToLower(f)] = struct{}{}
	}

	raw.Each(func(key string, value types.Value) {
		if value.IsNull() {
			return
		}
		if s, ok := value.Text(); ok && s == "" {
			return
		}
		if _, ok := ignored[strings.ToLower(key)]; ok {
			return
		}

		prepared, ok := coerce(value)
		if !ok {
			res.Skipped = append(res.Skipped, key)
			return
		}
		if cfg.DecimalPrecision != nil {
			prepared = applyPrecision(prepared, *cfg.DecimalPrecision)
		}

		res.Metrics[MetricKey(key, cfg)] = prepared
	})
	return res
}

// MetricKey returns the target key for a source key.
func MetricKey(key string, cfg types.CantaoConfig) string {
	if mapped, ok := cfg.MetricMapping[key]; ok {
		return mapped
	}
	return cfg.MetricPrefix + "." + key
}

func coerce(value types.Value) (types.Value, bool) {
	switch value.Kind() {
	case types.KindBool, types.KindInt, types.KindFloat:
		return value, true
	case types.KindText:
		s, _ := value.Text()
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return types.Value{}, false
		}
		return types.Float(f), true
	default:
		return types.Value{}, false
	}
}

func applyPrecision(value types.Value, precision int) types.Value {
	f, ok := value.Float()
	if !ok || value.Kind() != types.KindFloat {
		return value
	}
	scale := math.Pow(10, float64(precision))
	rounded := math.Round(f*scale) / scale
	if precision == 0 {
		return types.Int(int64(rounded))
	}
	return types.Float(rounded)
}

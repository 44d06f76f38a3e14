// Package dashboard renders the metrics page and its JSON projection.
package dashboard

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/bridge"
	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/log"
	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/types"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

const (
	placeholder = "–"
	errorPrefix = "Fehler beim Abrufen der Daten: "
	timeLayout  = "02.01.2006 15:04:05"
)

// Fetcher returns a fresh raw and normalized snapshot.
type Fetcher interface {
	FetchMetrics(ctx context.Context) (bridge.Result, error)
}

// Card is a single summary tile.
type Card struct {
	Key     string
	Label   string
	Display string
	Raw     types.Value
}

type summaryField struct {
	field string
	label string
	unit  string
}

var summaryFields = []summaryField{
	{field: "acpower", label: "Aktuelle Leistung", unit: "W"},
	{field: "yieldtoday", label: "Tagesertrag", unit: "kWh"},
	{field: "yieldtotal", label: "Gesamtertrag", unit: "kWh"},
	{field: "feedinpower", label: "Netzeinspeisung", unit: "W"},
	{field: "consumepower", label: "Hausverbrauch", unit: "W"},
}

// FormatValue renders a value for display.
func FormatValue(v types.Value) string {
	switch v.Kind() {
	case types.KindNull:
		return placeholder
	case types.KindBool:
		if b, _ := v.Bool(); b {
			return "Ja"
		}
		return "Nein"
	case types.KindInt:
		i, _ := v.Int()
		return strconv.FormatInt(i, 10)
	case types.KindFloat:
		f, _ := v.Float()
		return fmt.Sprintf("%.2f", f)
	default:
		return v.String()
	}
}

// BuildSummaryCards returns the cards for the known fields present in metrics
// and, separately, the battery card when prefix.soc is numeric.
func BuildSummaryCards(metrics types.Metrics, prefix string) ([]Card, *Card) {
	var cards []Card
	for _, f := range summaryFields {
		key := prefix + "." + f.field
		v, ok := metrics[key]
		if !ok {
			continue
		}
		display := FormatValue(v)
		if f.unit != "" {
			display += " " + f.unit
		}
		cards = append(cards, Card{Key: key, Label: f.label, Display: display, Raw: v})
	}

	socKey := prefix + ".soc"
	soc, ok := metrics[socKey]
	if !ok || !soc.IsNumeric() {
		return cards, nil
	}
	pct, _ := soc.Float()
	pct = max(0, min(100, pct))
	return cards, &Card{
		Key:     socKey,
		Label:   "Akkuladung",
		Display: fmt.Sprintf("%.0f%%", pct),
		Raw:     types.Float(pct),
	}
}

// App renders the dashboard. Every render performs its own fetch.
type App struct {
	fetcher        Fetcher
	refreshSeconds int
	prefix         string
	now            func() time.Time
}

// NewApp returns an App. An empty prefix falls back to the default metric
// prefix.
func NewApp(fetcher Fetcher, refreshSeconds int, prefix string) *App {
	if prefix == "" {
		prefix = types.DefaultMetricPrefix
	}
	return &App{
		fetcher:        fetcher,
		refreshSeconds: refreshSeconds,
		prefix:         prefix,
		now:            time.Now,
	}
}

// RefreshSeconds is the page's auto-refresh interval.
func (a *App) RefreshSeconds() int {
	return a.refreshSeconds
}

type row struct {
	Key   string
	Value string
}

type indexPage struct {
	Refresh      int
	Query        string
	Count        int
	Error        string
	Cards        []Card
	Battery      *Card
	BatteryWidth int
	Rows         []row
	RawJSON      string
	GeneratedAt  string
}

// RenderIndex renders the HTML page. Fetch failures are shown as a banner and
// never returned.
func (a *App) RenderIndex(ctx context.Context, query string) string {
	page := indexPage{
		Refresh:     a.refreshSeconds,
		Query:       query,
		GeneratedAt: a.now().Format(timeLayout),
	}

	res, err := a.fetcher.FetchMetrics(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "dashboard failed to fetch metrics", slog.Any("error", err))
		page.Error = errorPrefix + err.Error()
		res = bridge.Result{Raw: types.NewRawMetrics(), Metrics: types.Metrics{}}
	}
	page.Count = len(res.Metrics)

	filtered := filterMetrics(res.Metrics, query)
	page.Cards, page.Battery = BuildSummaryCards(filtered, a.prefix)
	if page.Battery != nil {
		pct, _ := page.Battery.Raw.Float()
		page.BatteryWidth = int(pct + 0.5)
	}
	for _, k := range filtered.SortedKeys() {
		page.Rows = append(page.Rows, row{Key: k, Value: FormatValue(filtered[k])})
	}

	raw, err := prettyJSON(res.Raw.Map())
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to encode raw payload", slog.Any("error", err))
	}
	page.RawJSON = raw

	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, page); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to render dashboard", slog.Any("error", err))
		return template.HTMLEscapeString(errorPrefix + err.Error())
	}
	return buf.String()
}

// RenderMetricsJSON returns the status and body for the JSON endpoint.
func (a *App) RenderMetricsJSON(ctx context.Context) (int, []byte) {
	res, err := a.fetcher.FetchMetrics(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "dashboard json endpoint failed", slog.Any("error", err))
		return 500, errorBody(err.Error())
	}
	body, err := json.Marshal(res)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to encode metrics", slog.Any("error", err))
		return 500, errorBody(err.Error())
	}
	return 200, body
}

func errorBody(msg string) []byte {
	b, _ := json.Marshal(struct {
		Error string `json:"error"`
	}{Error: msg})
	return b
}

func filterMetrics(metrics types.Metrics, query string) types.Metrics {
	if query == "" {
		return metrics
	}
	q := strings.ToLower(query)
	out := make(types.Metrics)
	for k, v := range metrics {
		if strings.Contains(strings.ToLower(k), q) {
			out[k] = v
		}
	}
	return out
}

// prettyJSON indents with sorted keys and leaves HTML escaping to the
// template.
func prettyJSON(m map[string]types.Value) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return "{}", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

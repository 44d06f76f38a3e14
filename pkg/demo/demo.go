// Package demo provides a synthetic inverter for running the dashboard without
// Solax credentials.
package demo

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/log"
	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/types"
)

const (
	sunriseHour = 6
	sunsetHour  = 18
)

// Settings shape the simulated plant.
type Settings struct {
	// PeakPower is the AC output in W at noon under a clear sky.
	PeakPower float64
	// BaseTotalYield is the lifetime yield in kWh before today.
	BaseTotalYield float64
	// HouseholdBaseLoad is the constant consumption in W.
	HouseholdBaseLoad float64
	// CloudVariability scales cloud coverage, 0 is always clear.
	CloudVariability float64
}

// DefaultSettings describe a typical 6 kW rooftop system.
var DefaultSettings = Settings{
	PeakPower:         6000,
	BaseTotalYield:    4800,
	HouseholdBaseLoad: 450,
	CloudVariability:  0.35,
}

// Source generates a realtime payload from the wall clock. The same instant
// always yields the same payload.
type Source struct {
	mu       sync.Mutex
	settings Settings
	now      func() time.Time
}

// New returns a Source for settings.
func New(settings Settings) *Source {
	return &Source{
		settings: settings,
		now:      time.Now,
	}
}

// GetRealtimeData returns a payload shaped like the Solax realtime result.
func (s *Source) GetRealtimeData(ctx context.Context) (types.RawMetrics, error) {
	s.mu.Lock()
	now := s.now()
	s.mu.Unlock()

	raw := s.generate(now)
	log.Ctx(ctx).DebugContext(ctx, "generated demo metrics", slog.Int("fields", raw.Len()))
	return raw, nil
}

func (s *Source) generate(now time.Time) types.RawMetrics {
	cfg := s.settings
	sunrise := time.Date(now.Year(), now.Month(), now.Day(), sunriseHour, 0, 0, 0, now.Location())
	sunset := time.Date(now.Year(), now.Month(), now.Day(), sunsetHour, 0, 0, 0, now.Location())
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	daylight := sunset.Sub(sunrise)
	isDaytime := now.After(sunrise) && now.Before(sunset)

	progress := dayProgress(now, sunrise, sunset)
	var intensity float64
	if isDaytime {
		intensity = math.Sin(math.Pi * progress)
	}
	clouds := cloudCoverage(now, cfg.CloudVariability)
	intensity = max(0, intensity*max(0.2, 1-0.7*clouds))
	acPower := intensity * cfg.PeakPower

	// fraction of today's energy produced so far
	var energyFraction float64
	if isDaytime {
		energyFraction = (1 - math.Cos(math.Pi*progress)) / 2
	}
	dailyPotential := cfg.PeakPower / 1000 * daylight.Hours() * (2 / math.Pi)
	yieldToday := dailyPotential * energyFraction * max(0.25, 1-0.5*clouds)

	consumption := householdLoad(now, cfg.HouseholdBaseLoad, acPower, isDaytime, progress)
	feedIn := max(0, acPower-consumption)
	selfConsumption := max(0, acPower-feedIn)

	consumeEnergy := cfg.HouseholdBaseLoad / 1000 * now.Sub(midnight).Hours()
	var selfEnergy float64
	if yieldToday > 0 {
		share := 0.3
		if selfConsumption > 0 {
			share = selfConsumption / max(acPower, 1)
		}
		selfEnergy = min(yieldToday, yieldToday*min(0.7, share))
	}
	consumeEnergy += selfEnergy

	soc := stateOfCharge(now, sunrise, sunset, energyFraction, clouds)
	pv1 := acPower * 0.58

	raw := types.NewRawMetrics()
	raw.Set("inverterSN", types.Text("DEMO0000000001"))
	raw.Set("uploadTime", types.Text(now.Format(time.DateTime)))
	raw.Set("acpower", types.Float(round(acPower, 2)))
	raw.Set("yieldtoday", types.Float(round(yieldToday, 3)))
	raw.Set("yieldtotal", types.Float(round(cfg.BaseTotalYield+yieldToday, 3)))
	raw.Set("feedinpower", types.Float(round(feedIn, 2)))
	raw.Set("feedinenergy", types.Float(round(max(0, yieldToday-selfEnergy), 3)))
	raw.Set("consumeenergy", types.Float(round(consumeEnergy, 3)))
	raw.Set("consumepower", types.Float(round(consumption, 2)))
	raw.Set("soc", types.Float(round(soc, 1)))
	raw.Set("batPower", types.Float(round(batteryPower(soc, consumption, feedIn, cfg.PeakPower, isDaytime), 2)))
	raw.Set("powerdc1", types.Float(round(pv1, 2)))
	raw.Set("powerdc2", types.Float(round(max(0, acPower-pv1), 2)))
	raw.Set("cloudCoverage", types.Float(round(clouds, 3)))
	raw.Set("selfConsumptionPower", types.Float(round(selfConsumption, 2)))
	raw.Set("inverterStatus", types.Text("102"))
	return raw
}

func dayProgress(now, sunrise, sunset time.Time) float64 {
	if !now.After(sunrise) {
		return 0
	}
	if !now.Before(sunset) {
		return 1
	}
	return now.Sub(sunrise).Seconds() / sunset.Sub(sunrise).Seconds()
}

func cloudCoverage(now time.Time, variability float64) float64 {
	if variability <= 0 {
		return 0
	}
	day := float64(now.YearDay() - 1)
	minutes := float64(now.Hour()*60 + now.Minute())

	daily := 0.5 + 0.5*math.Sin(minutes/1440*2*math.Pi+day/3)
	front := 0.5 + 0.5*math.Sin(day/365*2*math.Pi)
	short := 0.5 + 0.5*math.Sin(minutes/60*math.Pi+day)

	coverage := min(1, max(0, daily*0.5+front*0.3+short*0.2))
	return coverage * variability
}

func householdLoad(now time.Time, baseLoad, acPower float64, isDaytime bool, progress float64) float64 {
	load := baseLoad + 60*math.Sin(float64(now.Unix())/900+1.3)
	switch {
	case isDaytime:
		load += acPower*0.12 + baseLoad*0.1 + 140*math.Sin(math.Pi*progress)
	case progress >= 1:
		// evening
		load += baseLoad * 0.25
	default:
		load += baseLoad * 0.15
	}
	load += max(0, min(acPower*0.35, baseLoad*0.6))
	return max(200, load)
}

func stateOfCharge(now, sunrise, sunset time.Time, energyFraction, clouds float64) float64 {
	if !now.After(sunrise) {
		return max(20, 55-sunrise.Sub(now).Hours()*5)
	}
	if !now.Before(sunset) {
		return max(12, 80-now.Sub(sunset).Hours()*7)
	}
	return min(97, max(25, 25+75*energyFraction*(1-0.4*clouds)))
}

// batteryPower is positive while charging.
func batteryPower(soc, consumption, feedIn, peakPower float64, isDaytime bool) float64 {
	if isDaytime {
		if soc < 95 && feedIn > 30 {
			return min(feedIn, peakPower*0.25)
		}
		return -min(consumption*0.1, peakPower*0.05)
	}
	discharge := min(consumption*0.6, soc/100*peakPower*0.2)
	if discharge > 0 {
		return -discharge
	}
	return 0
}

func round(f float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(f*scale) / scale
}

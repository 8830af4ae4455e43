// Package selection decides where and how a deployment's compute runs: spot
// in a specific availability zone when the market justifies it, on-demand
// otherwise, always with a human-readable reason attached.
package selection

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-logr/logr"

	"github.com/geusemaker/geusemaker/api"
	"github.com/geusemaker/geusemaker/support/capacity"
	"github.com/geusemaker/geusemaker/support/pricing"
)

// spotPriceCeiling is the fraction of on-demand above which spot is not
// worth the interruption risk.
const spotPriceCeiling = 0.8

// minStability is the stability score below which the market is considered
// too volatile for spot.
const minStability = 0.5

// defaultPlacementScore stands in for zones the provider did not score.
const defaultPlacementScore = 5.0

// Selection is the placement decision for one deployment.
type Selection struct {
	InstanceType string `json:"instance_type"`
	// AvailabilityZone is set for spot selections; on-demand leaves zone
	// choice to the subnet picked later.
	AvailabilityZone string  `json:"availability_zone,omitempty"`
	IsSpot           bool    `json:"is_spot"`
	HourlyPrice      float64 `json:"hourly_price"`
	OnDemandHourly   float64 `json:"on_demand_hourly"`
	// HourlySavings is on-demand minus the selected price; zero for
	// on-demand selections.
	HourlySavings  float64 `json:"hourly_savings"`
	SavingsPercent float64 `json:"savings_percent"`
	Reason         string  `json:"reason"`
	// FallbackReason explains why a caller who wanted spot got on-demand.
	FallbackReason string         `json:"fallback_reason,omitempty"`
	Source         pricing.Source `json:"source"`
}

// Engine computes at most one selection per instance. Deploy builds one
// engine per invocation, so every log line and downstream decision sees the
// same choice.
type Engine struct {
	analyzer *capacity.Analyzer
	log      logr.Logger

	mu     sync.Mutex
	cached *Selection
}

// NewEngine builds a selection engine on top of the capacity analyzer.
func NewEngine(analyzer *capacity.Analyzer, log logr.Logger) *Engine {
	return &Engine{analyzer: analyzer, log: log}
}

// Select returns the placement decision for cfg, computing it on first call
// and replaying it afterwards.
func (e *Engine) Select(ctx context.Context, cfg api.DeploymentConfig) (*Selection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cached != nil {
		return e.cached, nil
	}
	sel, err := e.decide(ctx, cfg)
	if err != nil {
		return nil, err
	}
	e.cached = sel
	return sel, nil
}

func (e *Engine) decide(ctx context.Context, cfg api.DeploymentConfig) (*Selection, error) {
	analysis, err := e.analyzer.Analyze(ctx, cfg.InstanceType)
	if err != nil {
		return nil, fmt.Errorf("cannot analyze spot market for %s: %w", cfg.InstanceType, err)
	}

	onDemand := func(reason, fallback string) *Selection {
		return &Selection{
			InstanceType:   cfg.InstanceType,
			IsSpot:         false,
			HourlyPrice:    analysis.OnDemandPrice,
			OnDemandHourly: analysis.OnDemandPrice,
			Reason:         reason,
			FallbackReason: fallback,
			Source:         analysis.Source,
		}
	}

	if !cfg.UseSpot {
		return onDemand("user requested on-demand", ""), nil
	}
	if analysis.LowestPrice >= spotPriceCeiling*analysis.OnDemandPrice {
		return onDemand("on-demand", fmt.Sprintf("spot price ≥ 80%% of on-demand (%.4f vs %.4f)", analysis.LowestPrice, analysis.OnDemandPrice)), nil
	}
	if analysis.StabilityScore < minStability {
		return onDemand("on-demand", fmt.Sprintf("volatility too high (stability %.2f)", analysis.StabilityScore)), nil
	}

	candidates := viableZones(analysis)
	attempted := make([]string, 0, len(candidates))
	for _, zone := range candidates {
		attempted = append(attempted, zone)
		ok, probeErr := e.analyzer.HasCapacity(ctx, cfg.InstanceType, zone)
		if probeErr != nil {
			return nil, probeErr
		}
		if !ok {
			e.log.V(1).Info("No capacity in zone, trying next", "zone", zone)
			continue
		}
		price := analysis.PricesByAZ[zone]
		return &Selection{
			InstanceType:     cfg.InstanceType,
			AvailabilityZone: zone,
			IsSpot:           true,
			HourlyPrice:      price,
			OnDemandHourly:   analysis.OnDemandPrice,
			HourlySavings:    analysis.OnDemandPrice - price,
			SavingsPercent:   (analysis.OnDemandPrice - price) / analysis.OnDemandPrice * 100,
			Reason:           fmt.Sprintf("spot in %s at %.4f/hr (%.0f%% below on-demand)", zone, price, (analysis.OnDemandPrice-price)/analysis.OnDemandPrice*100),
			Source:           analysis.Source,
		}, nil
	}

	return onDemand("on-demand",
		fmt.Sprintf("capacity unavailable in all viable AZs (%s)", strings.Join(attempted, ", "))), nil
}

// viableZones returns the zones priced below the spot ceiling, best
// placement score first and cheapest within equal scores.
func viableZones(analysis *capacity.Analysis) []string {
	var zones []string
	for zone, price := range analysis.PricesByAZ {
		if price < spotPriceCeiling*analysis.OnDemandPrice {
			zones = append(zones, zone)
		}
	}
	score := func(zone string) float64 {
		if s, ok := analysis.PlacementScores[zone]; ok {
			return s
		}
		return defaultPlacementScore
	}
	sort.Slice(zones, func(i, j int) bool {
		si, sj := score(zones[i]), score(zones[j])
		if si != sj {
			return si > sj
		}
		pi, pj := analysis.PricesByAZ[zones[i]], analysis.PricesByAZ[zones[j]]
		if pi != pj {
			return pi < pj
		}
		return zones[i] < zones[j]
	})
	return zones
}

// Package capacity turns raw spot market data into a per-zone picture the
// selection engine can act on: recent prices, stability derived from price
// variance, provider placement scores, and a dry-run capacity probe.
package capacity

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/go-logr/logr"

	"github.com/geusemaker/geusemaker/support/awsapi"
	"github.com/geusemaker/geusemaker/support/pricing"
)

// stabilityWindow is how far back price variance is measured.
const stabilityWindow = 24 * time.Hour

// Analysis is the spot market picture for one (instance type, region) pair.
type Analysis struct {
	InstanceType string `json:"instance_type"`
	Region       string `json:"region"`
	// PricesByAZ holds the most recent observed price per zone.
	PricesByAZ map[string]float64 `json:"prices_by_az"`
	// RecommendedAZ is the cheapest zone priced below on-demand, or empty
	// when spot never undercuts it.
	RecommendedAZ string  `json:"recommended_az,omitempty"`
	LowestPrice   float64 `json:"lowest_price"`
	// StabilityScore is the best per-zone stability, in [0,1].
	StabilityScore float64            `json:"stability_score"`
	StabilityByAZ  map[string]float64 `json:"stability_by_az"`
	OnDemandPrice  float64            `json:"on_demand_price"`
	// SavingsPercent compares the lowest spot price against on-demand.
	SavingsPercent  float64            `json:"savings_percent"`
	PlacementScores map[string]float64 `json:"placement_scores"`
	Source          pricing.Source     `json:"source"`
}

// Analyzer builds analyses and probes capacity for one region.
type Analyzer struct {
	region string
	ec2    awsapi.EC2API
	prices *pricing.Service
	log    logr.Logger

	// ResolveImage supplies a real image id for capacity dry-runs; the
	// provider rejects dry-run launches against fictional images.
	ResolveImage func(ctx context.Context) (string, error)

	probeCache *pricing.Cache
	zoneCache  *pricing.Cache
	now        func() time.Time
}

// DefaultProbeTTL bounds how long a capacity probe result is trusted.
const DefaultProbeTTL = 120 * time.Second

// NewAnalyzer builds an Analyzer for region.
func NewAnalyzer(region string, ec2Client awsapi.EC2API, prices *pricing.Service, resolveImage func(ctx context.Context) (string, error), log logr.Logger) *Analyzer {
	return &Analyzer{
		region:       region,
		ec2:          ec2Client,
		prices:       prices,
		log:          log,
		ResolveImage: resolveImage,
		probeCache:   pricing.NewCache(DefaultProbeTTL),
		zoneCache:    pricing.NewCache(pricing.DefaultTTL),
		now:          time.Now,
	}
}

// Analyze assembles the spot market picture for instanceType.
func (a *Analyzer) Analyze(ctx context.Context, instanceType string) (*Analysis, error) {
	onDemand := a.prices.OnDemandHourly(ctx, instanceType)

	samples, source, err := a.spotSamples(ctx, instanceType)
	if err != nil {
		return nil, err
	}
	if onDemand.Source == pricing.SourceEstimated {
		source = pricing.SourceEstimated
	}

	analysis := &Analysis{
		InstanceType:    instanceType,
		Region:          a.region,
		PricesByAZ:      latestPriceByZone(samples),
		StabilityByAZ:   stabilityByZone(samples, a.now().Add(-stabilityWindow)),
		OnDemandPrice:   onDemand.Price,
		PlacementScores: a.PlacementScores(ctx, instanceType),
		Source:          source,
	}

	analysis.StabilityScore = 0
	for _, score := range analysis.StabilityByAZ {
		if score > analysis.StabilityScore {
			analysis.StabilityScore = score
		}
	}

	lowest := math.Inf(1)
	lowestZone := ""
	for zone, price := range analysis.PricesByAZ {
		if price < lowest || (price == lowest && zone < lowestZone) {
			lowest, lowestZone = price, zone
		}
	}
	if !math.IsInf(lowest, 1) {
		analysis.LowestPrice = lowest
		if lowest < onDemand.Price {
			analysis.RecommendedAZ = lowestZone
			analysis.SavingsPercent = (onDemand.Price - lowest) / onDemand.Price * 100
		}
	}
	return analysis, nil
}

// spotSamples reads the stability window of spot history, falling back to
// the pricing service's one-hour (possibly synthesised) view when the wider
// query fails.
func (a *Analyzer) spotSamples(ctx context.Context, instanceType string) ([]pricing.SpotSample, pricing.Source, error) {
	out, err := a.ec2.DescribeSpotPriceHistory(ctx, &ec2.DescribeSpotPriceHistoryInput{
		InstanceTypes:       []ec2types.InstanceType{ec2types.InstanceType(instanceType)},
		ProductDescriptions: []string{"Linux/UNIX"},
		StartTime:           aws.Time(a.now().Add(-stabilityWindow)),
	})
	if err != nil {
		a.log.V(1).Info("Wide spot history query failed, using recent window", "reason", err.Error())
		return a.prices.SpotHistory(ctx, instanceType)
	}
	var samples []pricing.SpotSample
	for _, p := range out.SpotPriceHistory {
		var price float64
		if _, scanErr := fmt.Sscanf(aws.ToString(p.SpotPrice), "%f", &price); scanErr != nil || price <= 0 {
			continue
		}
		samples = append(samples, pricing.SpotSample{
			AvailabilityZone: aws.ToString(p.AvailabilityZone),
			Price:            price,
			Timestamp:        aws.ToTime(p.Timestamp),
		})
	}
	if len(samples) == 0 {
		return a.prices.SpotHistory(ctx, instanceType)
	}
	return samples, pricing.SourceLive, nil
}

// latestPriceByZone keeps the most recent sample per zone.
func latestPriceByZone(samples []pricing.SpotSample) map[string]float64 {
	latest := map[string]pricing.SpotSample{}
	for _, s := range samples {
		if prev, ok := latest[s.AvailabilityZone]; !ok || s.Timestamp.After(prev.Timestamp) {
			latest[s.AvailabilityZone] = s
		}
	}
	prices := make(map[string]float64, len(latest))
	for zone, s := range latest {
		prices[zone] = s.Price
	}
	return prices
}

// stabilityByZone scores each zone by how steady its prices were inside the
// window: 1 − coefficient of variation, floored at zero. Zones without
// enough samples to measure default to fully stable.
func stabilityByZone(samples []pricing.SpotSample, cutoff time.Time) map[string]float64 {
	byZone := map[string][]float64{}
	zones := map[string]struct{}{}
	for _, s := range samples {
		zones[s.AvailabilityZone] = struct{}{}
		if s.Timestamp.Before(cutoff) {
			continue
		}
		byZone[s.AvailabilityZone] = append(byZone[s.AvailabilityZone], s.Price)
	}

	scores := map[string]float64{}
	for zone := range zones {
		prices := byZone[zone]
		if len(prices) < 2 {
			scores[zone] = 1.0
			continue
		}
		mean := 0.0
		for _, p := range prices {
			mean += p
		}
		mean /= float64(len(prices))
		variance := 0.0
		for _, p := range prices {
			variance += (p - mean) * (p - mean)
		}
		variance /= float64(len(prices))
		scores[zone] = math.Max(0, 1-math.Sqrt(variance)/mean)
	}
	return scores
}

// PlacementScores asks the provider to score each zone for the given
// instance type, in [1,10]. Failures return an empty map; a missing score
// must never block selection.
func (a *Analyzer) PlacementScores(ctx context.Context, instanceType string) map[string]float64 {
	out, err := a.ec2.GetSpotPlacementScores(ctx, &ec2.GetSpotPlacementScoresInput{
		InstanceTypes:          []string{instanceType},
		TargetCapacity:         aws.Int32(1),
		SingleAvailabilityZone: aws.Bool(true),
		RegionNames:            []string{a.region},
	})
	if err != nil {
		a.log.V(1).Info("Placement scores unavailable", "reason", err.Error())
		return map[string]float64{}
	}
	zoneNames, err := a.zoneIDToName(ctx)
	if err != nil {
		a.log.V(1).Info("Cannot resolve zone ids", "reason", err.Error())
		return map[string]float64{}
	}
	scores := map[string]float64{}
	for _, s := range out.SpotPlacementScores {
		name, ok := zoneNames[aws.ToString(s.AvailabilityZoneId)]
		if !ok {
			continue
		}
		scores[name] = float64(aws.ToInt32(s.Score))
	}
	return scores
}

// zoneIDToName maps the region's zone ids to zone names, cached for the
// process; the mapping is static per account.
func (a *Analyzer) zoneIDToName(ctx context.Context) (map[string]string, error) {
	if v, ok := a.zoneCache.Get("zones/" + a.region); ok {
		return v.(map[string]string), nil
	}
	out, err := a.ec2.DescribeAvailabilityZones(ctx, &ec2.DescribeAvailabilityZonesInput{})
	if err != nil {
		return nil, fmt.Errorf("cannot list availability zones: %w", err)
	}
	names := map[string]string{}
	for _, z := range out.AvailabilityZones {
		names[aws.ToString(z.ZoneId)] = aws.ToString(z.ZoneName)
	}
	a.zoneCache.Put("zones/"+a.region, names)
	return names, nil
}

// ZoneNames returns the region's zone names in lexical order.
func (a *Analyzer) ZoneNames(ctx context.Context) ([]string, error) {
	mapping, err := a.zoneIDToName(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(mapping))
	for _, name := range mapping {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

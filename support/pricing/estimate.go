package pricing

import (
	"context"
	"time"

	"github.com/geusemaker/geusemaker/api"
)

// Assumptions behind the monthly estimate. They deliberately err high so
// budget checks trip before the bill does.
const (
	hoursPerMonth = 730
	// assumedStorageGB is the working-set size priced for the shared
	// filesystem.
	assumedStorageGB = 20
	// assumedLCUs and the CDN transfer figures model a light production
	// workload.
	assumedLCUs        = 1.0
	assumedCDNGBOut    = 50
	assumedCDNRequests = 500_000
)

// EstimateMonthly fills a cost-tracking record for cfg given the hourly
// compute price selection settled on. The weakest source among the inputs
// tags the whole record.
func (s *Service) EstimateMonthly(ctx context.Context, cfg api.DeploymentConfig, hourlyCompute float64, isSpot bool, spotHourly, onDemandHourly float64, source Source) api.CostTracking {
	storage := s.StorageGBMonth(ctx, StorageStandard)
	if storage.Source == SourceEstimated {
		source = SourceEstimated
	}

	cost := api.CostTracking{
		InstanceType:         cfg.InstanceType,
		IsSpot:               isSpot,
		OnDemandPricePerHour: onDemandHourly,
		HourlyCompute:        hourlyCompute,
		StorageMonthly:       storage.Price * assumedStorageGB,
		Currency:             "USD",
		Source:               string(source),
		LastUpdated:          time.Now().UTC(),
	}
	if isSpot {
		cost.SpotPricePerHour = spotHourly
	}
	if cfg.EnableLoadBalancer {
		lb := s.LoadBalancerPricing()
		cost.LBMonthly = (lb.Hourly + lb.PerLCU*assumedLCUs) * hoursPerMonth
	}
	if cfg.EnableCDN {
		cdn := s.CDNPricing()
		cost.CDNMonthly = cdn.PerGB*assumedCDNGBOut + cdn.PerTenThousandRequests*assumedCDNRequests/10_000
	}
	cost.EstimatedMonthly = cost.HourlyCompute*hoursPerMonth + cost.StorageMonthly + cost.LBMonthly + cost.CDNMonthly
	return cost
}

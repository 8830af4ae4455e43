package pricing

// Load balancer and CDN prices change rarely and have no per-instance
// dimension worth a catalogue round-trip, so they live in static regional
// tables. Unlisted regions use the us-east-1 figures.

// LBPricing is the hourly cost structure of one application load balancer.
type LBPricing struct {
	Hourly float64 `json:"hourly"`
	PerLCU float64 `json:"per_lcu"`
}

// CDNPricing is the per-class transfer cost structure of a distribution.
type CDNPricing struct {
	// PerGB is the data-transfer-out price for the region's price class.
	PerGB float64 `json:"per_gb"`
	// PerTenThousandRequests is the HTTPS request price.
	PerTenThousandRequests float64 `json:"per_10k_requests"`
}

var lbPrices = map[string]LBPricing{
	"us-east-1":      {Hourly: 0.0225, PerLCU: 0.008},
	"us-east-2":      {Hourly: 0.0225, PerLCU: 0.008},
	"us-west-1":      {Hourly: 0.0252, PerLCU: 0.008},
	"us-west-2":      {Hourly: 0.0225, PerLCU: 0.008},
	"eu-west-1":      {Hourly: 0.0252, PerLCU: 0.008},
	"eu-central-1":   {Hourly: 0.027, PerLCU: 0.008},
	"ap-southeast-1": {Hourly: 0.0252, PerLCU: 0.008},
	"ap-northeast-1": {Hourly: 0.0243, PerLCU: 0.008},
	"sa-east-1":      {Hourly: 0.0342, PerLCU: 0.008},
}

var cdnPrices = map[string]CDNPricing{
	"us-east-1":      {PerGB: 0.085, PerTenThousandRequests: 0.01},
	"us-east-2":      {PerGB: 0.085, PerTenThousandRequests: 0.01},
	"us-west-1":      {PerGB: 0.085, PerTenThousandRequests: 0.01},
	"us-west-2":      {PerGB: 0.085, PerTenThousandRequests: 0.01},
	"eu-west-1":      {PerGB: 0.085, PerTenThousandRequests: 0.012},
	"eu-central-1":   {PerGB: 0.085, PerTenThousandRequests: 0.012},
	"ap-southeast-1": {PerGB: 0.12, PerTenThousandRequests: 0.012},
	"ap-northeast-1": {PerGB: 0.114, PerTenThousandRequests: 0.012},
	"sa-east-1":      {PerGB: 0.11, PerTenThousandRequests: 0.022},
}

// LoadBalancerPricing returns the static cost structure for the service's
// region.
func (s *Service) LoadBalancerPricing() LBPricing {
	if p, ok := lbPrices[s.region]; ok {
		return p
	}
	return lbPrices["us-east-1"]
}

// CDNPricing returns the static distribution cost structure for the
// service's region.
func (s *Service) CDNPricing() CDNPricing {
	if p, ok := cdnPrices[s.region]; ok {
		return p
	}
	return cdnPrices["us-east-1"]
}

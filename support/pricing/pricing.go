// Package pricing resolves hourly and monthly prices for the resources a
// deployment uses. Live catalogue queries sit behind a shared TTL cache;
// when the catalogue is unreachable or returns nonsense, the engine degrades
// to conservative built-in figures and tags the result as estimated.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awspricing "github.com/aws/aws-sdk-go-v2/service/pricing"
	pricingtypes "github.com/aws/aws-sdk-go-v2/service/pricing/types"
	"github.com/go-logr/logr"

	"github.com/geusemaker/geusemaker/support/awsapi"
)

// Source records where a price came from.
type Source string

const (
	// SourceLive means the figure was fetched from the provider catalogue
	// during this call.
	SourceLive Source = "live"
	// SourceCached means the figure came from an unexpired cache entry.
	SourceCached Source = "cached"
	// SourceEstimated means the catalogue was unavailable and a built-in
	// figure was substituted.
	SourceEstimated Source = "estimated"
)

// Result is the envelope every pricing lookup returns.
type Result struct {
	Kind        string    `json:"kind"`
	Region      string    `json:"region"`
	Unit        string    `json:"unit"`
	Price       float64   `json:"price"`
	Source      Source    `json:"source"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// Service answers pricing questions for one region. The cache is shared
// across sub-services so repeated selection runs inside one invocation hit
// the catalogue at most once per key.
type Service struct {
	region  string
	catalog awsapi.PricingAPI
	ec2     awsapi.EC2API
	cache   *Cache
	log     logr.Logger
	now     func() time.Time
}

// New builds a pricing service for region. A nil cache gets a fresh one with
// the default TTL.
func New(region string, catalog awsapi.PricingAPI, ec2 awsapi.EC2API, cache *Cache, log logr.Logger) *Service {
	if cache == nil {
		cache = NewCache(DefaultTTL)
	}
	return &Service{
		region:  region,
		catalog: catalog,
		ec2:     ec2,
		cache:   cache,
		log:     log,
		now:     time.Now,
	}
}

// regionLocations maps region codes to the location long-names the price
// catalogue indexes by.
var regionLocations = map[string]string{
	"us-east-1":      "US East (N. Virginia)",
	"us-east-2":      "US East (Ohio)",
	"us-west-1":      "US West (N. California)",
	"us-west-2":      "US West (Oregon)",
	"ca-central-1":   "Canada (Central)",
	"eu-west-1":      "EU (Ireland)",
	"eu-west-2":      "EU (London)",
	"eu-west-3":      "EU (Paris)",
	"eu-central-1":   "EU (Frankfurt)",
	"eu-north-1":     "EU (Stockholm)",
	"ap-southeast-1": "Asia Pacific (Singapore)",
	"ap-southeast-2": "Asia Pacific (Sydney)",
	"ap-northeast-1": "Asia Pacific (Tokyo)",
	"ap-northeast-2": "Asia Pacific (Seoul)",
	"ap-south-1":     "Asia Pacific (Mumbai)",
	"sa-east-1":      "South America (Sao Paulo)",
}

// fallbackHourly is the conservative on-demand table used when the
// catalogue cannot be reached. Figures track us-east-1 list prices.
var fallbackHourly = map[string]float64{
	"t3.micro":     0.0104,
	"t3.small":     0.0208,
	"t3.medium":    0.0416,
	"t3.large":     0.0832,
	"t3.xlarge":    0.1664,
	"t3.2xlarge":   0.3328,
	"m5.large":     0.096,
	"m5.xlarge":    0.192,
	"m5.2xlarge":   0.384,
	"c5.large":     0.085,
	"c5.xlarge":    0.17,
	"r5.large":     0.126,
	"g4dn.xlarge":  0.526,
	"g4dn.2xlarge": 0.752,
	"g5.xlarge":    1.006,
	"g5.2xlarge":   1.212,
	"g6.xlarge":    0.805,
	"p3.2xlarge":   3.06,
}

// defaultHourly covers instance types absent from the fallback table.
const defaultHourly = 0.10

// OnDemandHourly returns the on-demand hourly price for instanceType. It
// never fails: catalogue errors degrade to the fallback table with an
// estimated source.
func (s *Service) OnDemandHourly(ctx context.Context, instanceType string) Result {
	key := fmt.Sprintf("ondemand/%s/%s", s.region, instanceType)
	if v, ok := s.cache.Get(key); ok {
		r := v.(Result)
		r.Source = SourceCached
		return r
	}

	price, err := s.catalogOnDemand(ctx, instanceType)
	if err != nil {
		s.log.V(1).Info("Falling back to estimated on-demand price", "instanceType", instanceType, "reason", err.Error())
		return s.estimatedOnDemand(instanceType)
	}
	r := Result{
		Kind:        "compute-ondemand",
		Region:      s.region,
		Unit:        "hour",
		Price:       price,
		Source:      SourceLive,
		RetrievedAt: s.now().UTC(),
	}
	s.cache.Put(key, r)
	return r
}

func (s *Service) estimatedOnDemand(instanceType string) Result {
	price, ok := fallbackHourly[instanceType]
	if !ok {
		price = defaultHourly
	}
	return Result{
		Kind:        "compute-ondemand",
		Region:      s.region,
		Unit:        "hour",
		Price:       price,
		Source:      SourceEstimated,
		RetrievedAt: s.now().UTC(),
	}
}

func (s *Service) catalogOnDemand(ctx context.Context, instanceType string) (float64, error) {
	location, ok := regionLocations[s.region]
	if !ok {
		return 0, fmt.Errorf("no catalogue location for region %s", s.region)
	}
	out, err := s.catalog.GetProducts(ctx, &awspricing.GetProductsInput{
		ServiceCode: aws.String("AmazonEC2"),
		MaxResults:  aws.Int32(10),
		Filters: []pricingtypes.Filter{
			catalogFilter("instanceType", instanceType),
			catalogFilter("location", location),
			catalogFilter("operatingSystem", "Linux"),
			catalogFilter("preInstalledSw", "NA"),
			catalogFilter("tenancy", "Shared"),
			catalogFilter("capacitystatus", "Used"),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("cannot query price catalogue: %w", err)
	}
	for _, doc := range out.PriceList {
		price, parseErr := parseOnDemandUSD([]byte(doc))
		if parseErr != nil {
			continue
		}
		if price <= 0 {
			return 0, fmt.Errorf("catalogue returned non-positive price %v for %s", price, instanceType)
		}
		return price, nil
	}
	return 0, fmt.Errorf("no on-demand price for %s in %s", instanceType, s.region)
}

func catalogFilter(field, value string) pricingtypes.Filter {
	return pricingtypes.Filter{
		Type:  pricingtypes.FilterTypeTermMatch,
		Field: aws.String(field),
		Value: aws.String(value),
	}
}

// parseOnDemandUSD digs the USD rate out of the first on-demand term of one
// catalogue product document.
func parseOnDemandUSD(doc []byte) (float64, error) {
	var product struct {
		Terms struct {
			OnDemand map[string]struct {
				PriceDimensions map[string]struct {
					PricePerUnit struct {
						USD string `json:"USD"`
					} `json:"pricePerUnit"`
				} `json:"priceDimensions"`
			} `json:"OnDemand"`
		} `json:"terms"`
	}
	if err := json.Unmarshal(doc, &product); err != nil {
		return 0, fmt.Errorf("cannot parse catalogue document: %w", err)
	}
	for _, term := range product.Terms.OnDemand {
		for _, dim := range term.PriceDimensions {
			var price float64
			if _, err := fmt.Sscanf(dim.PricePerUnit.USD, "%f", &price); err != nil {
				return 0, fmt.Errorf("cannot parse price %q: %w", dim.PricePerUnit.USD, err)
			}
			return price, nil
		}
	}
	return 0, fmt.Errorf("document has no on-demand term")
}

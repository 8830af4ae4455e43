package pricing

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awspricing "github.com/aws/aws-sdk-go-v2/service/pricing"
	pricingtypes "github.com/aws/aws-sdk-go-v2/service/pricing/types"
)

// StorageClass selects which filesystem storage tier to price.
type StorageClass string

const (
	StorageStandard         StorageClass = "standard"
	StorageInfrequentAccess StorageClass = "infrequent-access"
)

// Typed defaults used when the catalogue is unavailable, in USD per
// GB-month.
var storageDefaults = map[StorageClass]float64{
	StorageStandard:         0.30,
	StorageInfrequentAccess: 0.025,
}

// StorageGBMonth returns the per-GB-month filesystem price for class. Like
// the compute lookup it never fails; catalogue errors degrade to the typed
// defaults.
func (s *Service) StorageGBMonth(ctx context.Context, class StorageClass) Result {
	key := fmt.Sprintf("efs/%s/%s", s.region, class)
	if v, ok := s.cache.Get(key); ok {
		r := v.(Result)
		r.Source = SourceCached
		return r
	}

	price, err := s.catalogStorage(ctx, class)
	if err != nil {
		s.log.V(1).Info("Falling back to estimated storage price", "class", class, "reason", err.Error())
		return Result{
			Kind:        "efs-storage",
			Region:      s.region,
			Unit:        "gb-month",
			Price:       storageDefaults[class],
			Source:      SourceEstimated,
			RetrievedAt: s.now().UTC(),
		}
	}
	r := Result{
		Kind:        "efs-storage",
		Region:      s.region,
		Unit:        "gb-month",
		Price:       price,
		Source:      SourceLive,
		RetrievedAt: s.now().UTC(),
	}
	s.cache.Put(key, r)
	return r
}

func (s *Service) catalogStorage(ctx context.Context, class StorageClass) (float64, error) {
	location, ok := regionLocations[s.region]
	if !ok {
		return 0, fmt.Errorf("no catalogue location for region %s", s.region)
	}
	storageClass := "General Purpose"
	if class == StorageInfrequentAccess {
		storageClass = "Infrequent Access"
	}
	out, err := s.catalog.GetProducts(ctx, &awspricing.GetProductsInput{
		ServiceCode: aws.String("AmazonEFS"),
		MaxResults:  aws.Int32(10),
		Filters: []pricingtypes.Filter{
			catalogFilter("location", location),
			catalogFilter("storageClass", storageClass),
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
		if price > 0 {
			return price, nil
		}
	}
	return 0, fmt.Errorf("no storage price for %s in %s", class, s.region)
}

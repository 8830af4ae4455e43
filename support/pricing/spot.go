package pricing

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// spotHistoryLimit bounds how many samples one lookup returns.
const spotHistoryLimit = 50

// spotSynthesisDiscount is the assumed spot discount when the market
// returns no history at all.
const spotSynthesisDiscount = 0.40

// SpotSample is one observed (or synthesised) spot price.
type SpotSample struct {
	AvailabilityZone string    `json:"availability_zone"`
	Price            float64   `json:"price"`
	Timestamp        time.Time `json:"timestamp"`
}

// SpotHistory returns up to 50 of the most recent Linux/UNIX spot prices
// across the region's availability zones from the last hour. An empty
// market yields one synthesised sample at a fixed discount off on-demand in
// the region's first zone, tagged estimated.
func (s *Service) SpotHistory(ctx context.Context, instanceType string) ([]SpotSample, Source, error) {
	key := fmt.Sprintf("spot/%s/%s", s.region, instanceType)
	if v, ok := s.cache.Get(key); ok {
		return v.([]SpotSample), SourceCached, nil
	}

	out, err := s.ec2.DescribeSpotPriceHistory(ctx, &ec2.DescribeSpotPriceHistoryInput{
		InstanceTypes:       []ec2types.InstanceType{ec2types.InstanceType(instanceType)},
		ProductDescriptions: []string{"Linux/UNIX"},
		StartTime:           aws.Time(s.now().Add(-time.Hour)),
		MaxResults:          aws.Int32(spotHistoryLimit),
	})
	if err != nil {
		return nil, SourceEstimated, fmt.Errorf("cannot read spot price history: %w", err)
	}

	samples := make([]SpotSample, 0, len(out.SpotPriceHistory))
	for _, p := range out.SpotPriceHistory {
		price, parseErr := strconv.ParseFloat(aws.ToString(p.SpotPrice), 64)
		if parseErr != nil || price <= 0 {
			continue
		}
		samples = append(samples, SpotSample{
			AvailabilityZone: aws.ToString(p.AvailabilityZone),
			Price:            price,
			Timestamp:        aws.ToTime(p.Timestamp),
		})
		if len(samples) == spotHistoryLimit {
			break
		}
	}

	if len(samples) == 0 {
		synthesised, synthErr := s.synthesiseSpot(ctx, instanceType)
		if synthErr != nil {
			return nil, SourceEstimated, synthErr
		}
		return synthesised, SourceEstimated, nil
	}

	s.cache.Put(key, samples)
	return samples, SourceLive, nil
}

// synthesiseSpot fabricates one sample at the assumed discount in the
// region's first availability zone, so selection can still reason about a
// quiet market.
func (s *Service) synthesiseSpot(ctx context.Context, instanceType string) ([]SpotSample, error) {
	zones, err := s.ec2.DescribeAvailabilityZones(ctx, &ec2.DescribeAvailabilityZonesInput{})
	if err != nil {
		return nil, fmt.Errorf("cannot list availability zones: %w", err)
	}
	if len(zones.AvailabilityZones) == 0 {
		return nil, fmt.Errorf("region %s reports no availability zones", s.region)
	}
	onDemand := s.OnDemandHourly(ctx, instanceType)
	sample := SpotSample{
		AvailabilityZone: aws.ToString(zones.AvailabilityZones[0].ZoneName),
		Price:            onDemand.Price * (1 - spotSynthesisDiscount),
		Timestamp:        s.now().UTC(),
	}
	s.log.V(1).Info("No spot history, synthesising sample", "instanceType", instanceType, "zone", sample.AvailabilityZone, "price", sample.Price)
	return []SpotSample{sample}, nil
}

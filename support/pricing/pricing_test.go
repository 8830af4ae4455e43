package pricing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	awspricing "github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geusemaker/geusemaker/cmd/log"
	"github.com/geusemaker/geusemaker/support/awsapi/fake"
)

func catalogDoc(usd string) string {
	return fmt.Sprintf(`{
		"terms": {
			"OnDemand": {
				"SKU.TERM": {
					"priceDimensions": {
						"SKU.TERM.DIM": {"pricePerUnit": {"USD": %q}}
					}
				}
			}
		}
	}`, usd)
}

func TestOnDemandHourly(t *testing.T) {
	t.Run("When the catalogue answers it should return the live price", func(t *testing.T) {
		catalog := &fake.Pricing{
			GetProductsFn: func(_ context.Context, in *awspricing.GetProductsInput) (*awspricing.GetProductsOutput, error) {
				return &awspricing.GetProductsOutput{PriceList: []string{catalogDoc("0.0416000000")}}, nil
			},
		}
		svc := New("us-east-1", catalog, nil, nil, log.Discard())
		r := svc.OnDemandHourly(context.Background(), "t3.medium")
		assert.Equal(t, SourceLive, r.Source)
		assert.InDelta(t, 0.0416, r.Price, 1e-9)
	})

	t.Run("When queried twice it should serve the second from cache", func(t *testing.T) {
		calls := 0
		catalog := &fake.Pricing{
			GetProductsFn: func(_ context.Context, in *awspricing.GetProductsInput) (*awspricing.GetProductsOutput, error) {
				calls++
				return &awspricing.GetProductsOutput{PriceList: []string{catalogDoc("0.0416")}}, nil
			},
		}
		svc := New("us-east-1", catalog, nil, nil, log.Discard())
		_ = svc.OnDemandHourly(context.Background(), "t3.medium")
		r := svc.OnDemandHourly(context.Background(), "t3.medium")
		assert.Equal(t, SourceCached, r.Source)
		assert.Equal(t, 1, calls)
	})

	t.Run("When the catalogue fails it should fall back to the family table", func(t *testing.T) {
		catalog := &fake.Pricing{
			GetProductsFn: func(_ context.Context, in *awspricing.GetProductsInput) (*awspricing.GetProductsOutput, error) {
				return nil, fmt.Errorf("throttled")
			},
		}
		svc := New("us-east-1", catalog, nil, nil, log.Discard())
		r := svc.OnDemandHourly(context.Background(), "t3.medium")
		assert.Equal(t, SourceEstimated, r.Source)
		assert.InDelta(t, 0.0416, r.Price, 1e-9)
	})

	t.Run("When the catalogue returns a non-positive price it should estimate", func(t *testing.T) {
		catalog := &fake.Pricing{
			GetProductsFn: func(_ context.Context, in *awspricing.GetProductsInput) (*awspricing.GetProductsOutput, error) {
				return &awspricing.GetProductsOutput{PriceList: []string{catalogDoc("0")}}, nil
			},
		}
		svc := New("us-east-1", catalog, nil, nil, log.Discard())
		r := svc.OnDemandHourly(context.Background(), "unknown.type")
		assert.Equal(t, SourceEstimated, r.Source)
		assert.InDelta(t, defaultHourly, r.Price, 1e-9)
	})
}

func TestSpotHistory(t *testing.T) {
	t.Run("When the market has samples it should return them newest-bounded", func(t *testing.T) {
		ec2Client := &fake.EC2{
			DescribeSpotPriceHistoryFn: func(_ context.Context, in *ec2.DescribeSpotPriceHistoryInput) (*ec2.DescribeSpotPriceHistoryOutput, error) {
				return &ec2.DescribeSpotPriceHistoryOutput{SpotPriceHistory: []ec2types.SpotPrice{
					{AvailabilityZone: aws.String("us-east-1a"), SpotPrice: aws.String("0.0125"), Timestamp: aws.Time(time.Now())},
					{AvailabilityZone: aws.String("us-east-1b"), SpotPrice: aws.String("0.0150"), Timestamp: aws.Time(time.Now())},
				}}, nil
			},
		}
		svc := New("us-east-1", nil, ec2Client, nil, log.Discard())
		samples, source, err := svc.SpotHistory(context.Background(), "t3.medium")
		require.NoError(t, err)
		assert.Equal(t, SourceLive, source)
		require.Len(t, samples, 2)
		assert.Equal(t, "us-east-1a", samples[0].AvailabilityZone)
		assert.InDelta(t, 0.0125, samples[0].Price, 1e-9)
	})

	t.Run("When the market is empty it should synthesise one discounted sample", func(t *testing.T) {
		catalog := &fake.Pricing{
			GetProductsFn: func(_ context.Context, in *awspricing.GetProductsInput) (*awspricing.GetProductsOutput, error) {
				return &awspricing.GetProductsOutput{PriceList: []string{catalogDoc("0.10")}}, nil
			},
		}
		ec2Client := &fake.EC2{
			DescribeSpotPriceHistoryFn: func(_ context.Context, in *ec2.DescribeSpotPriceHistoryInput) (*ec2.DescribeSpotPriceHistoryOutput, error) {
				return &ec2.DescribeSpotPriceHistoryOutput{}, nil
			},
			DescribeAvailabilityZonesFn: func(_ context.Context, in *ec2.DescribeAvailabilityZonesInput) (*ec2.DescribeAvailabilityZonesOutput, error) {
				return &ec2.DescribeAvailabilityZonesOutput{AvailabilityZones: []ec2types.AvailabilityZone{
					{ZoneName: aws.String("us-east-1a")},
					{ZoneName: aws.String("us-east-1b")},
				}}, nil
			},
		}
		svc := New("us-east-1", catalog, ec2Client, nil, log.Discard())
		samples, source, err := svc.SpotHistory(context.Background(), "t3.medium")
		require.NoError(t, err)
		assert.Equal(t, SourceEstimated, source)
		require.Len(t, samples, 1)
		assert.Equal(t, "us-east-1a", samples[0].AvailabilityZone)
		assert.InDelta(t, 0.06, samples[0].Price, 1e-9)
	})
}

func TestStorageGBMonth(t *testing.T) {
	t.Run("When the catalogue fails it should return the typed defaults", func(t *testing.T) {
		catalog := &fake.Pricing{
			GetProductsFn: func(_ context.Context, in *awspricing.GetProductsInput) (*awspricing.GetProductsOutput, error) {
				return nil, fmt.Errorf("unavailable")
			},
		}
		svc := New("us-east-1", catalog, nil, nil, log.Discard())
		standard := svc.StorageGBMonth(context.Background(), StorageStandard)
		ia := svc.StorageGBMonth(context.Background(), StorageInfrequentAccess)
		assert.Equal(t, SourceEstimated, standard.Source)
		assert.InDelta(t, 0.30, standard.Price, 1e-9)
		assert.InDelta(t, 0.025, ia.Price, 1e-9)
	})
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(time.Minute)
	base := time.Now()
	c.now = func() time.Time { return base }
	c.Put("k", 1)
	_, ok := c.Get("k")
	require.True(t, ok)
	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, ok = c.Get("k")
	assert.False(t, ok)
}

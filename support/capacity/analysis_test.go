package capacity

import (
	"context"
	"strconv"
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
	"github.com/geusemaker/geusemaker/support/pricing"
)

func estimatingCatalog() *fake.Pricing {
	return &fake.Pricing{
		GetProductsFn: func(_ context.Context, in *awspricing.GetProductsInput) (*awspricing.GetProductsOutput, error) {
			return &awspricing.GetProductsOutput{}, nil
		},
	}
}

func spotHistory(prices map[string][]float64) *ec2.DescribeSpotPriceHistoryOutput {
	out := &ec2.DescribeSpotPriceHistoryOutput{}
	for zone, series := range prices {
		for i, p := range series {
			out.SpotPriceHistory = append(out.SpotPriceHistory, ec2types.SpotPrice{
				AvailabilityZone: aws.String(zone),
				SpotPrice:        aws.String(formatPrice(p)),
				Timestamp:        aws.Time(time.Now().Add(-time.Duration(i) * time.Minute)),
			})
		}
	}
	return out
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

func newAnalyzer(ec2Client *fake.EC2) *Analyzer {
	prices := pricing.New("us-east-1", estimatingCatalog(), ec2Client, nil, log.Discard())
	return NewAnalyzer("us-east-1", ec2Client, prices,
		func(context.Context) (string, error) { return "ami-12345", nil }, log.Discard())
}

func TestAnalyze(t *testing.T) {
	t.Run("When a zone undercuts on-demand it should be recommended", func(t *testing.T) {
		ec2Client := &fake.EC2{
			DescribeSpotPriceHistoryFn: func(_ context.Context, in *ec2.DescribeSpotPriceHistoryInput) (*ec2.DescribeSpotPriceHistoryOutput, error) {
				return spotHistory(map[string][]float64{
					"us-east-1a": {0.0125, 0.0125, 0.0126},
					"us-east-1b": {0.0300, 0.0280},
				}), nil
			},
			GetSpotPlacementScoresFn: func(_ context.Context, in *ec2.GetSpotPlacementScoresInput) (*ec2.GetSpotPlacementScoresOutput, error) {
				return &ec2.GetSpotPlacementScoresOutput{}, nil
			},
		}
		a := newAnalyzer(ec2Client)
		analysis, err := a.Analyze(context.Background(), "t3.medium")
		require.NoError(t, err)
		assert.Equal(t, "us-east-1a", analysis.RecommendedAZ)
		assert.InDelta(t, 0.0125, analysis.LowestPrice, 1e-9)
		assert.InDelta(t, 0.0416, analysis.OnDemandPrice, 1e-9)
		assert.Greater(t, analysis.SavingsPercent, 60.0)
		// Steady series in both zones keep stability near one.
		assert.Greater(t, analysis.StabilityScore, 0.9)
	})

	t.Run("When spot never undercuts on-demand it should leave the recommendation empty", func(t *testing.T) {
		ec2Client := &fake.EC2{
			DescribeSpotPriceHistoryFn: func(_ context.Context, in *ec2.DescribeSpotPriceHistoryInput) (*ec2.DescribeSpotPriceHistoryOutput, error) {
				return spotHistory(map[string][]float64{"us-east-1a": {0.09, 0.09}}), nil
			},
			GetSpotPlacementScoresFn: func(_ context.Context, in *ec2.GetSpotPlacementScoresInput) (*ec2.GetSpotPlacementScoresOutput, error) {
				return &ec2.GetSpotPlacementScoresOutput{}, nil
			},
		}
		a := newAnalyzer(ec2Client)
		analysis, err := a.Analyze(context.Background(), "t3.medium")
		require.NoError(t, err)
		assert.Empty(t, analysis.RecommendedAZ)
		assert.Zero(t, analysis.SavingsPercent)
	})
}

func TestStabilityByZone(t *testing.T) {
	now := time.Now()
	cutoff := now.Add(-stabilityWindow)

	t.Run("When prices are flat the score should be one", func(t *testing.T) {
		samples := []pricing.SpotSample{
			{AvailabilityZone: "us-east-1a", Price: 0.01, Timestamp: now},
			{AvailabilityZone: "us-east-1a", Price: 0.01, Timestamp: now.Add(-time.Hour)},
		}
		scores := stabilityByZone(samples, cutoff)
		assert.InDelta(t, 1.0, scores["us-east-1a"], 1e-9)
	})

	t.Run("When prices swing the score should drop", func(t *testing.T) {
		samples := []pricing.SpotSample{
			{AvailabilityZone: "us-east-1a", Price: 0.01, Timestamp: now},
			{AvailabilityZone: "us-east-1a", Price: 0.05, Timestamp: now.Add(-time.Hour)},
			{AvailabilityZone: "us-east-1a", Price: 0.09, Timestamp: now.Add(-2 * time.Hour)},
		}
		scores := stabilityByZone(samples, cutoff)
		assert.Less(t, scores["us-east-1a"], 0.5)
	})

	t.Run("When a zone has a single sample it should default to one", func(t *testing.T) {
		samples := []pricing.SpotSample{
			{AvailabilityZone: "us-east-1c", Price: 0.02, Timestamp: now},
		}
		scores := stabilityByZone(samples, cutoff)
		assert.InDelta(t, 1.0, scores["us-east-1c"], 1e-9)
	})
}

func TestHasCapacity(t *testing.T) {
	t.Run("When the dry-run would succeed it should report capacity", func(t *testing.T) {
		ec2Client := &fake.EC2{
			RunInstancesFn: func(_ context.Context, in *ec2.RunInstancesInput) (*ec2.RunInstancesOutput, error) {
				require.True(t, aws.ToBool(in.DryRun))
				return nil, fake.APIError("DryRunOperation", "would have succeeded")
			},
		}
		a := newAnalyzer(ec2Client)
		ok, err := a.HasCapacity(context.Background(), "t3.medium", "us-east-1a")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("When capacity is exhausted it should report none", func(t *testing.T) {
		ec2Client := &fake.EC2{
			RunInstancesFn: func(_ context.Context, in *ec2.RunInstancesInput) (*ec2.RunInstancesOutput, error) {
				return nil, fake.APIError("InsufficientInstanceCapacity", "no capacity")
			},
		}
		a := newAnalyzer(ec2Client)
		ok, err := a.HasCapacity(context.Background(), "t3.medium", "us-east-1a")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("When the probe fails for another reason it should report none", func(t *testing.T) {
		ec2Client := &fake.EC2{
			RunInstancesFn: func(_ context.Context, in *ec2.RunInstancesInput) (*ec2.RunInstancesOutput, error) {
				return nil, fake.APIError("UnauthorizedOperation", "denied")
			},
		}
		a := newAnalyzer(ec2Client)
		ok, err := a.HasCapacity(context.Background(), "t3.medium", "us-east-1a")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("When probed twice it should serve the second from cache", func(t *testing.T) {
		calls := 0
		ec2Client := &fake.EC2{
			RunInstancesFn: func(_ context.Context, in *ec2.RunInstancesInput) (*ec2.RunInstancesOutput, error) {
				calls++
				return nil, fake.APIError("DryRunOperation", "would have succeeded")
			},
		}
		a := newAnalyzer(ec2Client)
		_, err := a.HasCapacity(context.Background(), "t3.medium", "us-east-1a")
		require.NoError(t, err)
		_, err = a.HasCapacity(context.Background(), "t3.medium", "us-east-1a")
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})
}

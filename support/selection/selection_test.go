package selection

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

	"github.com/geusemaker/geusemaker/api"
	"github.com/geusemaker/geusemaker/cmd/log"
	"github.com/geusemaker/geusemaker/support/awsapi/fake"
	"github.com/geusemaker/geusemaker/support/capacity"
	"github.com/geusemaker/geusemaker/support/pricing"
)

// marketFixture builds an engine over a synthetic spot market. Zones map to
// steady price series; capacityByZone drives the dry-run probe.
func marketFixture(t *testing.T, zonePrices map[string]float64, capacityByZone map[string]bool) (*Engine, *int) {
	t.Helper()
	probes := 0
	ec2Client := &fake.EC2{
		DescribeSpotPriceHistoryFn: func(_ context.Context, in *ec2.DescribeSpotPriceHistoryInput) (*ec2.DescribeSpotPriceHistoryOutput, error) {
			out := &ec2.DescribeSpotPriceHistoryOutput{}
			for zone, price := range zonePrices {
				for i := 0; i < 3; i++ {
					out.SpotPriceHistory = append(out.SpotPriceHistory, ec2types.SpotPrice{
						AvailabilityZone: aws.String(zone),
						SpotPrice:        aws.String(strconv.FormatFloat(price, 'f', -1, 64)),
						Timestamp:        aws.Time(time.Now().Add(-time.Duration(i) * time.Minute)),
					})
				}
			}
			return out, nil
		},
		GetSpotPlacementScoresFn: func(_ context.Context, in *ec2.GetSpotPlacementScoresInput) (*ec2.GetSpotPlacementScoresOutput, error) {
			return &ec2.GetSpotPlacementScoresOutput{}, nil
		},
		RunInstancesFn: func(_ context.Context, in *ec2.RunInstancesInput) (*ec2.RunInstancesOutput, error) {
			probes++
			zone := aws.ToString(in.Placement.AvailabilityZone)
			if capacityByZone[zone] {
				return nil, fake.APIError("DryRunOperation", "would have succeeded")
			}
			return nil, fake.APIError("InsufficientInstanceCapacity", "no capacity")
		},
	}
	catalog := &fake.Pricing{
		GetProductsFn: func(_ context.Context, in *awspricing.GetProductsInput) (*awspricing.GetProductsOutput, error) {
			return &awspricing.GetProductsOutput{}, nil
		},
	}
	prices := pricing.New("us-east-1", catalog, ec2Client, nil, log.Discard())
	analyzer := capacity.NewAnalyzer("us-east-1", ec2Client, prices,
		func(context.Context) (string, error) { return "ami-12345", nil }, log.Discard())
	return NewEngine(analyzer, log.Discard()), &probes
}

func spotConfig() api.DeploymentConfig {
	cfg := api.DefaultConfig()
	cfg.StackName = "demo"
	cfg.Tier = api.TierDev
	cfg.Region = "us-east-1"
	return cfg
}

func TestSelect(t *testing.T) {
	// The estimated on-demand price for t3.medium is 0.0416/hr.
	t.Run("When spot is cheap and stable it should choose the cheapest zone with capacity", func(t *testing.T) {
		engine, _ := marketFixture(t,
			map[string]float64{"us-east-1a": 0.0125, "us-east-1b": 0.0200},
			map[string]bool{"us-east-1a": true, "us-east-1b": true})
		sel, err := engine.Select(context.Background(), spotConfig())
		require.NoError(t, err)
		assert.True(t, sel.IsSpot)
		assert.Equal(t, "us-east-1a", sel.AvailabilityZone)
		assert.InDelta(t, 0.0125, sel.HourlyPrice, 1e-9)
		assert.InDelta(t, 0.0416-0.0125, sel.HourlySavings, 1e-9)
		assert.GreaterOrEqual(t, sel.HourlySavings, 0.0)
		assert.Empty(t, sel.FallbackReason)
	})

	t.Run("When the caller declines spot it should return on-demand", func(t *testing.T) {
		engine, probes := marketFixture(t,
			map[string]float64{"us-east-1a": 0.0125},
			map[string]bool{"us-east-1a": true})
		cfg := spotConfig()
		cfg.UseSpot = false
		sel, err := engine.Select(context.Background(), cfg)
		require.NoError(t, err)
		assert.False(t, sel.IsSpot)
		assert.Equal(t, "user requested on-demand", sel.Reason)
		assert.Zero(t, *probes, "no capacity probe should run for an on-demand request")
	})

	t.Run("When spot costs 80 percent or more of on-demand it should fall back", func(t *testing.T) {
		engine, _ := marketFixture(t,
			map[string]float64{"us-east-1a": 0.036},
			map[string]bool{"us-east-1a": true})
		sel, err := engine.Select(context.Background(), spotConfig())
		require.NoError(t, err)
		assert.False(t, sel.IsSpot)
		assert.Contains(t, sel.FallbackReason, "≥ 80%")
		assert.InDelta(t, 0.0416, sel.HourlyPrice, 1e-9)
	})

	t.Run("When the first zone lacks capacity it should take the next", func(t *testing.T) {
		engine, _ := marketFixture(t,
			map[string]float64{"us-east-1a": 0.0125, "us-east-1b": 0.0200},
			map[string]bool{"us-east-1a": false, "us-east-1b": true})
		sel, err := engine.Select(context.Background(), spotConfig())
		require.NoError(t, err)
		assert.True(t, sel.IsSpot)
		assert.Equal(t, "us-east-1b", sel.AvailabilityZone)
	})

	t.Run("When no zone has capacity it should fall back naming the attempts", func(t *testing.T) {
		engine, _ := marketFixture(t,
			map[string]float64{"us-east-1a": 0.0125, "us-east-1b": 0.0200},
			map[string]bool{})
		sel, err := engine.Select(context.Background(), spotConfig())
		require.NoError(t, err)
		assert.False(t, sel.IsSpot)
		assert.Contains(t, sel.FallbackReason, "capacity unavailable in all viable AZs")
		assert.Contains(t, sel.FallbackReason, "us-east-1a")
		assert.Contains(t, sel.FallbackReason, "us-east-1b")
	})

	t.Run("When called twice it should replay the memoised selection", func(t *testing.T) {
		engine, probes := marketFixture(t,
			map[string]float64{"us-east-1a": 0.0125},
			map[string]bool{"us-east-1a": true})
		first, err := engine.Select(context.Background(), spotConfig())
		require.NoError(t, err)
		second, err := engine.Select(context.Background(), spotConfig())
		require.NoError(t, err)
		assert.Same(t, first, second)
		assert.Equal(t, 1, *probes)
	})
}

func TestViableZonesOrdering(t *testing.T) {
	analysis := &capacity.Analysis{
		OnDemandPrice: 0.10,
		PricesByAZ: map[string]float64{
			"us-east-1a": 0.05,
			"us-east-1b": 0.03,
			"us-east-1c": 0.03,
			"us-east-1d": 0.09, // above the 0.8 ceiling
		},
		PlacementScores: map[string]float64{
			"us-east-1a": 9, // best score wins despite higher price
			"us-east-1b": 5,
		},
	}
	zones := viableZones(analysis)
	// 1c is unscored and defaults to 5.0, tying 1b; cheaper-then-name breaks it.
	assert.Equal(t, []string{"us-east-1a", "us-east-1b", "us-east-1c"}, zones)
}

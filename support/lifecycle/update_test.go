package lifecycle

import (
	"context"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	awspricing "github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geusemaker/geusemaker/api"
	"github.com/geusemaker/geusemaker/cmd/log"
	"github.com/geusemaker/geusemaker/support/awsapi/fake"
	"github.com/geusemaker/geusemaker/support/pricing"
	"github.com/geusemaker/geusemaker/support/resource"
)

type memStore struct {
	saves []*api.DeploymentState
}

func (m *memStore) Save(_ context.Context, st *api.DeploymentState) error {
	m.saves = append(m.saves, st.Snapshot())
	return nil
}

// instanceSim is a minimal stop/start/resize state machine behind fake.EC2.
type instanceSim struct {
	state        ec2types.InstanceStateName
	instanceType string
	calls        []string
}

func (s *instanceSim) ec2() *fake.EC2 {
	return &fake.EC2{
		StopInstancesFn: func(context.Context, *ec2.StopInstancesInput) (*ec2.StopInstancesOutput, error) {
			s.calls = append(s.calls, "stop")
			s.state = ec2types.InstanceStateNameStopped
			return &ec2.StopInstancesOutput{}, nil
		},
		StartInstancesFn: func(context.Context, *ec2.StartInstancesInput) (*ec2.StartInstancesOutput, error) {
			s.calls = append(s.calls, "start")
			s.state = ec2types.InstanceStateNameRunning
			return &ec2.StartInstancesOutput{}, nil
		},
		ModifyInstanceAttributeFn: func(_ context.Context, in *ec2.ModifyInstanceAttributeInput) (*ec2.ModifyInstanceAttributeOutput, error) {
			s.calls = append(s.calls, "modify")
			s.instanceType = aws.ToString(in.InstanceType.Value)
			return &ec2.ModifyInstanceAttributeOutput{}, nil
		},
		DescribeInstancesFn: func(context.Context, *ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error) {
			return &ec2.DescribeInstancesOutput{Reservations: []ec2types.Reservation{{
				Instances: []ec2types.Instance{{
					InstanceId:       aws.String("i-1"),
					PublicIpAddress:  aws.String("54.0.0.9"),
					PrivateIpAddress: aws.String("10.0.0.10"),
					State:            &ec2types.InstanceState{Name: s.state},
				}},
			}}}, nil
		},
	}
}

type updateFixture struct {
	updater *Updater
	store   *memStore
	sim     *instanceSim
	ssm     *fake.SSM
	scripts []string
}

func newUpdateFixture(t *testing.T) *updateFixture {
	t.Helper()
	lg := log.Discard()
	f := &updateFixture{
		store: &memStore{},
		sim:   &instanceSim{state: ec2types.InstanceStateNameRunning, instanceType: "t3.medium"},
	}
	f.ssm = &fake.SSM{
		SendCommandFn: func(_ context.Context, in *ssm.SendCommandInput) (*ssm.SendCommandOutput, error) {
			f.scripts = append(f.scripts, in.Parameters["commands"][0])
			return &ssm.SendCommandOutput{Command: &ssmtypes.Command{CommandId: aws.String("cmd-1")}}, nil
		},
		GetCommandInvocationFn: func(context.Context, *ssm.GetCommandInvocationInput) (*ssm.GetCommandInvocationOutput, error) {
			return &ssm.GetCommandInvocationOutput{Status: ssmtypes.CommandInvocationStatusSuccess}, nil
		},
	}
	ec2Client := f.sim.ec2()
	prices := pricing.New("us-east-1", &fake.Pricing{
		GetProductsFn: func(context.Context, *awspricing.GetProductsInput) (*awspricing.GetProductsOutput, error) {
			return &awspricing.GetProductsOutput{}, nil
		},
	}, ec2Client, nil, lg)
	f.updater = NewUpdater(
		resource.NewInstanceService(ec2Client, lg),
		prices,
		NewCommandRunner(f.ssm, lg),
		f.store,
		lg,
	)
	return f
}

func runningState() *api.DeploymentState {
	cfg := api.DefaultConfig()
	cfg.StackName = "demo"
	cfg.Region = "us-east-1"
	st := api.NewDeploymentState(cfg)
	st.Status = api.StatusRunning
	st.VPCID = "vpc-1"
	st.SubnetIDs = []string{"subnet-1", "subnet-2"}
	st.SecurityGroupID = "sg-1"
	st.EFSID = "fs-1"
	st.InstanceID = "i-1"
	st.PublicIP = "54.0.0.1"
	st.ContainerImages = map[string]string{"n8n": "n8nio/n8n:old"}
	return st
}

func TestUpdateValidation(t *testing.T) {
	f := newUpdateFixture(t)
	ctx := context.Background()

	err := f.updater.Update(ctx, runningState(), UpdateOptions{})
	require.ErrorContains(t, err, "nothing to update")

	noFS := runningState()
	noFS.EFSID = ""
	err = f.updater.Update(ctx, noFS, UpdateOptions{InstanceType: "t3.large"})
	require.ErrorContains(t, err, "no filesystem")

	err = f.updater.Update(ctx, runningState(), UpdateOptions{Images: map[string]string{"n8n": ""}})
	require.ErrorContains(t, err, "service name and a reference")

	assert.Empty(t, f.store.saves, "validation failures must not persist anything")
}

func TestUpdateInstanceType(t *testing.T) {
	f := newUpdateFixture(t)
	st := runningState()

	err := f.updater.Update(context.Background(), st, UpdateOptions{InstanceType: "t3.large"})
	require.NoError(t, err)

	assert.Equal(t, []string{"stop", "modify", "start"}, f.sim.calls)
	assert.Equal(t, "t3.large", f.sim.instanceType)
	assert.Equal(t, "t3.large", st.Config.InstanceType)
	assert.Equal(t, api.StatusRunning, st.Status)
	assert.Equal(t, "t3.large", st.CostTracking.InstanceType)
	assert.False(t, st.CostTracking.IsSpot)
	// The stop/start cycle reassigned the public address.
	assert.Equal(t, "54.0.0.9", st.PublicIP)

	// One snapshot of the pre-update state.
	require.Len(t, st.PreviousStates, 1)
	assert.Equal(t, "t3.medium", st.PreviousStates[0].Config.InstanceType)

	// Persisted updating, then running.
	require.Len(t, f.store.saves, 2)
	assert.Equal(t, api.StatusUpdating, f.store.saves[0].Status)
	assert.Equal(t, api.StatusRunning, f.store.saves[1].Status)
}

func TestUpdateImages(t *testing.T) {
	f := newUpdateFixture(t)
	st := runningState()

	err := f.updater.Update(context.Background(), st, UpdateOptions{Images: map[string]string{
		"n8n":    "n8nio/n8n:new",
		"qdrant": "qdrant/qdrant:v1.12.0",
	}})
	require.NoError(t, err)

	assert.Empty(t, f.sim.calls, "image-only updates must not touch the instance")
	assert.Equal(t, "n8nio/n8n:new", st.ContainerImages["n8n"])
	assert.Equal(t, "qdrant/qdrant:v1.12.0", st.ContainerImages["qdrant"])
	assert.Equal(t, api.StatusRunning, st.Status)

	require.Len(t, f.scripts, 1)
	script := f.scripts[0]
	assert.Contains(t, script, "cd /opt/geusemaker")
	assert.Contains(t, script, "n8nio/n8n:new")
	assert.Contains(t, script, `docker pull "qdrant/qdrant:v1.12.0"`)
	assert.Contains(t, script, "docker-compose --env-file .env up -d")
}

func TestUpdateRemoteFailureKeepsUpdatingStatus(t *testing.T) {
	f := newUpdateFixture(t)
	f.ssm.GetCommandInvocationFn = func(context.Context, *ssm.GetCommandInvocationInput) (*ssm.GetCommandInvocationOutput, error) {
		return &ssm.GetCommandInvocationOutput{
			Status:               ssmtypes.CommandInvocationStatusFailed,
			StandardErrorContent: aws.String("pull access denied"),
		}, nil
	}
	st := runningState()

	err := f.updater.Update(context.Background(), st, UpdateOptions{Images: map[string]string{"n8n": "n8nio/n8n:new"}})
	require.ErrorContains(t, err, "pull access denied")

	assert.Equal(t, api.StatusUpdating, st.Status)
	assert.Equal(t, "n8nio/n8n:old", st.ContainerImages["n8n"])
	// The updating state and the post-failure state were both persisted.
	require.Len(t, f.store.saves, 2)
	assert.Equal(t, api.StatusUpdating, f.store.saves[1].Status)
}

func TestRolloutScriptIsDeterministic(t *testing.T) {
	images := map[string]string{"qdrant": "qdrant/qdrant:v1", "n8n": "n8nio/n8n:v2"}
	script := rolloutScript(images)
	assert.Equal(t, script, rolloutScript(images))
	// Services are emitted in sorted order regardless of map iteration.
	assert.Less(t, strings.Index(script, "n8nio/n8n:v2"), strings.Index(script, "qdrant/qdrant:v1"))
	assert.Positive(t, strings.Index(script, "n8nio/n8n:v2"))
}

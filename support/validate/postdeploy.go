package validate

import (
	"context"
	"fmt"
	"strings"
	"time"

	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/geusemaker/geusemaker/api"
	"github.com/geusemaker/geusemaker/support/healthcheck"
)

// PostDeploy verifies a deployment that claims to be running: compute state
// and status checks, mount target availability, and a live service probe.
func (v *Validator) PostDeploy(ctx context.Context, st *api.DeploymentState) *Report {
	start := time.Now()
	report := &Report{Stack: st.StackName, StartedAt: start.UTC()}

	v.checkInstanceHealth(ctx, report, st)
	v.checkMountTarget(ctx, report, st)
	v.checkServices(ctx, report, st)

	report.Duration = time.Since(start).Round(time.Millisecond).String()
	v.log.Info("Post-deploy validation finished", "stack", st.StackName,
		"checks", len(report.Checks), "passed", report.Passed())
	return report
}

func (v *Validator) checkInstanceHealth(ctx context.Context, report *Report, st *api.DeploymentState) {
	state, err := v.instances.State(ctx, st.InstanceID)
	if err != nil {
		report.add(fail("instance", fmt.Sprintf("cannot read instance state: %v", err), SeverityError))
		return
	}
	if state != ec2types.InstanceStateNameRunning {
		report.add(Check{
			Name:        "instance",
			Passed:      false,
			Message:     fmt.Sprintf("instance %s is %s, expected running", st.InstanceID, state),
			Severity:    SeverityError,
			Remediation: "start the instance or redeploy the stack",
		})
		return
	}
	ok, err := v.instances.StatusChecksOK(ctx, st.InstanceID)
	if err != nil {
		report.add(fail("instance", fmt.Sprintf("cannot read status checks: %v", err), SeverityWarning))
		return
	}
	if !ok {
		// Fresh instances report impaired checks for a few minutes.
		report.add(fail("instance", fmt.Sprintf("instance %s status checks not yet passing", st.InstanceID), SeverityWarning))
		return
	}
	report.add(pass("instance", fmt.Sprintf("instance %s running, status checks ok", st.InstanceID)))
}

func (v *Validator) checkMountTarget(ctx context.Context, report *Report, st *api.DeploymentState) {
	if st.MountTargetID == "" {
		report.add(fail("filesystem", "no mount target recorded", SeverityError))
		return
	}
	state, err := v.files.MountTargetState(ctx, st.MountTargetID)
	if err != nil {
		report.add(fail("filesystem", fmt.Sprintf("cannot read mount target state: %v", err), SeverityError))
		return
	}
	if state != "available" {
		report.add(fail("filesystem", fmt.Sprintf("mount target %s is %s, expected available", st.MountTargetID, state), SeverityError))
		return
	}
	report.add(pass("filesystem", fmt.Sprintf("mount target %s available", st.MountTargetID)))
}

func (v *Validator) checkServices(ctx context.Context, report *Report, st *api.DeploymentState) {
	host := st.EffectiveHost()
	if host == "" {
		report.add(fail("services", "deployment has no reachable address", SeverityError))
		return
	}
	summary := v.probe(ctx, host)
	var down []string
	for _, r := range summary.Results {
		if !r.Healthy {
			down = append(down, fmt.Sprintf("%s (%s)", r.Service, r.ErrorMessage))
		}
	}
	if len(down) > 0 {
		report.add(Check{
			Name:     "services",
			Passed:   false,
			Message:  fmt.Sprintf("%d of %d services unhealthy", len(down), len(summary.Results)),
			Severity: SeverityError,
			Details:  map[string]string{"unhealthy": strings.Join(down, "; ")},
		})
		return
	}
	report.add(pass("services", fmt.Sprintf("all %d services healthy", len(summary.Results))))
}

// probe runs the standard service set; tests replace probeFn.
func (v *Validator) probe(ctx context.Context, host string) *healthcheck.Summary {
	if v.probeFn != nil {
		return v.probeFn(ctx, host)
	}
	return healthcheck.CheckAll(ctx, healthcheck.Services(host, healthcheck.SetOptions{}))
}

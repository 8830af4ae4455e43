// Package validate runs the pre-deploy and post-deploy check suites. Checks
// never return Go errors for domain failures; every outcome, pass or fail,
// is a Check in the report, and the report fails only on error-severity
// checks.
package validate

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/geusemaker/geusemaker/api"
	"github.com/geusemaker/geusemaker/support/awsapi"
	"github.com/geusemaker/geusemaker/support/healthcheck"
	"github.com/geusemaker/geusemaker/support/resource"
)

// Severity grades a failed check.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Check is the outcome of one validation step.
type Check struct {
	Name        string            `json:"name"`
	Passed      bool              `json:"passed"`
	Message     string            `json:"message"`
	Severity    Severity          `json:"severity"`
	Details     map[string]string `json:"details,omitempty"`
	Remediation string            `json:"remediation,omitempty"`
}

// Report aggregates the checks of one validation run.
type Report struct {
	Stack     string    `json:"stack"`
	Checks    []Check   `json:"checks"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
}

// Passed reports whether the run found no error-severity failures. Warnings
// and infos never fail a report.
func (r *Report) Passed() bool {
	for _, c := range r.Checks {
		if !c.Passed && c.Severity == SeverityError {
			return false
		}
	}
	return true
}

// Failures returns the failed checks of the given severity.
func (r *Report) Failures(sev Severity) []Check {
	var out []Check
	for _, c := range r.Checks {
		if !c.Passed && c.Severity == sev {
			out = append(out, c)
		}
	}
	return out
}

// StateIndex answers whether a local record exists for a stack.
type StateIndex interface {
	Exists(stack string) bool
}

// Validator runs the check suites against one region.
type Validator struct {
	region    string
	sts       awsapi.STSAPI
	iam       awsapi.IAMAPI
	quotas    awsapi.ServiceQuotasAPI
	ec2       awsapi.EC2API
	efs       awsapi.EFSAPI
	elb       awsapi.ELBV2API
	networks  *resource.VPCService
	groups    *resource.SGService
	instances *resource.InstanceService
	files     *resource.EFSService
	index     StateIndex
	log       logr.Logger

	// probeFn overrides the live service probe in tests.
	probeFn func(ctx context.Context, host string) *healthcheck.Summary
}

// Deps collects the validator's dependencies.
type Deps struct {
	Region      string
	STS         awsapi.STSAPI
	IAM         awsapi.IAMAPI
	Quotas      awsapi.ServiceQuotasAPI
	EC2         awsapi.EC2API
	EFS         awsapi.EFSAPI
	ELB         awsapi.ELBV2API
	Networks    *resource.VPCService
	Groups      *resource.SGService
	Instances   *resource.InstanceService
	Filesystems *resource.EFSService
	Index       StateIndex
	Log         logr.Logger
}

// New builds a Validator.
func New(deps Deps) *Validator {
	return &Validator{
		region:    deps.Region,
		sts:       deps.STS,
		iam:       deps.IAM,
		quotas:    deps.Quotas,
		ec2:       deps.EC2,
		efs:       deps.EFS,
		elb:       deps.ELB,
		networks:  deps.Networks,
		groups:    deps.Groups,
		instances: deps.Instances,
		files:     deps.Filesystems,
		index:     deps.Index,
		log:       deps.Log,
	}
}

// PreDeploy runs the full pre-deployment suite for cfg. Checks run in
// order; a failed credentials check skips the permission simulation, which
// needs the caller's identity, but every other check still runs.
func (v *Validator) PreDeploy(ctx context.Context, cfg api.DeploymentConfig) *Report {
	start := time.Now()
	report := &Report{Stack: cfg.StackName, StartedAt: start.UTC()}

	identity := v.checkCredentials(ctx, report)
	if identity != "" {
		v.checkPermissions(ctx, report, identity)
	}
	v.checkQuotas(ctx, report)
	v.checkRegionServices(ctx, report)
	v.checkConfig(ctx, report, cfg)
	v.checkNamingConflicts(ctx, report, cfg)
	if cfg.VPCID != "" {
		v.checkExistingNetwork(ctx, report, cfg)
	}

	report.Duration = time.Since(start).Round(time.Millisecond).String()
	v.log.Info("Pre-deploy validation finished", "stack", cfg.StackName,
		"checks", len(report.Checks), "passed", report.Passed())
	return report
}

func (r *Report) add(c Check) { r.Checks = append(r.Checks, c) }

func pass(name, message string) Check {
	return Check{Name: name, Passed: true, Message: message, Severity: SeverityInfo}
}

func fail(name, message string, sev Severity) Check {
	return Check{Name: name, Passed: false, Message: message, Severity: sev}
}

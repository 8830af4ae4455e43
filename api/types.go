// Package api defines the persisted data model for geusemaker deployments:
// the immutable deployment configuration, the mutable deployment state with
// its resource identifiers and history, and the supporting records they
// embed. Every entity carries an integer schema version; readers migrate
// older versions forward and refuse newer ones.
package api

import (
	"fmt"
	"time"
)

// SchemaVersion is the version stamped on every record this build writes.
// Records with a lower version are migrated on read; records with a higher
// version are rejected.
const SchemaVersion = 2

// Tier selects the deployment profile.
type Tier string

const (
	// TierDev is the minimal single-instance profile.
	TierDev Tier = "dev"
	// TierAutomation is the production automation profile.
	TierAutomation Tier = "automation"
	// TierGPU selects GPU compute and GPU-capable images.
	TierGPU Tier = "gpu"
)

// Tiers lists the allowed tiers in display order.
func Tiers() []Tier {
	return []Tier{TierDev, TierAutomation, TierGPU}
}

// Valid reports whether t is one of the allowed tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierDev, TierAutomation, TierGPU:
		return true
	}
	return false
}

// OSType identifies the guest operating system family used for image
// resolution.
type OSType string

const (
	OSAmazonLinux2023 OSType = "al2023"
	OSUbuntu2204      OSType = "ubuntu-22.04"
	OSUbuntu2404      OSType = "ubuntu-24.04"
)

// Valid reports whether o names a supported operating system.
func (o OSType) Valid() bool {
	switch o {
	case OSAmazonLinux2023, OSUbuntu2204, OSUbuntu2404:
		return true
	}
	return false
}

// Architecture is the CPU architecture of the compute instance.
type Architecture string

const (
	ArchX8664 Architecture = "x86_64"
	ArchARM64 Architecture = "arm64"
)

// Valid reports whether a is a supported architecture.
func (a Architecture) Valid() bool {
	return a == ArchX8664 || a == ArchARM64
}

// ImageVariant selects the machine-image flavor when no explicit image id is
// given.
type ImageVariant string

const (
	VariantBase           ImageVariant = "base"
	VariantPyTorch        ImageVariant = "pytorch"
	VariantTensorFlow     ImageVariant = "tensorflow"
	VariantMultiFramework ImageVariant = "multi-framework"
)

// Valid reports whether v names a supported image variant.
func (v ImageVariant) Valid() bool {
	switch v {
	case VariantBase, VariantPyTorch, VariantTensorFlow, VariantMultiFramework:
		return true
	}
	return false
}

// LifecycleStatus is the coarse state of a deployment.
type LifecycleStatus string

const (
	StatusCreating    LifecycleStatus = "creating"
	StatusRunning     LifecycleStatus = "running"
	StatusUpdating    LifecycleStatus = "updating"
	StatusRollingBack LifecycleStatus = "rolling_back"
	StatusDestroying  LifecycleStatus = "destroying"
	StatusFailed      LifecycleStatus = "failed"
	StatusTerminated  LifecycleStatus = "terminated"
)

// Valid reports whether s is a known lifecycle status.
func (s LifecycleStatus) Valid() bool {
	switch s {
	case StatusCreating, StatusRunning, StatusUpdating, StatusRollingBack,
		StatusDestroying, StatusFailed, StatusTerminated:
		return true
	}
	return false
}

// DeploymentConfig is the immutable intent for one deployment. It is written
// once at deploy time and carried inside the deployment state; updates and
// rollbacks replace whole fields rather than mutating in place.
type DeploymentConfig struct {
	SchemaVersion int    `json:"schema_version"`
	StackName     string `json:"stack_name"`
	Tier          Tier   `json:"tier"`
	Region        string `json:"region"`

	InstanceType string `json:"instance_type"`
	UseSpot      bool   `json:"use_spot"`

	OSType       OSType       `json:"os_type,omitempty"`
	Architecture Architecture `json:"architecture,omitempty"`
	ImageVariant ImageVariant `json:"image_variant,omitempty"`
	// ImageID, when set, bypasses variant-based image resolution entirely.
	ImageID string `json:"image_id,omitempty"`

	// Pre-existing resources to adopt instead of creating. Empty means
	// create.
	VPCID            string   `json:"vpc_id,omitempty"`
	PublicSubnetIDs  []string `json:"public_subnet_ids,omitempty"`
	PrivateSubnetIDs []string `json:"private_subnet_ids,omitempty"`
	StorageSubnetID  string   `json:"storage_subnet_id,omitempty"`
	SecurityGroupID  string   `json:"security_group_id,omitempty"`
	EFSID            string   `json:"efs_id,omitempty"`
	KeypairName      string   `json:"keypair_name,omitempty"`

	EnableLoadBalancer       bool   `json:"enable_alb,omitempty"`
	EnableCDN                bool   `json:"enable_cdn,omitempty"`
	ALBCertificateARN        string `json:"alb_certificate_arn,omitempty"`
	CloudFrontCertificateARN string `json:"cloudfront_certificate_arn,omitempty"`
	EnableHTTPS              bool   `json:"enable_https"`
	HTTPSRedirect            bool   `json:"https_redirect"`
	// AttachInternetGateway permits attaching a gateway to a reused VPC
	// that has none. Without it, a gateway-less VPC fails validation.
	AttachInternetGateway bool `json:"attach_internet_gateway,omitempty"`

	RollbackEnabled        bool `json:"rollback_enabled"`
	RollbackTimeoutMinutes int  `json:"rollback_timeout_minutes"`

	// BudgetLimit is an advisory monthly ceiling in USD. Zero means no
	// limit.
	BudgetLimit float64 `json:"budget_limit,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// DefaultConfig returns a DeploymentConfig with the defaults applied for
// everything the caller did not choose. StackName, Tier and Region remain
// for the caller to fill in.
func DefaultConfig() DeploymentConfig {
	return DeploymentConfig{
		SchemaVersion:          SchemaVersion,
		InstanceType:           "t3.medium",
		UseSpot:                true,
		OSType:                 OSAmazonLinux2023,
		Architecture:           ArchX8664,
		ImageVariant:           VariantBase,
		EnableHTTPS:            true,
		HTTPSRedirect:          true,
		RollbackEnabled:        true,
		RollbackTimeoutMinutes: 30,
		CreatedAt:              time.Now().UTC(),
	}
}

// ReusesNetwork reports whether the configuration adopts a pre-existing
// network rather than creating one.
func (c *DeploymentConfig) ReusesNetwork() bool {
	return c.VPCID != ""
}

// CostTracking is the running cost estimate attached to a deployment.
type CostTracking struct {
	InstanceType         string  `json:"instance_type"`
	IsSpot               bool    `json:"is_spot"`
	SpotPricePerHour     float64 `json:"spot_price_per_hour,omitempty"`
	OnDemandPricePerHour float64 `json:"on_demand_price_per_hour"`
	// HourlyCompute is the price of the path actually taken (spot or
	// on-demand).
	HourlyCompute    float64 `json:"hourly_compute"`
	StorageMonthly   float64 `json:"storage_monthly,omitempty"`
	LBMonthly        float64 `json:"alb_monthly,omitempty"`
	CDNMonthly       float64 `json:"cloudfront_monthly,omitempty"`
	EstimatedMonthly float64 `json:"estimated_monthly"`
	Currency         string  `json:"currency"`
	// Source records where the figures came from: live, cached or
	// estimated.
	Source      string    `json:"source,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// RollbackRecord documents one completed rollback.
type RollbackRecord struct {
	Timestamp            time.Time `json:"timestamp"`
	Trigger              string    `json:"trigger"`
	PreviousStateVersion int       `json:"previous_state_version"`
	RolledBackChanges    []string  `json:"rolled_back_changes"`
	Success              bool      `json:"success"`
}

// PreviousStatesCap bounds the ring of prior snapshots kept on a state.
const PreviousStatesCap = 5

// DeploymentState is the durable record of one deployment. Index 0 of
// PreviousStates is always the most recent prior snapshot.
type DeploymentState struct {
	SchemaVersion int              `json:"schema_version"`
	StackName     string           `json:"stack_name"`
	Status        LifecycleStatus  `json:"status"`
	Config        DeploymentConfig `json:"config"`

	VPCID            string   `json:"vpc_id,omitempty"`
	SubnetIDs        []string `json:"subnet_ids,omitempty"`
	ComputeSubnetID  string   `json:"compute_subnet_id,omitempty"`
	StorageSubnetID  string   `json:"storage_subnet_id,omitempty"`
	SecurityGroupID  string   `json:"security_group_id,omitempty"`
	EFSID            string   `json:"efs_id,omitempty"`
	MountTargetID    string   `json:"efs_mount_target_id,omitempty"`
	MountTargetIP    string   `json:"efs_mount_target_ip,omitempty"`
	IAMRoleName      string   `json:"iam_role_name,omitempty"`
	InstanceProfile  string   `json:"instance_profile_name,omitempty"`
	InstanceID       string   `json:"instance_id,omitempty"`
	AvailabilityZone string   `json:"availability_zone,omitempty"`
	KeypairName      string   `json:"keypair_name,omitempty"`

	PublicIP  string `json:"public_ip,omitempty"`
	PrivateIP string `json:"private_ip,omitempty"`
	// N8NURL is the primary service URL derived from the effective host
	// and the HTTPS settings.
	N8NURL string `json:"n8n_url,omitempty"`

	LoadBalancerARN string `json:"alb_arn,omitempty"`
	LoadBalancerDNS string `json:"alb_dns_name,omitempty"`
	TargetGroupARN  string `json:"target_group_arn,omitempty"`

	CDNDistributionID string `json:"cloudfront_distribution_id,omitempty"`
	CDNDomainName     string `json:"cloudfront_domain_name,omitempty"`

	ContainerImages map[string]string `json:"container_images,omitempty"`
	CostTracking    CostTracking      `json:"cost_tracking"`

	PreviousStates   []*DeploymentState `json:"previous_states,omitempty"`
	RollbackHistory  []RollbackRecord   `json:"rollback_history,omitempty"`
	LastHealthyState *DeploymentState   `json:"last_healthy_state,omitempty"`
	MigrationHistory []string           `json:"migration_history"`

	Provenance ProvenanceMap `json:"resource_provenance"`

	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	TerminatedAt *time.Time `json:"terminated_at,omitempty"`
}

// NewDeploymentState returns a state in the creating status with every
// resource kind marked pending.
func NewDeploymentState(cfg DeploymentConfig) *DeploymentState {
	now := time.Now().UTC()
	return &DeploymentState{
		SchemaVersion:    SchemaVersion,
		StackName:        cfg.StackName,
		Status:           StatusCreating,
		Config:           cfg,
		MigrationHistory: []string{},
		Provenance:       NewProvenanceMap(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// EffectiveHost is the network-visible address of the deployment: the
// public IP when one exists, otherwise the private IP.
func (s *DeploymentState) EffectiveHost() string {
	if s.PublicIP != "" {
		return s.PublicIP
	}
	return s.PrivateIP
}

// PrimaryServiceURL derives the n8n endpoint for the current resources: the
// load balancer when present, otherwise the instance host.
func (s *DeploymentState) PrimaryServiceURL() string {
	if s.LoadBalancerDNS != "" {
		if s.Config.EnableHTTPS {
			return "https://" + s.LoadBalancerDNS
		}
		return "http://" + s.LoadBalancerDNS
	}
	host := s.EffectiveHost()
	if host == "" {
		return ""
	}
	if s.Config.EnableHTTPS {
		return "https://" + host
	}
	return fmt.Sprintf("http://%s:%d", host, DefaultServicePorts["n8n"])
}

// Snapshot returns a deep copy suitable for the previous-states ring: the
// copy's own history pointers are cleared so snapshots do not nest.
func (s *DeploymentState) Snapshot() *DeploymentState {
	cp := *s
	cp.PreviousStates = nil
	cp.RollbackHistory = nil
	cp.LastHealthyState = nil
	cp.SubnetIDs = append([]string(nil), s.SubnetIDs...)
	cp.MigrationHistory = append([]string(nil), s.MigrationHistory...)
	cp.Provenance = s.Provenance.Clone()
	if s.ContainerImages != nil {
		cp.ContainerImages = make(map[string]string, len(s.ContainerImages))
		for k, v := range s.ContainerImages {
			cp.ContainerImages[k] = v
		}
	}
	if s.Config.PublicSubnetIDs != nil {
		cp.Config.PublicSubnetIDs = append([]string(nil), s.Config.PublicSubnetIDs...)
	}
	if s.Config.PrivateSubnetIDs != nil {
		cp.Config.PrivateSubnetIDs = append([]string(nil), s.Config.PrivateSubnetIDs...)
	}
	return &cp
}

// PushSnapshot prepends snap to the previous-states ring, trimming it to
// PreviousStatesCap.
func (s *DeploymentState) PushSnapshot(snap *DeploymentState) {
	ring := make([]*DeploymentState, 0, len(s.PreviousStates)+1)
	ring = append(ring, snap)
	ring = append(ring, s.PreviousStates...)
	if len(ring) > PreviousStatesCap {
		ring = ring[:PreviousStatesCap]
	}
	s.PreviousStates = ring
}

// Touch refreshes UpdatedAt. Every save path calls it so readers can sort
// by recency.
func (s *DeploymentState) Touch() {
	s.UpdatedAt = time.Now().UTC()
}

// DefaultServicePorts maps bundled service names to their listen ports.
var DefaultServicePorts = map[string]int{
	"n8n":      5678,
	"ollama":   11434,
	"qdrant":   6333,
	"crawl4ai": 11235,
	"postgres": 5432,
}

package api

import (
	"fmt"
	"regexp"
)

// stackNameRE constrains stack names to a leading letter followed by
// letters, digits or hyphens.
var stackNameRE = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-]*$`)

// MaxStackNameLength bounds stack names; provider tag values and DNS labels
// derived from the name stay comfortably within their own limits.
const MaxStackNameLength = 128

// ValidateStackName checks the stack naming rules shared by every command
// that accepts a stack name.
func ValidateStackName(name string) error {
	if name == "" {
		return fmt.Errorf("stack name must not be empty")
	}
	if len(name) > MaxStackNameLength {
		return fmt.Errorf("stack name %q exceeds %d characters", name, MaxStackNameLength)
	}
	if !stackNameRE.MatchString(name) {
		return fmt.Errorf("stack name %q must start with a letter and contain only letters, digits and hyphens", name)
	}
	return nil
}

// Validate checks the static rules a configuration must satisfy before any
// provider call is made.
func (c *DeploymentConfig) Validate() error {
	if err := ValidateStackName(c.StackName); err != nil {
		return err
	}
	if !c.Tier.Valid() {
		return fmt.Errorf("tier %q is not one of %v", c.Tier, Tiers())
	}
	if c.Region == "" {
		return fmt.Errorf("region must not be empty")
	}
	if c.InstanceType == "" {
		return fmt.Errorf("instance type must not be empty")
	}
	if c.OSType != "" && !c.OSType.Valid() {
		return fmt.Errorf("os type %q is not supported", c.OSType)
	}
	if c.Architecture != "" && !c.Architecture.Valid() {
		return fmt.Errorf("architecture %q is not supported", c.Architecture)
	}
	if c.ImageVariant != "" && !c.ImageVariant.Valid() {
		return fmt.Errorf("image variant %q is not supported", c.ImageVariant)
	}
	if c.RollbackTimeoutMinutes < 5 || c.RollbackTimeoutMinutes > 60 {
		return fmt.Errorf("rollback timeout must be between 5 and 60 minutes, got %d", c.RollbackTimeoutMinutes)
	}
	if c.BudgetLimit < 0 {
		return fmt.Errorf("budget limit must not be negative")
	}
	if !c.ReusesNetwork() {
		if len(c.PublicSubnetIDs) > 0 || len(c.PrivateSubnetIDs) > 0 || c.StorageSubnetID != "" {
			return fmt.Errorf("subnet ids require --vpc-id")
		}
	}
	return nil
}

// Validate checks the structural invariants of a deployment state. It is
// called after migration on every read and before every write.
func (s *DeploymentState) Validate() error {
	if s.SchemaVersion != SchemaVersion {
		return fmt.Errorf("state has schema version %d, expected %d", s.SchemaVersion, SchemaVersion)
	}
	if !s.Status.Valid() {
		return fmt.Errorf("status %q is not a known lifecycle status", s.Status)
	}
	if err := ValidateStackName(s.StackName); err != nil {
		return err
	}
	if err := s.Provenance.Validate(); err != nil {
		return err
	}
	if s.Status == StatusTerminated {
		return nil
	}
	if s.VPCID == "" {
		return fmt.Errorf("stack %s: vpc id must be set", s.StackName)
	}
	if len(s.SubnetIDs) == 0 {
		return fmt.Errorf("stack %s: subnet ids must not be empty", s.StackName)
	}
	if s.SecurityGroupID == "" {
		return fmt.Errorf("stack %s: security group id must be set", s.StackName)
	}
	if s.EFSID == "" {
		return fmt.Errorf("stack %s: filesystem id must be set", s.StackName)
	}
	if s.InstanceID == "" {
		if s.Status != StatusCreating || s.Provenance.Of(KindInstance) != ProvenancePending {
			return fmt.Errorf("stack %s: instance id may be empty only while creating with a pending instance", s.StackName)
		}
	}
	if len(s.PreviousStates) > PreviousStatesCap {
		return fmt.Errorf("stack %s: previous states ring exceeds %d entries", s.StackName, PreviousStatesCap)
	}
	return nil
}

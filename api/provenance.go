package api

import "fmt"

// Provenance records how a deployment came to hold a resource. The destroy
// path deletes only resources this tool created; everything else is
// preserved.
type Provenance string

const (
	// ProvenanceCreated marks a resource provisioned by this tool.
	ProvenanceCreated Provenance = "created"
	// ProvenanceReused marks a pre-existing resource the caller supplied.
	ProvenanceReused Provenance = "reused"
	// ProvenanceAutoDiscovered marks a resource found via provider tags
	// rather than a local record.
	ProvenanceAutoDiscovered Provenance = "auto_discovered"
	// ProvenancePending marks a resource not yet provisioned.
	ProvenancePending Provenance = "pending"
)

// Valid reports whether p is one of the four provenance variants.
func (p Provenance) Valid() bool {
	switch p {
	case ProvenanceCreated, ProvenanceReused, ProvenanceAutoDiscovered, ProvenancePending:
		return true
	}
	return false
}

// ResourceKind names one provisioned resource slot in a deployment.
type ResourceKind string

const (
	KindVPC           ResourceKind = "vpc"
	KindSubnets       ResourceKind = "subnets"
	KindSecurityGroup ResourceKind = "security_group"
	KindEFS           ResourceKind = "efs"
	KindInstance      ResourceKind = "instance"
	KindKeypair       ResourceKind = "keypair"
	KindIAM           ResourceKind = "iam"
	KindLoadBalancer  ResourceKind = "alb"
	KindCDN           ResourceKind = "cloudfront"
)

// ResourceKinds lists every tracked kind in provisioning order.
func ResourceKinds() []ResourceKind {
	return []ResourceKind{
		KindVPC, KindSubnets, KindSecurityGroup, KindEFS, KindInstance,
		KindKeypair, KindIAM, KindLoadBalancer, KindCDN,
	}
}

// ProvenanceMap tracks the provenance of every resource kind in a
// deployment.
type ProvenanceMap map[ResourceKind]Provenance

// NewProvenanceMap returns a map with every kind pending.
func NewProvenanceMap() ProvenanceMap {
	m := make(ProvenanceMap, len(ResourceKinds()))
	for _, k := range ResourceKinds() {
		m[k] = ProvenancePending
	}
	return m
}

// Mark records the provenance of one resource kind.
func (m ProvenanceMap) Mark(kind ResourceKind, p Provenance) {
	m[kind] = p
}

// Of returns the provenance of kind, defaulting to pending for unknown
// kinds.
func (m ProvenanceMap) Of(kind ResourceKind) Provenance {
	if p, ok := m[kind]; ok {
		return p
	}
	return ProvenancePending
}

// Reused reports whether kind was adopted rather than created; reused
// resources are never deleted.
func (m ProvenanceMap) Reused(kind ResourceKind) bool {
	return m.Of(kind) == ProvenanceReused
}

// Created reports whether this tool provisioned kind.
func (m ProvenanceMap) Created(kind ResourceKind) bool {
	return m.Of(kind) == ProvenanceCreated
}

// Clone returns an independent copy of the map.
func (m ProvenanceMap) Clone() ProvenanceMap {
	if m == nil {
		return nil
	}
	cp := make(ProvenanceMap, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// Validate rejects provenance values outside the closed variant set.
func (m ProvenanceMap) Validate() error {
	for k, v := range m {
		if !v.Valid() {
			return fmt.Errorf("resource %q has invalid provenance %q", k, v)
		}
	}
	return nil
}

package orchestrator

import (
	"context"
	"fmt"

	"github.com/geusemaker/geusemaker/api"
	"github.com/geusemaker/geusemaker/support/resource"
	"github.com/geusemaker/geusemaker/support/selection"
)

// deploy is the mutable context threaded through one pipeline run.
type deploy struct {
	o   *Orchestrator
	cfg api.DeploymentConfig
	st  *api.DeploymentState

	sel     *selection.Selection
	network *resource.Network
	// userData is the compressed init payload handed to the launch stage.
	userData []byte
	imageID  string
	// checkpointed flips once the partial state is durably written; it
	// gates compensating cleanup.
	checkpointed bool
}

// stages composes the pipeline for the configuration: the base stages plus
// the load-balancer and CDN stages when the caller enabled them.
func (d *deploy) stages() []Stage {
	list := []Stage{
		{"select-compute", d.selectCompute},
		{"network", d.provisionNetwork},
		{"security-group", d.securityGroup},
		{"filesystem", d.filesystem},
		{"checkpoint", d.checkpoint},
		{"identity", d.identity},
		{"user-data", d.renderUserData},
		{"launch", d.launch},
	}
	if d.cfg.EnableLoadBalancer {
		list = append(list, Stage{"load-balancer", d.loadBalancer})
	}
	if d.cfg.EnableCDN {
		list = append(list, Stage{"cdn", d.distribution})
	}
	return append(list, Stage{"finalize", d.finalize})
}

func (d *deploy) selectCompute(ctx context.Context) error {
	sel, err := d.o.deps.Selector.Select(ctx, d.cfg)
	if err != nil {
		return err
	}
	d.sel = sel
	d.o.log.Info("Selected compute",
		"instanceType", sel.InstanceType, "spot", sel.IsSpot, "zone", sel.AvailabilityZone,
		"hourly", sel.HourlyPrice, "reason", sel.Reason, "fallback", sel.FallbackReason)
	return nil
}

func (d *deploy) provisionNetwork(ctx context.Context) error {
	var (
		network *resource.Network
		err     error
	)
	if d.cfg.ReusesNetwork() {
		network, err = d.o.deps.Networks.AdoptNetwork(ctx, resource.AdoptOptions{
			VPCID:                 d.cfg.VPCID,
			PublicSubnetIDs:       d.cfg.PublicSubnetIDs,
			PrivateSubnetIDs:      d.cfg.PrivateSubnetIDs,
			PreferredZone:         d.sel.AvailabilityZone,
			AttachInternetGateway: d.cfg.AttachInternetGateway,
			Stack:                 d.cfg.StackName,
			Tier:                  string(d.cfg.Tier),
		})
		if err != nil {
			return err
		}
		d.st.Provenance.Mark(api.KindVPC, api.ProvenanceReused)
		d.st.Provenance.Mark(api.KindSubnets, api.ProvenanceReused)
	} else {
		network, err = d.o.deps.Networks.CreateNetwork(ctx, resource.NetworkOptions{
			Stack:         d.cfg.StackName,
			Tier:          string(d.cfg.Tier),
			PreferredZone: d.sel.AvailabilityZone,
		})
		if err != nil {
			return err
		}
		d.st.Provenance.Mark(api.KindVPC, api.ProvenanceCreated)
		d.st.Provenance.Mark(api.KindSubnets, api.ProvenanceCreated)
	}
	d.network = network
	d.st.VPCID = network.VPCID
	d.st.SubnetIDs = network.SubnetIDs()
	d.st.ComputeSubnetID = network.ComputeSubnetID
	d.st.AvailabilityZone = network.ComputeZone
	d.st.StorageSubnetID = d.cfg.StorageSubnetID
	if d.st.StorageSubnetID == "" {
		d.st.StorageSubnetID = network.ComputeSubnetID
	}
	return nil
}

func (d *deploy) securityGroup(ctx context.Context) error {
	if d.cfg.SecurityGroupID != "" {
		vpcID, err := d.o.deps.Groups.VPCOf(ctx, d.cfg.SecurityGroupID)
		if err != nil {
			return err
		}
		if vpcID != d.network.VPCID {
			return fmt.Errorf("security group %s belongs to %s, not %s", d.cfg.SecurityGroupID, vpcID, d.network.VPCID)
		}
		if d.cfg.EnableHTTPS {
			if _, err := d.o.deps.Groups.EnsureHTTPS(ctx, d.cfg.SecurityGroupID); err != nil {
				return err
			}
		}
		d.st.SecurityGroupID = d.cfg.SecurityGroupID
		d.st.Provenance.Mark(api.KindSecurityGroup, api.ProvenanceReused)
		return nil
	}

	sgID, err := d.o.deps.Groups.Create(ctx, resource.SGOptions{
		Stack:       d.cfg.StackName,
		Tier:        string(d.cfg.Tier),
		VPCID:       d.network.VPCID,
		VPCCIDR:     d.network.CIDR,
		ServicePort: api.DefaultServicePorts["n8n"],
		EnableHTTPS: d.cfg.EnableHTTPS,
	})
	if err != nil {
		return err
	}
	d.st.SecurityGroupID = sgID
	d.st.Provenance.Mark(api.KindSecurityGroup, api.ProvenanceCreated)
	return nil
}

func (d *deploy) filesystem(ctx context.Context) error {
	fs := d.o.deps.Filesystems
	if d.cfg.EFSID != "" {
		exists, err := fs.Exists(ctx, d.cfg.EFSID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("filesystem %s not found", d.cfg.EFSID)
		}
		d.st.EFSID = d.cfg.EFSID
		d.st.Provenance.Mark(api.KindEFS, api.ProvenanceReused)
		mtIDs, err := fs.MountTargetIDs(ctx, d.cfg.EFSID)
		if err != nil {
			return err
		}
		if len(mtIDs) > 0 {
			// An adopted filesystem keeps its own mount targets; the init
			// script mounts by DNS.
			d.st.MountTargetID = mtIDs[0]
			return nil
		}
	} else {
		fsID, err := fs.Create(ctx, d.cfg.StackName, string(d.cfg.Tier))
		if err != nil {
			return err
		}
		d.st.EFSID = fsID
		d.st.Provenance.Mark(api.KindEFS, api.ProvenanceCreated)
	}

	mtID, ip, err := fs.CreateMountTarget(ctx, d.st.EFSID, d.st.StorageSubnetID, d.st.SecurityGroupID)
	if err != nil {
		return err
	}
	d.st.MountTargetID = mtID
	d.st.MountTargetIP = ip
	return nil
}

// checkpoint writes the partial state. From here on a failure is visible to
// the user and compensating cleanup can reason about what exists.
func (d *deploy) checkpoint(ctx context.Context) error {
	d.st.Status = api.StatusCreating
	d.st.Provenance.Mark(api.KindInstance, api.ProvenancePending)
	d.st.Touch()
	if err := d.o.deps.Store.Save(ctx, d.st); err != nil {
		return fmt.Errorf("cannot checkpoint partial state: %w", err)
	}
	d.checkpointed = true
	return nil
}

func (d *deploy) identity(ctx context.Context) error {
	roleName, profileName, err := d.o.deps.Identities.CreateInstanceIdentity(ctx, d.cfg.StackName, string(d.cfg.Tier))
	if err != nil {
		return err
	}
	d.st.IAMRoleName = roleName
	d.st.InstanceProfile = profileName
	d.st.Provenance.Mark(api.KindIAM, api.ProvenanceCreated)
	return nil
}

func (d *deploy) renderUserData(ctx context.Context) error {
	payload, err := resource.RenderUserData(resource.UserDataParams{
		Stack:         d.cfg.StackName,
		Tier:          string(d.cfg.Tier),
		Region:        d.cfg.Region,
		FilesystemID:  d.st.EFSID,
		FilesystemDNS: fmt.Sprintf("%s.efs.%s.amazonaws.com", d.st.EFSID, d.cfg.Region),
		FilesystemIP:  d.st.MountTargetIP,
		EnableGPU:     d.cfg.Tier == api.TierGPU || resource.IsGPUInstanceType(d.cfg.InstanceType),
	})
	if err != nil {
		return err
	}
	d.userData = payload
	return nil
}

func (d *deploy) launch(ctx context.Context) error {
	if d.cfg.KeypairName != "" {
		created, material, err := d.o.deps.Instances.EnsureKeypair(ctx, d.cfg.KeypairName)
		if err != nil {
			return err
		}
		d.st.KeypairName = d.cfg.KeypairName
		if created {
			d.st.Provenance.Mark(api.KindKeypair, api.ProvenanceCreated)
			if d.o.deps.SaveKeyMaterial == nil {
				d.o.log.Info("No key sink configured, discarding private key", "keypair", d.cfg.KeypairName)
			} else if path, err := d.o.deps.SaveKeyMaterial(d.cfg.StackName, d.cfg.KeypairName, material); err != nil {
				return fmt.Errorf("cannot persist private key for %q: %w", d.cfg.KeypairName, err)
			} else {
				d.o.log.Info("Private key written", "keypair", d.cfg.KeypairName, "path", path)
			}
		} else {
			d.st.Provenance.Mark(api.KindKeypair, api.ProvenanceReused)
		}
	}

	imageID, err := d.o.deps.Images.Resolve(ctx, d.cfg)
	if err != nil {
		return err
	}
	d.imageID = imageID

	zone := d.sel.AvailabilityZone
	if zone == "" {
		zone = d.network.ComputeZone
	}
	inst, err := d.o.deps.Instances.Launch(ctx, resource.LaunchOptions{
		Stack:           d.cfg.StackName,
		Tier:            string(d.cfg.Tier),
		ImageID:         imageID,
		InstanceType:    d.cfg.InstanceType,
		SubnetID:        d.network.ComputeSubnetID,
		Zone:            zone,
		SecurityGroupID: d.st.SecurityGroupID,
		ProfileName:     d.st.InstanceProfile,
		KeyName:         d.cfg.KeypairName,
		UserData:        d.userData,
		Spot:            d.sel.IsSpot,
	})
	if err != nil {
		return err
	}
	d.st.InstanceID = inst.ID
	d.st.PublicIP = inst.PublicIP
	d.st.PrivateIP = inst.PrivateIP
	if inst.Zone != "" {
		d.st.AvailabilityZone = inst.Zone
	}
	d.st.Provenance.Mark(api.KindInstance, api.ProvenanceCreated)
	return nil
}

func (d *deploy) loadBalancer(ctx context.Context) error {
	subnets := d.network.PublicSubnetIDs
	if len(subnets) < 2 {
		return fmt.Errorf("the load balancer needs 2 public subnets, the network has %d", len(subnets))
	}
	lb, err := d.o.deps.LoadBalancers.Create(ctx, resource.LBOptions{
		Stack:           d.cfg.StackName,
		Tier:            string(d.cfg.Tier),
		VPCID:           d.network.VPCID,
		SubnetIDs:       subnets,
		SecurityGroupID: d.st.SecurityGroupID,
		CertificateARN:  d.cfg.ALBCertificateARN,
		HTTPSRedirect:   d.cfg.HTTPSRedirect,
	})
	if err != nil {
		return err
	}
	d.st.LoadBalancerARN = lb.ARN
	d.st.LoadBalancerDNS = lb.DNSName
	d.st.TargetGroupARN = lb.TargetGroupARN
	d.st.Provenance.Mark(api.KindLoadBalancer, api.ProvenanceCreated)
	return d.o.deps.LoadBalancers.RegisterInstance(ctx, lb.TargetGroupARN, d.st.InstanceID)
}

func (d *deploy) distribution(ctx context.Context) error {
	dist, err := d.o.deps.Distributions.Create(ctx, resource.CDNOptions{
		Stack:          d.cfg.StackName,
		OriginDNS:      d.st.LoadBalancerDNS,
		CertificateARN: d.cfg.CloudFrontCertificateARN,
	})
	if err != nil {
		return err
	}
	d.st.CDNDistributionID = dist.ID
	d.st.CDNDomainName = dist.DomainName
	d.st.Provenance.Mark(api.KindCDN, api.ProvenanceCreated)
	return d.o.deps.Distributions.WaitDeployed(ctx, dist.ID)
}

func (d *deploy) finalize(ctx context.Context) error {
	spotHourly := 0.0
	if d.sel.IsSpot {
		spotHourly = d.sel.HourlyPrice
	}
	d.st.CostTracking = d.o.deps.Prices.EstimateMonthly(ctx, d.cfg,
		d.sel.HourlyPrice, d.sel.IsSpot, spotHourly, d.sel.OnDemandHourly, d.sel.Source)
	d.st.ContainerImages = map[string]string{}
	for name, ref := range resource.DefaultContainerImages {
		d.st.ContainerImages[name] = ref
	}
	d.st.N8NURL = d.st.PrimaryServiceURL()
	d.st.Status = api.StatusRunning
	d.st.Touch()
	if err := d.o.deps.Store.Save(ctx, d.st); err != nil {
		return fmt.Errorf("cannot save final state: %w", err)
	}
	d.o.log.Info("Deployment is running", "stack", d.cfg.StackName, "url", d.st.N8NURL)
	return nil
}

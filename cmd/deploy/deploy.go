// Package deploy provisions a stack through the staged pipeline.
package deploy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/geusemaker/geusemaker/api"
	"github.com/geusemaker/geusemaker/cmd/util"
	"github.com/geusemaker/geusemaker/support/capacity"
	"github.com/geusemaker/geusemaker/support/orchestrator"
	"github.com/geusemaker/geusemaker/support/selection"
	"github.com/geusemaker/geusemaker/support/teardown"
	"github.com/geusemaker/geusemaker/support/validate"
)

// Options collect every deploy flag.
type Options struct {
	Global *util.GlobalOptions
	AWS    util.AWSOptions

	StackName    string
	Tier         string
	InstanceType string
	UseSpot      bool

	OSType       string
	Architecture string
	AMIType      string
	AMIID        string

	VPCID            string
	SubnetIDs        []string
	PrivateSubnetIDs []string
	StorageSubnetID  string
	SecurityGroupID  string
	EFSID            string
	KeypairName      string

	EnableALB                bool
	EnableCDN                bool
	ALBCertificateARN        string
	CloudFrontCertificateARN string
	NoHTTPS                  bool
	NoHTTPSRedirect          bool
	AttachInternetGateway    bool

	NoRollback             bool
	RollbackTimeoutMinutes int
	SkipValidation         bool
}

// NewCommand builds the deploy command.
func NewCommand(global *util.GlobalOptions) *cobra.Command {
	opts := &Options{
		Global:                 global,
		UseSpot:                true,
		InstanceType:           "t3.medium",
		OSType:                 string(api.OSAmazonLinux2023),
		Architecture:           string(api.ArchX8664),
		AMIType:                string(api.VariantBase),
		RollbackTimeoutMinutes: 30,
	}
	cmd := &cobra.Command{
		Use:          "deploy",
		Short:        "Provisions a stack: network, filesystem, compute and optional edge",
		SilenceUsage: true,
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.StackName, "stack-name", "", "Name of the stack to create")
	flags.StringVar(&opts.Tier, "tier", "", "Deployment tier: dev, automation or gpu")
	opts.AWS.Bind(flags)
	flags.StringVar(&opts.InstanceType, "instance-type", opts.InstanceType, "Compute instance type")
	flags.BoolVar(&opts.UseSpot, "use-spot", opts.UseSpot, "Prefer spot capacity when it is cheap and stable")
	flags.StringVar(&opts.OSType, "os-type", opts.OSType, "Operating system of the image")
	flags.StringVar(&opts.Architecture, "architecture", opts.Architecture, "CPU architecture: x86_64 or arm64")
	flags.StringVar(&opts.AMIType, "ami-type", opts.AMIType, "Image variant: base, pytorch, tensorflow or multi-framework")
	flags.StringVar(&opts.AMIID, "ami-id", "", "Exact image id, bypassing variant resolution")
	flags.StringVar(&opts.VPCID, "vpc-id", "", "Existing VPC to reuse instead of creating one")
	flags.StringSliceVar(&opts.SubnetIDs, "subnet-id", nil, "Public subnet of the reused VPC; repeatable")
	flags.StringSliceVar(&opts.PrivateSubnetIDs, "private-subnet-id", nil, "Private subnet of the reused VPC; repeatable")
	flags.StringVar(&opts.StorageSubnetID, "storage-subnet-id", "", "Subnet for the filesystem mount target")
	flags.StringVar(&opts.SecurityGroupID, "security-group-id", "", "Existing security group to reuse")
	flags.StringVar(&opts.EFSID, "efs-id", "", "Existing filesystem to reuse")
	flags.StringVar(&opts.KeypairName, "keypair-name", "", "SSH keypair for the instance")
	flags.BoolVar(&opts.EnableALB, "enable-alb", false, "Put an application load balancer in front")
	flags.BoolVar(&opts.EnableCDN, "enable-cdn", false, "Put a CDN distribution in front; requires --enable-alb")
	flags.StringVar(&opts.ALBCertificateARN, "alb-certificate-arn", "", "TLS certificate for the load balancer")
	flags.StringVar(&opts.CloudFrontCertificateARN, "cloudfront-certificate-arn", "", "TLS certificate for the CDN")
	flags.BoolVar(&opts.NoHTTPS, "no-https", false, "Serve plain HTTP")
	flags.BoolVar(&opts.NoHTTPSRedirect, "no-https-redirect", false, "Do not redirect HTTP to HTTPS")
	flags.BoolVar(&opts.AttachInternetGateway, "attach-internet-gateway", false, "Attach a gateway to a reused VPC that has none")
	flags.BoolVar(&opts.NoRollback, "no-rollback", false, "Keep partial resources on failure instead of cleaning up")
	flags.IntVar(&opts.RollbackTimeoutMinutes, "rollback-timeout", opts.RollbackTimeoutMinutes, "Deploy budget in minutes before abort")
	flags.BoolVar(&opts.SkipValidation, "skip-validation", false, "Skip the pre-deploy validation report")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return opts.Run(cmd.Context(), cmd.Flags().NFlag() == 0, os.Stdin)
	}
	return cmd
}

// Run executes a deploy. When interactive is set (no flags at all) the
// required fields are prompted for on stdin.
func (o *Options) Run(ctx context.Context, interactive bool, stdin io.Reader) error {
	output, err := o.Global.Printer()
	if err != nil {
		return err
	}
	if interactive {
		if output.Structured() {
			return util.NewUsageError("interactive mode needs text output; pass --stack-name, --tier and --region instead")
		}
		if err := o.prompt(stdin, os.Stdout); err != nil {
			return err
		}
	}

	cfg, err := o.config()
	if err != nil {
		return err
	}
	lg := o.Global.Logger()
	store, err := o.Global.Store(lg)
	if err != nil {
		return err
	}
	clients, err := o.AWS.Clients(ctx)
	if err != nil {
		return err
	}
	svc := util.NewServices(clients, o.AWS.Region, lg)

	if !o.SkipValidation {
		validator := validate.New(validate.Deps{
			Region:      o.AWS.Region,
			STS:         clients.STS(),
			IAM:         clients.IAM(),
			Quotas:      clients.ServiceQuotas(o.AWS.Region),
			EC2:         clients.EC2(o.AWS.Region),
			EFS:         clients.EFS(o.AWS.Region),
			ELB:         clients.ELBV2(o.AWS.Region),
			Networks:    svc.Networks,
			Groups:      svc.Groups,
			Instances:   svc.Instances,
			Filesystems: svc.Filesystems,
			Index:       store,
			Log:         lg,
		})
		report := validator.PreDeploy(ctx, cfg)
		if !report.Passed() {
			msgs := make([]string, 0, len(report.Failures(validate.SeverityError)))
			for _, c := range report.Failures(validate.SeverityError) {
				msgs = append(msgs, fmt.Sprintf("%s: %s (%s)", c.Name, c.Message, c.Remediation))
			}
			if err := output.Fail("validation_failed", "pre-deploy validation failed", msgs, report); err != nil {
				return err
			}
			return fmt.Errorf("pre-deploy validation failed with %d errors", len(msgs))
		}
		lg.Info("Pre-deploy validation passed", "stack", cfg.StackName, "checks", len(report.Checks))
	}

	analyzer := capacity.NewAnalyzer(o.AWS.Region, clients.EC2(o.AWS.Region), svc.Prices,
		func(ctx context.Context) (string, error) { return svc.Images.Resolve(ctx, cfg) }, lg)
	cleaner := teardown.NewDestroyer(svc.Instances, svc.Filesystems, svc.Groups, svc.Networks,
		svc.LoadBalancers, svc.Distributions, svc.Identities, store, lg)

	layout, err := o.Global.Layout()
	if err != nil {
		return err
	}
	orch := orchestrator.New(orchestrator.Deps{
		Selector:      selection.NewEngine(analyzer, lg),
		Networks:      svc.Networks,
		Groups:        svc.Groups,
		Filesystems:   svc.Filesystems,
		Identities:    svc.Identities,
		Instances:     svc.Instances,
		LoadBalancers: svc.LoadBalancers,
		Distributions: svc.Distributions,
		Images:        svc.Images,
		Prices:        svc.Prices,
		Store:         store,
		Cleaner:       cleaner,
		Log:           lg,
		SaveKeyMaterial: func(stack, name, material string) (string, error) {
			return savePrivateKey(layout.ConfigDir(), stack, name, material)
		},
	})
	st, err := orch.Deploy(ctx, cfg)
	if err != nil {
		if ferr := output.Fail("deploy_failed", err.Error(), nil, nil); ferr != nil {
			return ferr
		}
		return err
	}

	output.Textf("Stack %s is running.\n", st.StackName)
	output.Textf("  Instance: %s (%s)\n", st.InstanceID, st.Config.InstanceType)
	output.Textf("  Address:  %s\n", st.N8NURL)
	output.Textf("  Estimate: $%.2f/month\n", st.CostTracking.EstimatedMonthly)
	return output.OK(fmt.Sprintf("stack %s deployed", st.StackName), st)
}

// config assembles the DeploymentConfig from the flags.
func (o *Options) config() (api.DeploymentConfig, error) {
	cfg := api.DefaultConfig()
	cfg.StackName = o.StackName
	cfg.Tier = api.Tier(o.Tier)
	cfg.Region = o.AWS.Region
	cfg.InstanceType = o.InstanceType
	cfg.UseSpot = o.UseSpot
	cfg.OSType = api.OSType(o.OSType)
	cfg.Architecture = api.Architecture(o.Architecture)
	cfg.ImageVariant = api.ImageVariant(o.AMIType)
	cfg.ImageID = o.AMIID
	cfg.VPCID = o.VPCID
	cfg.PublicSubnetIDs = o.SubnetIDs
	cfg.PrivateSubnetIDs = o.PrivateSubnetIDs
	cfg.StorageSubnetID = o.StorageSubnetID
	cfg.SecurityGroupID = o.SecurityGroupID
	cfg.EFSID = o.EFSID
	cfg.KeypairName = o.KeypairName
	cfg.EnableLoadBalancer = o.EnableALB
	cfg.EnableCDN = o.EnableCDN
	cfg.ALBCertificateARN = o.ALBCertificateARN
	cfg.CloudFrontCertificateARN = o.CloudFrontCertificateARN
	cfg.EnableHTTPS = !o.NoHTTPS
	cfg.HTTPSRedirect = !o.NoHTTPS && !o.NoHTTPSRedirect
	cfg.AttachInternetGateway = o.AttachInternetGateway
	cfg.RollbackEnabled = !o.NoRollback
	cfg.RollbackTimeoutMinutes = o.RollbackTimeoutMinutes
	if err := cfg.Validate(); err != nil {
		return api.DeploymentConfig{}, util.NewUsageError("%v", err)
	}
	return cfg, nil
}

// savePrivateKey writes a freshly created keypair's PEM under the config
// directory, readable by the owner only.
func savePrivateKey(dir, stack, name, material string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create %s: %w", dir, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.pem", stack, name))
	if err := os.WriteFile(path, []byte(material), 0o600); err != nil {
		return "", fmt.Errorf("cannot write private key: %w", err)
	}
	return path, nil
}

// prompt fills the required fields interactively. Defaults are shown in
// brackets and taken on empty input.
func (o *Options) prompt(in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	ask := func(label, def string) (string, error) {
		if def != "" {
			fmt.Fprintf(out, "%s [%s]: ", label, def)
		} else {
			fmt.Fprintf(out, "%s: ", label)
		}
		line, err := reader.ReadString('\n')
		if err != nil && strings.TrimSpace(line) == "" {
			return "", fmt.Errorf("cannot read input: %w", err)
		}
		answer := strings.TrimSpace(line)
		if answer == "" {
			answer = def
		}
		return answer, nil
	}

	var err error
	if o.StackName, err = ask("Stack name", ""); err != nil {
		return err
	}
	if o.Tier, err = ask("Tier (dev/automation/gpu)", string(api.TierDev)); err != nil {
		return err
	}
	if o.AWS.Region, err = ask("Region", "us-east-1"); err != nil {
		return err
	}
	if o.InstanceType, err = ask("Instance type", o.InstanceType); err != nil {
		return err
	}
	spot, err := ask("Use spot capacity (y/n)", "y")
	if err != nil {
		return err
	}
	o.UseSpot = strings.EqualFold(spot, "y") || strings.EqualFold(spot, "yes")
	return nil
}

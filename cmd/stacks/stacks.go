// Package stacks groups the read-only deployment commands: list, inspect,
// info, status, logs and cost.
package stacks

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/geusemaker/geusemaker/api"
	"github.com/geusemaker/geusemaker/cmd/util"
	"github.com/geusemaker/geusemaker/support/cleanup"
)

// NewListCommand builds the list command.
func NewListCommand(global *util.GlobalOptions) *cobra.Command {
	opts := &listOptions{Global: global}
	cmd := &cobra.Command{
		Use:          "list",
		Short:        "Lists known stacks, optionally merging provider-tagged ones",
		SilenceUsage: true,
	}
	flags := cmd.Flags()
	flags.BoolVar(&opts.DiscoverFromAWS, "discover-from-aws", false, "Also list provider-tagged stacks without a local record")
	opts.AWS.Bind(flags)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return opts.Run(cmd.Context())
	}
	return cmd
}

type listOptions struct {
	Global *util.GlobalOptions
	AWS    util.AWSOptions

	DiscoverFromAWS bool
}

// listEntry is one row of the listing. Discovered entries exist only as
// provider tags, without a local record.
type listEntry struct {
	Stack      string              `json:"stack"`
	Status     api.LifecycleStatus `json:"status"`
	Tier       api.Tier            `json:"tier,omitempty"`
	Region     string              `json:"region,omitempty"`
	InstanceID string              `json:"instance_id,omitempty"`
	Address    string              `json:"address,omitempty"`
	Provenance string              `json:"provenance"`
}

func (o *listOptions) Run(ctx context.Context) error {
	output, err := o.Global.Printer()
	if err != nil {
		return err
	}
	lg := o.Global.Logger()
	store, err := o.Global.Store(lg)
	if err != nil {
		return err
	}
	states, err := store.LoadAll(ctx)
	if err != nil {
		return err
	}

	entries := make([]listEntry, 0, len(states))
	names := make([]string, 0, len(states))
	for _, st := range states {
		names = append(names, st.StackName)
		entries = append(entries, listEntry{
			Stack:      st.StackName,
			Status:     st.Status,
			Tier:       st.Config.Tier,
			Region:     st.Config.Region,
			InstanceID: st.InstanceID,
			Address:    st.EffectiveHost(),
			Provenance: string(api.ProvenanceCreated),
		})
	}

	if o.DiscoverFromAWS {
		if o.AWS.Region == "" {
			return util.NewUsageError("--discover-from-aws needs --region")
		}
		clients, err := o.AWS.Clients(ctx)
		if err != nil {
			return err
		}
		svc := util.NewServices(clients, o.AWS.Region, lg)
		cleaner := cleanup.New(o.AWS.Region, clients.Tagging(o.AWS.Region),
			svc.Instances, svc.Filesystems, svc.Groups, svc.Networks, store, lg)
		orphans, err := cleaner.Discover(ctx, names, nil)
		if err != nil {
			return err
		}
		seen := map[string]bool{}
		for _, orphan := range orphans {
			if seen[orphan.Stack] {
				continue
			}
			seen[orphan.Stack] = true
			entries = append(entries, listEntry{
				Stack:      orphan.Stack,
				Region:     o.AWS.Region,
				Provenance: string(api.ProvenanceAutoDiscovered),
			})
		}
	}

	if len(entries) == 0 {
		output.Textf("No stacks found.\n")
	}
	for _, e := range entries {
		if e.Status == "" {
			output.Textf("%-24s %-12s %-12s (provider tags only)\n", e.Stack, "-", e.Region)
			continue
		}
		output.Textf("%-24s %-12s %-12s %-10s %s\n", e.Stack, e.Status, e.Region, e.Tier, e.Address)
	}
	return output.OK(fmt.Sprintf("%d stacks", len(entries)), entries)
}

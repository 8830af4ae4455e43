package util

import (
	"os"
	"sort"
	"strings"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"

	"github.com/geusemaker/geusemaker/cmd/log"
	"github.com/geusemaker/geusemaker/support/state"
)

// GlobalOptions are the flags shared by every command, bound on the root
// command and inherited by the subcommands.
type GlobalOptions struct {
	Output    string
	StateDir  string
	Verbosity int
	Silent    bool
}

// Bind registers the shared flags.
func (g *GlobalOptions) Bind(flags *pflag.FlagSet) {
	flags.StringVarP(&g.Output, "output", "o", "text", "Output format: text, json or yaml")
	flags.StringVar(&g.StateDir, "state-dir", "", "State directory (default: ~/.geusemaker)")
	flags.CountVarP(&g.Verbosity, "verbose", "v", "Raise log verbosity; repeatable")
	flags.BoolVar(&g.Silent, "silent", false, "Log errors only")
}

// Logger builds the command logger from the verbosity flags.
func (g *GlobalOptions) Logger() logr.Logger {
	return log.New(log.Options{Verbosity: g.Verbosity, Silent: g.Silent})
}

// Layout resolves the state directory layout.
func (g *GlobalOptions) Layout() (state.Layout, error) {
	if g.StateDir != "" {
		return state.Layout{Base: g.StateDir}, nil
	}
	return state.DefaultLayout()
}

// Store opens the state store under the resolved layout.
func (g *GlobalOptions) Store(lg logr.Logger) (*state.Store, error) {
	layout, err := g.Layout()
	if err != nil {
		return nil, err
	}
	return state.New(state.Options{Layout: layout, Log: lg})
}

// Printer builds the Output for the chosen format, writing to stdout.
func (g *GlobalOptions) Printer() (*Output, error) {
	format, err := ParseFormat(g.Output)
	if err != nil {
		return nil, err
	}
	return &Output{Format: format, Out: os.Stdout}, nil
}

// ParseImages turns repeated --image name=ref flags into a map. Repeating a
// service name is a usage error.
func ParseImages(flags []string) (map[string]string, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	images := make(map[string]string, len(flags))
	for _, f := range flags {
		name, ref, found := strings.Cut(f, "=")
		if !found || name == "" || ref == "" {
			return nil, NewUsageError("--image takes name=reference, got %q", f)
		}
		if _, dup := images[name]; dup {
			return nil, NewUsageError("--image repeats service %q", name)
		}
		images[name] = ref
	}
	return images, nil
}

// SortedKeys returns a map's keys in stable order for rendering.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package state

import (
	"context"
	"testing"
	"time"

	"github.com/geusemaker/geusemaker/api"
)

func seedStates(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()

	alpha := runningState("alpha")
	alpha.Config.Tier = api.TierDev
	alpha.Config.Region = "us-east-1"
	beta := runningState("beta")
	beta.Config.Tier = api.TierGPU
	beta.Config.Region = "us-west-2"
	gamma := runningState("gamma")
	gamma.Status = api.StatusFailed
	gamma.Config.Tier = api.TierDev
	gamma.Config.Region = "us-east-1"

	// Distinct save order fixes the updated_at ordering: gamma newest.
	for _, st := range []*api.DeploymentState{alpha, beta, gamma} {
		if err := s.Save(ctx, st); err != nil {
			t.Fatalf("Save(%s) = %v", st.StackName, err)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestQueryFilters(t *testing.T) {
	s := newTestStore(t, Options{})
	seedStates(t, s)
	ctx := context.Background()

	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{name: "all records, newest update first", query: Query{}, want: []string{"gamma", "beta", "alpha"}},
		{name: "by status", query: Query{Status: api.StatusFailed}, want: []string{"gamma"}},
		{name: "by tier", query: Query{Tier: api.TierGPU}, want: []string{"beta"}},
		{name: "by region", query: Query{Region: "us-east-1"}, want: []string{"gamma", "alpha"}},
		{name: "combined filters", query: Query{Region: "us-east-1", Status: api.StatusRunning}, want: []string{"alpha"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := s.Query(ctx, test.query)
			if err != nil {
				t.Fatalf("Query() = %v", err)
			}
			if len(got) != len(test.want) {
				t.Fatalf("Query() returned %d records, want %d", len(got), len(test.want))
			}
			for i, st := range got {
				if st.StackName != test.want[i] {
					t.Errorf("result[%d] = %s, want %s", i, st.StackName, test.want[i])
				}
			}
		})
	}
}

func TestQueryCreatedWindow(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	old := runningState("old")
	old.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := runningState("recent")
	recent.CreatedAt = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, st := range []*api.DeploymentState{old, recent} {
		if err := s.Save(ctx, st); err != nil {
			t.Fatalf("Save(%s) = %v", st.StackName, err)
		}
	}

	cut := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	after, err := s.Query(ctx, Query{CreatedAfter: &cut})
	if err != nil {
		t.Fatalf("Query() = %v", err)
	}
	if len(after) != 1 || after[0].StackName != "recent" {
		t.Errorf("CreatedAfter window returned %v, want only recent", stackNames(after))
	}

	before, err := s.Query(ctx, Query{CreatedBefore: &cut})
	if err != nil {
		t.Fatalf("Query() = %v", err)
	}
	if len(before) != 1 || before[0].StackName != "old" {
		t.Errorf("CreatedBefore window returned %v, want only old", stackNames(before))
	}
}

func stackNames(states []*api.DeploymentState) []string {
	names := make([]string, 0, len(states))
	for _, st := range states {
		names = append(names, st.StackName)
	}
	return names
}

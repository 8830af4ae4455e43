package state

import (
	"context"
	"sort"
	"time"

	"github.com/geusemaker/geusemaker/api"
)

// Query filters loaded deployment records. Zero-valued fields match
// everything.
type Query struct {
	Status api.LifecycleStatus
	Tier   api.Tier
	Region string
	// CreatedAfter and CreatedBefore bound created_at inclusively.
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (q Query) matches(st *api.DeploymentState) bool {
	if q.Status != "" && st.Status != q.Status {
		return false
	}
	if q.Tier != "" && st.Config.Tier != q.Tier {
		return false
	}
	if q.Region != "" && st.Config.Region != q.Region {
		return false
	}
	if q.CreatedAfter != nil && st.CreatedAt.Before(*q.CreatedAfter) {
		return false
	}
	if q.CreatedBefore != nil && st.CreatedAt.After(*q.CreatedBefore) {
		return false
	}
	return true
}

// Query loads every record and returns those matching q, most recently
// updated first. Load errors on individual records are aggregated but do
// not hide the records that loaded.
func (s *Store) Query(ctx context.Context, q Query) ([]*api.DeploymentState, error) {
	states, err := s.LoadAll(ctx)
	matched := states[:0]
	for _, st := range states {
		if q.matches(st) {
			matched = append(matched, st)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})
	return matched, err
}

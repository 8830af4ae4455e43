// Package resource wraps the provider's imperative operations on each
// resource kind the tool manages: create, adopt, wait-for-state, tag and
// delete. Services are thin and stateless; ordering and provenance live in
// the orchestrator and teardown layers above.
package resource

import (
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

var (
	// identityRetryBackoff covers the propagation window between creating
	// an instance profile and the compute service accepting it: 5 attempts
	// 3 seconds apart.
	identityRetryBackoff = wait.Backoff{
		Steps:    5,
		Duration: 3 * time.Second,
		Factor:   1.0,
		Jitter:   0.1,
	}

	// pollInterval paces every wait-for-state loop.
	pollInterval = 10 * time.Second
)

// Bounds on how long each wait-for-state loop runs before giving up.
const (
	instanceWaitTimeout    = 5 * time.Minute
	filesystemWaitTimeout  = 5 * time.Minute
	mountTargetWaitTimeout = 5 * time.Minute
	profileWaitTimeout     = 2 * time.Minute
	targetHealthTimeout    = 5 * time.Minute
	distributionTimeout    = 40 * time.Minute
	distributionInterval   = 30 * time.Second
)

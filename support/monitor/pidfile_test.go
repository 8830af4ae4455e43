package monitor

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geusemaker/geusemaker/support/state"
)

func backgroundFixture(t *testing.T) *Background {
	t.Helper()
	layout := state.Layout{Base: t.TempDir()}
	require.NoError(t, layout.Ensure())
	return NewBackground(layout)
}

func TestStatusWithoutPIDFile(t *testing.T) {
	b := backgroundFixture(t)

	pid, running, err := b.Status("demo")
	require.NoError(t, err)
	assert.Zero(t, pid)
	assert.False(t, running)
}

func TestStatusReportsLivePID(t *testing.T) {
	b := backgroundFixture(t)
	require.NoError(t, b.writePID("demo", os.Getpid()))

	pid, running, err := b.Status("demo")
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, running)
}

func TestStatusDamagedPIDFile(t *testing.T) {
	b := backgroundFixture(t)
	require.NoError(t, os.WriteFile(b.layout.PIDFile("demo"), []byte("not-a-pid"), 0o644))

	_, _, err := b.Status("demo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "damaged")
}

func TestStopWithoutRecordedMonitor(t *testing.T) {
	b := backgroundFixture(t)

	err := b.Stop("demo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no monitor is recorded")
}

func TestStopRemovesStalePIDFile(t *testing.T) {
	b := backgroundFixture(t)
	// A pid far above any live process on the test machine.
	require.NoError(t, b.writePID("demo", 1<<22-1))

	require.NoError(t, b.Stop("demo"))
	_, err := os.Stat(b.layout.PIDFile("demo"))
	assert.True(t, os.IsNotExist(err))
}

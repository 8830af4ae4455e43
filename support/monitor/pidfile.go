package monitor

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/geusemaker/geusemaker/support/state"
)

// Background manages a detached monitor process for one stack: it re-execs
// the current binary into its own session, tracks it through a pid file,
// and signals it on stop.
type Background struct {
	layout state.Layout
}

// NewBackground builds a Background over layout.
func NewBackground(layout state.Layout) *Background {
	return &Background{layout: layout}
}

// Start re-executes the current binary with args as a detached process.
// Its output streams land in the stack's monitor log files and its pid is
// recorded for Stop. Returns the child's pid.
func (b *Background) Start(stack string, args []string) (int, error) {
	if pid, running, err := b.Status(stack); err != nil {
		return 0, err
	} else if running {
		return 0, fmt.Errorf("a monitor for stack %s is already running (pid %d)", stack, pid)
	}
	if err := b.layout.Ensure(); err != nil {
		return 0, err
	}

	self, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("cannot resolve own executable: %w", err)
	}
	out, err := os.OpenFile(b.layout.MonitorOutLog(stack), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("cannot open monitor output log: %w", err)
	}
	defer out.Close()
	errLog, err := os.OpenFile(b.layout.MonitorErrLog(stack), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("cannot open monitor error log: %w", err)
	}
	defer errLog.Close()

	cmd := exec.Command(self, args...)
	cmd.Stdout = out
	cmd.Stderr = errLog
	// A new session detaches the child from the controlling terminal so it
	// survives the parent exiting.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("cannot start background monitor: %w", err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return 0, fmt.Errorf("cannot release background monitor: %w", err)
	}
	if err := b.writePID(stack, pid); err != nil {
		return 0, err
	}
	return pid, nil
}

// Stop signals the recorded monitor process with SIGTERM and removes the
// pid file. A stale pid file, one whose process is gone, is removed too.
func (b *Background) Stop(stack string) error {
	pid, running, err := b.Status(stack)
	if err != nil {
		return err
	}
	if pid == 0 {
		return fmt.Errorf("no monitor is recorded for stack %s", stack)
	}
	if running {
		if err := unix.Kill(pid, unix.SIGTERM); err != nil {
			return fmt.Errorf("cannot signal monitor pid %d: %w", pid, err)
		}
	}
	if err := os.Remove(b.layout.PIDFile(stack)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cannot remove pid file: %w", err)
	}
	return nil
}

// Status reports the recorded pid, if any, and whether that process is
// still alive. A pid of zero means no pid file exists.
func (b *Background) Status(stack string) (pid int, running bool, err error) {
	raw, err := os.ReadFile(b.layout.PIDFile(stack))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("cannot read pid file: %w", err)
	}
	pid, err = strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, false, fmt.Errorf("pid file for stack %s is damaged: %w", stack, err)
	}
	// Signal 0 probes for existence without delivering anything.
	return pid, unix.Kill(pid, 0) == nil, nil
}

func (b *Background) writePID(stack string, pid int) error {
	path := b.layout.PIDFile(stack)
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return fmt.Errorf("cannot write pid file: %w", err)
	}
	return nil
}

//go:build unix

package process

import (
	"os/exec"
	"sync"
	"syscall"
	"time"
)

var signalGroup = syscall.Kill

// configureKill places the engine in its own process group so that helpers it
// spawns die with it: SIGTERM to the group first, SIGKILL after grace. The
// returned stop must be called once Wait returns; it drops a pending SIGKILL
// so a reaped group id is never signalled.
func configureKill(cmd *exec.Cmd, grace time.Duration) (stop func()) {
	var (
		mu     sync.Mutex
		timer  *time.Timer
		reaped bool
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		pgid := -cmd.Process.Pid
		if err := signalGroup(pgid, syscall.SIGTERM); err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		if !reaped {
			timer = time.AfterFunc(grace, func() {
				mu.Lock()
				defer mu.Unlock()
				if !reaped {
					_ = signalGroup(pgid, syscall.SIGKILL)
				}
			})
		}
		return nil
	}
	return func() {
		mu.Lock()
		defer mu.Unlock()
		reaped = true
		if timer != nil {
			timer.Stop()
		}
	}
}

//go:build !unix

package process

import (
	"os/exec"
	"time"
)

func configureKill(cmd *exec.Cmd, _ time.Duration) (stop func()) {
	cmd.Cancel = func() error { return cmd.Process.Kill() }
	return func() {}
}

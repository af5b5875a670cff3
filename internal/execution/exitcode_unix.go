//go:build unix

package execution

import (
	"os"
	"os/exec"
	"syscall"
)

// exitStatus maps a finished process to a shell-style exit code, 128+N for signal N
func exitStatus(state *os.ProcessState) (int, bool) {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal()), true
	}
	return state.ExitCode(), false
}

// configureCommand runs the module in its own process group so cancellation
// also kills the workers pytest spawns
func configureCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}

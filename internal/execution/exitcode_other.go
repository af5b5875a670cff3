//go:build !unix

package execution

import (
	"os"
	"os/exec"
)

func exitStatus(state *os.ProcessState) (int, bool) {
	code := state.ExitCode()
	if code < 0 {
		return 128 + 9, true
	}
	return code, false
}

func configureCommand(cmd *exec.Cmd) {}

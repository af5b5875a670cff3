package gpu

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Counter reports how many accelerators the host has
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// LspciCounter counts AMD display/accelerator controllers listed by lspci
type LspciCounter struct {
	Binary string
}

// NewLspciCounter creates a counter using lspci from PATH
func NewLspciCounter() *LspciCounter {
	return &LspciCounter{Binary: "lspci"}
}

// Count runs lspci and counts matching devices. Zero devices is an error.
func (c *LspciCounter) Count(ctx context.Context) (int, error) {
	out, err := exec.CommandContext(ctx, c.Binary).Output()
	if err != nil {
		return 0, fmt.Errorf("run %s: %w", c.Binary, err)
	}
	n := CountDevices(string(out))
	if n == 0 {
		return 0, fmt.Errorf("no AMD accelerators found by %s; pass --parallel", c.Binary)
	}
	return n, nil
}

// CountDevices counts lspci lines naming a controller or accelerator from AMD/ATI
func CountDevices(lspci string) int {
	var n int
	scanner := bufio.NewScanner(strings.NewReader(lspci))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "controller") && !strings.Contains(line, "accel") {
			continue
		}
		if strings.Contains(line, "AMD/ATI") {
			n++
		}
	}
	return n
}

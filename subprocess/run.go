package subprocess

import (
	"context"
	"os/exec"
)

// RunWithContext starts cmd and kills the process when ctx is cancelled,
// waiting for the child to be reaped either way. exec.CommandContext is not
// used everywhere because some commands are compiled by libraries that hand
// back a bare exec.Cmd.
func RunWithContext(ctx context.Context, cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done
		return ctx.Err()
	case err := <-done:
		return err
	}
}

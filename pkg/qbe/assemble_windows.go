//go:build windows

package qbe

import (
	"fmt"
	"os"
	"os/exec"
)

// libqbe does not build on Windows; use a qbe executable from PATH.
func assemble(target, il string) ([]byte, error) {
	if _, err := exec.LookPath("qbe"); err != nil {
		return nil, fmt.Errorf("QBE not found in PATH: %w", err)
	}
	in, err := os.CreateTemp("", "jcc-qbe-*.ssa")
	if err != nil {
		return nil, err
	}
	defer os.Remove(in.Name())
	if _, err := in.WriteString(il); err != nil {
		in.Close()
		return nil, err
	}
	if err := in.Close(); err != nil {
		return nil, err
	}

	out := in.Name() + ".s"
	defer os.Remove(out)
	cmd := exec.Command("qbe", "-o", out, "-t", target, in.Name())
	if msg, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%w: %s", err, msg)
	}
	return os.ReadFile(out)
}

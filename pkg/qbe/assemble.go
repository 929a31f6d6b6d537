//go:build !windows

package qbe

import (
	"bytes"
	"strings"

	"modernc.org/libqbe"
)

func assemble(target, il string) ([]byte, error) {
	var asm bytes.Buffer
	if err := libqbe.Main(target, "input.ssa", strings.NewReader(il), &asm, nil); err != nil {
		return nil, err
	}
	return asm.Bytes(), nil
}

package main

import (
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xplshn/jcc/pkg/config"
	"github.com/xplshn/jcc/pkg/lower"
	"github.com/xplshn/jcc/pkg/mir"
	"github.com/xplshn/jcc/pkg/util"
)

func TestCCPreprocessorExpandsMacros(t *testing.T) {
	if _, err := exec.LookPath("cc"); err != nil {
		t.Skip("cc not in PATH")
	}
	util.Output = io.Discard
	path := filepath.Join(t.TempDir(), "macro.c")
	require.NoError(t, os.WriteFile(path, []byte("#define N 40\nint main(void) { return N + 2; }\n"), 0o644))

	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatCCPreprocessor, true)
	root, err := parseFile(cfg, path)
	require.NoError(t, err)
	prog, err := lower.Program(root, cfg)
	require.NoError(t, err)

	var imms []int64
	for _, ins := range prog.Function("main").Blocks[0].Instructions {
		if ins.Op == mir.OpConst {
			imms = append(imms, ins.Imm)
		}
	}
	assert.Equal(t, []int64{40, 2}, imms)

	root, err = parseFile(config.NewConfig(), path)
	require.NoError(t, err)
	_, err = lower.Program(root, config.NewConfig())
	assert.True(t, util.IsKind(err, util.ErrUnresolved), "directives are only skipped without the preprocessor: %v", err)
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "fib.s", outputName("", "testdata/fib.c", ".s"))
	assert.Equal(t, "out", outputName("out", "testdata/fib.c", ".s"))
}

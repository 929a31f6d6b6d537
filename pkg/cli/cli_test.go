package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMixedFlags(t *testing.T) {
	fs := NewFlagSet("jcc")
	var out, target string
	var verbose, compileOnly bool
	var libs, linkerArgs []string
	fs.String(&out, "output", "o", "a.out", "Output file", "file")
	fs.String(&target, "target", "t", "qbe", "Backend", "backend/target")
	fs.Bool(&verbose, "verbose", "v", false, "Verbose")
	fs.Bool(&compileOnly, "compile", "c", false, "Compile only")
	fs.List(&linkerArgs, "linker-arg", "L", nil, "Linker argument", "arg")
	fs.Special(&libs, "l", "Link a library", "lib")

	err := fs.Parse([]string{"-v", "-ofoo", "--target=llvm", "main.c", "-lm", "-L", "-s", "-c", "--", "-weird.c"})
	require.NoError(t, err)

	assert.Equal(t, "foo", out)
	assert.Equal(t, "llvm", target)
	assert.True(t, verbose)
	assert.True(t, compileOnly)
	assert.Equal(t, []string{"m"}, libs)
	assert.Equal(t, []string{"-s"}, linkerArgs)
	assert.Equal(t, []string{"main.c", "-weird.c"}, fs.Args())
	assert.True(t, fs.Changed("output"))
	assert.False(t, fs.Changed("help"))
}

func TestParseGroupFlags(t *testing.T) {
	fs := NewFlagSet("jcc")
	on, off := true, false
	entries := []FlagGroupEntry{{Name: "type", Prefix: "W", Usage: "type", Enabled: &on, Disabled: &off}}
	fs.AddFlagGroup("Warning Flags", "", "warning", "", entries)

	require.NoError(t, fs.Parse([]string{"-Wno-type"}))
	assert.True(t, *entries[0].Disabled)
	assert.True(t, fs.Changed("Wno-type"))
	assert.False(t, fs.Changed("Wtype"))
}

func TestParseErrors(t *testing.T) {
	fs := NewFlagSet("jcc")
	var out string
	fs.String(&out, "output", "o", "", "Output file", "file")

	assert.Error(t, fs.Parse([]string{"--nope"}))
	assert.Error(t, fs.Parse([]string{"-x"}))
	assert.Error(t, fs.Parse([]string{"--output"}))
}

func TestHelpListsFlags(t *testing.T) {
	app := NewApp("jcc")
	app.Synopsis = "[options] <input.c>"
	var out string
	app.FlagSet.String(&out, "output", "o", "a.out", "Place the output into <file>.", "file")
	var buf bytes.Buffer
	app.Out = &buf

	require.NoError(t, app.Run([]string{"--help"}))
	assert.Contains(t, buf.String(), "-o, --output <file>")
	assert.Contains(t, buf.String(), "|a.out|")
}

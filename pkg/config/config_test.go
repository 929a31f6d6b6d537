package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xplshn/jcc/pkg/cli"
)

func TestDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, "qbe", cfg.BackendName)
	assert.True(t, cfg.IsFeatureEnabled(FeatImplicitReturn))
	assert.True(t, cfg.IsWarningEnabled(WarnReturnType))
	assert.False(t, cfg.IsWarningEnabled(WarnUnusedVariable))
	assert.Len(t, cfg.Warnings, int(WarnCount))
	assert.Len(t, cfg.Features, int(FeatCount))
}

func TestSetTarget(t *testing.T) {
	tests := []struct {
		spec, backend, target string
	}{
		{"qbe/arm64", "qbe", "arm64"},
		{"qbe/rv64", "qbe", "rv64"},
		{"llvm", "llvm", "x86_64-unknown-linux-gnu"},
		{"llvm/aarch64-apple-macosx", "llvm", "aarch64-apple-macosx"},
	}
	for _, tt := range tests {
		cfg := NewConfig()
		require.NoError(t, cfg.SetTarget("linux", "amd64", tt.spec), tt.spec)
		assert.Equal(t, tt.backend, cfg.BackendName, tt.spec)
		assert.Equal(t, tt.target, cfg.BackendTarget, tt.spec)
	}

	cfg := NewConfig()
	require.NoError(t, cfg.SetTarget("linux", "amd64", ""))
	assert.Equal(t, "qbe", cfg.BackendName)
	assert.NotEmpty(t, cfg.BackendTarget, "the host target is picked")

	assert.Error(t, NewConfig().SetTarget("linux", "amd64", "gcc"))
	assert.Error(t, NewConfig().SetTarget("linux", "amd64", "qbe/vax"))
}

func TestApplyFlag(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.ApplyFlag("-Wunused-variable"))
	assert.True(t, cfg.IsWarningEnabled(WarnUnusedVariable))
	require.NoError(t, cfg.ApplyFlag("-Wno-return-type"))
	assert.False(t, cfg.IsWarningEnabled(WarnReturnType))
	require.NoError(t, cfg.ApplyFlag("-Fno-implicit-return"))
	assert.False(t, cfg.IsFeatureEnabled(FeatImplicitReturn))

	require.NoError(t, cfg.ApplyFlag("-Wno-all"))
	for wt := Warning(0); wt < WarnCount; wt++ {
		assert.False(t, cfg.IsWarningEnabled(wt), cfg.Warnings[wt].Name)
	}

	assert.Error(t, cfg.ApplyFlag("-Wbogus"))
	assert.Error(t, cfg.ApplyFlag("-Werror"))
	assert.Error(t, cfg.ApplyFlag("-X"))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jcc.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[target]
backend = "qbe"
arch = "arm64"

[warnings]
unused-variable = true
overflow = false

[features]
signed-char = false

[link]
args = ["-lm"]
`), 0o644))

	cfg := NewConfig()
	target, err := cfg.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "qbe/arm64", target)
	assert.True(t, cfg.IsWarningEnabled(WarnUnusedVariable))
	assert.False(t, cfg.IsWarningEnabled(WarnOverflow))
	assert.False(t, cfg.IsFeatureEnabled(FeatSignedChar))
	assert.Equal(t, []string{"-lm"}, cfg.LinkerArgs)
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"key.toml":     "[target]\nbackend = \"qbe\"\nspeed = 11\n",
		"warning.toml": "[warnings]\nnot-a-warning = true\n",
		"syntax.toml":  "[target\n",
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := NewConfig().LoadFile(path)
		assert.Error(t, err, name)
	}
}

func TestFlagGroups(t *testing.T) {
	cfg := NewConfig()
	fs := cli.NewFlagSet("jcc")
	warnings, features := cfg.SetupFlagGroups(fs)
	require.NoError(t, fs.Parse([]string{"-Wunused-variable", "-Wno-overflow", "-Fno-signed-char", "x.c"}))
	cfg.ApplyFlagGroups(fs, warnings, features)

	assert.True(t, cfg.IsWarningEnabled(WarnUnusedVariable))
	assert.False(t, cfg.IsWarningEnabled(WarnOverflow))
	assert.False(t, cfg.IsFeatureEnabled(FeatSignedChar))
	assert.True(t, cfg.IsWarningEnabled(WarnReturnType), "untouched flags keep their value")
	assert.Equal(t, []string{"x.c"}, fs.Args())
}

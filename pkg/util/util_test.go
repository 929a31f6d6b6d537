package util

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/xplshn/jcc/pkg/config"
	"github.com/xplshn/jcc/pkg/token"
)

func capture(t *testing.T, src string) *bytes.Buffer {
	t.Helper()
	color.NoColor = true
	var buf bytes.Buffer
	Output = &buf
	SetSourceFiles([]SourceFileRecord{{Name: "t.c", Content: []rune(src)}})
	t.Cleanup(func() { SetSourceFiles(nil) })
	return &buf
}

func TestReportPointsAtToken(t *testing.T) {
	out := capture(t, "int main(void) {\n\treturn x;\n}\n")
	tok := token.Token{Type: token.Ident, Value: "x", Line: 2, Column: 9, Len: 1}
	Report(NewError(ErrUnresolved, tok, "use of undeclared identifier '%s'", "x"))

	want := "t.c:2:9: error: use of undeclared identifier 'x'\n" +
		"  \treturn x;\n" +
		"  \t       ^\n"
	assert.Equal(t, want, out.String())
}

func TestCaretAccountsForWideRunes(t *testing.T) {
	out := capture(t, "日本 zz\n")
	Report(NewError(ErrSyntax, token.Token{Line: 1, Column: 4, Len: 2}, "bad"))
	assert.Contains(t, out.String(), "\n       ^~\n", "two double-width runes and a space")
}

func TestReportWithoutPosition(t *testing.T) {
	out := capture(t, "")
	Report(NewError(ErrInternal, token.Token{}, "broken"))
	Report(errors.New("plain"))
	assert.Equal(t, "jcc: error: internal integrity error: broken\njcc: error: plain\n", out.String())
}

func TestErrorKinds(t *testing.T) {
	capture(t, "x\n")
	err := fmt.Errorf("lowering: %w", NewError(ErrTypeMismatch, token.Token{Line: 1, Column: 1}, "no"))
	assert.True(t, IsKind(err, ErrTypeMismatch))
	assert.False(t, IsKind(err, ErrSyntax))
	assert.False(t, IsKind(errors.New("x"), ErrSyntax))
	assert.Equal(t, "lowering: t.c:1:1: type mismatch: no", err.Error())
}

func TestWarnHonorsConfig(t *testing.T) {
	out := capture(t, "int x;\n")
	tok := token.Token{Line: 1, Column: 5, Len: 1}

	cfg := config.NewConfig()
	Warn(cfg, config.WarnUnusedVariable, tok, "unused variable '%s'", "x")
	Warn(nil, config.WarnType, tok, "ignored")
	assert.Empty(t, out.String())

	cfg.SetWarning(config.WarnUnusedVariable, true)
	Warn(cfg, config.WarnUnusedVariable, tok, "unused variable '%s'", "x")
	assert.Equal(t, "t.c:1:5: warning: unused variable 'x' [-Wunused-variable]\n  int x;\n      ^\n", out.String())
}

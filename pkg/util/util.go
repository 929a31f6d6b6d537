package util

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"github.com/xplshn/jcc/pkg/config"
	"github.com/xplshn/jcc/pkg/token"
)

// Output receives every diagnostic. Tests swap it for a buffer.
var Output io.Writer = color.Error

var (
	errorLabel   = color.New(color.FgRed, color.Bold).SprintFunc()
	warningLabel = color.New(color.FgYellow, color.Bold).SprintFunc()
	caretColor   = color.New(color.FgGreen).SprintFunc()
)

// SourceFileRecord tracks the name and content of a single source file.
type SourceFileRecord struct {
	Name    string
	Content []rune
}

var sourceFiles []SourceFileRecord

// SetSourceFiles stores the source code for all input files for rich error messages
func SetSourceFiles(files []SourceFileRecord) {
	sourceFiles = files
}

// ErrorKind classifies compile errors.
type ErrorKind int

const (
	ErrSyntax ErrorKind = iota
	ErrUnsupported
	ErrTypeMismatch
	ErrUnresolved
	ErrInternal
)

var errorKindNames = [...]string{
	ErrSyntax:       "syntax error",
	ErrUnsupported:  "unsupported construct",
	ErrTypeMismatch: "type mismatch",
	ErrUnresolved:   "unresolved name",
	ErrInternal:     "internal integrity error",
}

func (k ErrorKind) String() string {
	if int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return "error"
}

// CompileError is a diagnostic that aborts compilation. It carries the
// token the error is attributed to so the driver can point at the source.
type CompileError struct {
	Kind ErrorKind
	Tok  token.Token
	Msg  string
}

func (e *CompileError) Error() string {
	filename, line, col := findFileAndLine(e.Tok)
	if line == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s", filename, line, col, e.Kind, e.Msg)
}

// NewError builds a CompileError of the given kind.
func NewError(kind ErrorKind, tok token.Token, format string, args ...interface{}) *CompileError {
	return &CompileError{Kind: kind, Tok: tok, Msg: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err wraps a CompileError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ce *CompileError
	return errors.As(err, &ce) && ce.Kind == kind
}

// findFileAndLine converts a global token to a file-specific location
func findFileAndLine(tok token.Token) (filename string, line, col int) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(sourceFiles) {
		return "unknown", tok.Line, tok.Column
	}
	return sourceFiles[tok.FileIndex].Name, tok.Line, tok.Column
}

// printErrorLine prints the source line and a caret indicating the error position
func printErrorLine(w io.Writer, tok token.Token) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(sourceFiles) || tok.Line == 0 {
		return
	}

	content := sourceFiles[tok.FileIndex].Content
	lineNum := tok.Line
	lineStart := 0
	for i, r := range content {
		if lineNum <= 1 {
			break
		}
		if r == '\n' {
			lineNum--
			lineStart = i + 1
		}
	}

	lineEnd := len(content)
	for i := lineStart; i < len(content); i++ {
		if content[i] == '\n' {
			lineEnd = i
			break
		}
	}
	line := content[lineStart:lineEnd]
	fmt.Fprintf(w, "  %s\n", string(line))

	// Pad with the display width of everything left of the column, keeping tabs
	var pad strings.Builder
	for i := 0; i < tok.Column-1 && i < len(line); i++ {
		if line[i] == '\t' {
			pad.WriteByte('\t')
			continue
		}
		pad.WriteString(strings.Repeat(" ", runewidth.RuneWidth(line[i])))
	}
	caret := "^"
	if tok.Len > 1 {
		caret += strings.Repeat("~", tok.Len-1)
	}
	fmt.Fprintf(w, "  %s%s\n", pad.String(), caretColor(caret))
}

// Report prints err in the compiler's diagnostic format. CompileErrors get
// the offending source line and a caret.
func Report(err error) {
	var ce *CompileError
	if !errors.As(err, &ce) {
		fmt.Fprintf(Output, "jcc: %s %v\n", errorLabel("error:"), err)
		return
	}
	filename, line, col := findFileAndLine(ce.Tok)
	if line == 0 {
		fmt.Fprintf(Output, "jcc: %s %s: %s\n", errorLabel("error:"), ce.Kind, ce.Msg)
		return
	}
	fmt.Fprintf(Output, "%s:%d:%d: %s %s\n", filename, line, col, errorLabel("error:"), ce.Msg)
	printErrorLine(Output, ce.Tok)
}

// Error prints a formatted error message and exits the program
func Error(tok token.Token, format string, args ...interface{}) {
	Report(NewError(ErrSyntax, tok, format, args...))
	os.Exit(1)
}

// Warn prints a formatted warning message if the corresponding warning is enabled
func Warn(cfg *config.Config, wt config.Warning, tok token.Token, format string, args ...interface{}) {
	if cfg == nil || !cfg.IsWarningEnabled(wt) {
		return
	}
	filename, line, col := findFileAndLine(tok)
	fmt.Fprintf(Output, "%s:%d:%d: %s ", filename, line, col, warningLabel("warning:"))
	fmt.Fprintf(Output, format, args...)
	fmt.Fprintf(Output, " [-W%s]\n", cfg.Warnings[wt].Name)
	printErrorLine(Output, tok)
}

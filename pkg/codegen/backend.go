package codegen

import (
	"bytes"
	"fmt"

	"github.com/tliron/commonlog"
	"github.com/xplshn/jcc/pkg/config"
	"github.com/xplshn/jcc/pkg/mir"
	"github.com/xplshn/jcc/pkg/token"
	"github.com/xplshn/jcc/pkg/util"
)

var log = commonlog.GetLogger("jcc.codegen")

// Backend is the interface that all code generation backends must implement.
type Backend interface {
	// GenerateIR renders the backend's textual IR for prog without
	// assembling it.
	GenerateIR(prog *mir.Program, cfg *config.Config) (string, error)
	// Generate takes a MIR program and a configuration, and produces the
	// target assembly or intermediate language as a byte buffer.
	Generate(prog *mir.Program, cfg *config.Config) (*bytes.Buffer, error)
	// OutputExt is the file extension of what Generate produces.
	OutputExt() string
}

// Select returns the backend named by cfg.BackendName.
func Select(name string) (Backend, error) {
	switch name {
	case "qbe":
		return NewQBEBackend(), nil
	case "llvm":
		return NewLLVMBackend(), nil
	}
	return nil, fmt.Errorf("unsupported backend '%s'", name)
}

// internal reports a lookup that lowering should have made impossible.
func internal(fn *mir.Function, format string, args ...any) error {
	return util.NewError(util.ErrInternal, token.Token{}, "%s: "+format, append([]any{fn.Name}, args...)...)
}

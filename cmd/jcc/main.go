package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"github.com/xplshn/jcc/pkg/ast"
	"github.com/xplshn/jcc/pkg/cli"
	"github.com/xplshn/jcc/pkg/codegen"
	"github.com/xplshn/jcc/pkg/config"
	"github.com/xplshn/jcc/pkg/lexer"
	"github.com/xplshn/jcc/pkg/lower"
	"github.com/xplshn/jcc/pkg/mir"
	"github.com/xplshn/jcc/pkg/parser"
	"github.com/xplshn/jcc/pkg/util"
)

var log = commonlog.GetLogger("jcc")

type options struct {
	outFile    string
	target     string
	configFile string
	emitMIR    string
	linkerArgs []string
	dumpMIR    bool
	dumpIR     bool
	asmOnly    bool
	objOnly    bool
	verbose    bool
	wall       bool
}

func main() {
	app := cli.NewApp("jcc")
	app.Synopsis = "[options] <input.c>"
	app.Description = "A compiler for a subset of C that lowers to a small mid-level IR and hands it to QBE or LLVM."
	app.Authors = []string{"xplshn"}
	app.Repository = "<https://github.com/xplshn/jcc>"
	app.Since = 2025

	var opts options
	fs := app.FlagSet
	fs.String(&opts.outFile, "output", "o", "", "Place the output into <file>.", "file")
	fs.String(&opts.target, "target", "t", "", "Set the backend and target ABI (qbe, qbe/arm64, llvm).", "backend/target")
	fs.String(&opts.configFile, "config", "", "", "Read settings from a TOML file (default: ./jcc.toml if present).", "file")
	fs.String(&opts.emitMIR, "emit-mir", "", "", "Write the lowered program in binary MIR form to <file>.", "file")
	fs.Bool(&opts.dumpMIR, "dump-mir", "", false, "Print the lowered MIR and exit.")
	fs.Bool(&opts.dumpIR, "dump-ir", "d", false, "Print the backend IR and exit.")
	fs.Bool(&opts.asmOnly, "assembly", "S", false, "Compile only; write assembly (LLVM IR for the llvm backend).")
	fs.Bool(&opts.objOnly, "compile", "c", false, "Compile and assemble, but do not link.")
	fs.Bool(&opts.verbose, "verbose", "v", false, "Trace compiler internals on stderr.")
	fs.List(&opts.linkerArgs, "linker-arg", "L", []string{}, "Pass an argument to the linker.", "arg")
	fs.Bool(&opts.wall, "Wall", "", false, "Enable all warnings except pedantic ones.")

	cfg := config.NewConfig()
	warningFlags, featureFlags := cfg.SetupFlagGroups(fs)

	app.Action = func(inputFiles []string) error {
		applyFlags := func() {
			if opts.wall {
				_ = cfg.ApplyFlag("-Wall")
			}
			cfg.ApplyFlagGroups(fs, warningFlags, featureFlags)
		}
		err := compile(cfg, &opts, inputFiles, applyFlags)
		if err != nil {
			util.Report(err)
		}
		return err
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

// compile runs the whole pipeline. Settings from the config file are
// applied before applyFlags so the command line wins.
func compile(cfg *config.Config, opts *options, inputFiles []string, applyFlags func()) error {
	if opts.verbose {
		commonlog.Configure(2, nil)
	} else {
		commonlog.Configure(-1, nil)
	}

	if len(inputFiles) != 1 {
		return fmt.Errorf("expected exactly one input file, got %d", len(inputFiles))
	}
	input := inputFiles[0]

	target, err := loadConfigFile(cfg, opts.configFile)
	if err != nil {
		return err
	}
	applyFlags()
	if opts.target != "" {
		target = opts.target
	}
	if err := cfg.SetTarget(runtime.GOOS, runtime.GOARCH, target); err != nil {
		return err
	}
	cfg.LinkerArgs = append(cfg.LinkerArgs, opts.linkerArgs...)
	cfg.Verbose = opts.verbose

	root, err := parseFile(cfg, input)
	if err != nil {
		return err
	}

	log.Infof("lowering %s", input)
	prog, err := lower.Program(root, cfg)
	if err != nil {
		return err
	}
	if err := prog.Verify(); err != nil {
		return util.NewError(util.ErrInternal, root.Tok, "%v", err)
	}

	if opts.emitMIR != "" {
		if err := writeMIR(opts.emitMIR, prog); err != nil {
			return err
		}
	}
	if opts.dumpMIR {
		fmt.Print(prog.String())
		return nil
	}

	backend, err := codegen.Select(cfg.BackendName)
	if err != nil {
		return err
	}
	if opts.dumpIR {
		text, err := backend.GenerateIR(prog, cfg)
		if err != nil {
			return fmt.Errorf("backend IR generation failed: %w", err)
		}
		fmt.Print(text)
		return nil
	}

	log.Infof("generating code with the %s backend for %s", cfg.BackendName, cfg.BackendTarget)
	if opts.asmOnly {
		out := outputName(opts.outFile, input, ".s")
		if cfg.BackendName == "llvm" {
			out = outputName(opts.outFile, input, ".ll")
			text, err := backend.GenerateIR(prog, cfg)
			if err != nil {
				return fmt.Errorf("backend IR generation failed: %w", err)
			}
			return os.WriteFile(out, []byte(text), 0o644)
		}
		asm, err := backend.Generate(prog, cfg)
		if err != nil {
			return fmt.Errorf("backend code generation failed: %w", err)
		}
		return os.WriteFile(out, asm.Bytes(), 0o644)
	}

	asm, err := backend.Generate(prog, cfg)
	if err != nil {
		return fmt.Errorf("backend code generation failed: %w", err)
	}
	if opts.objOnly {
		return assemble(outputName(opts.outFile, input, ".o"), asm.String(), []string{"-c"}, nil)
	}
	out := opts.outFile
	if out == "" {
		out = "a.out"
	}
	log.Infof("linking %s", out)
	// PIE is off until the llvm path emits position independent code.
	return assemble(out, asm.String(), []string{"-no-pie"}, cfg.LinkerArgs)
}

// loadConfigFile applies path, or ./jcc.toml when path is empty and the
// file exists. It returns the target named by the file.
func loadConfigFile(cfg *config.Config, path string) (string, error) {
	if path == "" {
		if _, err := os.Stat("jcc.toml"); err != nil {
			return "", nil
		}
		path = "jcc.toml"
	}
	log.Debugf("loading configuration from %s", path)
	return cfg.LoadFile(path)
}

func parseFile(cfg *config.Config, path string) (*ast.Node, error) {
	var content []byte
	var err error
	if cfg.IsFeatureEnabled(config.FeatCCPreprocessor) {
		content, err = preprocess(path)
	} else {
		content, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("could not read file '%s': %w", path, err)
	}
	src := []rune(string(content))
	util.SetSourceFiles([]util.SourceFileRecord{{Name: path, Content: src}})

	toks, err := lexer.Tokenize(src, 0, cfg)
	if err != nil {
		return nil, err
	}
	log.Debugf("%s: %d tokens", path, len(toks))
	return parser.NewParser(toks, cfg).Parse()
}

// preprocess expands path with the system C preprocessor. -P drops the
// linemarkers, so positions refer to the expanded text.
func preprocess(path string) ([]byte, error) {
	cmd := exec.Command("cc", "-E", "-P", path)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("cc -E failed: %w\n%s", err, stderr.String())
	}
	log.Debugf("%s: preprocessed to %d bytes", path, len(out))
	return out, nil
}

func writeMIR(path string, prog *mir.Program) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return mir.Encode(f, prog)
}

// outputName picks the -o value, or the input's base name with ext.
func outputName(outFile, input, ext string) string {
	if outFile != "" {
		return outFile
	}
	base := filepath.Base(input)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ext
}

// assemble writes asm to a temporary file and runs cc on it. Linker
// arguments go after the input so libraries resolve.
func assemble(outFile, asm string, ccFlags, linkerArgs []string) error {
	asmFile, err := os.CreateTemp("", "jcc-*.s")
	if err != nil {
		return fmt.Errorf("failed to create temp file for asm: %w", err)
	}
	defer os.Remove(asmFile.Name())
	if _, err := asmFile.WriteString(asm); err != nil {
		asmFile.Close()
		return fmt.Errorf("failed to write temp file for asm: %w", err)
	}
	asmFile.Close()

	args := append([]string{}, ccFlags...)
	args = append(args, "-o", outFile, asmFile.Name())
	args = append(args, linkerArgs...)
	cmd := exec.Command("cc", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("cc command failed: %w\nOutput:\n%s", err, string(output))
	}
	return nil
}

package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"
	"modernc.org/libqbe"
)

var log = commonlog.GetLogger("jcc.config")

type Feature int

const (
	FeatSignedChar Feature = iota
	FeatImplicitReturn
	FeatSkipDirectives
	FeatCCPreprocessor
	FeatCount
)

type Warning int

const (
	WarnOverflow Warning = iota
	WarnUnreachableCode
	WarnType
	WarnReturnType
	WarnUnusedVariable
	WarnUnrecognizedEscape
	WarnMultiChar
	WarnDirective
	WarnPedantic
	WarnExtra
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

type Config struct {
	Features   map[Feature]Info
	Warnings   map[Warning]Info
	FeatureMap map[string]Feature
	WarningMap map[string]Warning

	BackendName string
	// BackendTarget is the QBE target name or the LLVM target triple.
	BackendTarget string
	GOOS          string
	GOARCH        string
	WordSize      int

	LinkerArgs []string
	Verbose    bool
}

func NewConfig() *Config {
	cfg := &Config{
		Features:    make(map[Feature]Info),
		Warnings:    make(map[Warning]Info),
		FeatureMap:  make(map[string]Feature),
		WarningMap:  make(map[string]Warning),
		BackendName: "qbe",
		WordSize:    8,
	}

	features := map[Feature]Info{
		FeatSignedChar:     {"signed-char", true, "Treat plain 'char' as a signed type."},
		FeatImplicitReturn: {"implicit-return", true, "Return zero when control reaches the end of a non-void function."},
		FeatSkipDirectives: {"skip-directives", true, "Skip '#' preprocessor lines instead of rejecting them."},
		FeatCCPreprocessor: {"cc-preprocessor", false, "Run the source through 'cc -E -P' before lexing."},
	}

	warnings := map[Warning]Info{
		WarnOverflow:           {"overflow", true, "Warn when an integer constant is out of range for its type."},
		WarnUnreachableCode:    {"unreachable-code", true, "Warn about code that will never be executed."},
		WarnType:               {"type", true, "Warn about discarded values whose type does not match their context."},
		WarnReturnType:         {"return-type", true, "Warn about 'return' statements that do not match the function's return type."},
		WarnUnusedVariable:     {"unused-variable", false, "Warn about local variables that are never read."},
		WarnUnrecognizedEscape: {"u-esc", true, "Warn on unrecognized character escape sequences."},
		WarnMultiChar:          {"multichar", true, "Warn about multi-character character constants."},
		WarnDirective:          {"directive", true, "Warn about skipped preprocessor directives."},
		WarnPedantic:           {"pedantic", false, "Issue all warnings demanded by strict ISO C."},
		WarnExtra:              {"extra", true, "Enable extra miscellaneous warnings."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}
	return cfg
}

// SetTarget configures the backend and target from a "backend/target"
// string. An empty target selects the host.
func (c *Config) SetTarget(goos, goarch, spec string) error {
	c.GOOS, c.GOARCH = goos, goarch
	backend, target, _ := strings.Cut(spec, "/")
	if backend == "" {
		backend = c.BackendName
	}

	switch backend {
	case "qbe":
		if target == "" {
			target = libqbe.DefaultTarget(goos, goarch)
			log.Infof("no target specified, defaulting to host target '%s'", target)
		}
		switch target {
		case "amd64_sysv", "amd64_apple", "arm64", "arm64_apple", "rv64":
			c.WordSize = 8
		default:
			return fmt.Errorf("unsupported QBE target '%s'", target)
		}
	case "llvm":
		if target == "" {
			target = llvmTriple(goos, goarch)
		}
		c.WordSize = 8
	default:
		return fmt.Errorf("unsupported backend '%s'. Supported: 'qbe', 'llvm'", backend)
	}
	c.BackendName, c.BackendTarget = backend, target
	return nil
}

func llvmTriple(goos, goarch string) string {
	arch := map[string]string{"amd64": "x86_64", "arm64": "aarch64", "riscv64": "riscv64"}[goarch]
	if arch == "" {
		arch = goarch
	}
	switch goos {
	case "darwin":
		return arch + "-apple-macosx"
	case "linux":
		return arch + "-unknown-linux-gnu"
	}
	return arch + "-unknown-" + goos
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

// ApplyFlag handles a single -W<name>, -Wno-<name>, -F<name> or -Fno-<name>.
func (c *Config) ApplyFlag(flag string) error {
	trimmed := strings.TrimPrefix(flag, "-")
	if len(trimmed) < 2 || (trimmed[0] != 'W' && trimmed[0] != 'F') {
		return fmt.Errorf("malformed flag '%s'", flag)
	}
	isWarning := trimmed[0] == 'W'
	name := trimmed[1:]
	enable := !strings.HasPrefix(name, "no-")
	name = strings.TrimPrefix(name, "no-")

	if isWarning {
		switch name {
		case "all":
			for i := Warning(0); i < WarnCount; i++ {
				if i != WarnPedantic {
					c.SetWarning(i, enable)
				}
			}
			return nil
		case "error":
			return fmt.Errorf("-Werror is not supported")
		}
		w, ok := c.WarningMap[name]
		if !ok {
			return fmt.Errorf("unknown warning '%s'", name)
		}
		c.SetWarning(w, enable)
		return nil
	}
	f, ok := c.FeatureMap[name]
	if !ok {
		return fmt.Errorf("unknown feature '%s'", name)
	}
	c.SetFeature(f, enable)
	return nil
}

// fileConfig mirrors the layout of jcc.toml.
type fileConfig struct {
	Target struct {
		Backend string `toml:"backend"`
		Arch    string `toml:"arch"`
	} `toml:"target"`
	Warnings map[string]bool `toml:"warnings"`
	Features map[string]bool `toml:"features"`
	Link     struct {
		Args []string `toml:"args"`
	} `toml:"link"`
}

// LoadFile applies a TOML configuration file and returns the "backend/target"
// string it names, if any. Command-line flags are applied afterwards and win.
func (c *Config) LoadFile(path string) (string, error) {
	var fc fileConfig
	meta, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return "", fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	for _, name := range sortedKeys(fc.Warnings) {
		w, ok := c.WarningMap[name]
		if !ok {
			return "", fmt.Errorf("%s: unknown warning '%s'", path, name)
		}
		c.SetWarning(w, fc.Warnings[name])
	}
	for _, name := range sortedKeys(fc.Features) {
		f, ok := c.FeatureMap[name]
		if !ok {
			return "", fmt.Errorf("%s: unknown feature '%s'", path, name)
		}
		c.SetFeature(f, fc.Features[name])
	}
	c.LinkerArgs = append(c.LinkerArgs, fc.Link.Args...)

	target := fc.Target.Backend
	if fc.Target.Arch != "" {
		target += "/" + fc.Target.Arch
	}
	if meta.IsDefined("target") {
		log.Debugf("%s selects target '%s'", path, target)
	}
	return target, nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

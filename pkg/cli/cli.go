package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/term"
)

type Value interface {
	String() string
	Set(string) error
	Get() any
}

type stringValue struct{ p *string }

func (v *stringValue) Set(s string) error { *v.p = s; return nil }
func (v *stringValue) String() string     { return *v.p }
func (v *stringValue) Get() any           { return *v.p }

type boolValue struct{ p *bool }

func (v *boolValue) Set(s string) error {
	if s == "" {
		*v.p = true
		return nil
	}
	val, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid boolean value '%s': %w", s, err)
	}
	*v.p = val
	return nil
}
func (v *boolValue) String() string { return strconv.FormatBool(*v.p) }
func (v *boolValue) Get() any       { return *v.p }

type listValue struct{ p *[]string }

func (v *listValue) Set(s string) error { *v.p = append(*v.p, s); return nil }
func (v *listValue) String() string     { return strings.Join(*v.p, ", ") }
func (v *listValue) Get() any           { return *v.p }

type Flag struct {
	Name         string
	Shorthand    string
	Usage        string
	Value        Value
	DefValue     string
	ExpectedType string
}

func (fl *Flag) isBool() bool {
	_, ok := fl.Value.(*boolValue)
	return ok
}

type FlagGroup struct {
	Name                 string
	Description          string
	Flags                []FlagGroupEntry
	GroupType            string
	AvailableFlagsHeader string
}

type FlagGroupEntry struct {
	Name     string
	Prefix   string
	Usage    string
	Enabled  *bool
	Disabled *bool
}

// FlagSet parses GNU-style long flags, single-letter shorthands and
// single-dash multi-letter flags such as -Wall.
type FlagSet struct {
	name          string
	flags         map[string]*Flag
	shorthands    map[string]*Flag
	specialPrefix map[string]*Flag
	changed       map[string]bool
	args          []string
	flagGroups    []FlagGroup
}

func NewFlagSet(name string) *FlagSet {
	return &FlagSet{
		name:          name,
		flags:         make(map[string]*Flag),
		shorthands:    make(map[string]*Flag),
		specialPrefix: make(map[string]*Flag),
		changed:       make(map[string]bool),
	}
}

func (f *FlagSet) Args() []string { return f.args }

// Changed reports whether the named flag appeared on the command line.
func (f *FlagSet) Changed(name string) bool { return f.changed[name] }

func (f *FlagSet) Lookup(name string) *Flag { return f.flags[name] }

func (f *FlagSet) String(p *string, name, shorthand, value, usage, expectedType string) {
	*p = value
	f.Var(&stringValue{p}, name, shorthand, usage, value, expectedType)
}

func (f *FlagSet) Bool(p *bool, name, shorthand string, value bool, usage string) {
	*p = value
	f.Var(&boolValue{p}, name, shorthand, usage, strconv.FormatBool(value), "")
}

func (f *FlagSet) List(p *[]string, name, shorthand string, value []string, usage, expectedType string) {
	*p = value
	f.Var(&listValue{p}, name, shorthand, usage, strings.Join(value, ","), expectedType)
}

// Special registers a prefix flag whose value is glued to it, like -lm.
func (f *FlagSet) Special(p *[]string, prefix, usage, expectedType string) {
	*p = []string{}
	f.Var(&listValue{p}, prefix, "", usage, "", expectedType)
	f.specialPrefix[prefix] = f.flags[prefix]
}

func (f *FlagSet) AddFlagGroup(name, description, groupType, availableFlagsHeader string, entries []FlagGroupEntry) {
	for i := range entries {
		e := &entries[i]
		f.Bool(e.Enabled, e.Prefix+e.Name, "", *e.Enabled, e.Usage)
		f.Bool(e.Disabled, e.Prefix+"no-"+e.Name, "", *e.Disabled, "Disable '"+e.Name+"'")
	}
	f.flagGroups = append(f.flagGroups, FlagGroup{
		Name:                 name,
		Description:          description,
		Flags:                entries,
		GroupType:            groupType,
		AvailableFlagsHeader: availableFlagsHeader,
	})
}

func (f *FlagSet) Var(value Value, name, shorthand, usage, defValue, expectedType string) {
	if name == "" {
		panic("flag name cannot be empty")
	}
	if _, ok := f.flags[name]; ok {
		panic(fmt.Sprintf("flag redefined: %s", name))
	}
	flag := &Flag{Name: name, Shorthand: shorthand, Usage: usage, Value: value, DefValue: defValue, ExpectedType: expectedType}
	f.flags[name] = flag
	if shorthand != "" {
		if _, ok := f.shorthands[shorthand]; ok {
			panic(fmt.Sprintf("shorthand flag redefined: %s", shorthand))
		}
		f.shorthands[shorthand] = flag
	}
}

func (f *FlagSet) Parse(arguments []string) error {
	f.args = []string{}
	for i := 0; i < len(arguments); i++ {
		arg := arguments[i]
		switch {
		case arg == "--":
			f.args = append(f.args, arguments[i+1:]...)
			return nil
		case len(arg) < 2 || arg[0] != '-':
			f.args = append(f.args, arg)
			continue
		}

		body := strings.TrimPrefix(strings.TrimPrefix(arg, "-"), "-")
		name, value, hasValue := strings.Cut(body, "=")
		flag, ok := f.flags[name]
		if !ok && !strings.HasPrefix(arg, "--") {
			var err error
			if flag, value, hasValue, err = f.shortFlag(arg); err != nil {
				return err
			}
		} else if !ok {
			return fmt.Errorf("unknown flag: %s", arg)
		}

		if !hasValue {
			if flag.isBool() {
				value = ""
			} else {
				if i+1 >= len(arguments) {
					return fmt.Errorf("flag needs an argument: %s", arg)
				}
				i++
				value = arguments[i]
			}
		}
		if err := flag.Value.Set(value); err != nil {
			return fmt.Errorf("%s: %w", arg, err)
		}
		f.changed[flag.Name] = true
	}
	return nil
}

// shortFlag resolves -lfoo style prefixes and -ofile style shorthands.
func (f *FlagSet) shortFlag(arg string) (*Flag, string, bool, error) {
	for prefix, flag := range f.specialPrefix {
		if strings.HasPrefix(arg, "-"+prefix) && len(arg) > len(prefix)+1 {
			return flag, arg[len(prefix)+1:], true, nil
		}
	}
	flag, ok := f.shorthands[arg[1:2]]
	if !ok {
		return nil, "", false, fmt.Errorf("unknown flag: %s", arg)
	}
	if flag.isBool() {
		if len(arg) > 2 {
			return nil, "", false, fmt.Errorf("unknown flag: %s", arg)
		}
		return flag, "", false, nil
	}
	value := arg[2:]
	return flag, value, value != "", nil
}

type App struct {
	Name        string
	Synopsis    string
	Description string
	Authors     []string
	Repository  string
	Since       int
	FlagSet     *FlagSet
	Action      func(args []string) error
	Out         io.Writer
}

func NewApp(name string) *App {
	return &App{
		Name:    name,
		FlagSet: NewFlagSet(name),
		Out:     os.Stdout,
	}
}

func (a *App) Run(arguments []string) error {
	help := false
	a.FlagSet.Bool(&help, "help", "h", false, "Display this information")

	if err := a.FlagSet.Parse(arguments); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", a.Name, err)
		fmt.Fprintf(os.Stderr, "Usage: %s %s\nRun '%s --help' for all available options and flags.\n", a.Name, a.Synopsis, a.Name)
		return err
	}
	if help {
		a.WriteHelp(a.Out)
		return nil
	}
	if a.Action != nil {
		return a.Action(a.FlagSet.Args())
	}
	return nil
}

// WriteHelp renders the full help page, wrapped to the terminal width.
func (a *App) WriteHelp(w io.Writer) {
	var sb strings.Builder
	width := terminalWidth()

	fmt.Fprintf(&sb, "\n    %s %s\n", a.Name, a.Synopsis)
	if a.Description != "" {
		for _, line := range wrapText(a.Description, width-8) {
			fmt.Fprintf(&sb, "        %s\n", line)
		}
	}
	if len(a.Authors) > 0 {
		fmt.Fprintf(&sb, "\n    Copyright (c) %d: %s and contributors\n", a.Since, strings.Join(a.Authors, ", "))
	}
	if a.Repository != "" {
		fmt.Fprintf(&sb, "    For more details refer to %s\n", a.Repository)
	}

	var rows [][2]string
	for _, flag := range a.optionFlags() {
		usage := flag.Usage
		if !flag.isBool() && flag.DefValue != "" {
			usage += " |" + flag.DefValue + "|"
		}
		rows = append(rows, [2]string{flagSpelling(flag), usage})
	}
	sb.WriteString("\n    Options\n")
	writeRows(&sb, rows, width)

	groups := append([]FlagGroup(nil), a.FlagSet.flagGroups...)
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	for _, g := range groups {
		fmt.Fprintf(&sb, "\n    %s\n", g.Name)
		prefix := g.Flags[0].Prefix
		rows = [][2]string{
			{fmt.Sprintf("-%s<%s>", prefix, g.GroupType), "Enable a specific " + g.GroupType},
			{fmt.Sprintf("-%sno-<%s>", prefix, g.GroupType), "Disable a specific " + g.GroupType},
		}
		writeRows(&sb, rows, width)
		if g.AvailableFlagsHeader != "" {
			fmt.Fprintf(&sb, "    %s\n", g.AvailableFlagsHeader)
		}
		entries := append([]FlagGroupEntry(nil), g.Flags...)
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		rows = rows[:0]
		for _, e := range entries {
			mark := "|-|"
			if *e.Enabled && !*e.Disabled {
				mark = "|x|"
			}
			rows = append(rows, [2]string{e.Name, e.Usage + " " + mark})
		}
		writeRows(&sb, rows, width)
	}
	fmt.Fprint(w, sb.String())
}

func (a *App) optionFlags() []*Flag {
	grouped := make(map[string]bool)
	for _, g := range a.FlagSet.flagGroups {
		for _, e := range g.Flags {
			grouped[e.Prefix+e.Name] = true
			grouped[e.Prefix+"no-"+e.Name] = true
		}
	}
	var out []*Flag
	for name, flag := range a.FlagSet.flags {
		if grouped[name] {
			continue
		}
		out = append(out, flag)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func flagSpelling(flag *Flag) string {
	dash := "--"
	if len(flag.Name) == 1 {
		dash = "-"
	}
	s := dash + flag.Name
	if flag.Shorthand != "" {
		s = "-" + flag.Shorthand + ", " + s
	}
	if !flag.isBool() && flag.ExpectedType != "" {
		s += " <" + flag.ExpectedType + ">"
	}
	return s
}

func writeRows(sb *strings.Builder, rows [][2]string, width int) {
	left := 0
	for _, r := range rows {
		if len(r[0]) > left {
			left = len(r[0])
		}
	}
	for _, r := range rows {
		lines := wrapText(r[1], width-left-9)
		if len(lines) == 0 {
			lines = []string{""}
		}
		fmt.Fprintf(sb, "        %-*s %s\n", left, r[0], lines[0])
		for _, l := range lines[1:] {
			fmt.Fprintf(sb, "        %-*s %s\n", left, "", l)
		}
	}
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	if width < 40 {
		return 40
	}
	return width
}

func wrapText(text string, maxWidth int) []string {
	if maxWidth < 10 {
		maxWidth = 10
	}
	var lines []string
	var cur strings.Builder
	for _, word := range strings.Fields(text) {
		if cur.Len() > 0 && cur.Len()+len(word)+1 > maxWidth {
			lines = append(lines, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}

// jtest compiles every test program with jcc and a reference C compiler,
// runs both binaries and compares their exit codes and output. Golden
// files stand in for the reference compiler when it is missing.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fatih/color"
	"github.com/google/go-cmp/cmp"
)

type Execution struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out"`
}

type TargetResult struct {
	Compile Execution `json:"compile"`
	Run     Execution `json:"run"`
}

type FileTestResult struct {
	File      string        `json:"file"`
	Status    string        `json:"status"` // PASS, FAIL, SKIP, ERROR
	Message   string        `json:"message,omitempty"`
	Diff      string        `json:"diff,omitempty"`
	Reference *TargetResult `json:"reference,omitempty"`
	Target    *TargetResult `json:"target,omitempty"`
}

var (
	refCompiler    = flag.String("ref-compiler", "cc", "Path to the reference compiler.")
	refArgs        = flag.String("ref-args", "-w", "Arguments for the reference compiler (space-separated).")
	targetCompiler = flag.String("target-compiler", "./jcc", "Path to the compiler under test.")
	targetArgs     = flag.String("target-args", "", "Arguments for the compiler under test (space-separated).")
	generateGolden = flag.String("generate-golden", "", "Generate a golden .json file for a given source file.")
	testFiles      = flag.String("test-files", "testdata/*.c", "Glob pattern(s) for files to test (space-separated).")
	outputJSON     = flag.String("output", ".test_results.json", "Output file for the JSON test report.")
	timeout        = flag.Duration("timeout", 5*time.Second, "Timeout for each command execution.")
	jobs           = flag.Int("j", 4, "Number of parallel test jobs.")
	useCache       = flag.Bool("cached", false, "Prefer golden files over the reference compiler.")
)

var (
	red    = color.New(color.FgHiRed).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
	green  = color.New(color.FgHiGreen).SprintFunc()
	cyan   = color.New(color.FgHiCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func main() {
	flag.Parse()
	log.SetFlags(0)

	tempDir, err := os.MkdirTemp("", "jtest-*")
	if err != nil {
		log.Fatalf("%s Failed to create temp directory: %v", red("[ERROR]"), err)
	}
	defer os.RemoveAll(tempDir)
	setupInterruptHandler(tempDir)

	if *generateGolden != "" {
		if err := writeGolden(*generateGolden, tempDir); err != nil {
			log.Fatalf("%s %v", red("[ERROR]"), err)
		}
		return
	}

	results, err := runSuite(tempDir)
	if err != nil {
		log.Fatalf("%s %v", red("[ERROR]"), err)
	}
	printSummary(results)
	if err := writeJSONReport(results); err != nil {
		log.Printf("%s could not write %s: %v", yellow("[WARN]"), *outputJSON, err)
	}
	for _, r := range results {
		if r.Status == "FAIL" || r.Status == "ERROR" {
			os.Exit(1)
		}
	}
}

// setupInterruptHandler is used to clean up on CTRL+C
func setupInterruptHandler(tempDir string) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		os.RemoveAll(tempDir)
		fmt.Printf("\n%s Test run cancelled. Cleaning up...\n", yellow("[INTERRUPT]"))
		os.Exit(1)
	}()
}

func goldenPath(sourceFile string) string {
	return filepath.Join(filepath.Dir(sourceFile), "."+filepath.Base(sourceFile)+".json")
}

// hashFile computes the xxhash of a file's content
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum64()), nil
}

func writeGolden(sourceFile, tempDir string) error {
	log.Printf("Generating golden file for %s...", sourceFile)
	fileHash, err := hashFile(sourceFile)
	if err != nil {
		return err
	}
	res, err := compileAndRun(*refCompiler, strings.Fields(*refArgs), sourceFile, tempDir, "ref-"+fileHash)
	if err != nil {
		return fmt.Errorf("reference compiler: %w\n%s", err, res.Compile.Stderr)
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(goldenPath(sourceFile), data, 0o644); err != nil {
		return err
	}
	log.Printf("%s Golden file created at %s", green("[SUCCESS]"), goldenPath(sourceFile))
	return nil
}

func runSuite(tempDir string) ([]*FileTestResult, error) {
	_, err := exec.LookPath(*refCompiler)
	refFound := err == nil
	if !refFound && !*useCache {
		log.Printf("%s Reference compiler '%s' not found. Will rely on golden files.", yellow("[WARN]"), *refCompiler)
	}

	var files []string
	for _, pattern := range strings.Fields(*testFiles) {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
		}
		files = append(files, matches...)
	}

	tasks := make(chan string)
	results := make(chan *FileTestResult, len(files))
	var wg sync.WaitGroup
	for i := 0; i < max(*jobs, 1); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range tasks {
				results <- testFile(file, tempDir, refFound)
			}
		}()
	}

	// Identical sources are only tested once.
	seen := make(map[string]string)
	for _, file := range files {
		h, err := hashFile(file)
		if err != nil {
			results <- &FileTestResult{File: file, Status: "ERROR", Message: err.Error()}
			continue
		}
		if orig, ok := seen[h]; ok {
			results <- &FileTestResult{File: file, Status: "SKIP", Message: "Content is identical to " + orig}
			continue
		}
		seen[h] = file
		tasks <- file
	}
	close(tasks)
	wg.Wait()
	close(results)

	var all []*FileTestResult
	for r := range results {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].File < all[j].File })
	return all, nil
}

func testFile(file, tempDir string, refFound bool) *FileTestResult {
	fileHash, err := hashFile(file)
	if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: err.Error()}
	}

	var ref *TargetResult
	golden := goldenPath(file)
	if _, err := os.Stat(golden); err == nil && (*useCache || !refFound) {
		data, err := os.ReadFile(golden)
		if err != nil {
			return &FileTestResult{File: file, Status: "ERROR", Message: err.Error()}
		}
		ref = new(TargetResult)
		if err := json.Unmarshal(data, ref); err != nil {
			return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not parse golden file %s: %v", golden, err)}
		}
	} else if refFound {
		ref, err = compileAndRun(*refCompiler, strings.Fields(*refArgs), file, tempDir, "ref-"+fileHash)
		if err != nil {
			return &FileTestResult{File: file, Status: "SKIP", Message: "Reference compiler rejected the file", Reference: ref}
		}
	} else {
		return &FileTestResult{File: file, Status: "SKIP", Message: "No reference compiler and no golden file"}
	}

	target, err := compileAndRun(*targetCompiler, strings.Fields(*targetArgs), file, tempDir, "target-"+fileHash)
	if err != nil {
		return &FileTestResult{
			File:      file,
			Status:    "FAIL",
			Message:   "Target compiler failed, but reference compiler succeeded",
			Diff:      fmt.Sprintf("Target Compiler STDERR:\n%s", target.Compile.Stderr),
			Reference: ref,
			Target:    target,
		}
	}
	return compareRuns(file, ref, target)
}

func compareRuns(file string, ref, target *TargetResult) *FileTestResult {
	var diffs strings.Builder
	if ref.Run.ExitCode != target.Run.ExitCode {
		fmt.Fprintf(&diffs, "Exit code mismatch:\n  - Ref:    %d\n  - Target: %d\n", ref.Run.ExitCode, target.Run.ExitCode)
	}
	if d := cmp.Diff(ref.Run.Stdout, target.Run.Stdout); d != "" {
		fmt.Fprintf(&diffs, "STDOUT mismatch:\n%s", d)
	}
	if d := cmp.Diff(ref.Run.Stderr, target.Run.Stderr); d != "" {
		fmt.Fprintf(&diffs, "STDERR mismatch:\n%s", d)
	}
	res := &FileTestResult{File: file, Status: "PASS", Message: "Output matches", Reference: ref, Target: target}
	if diffs.Len() > 0 {
		res.Status, res.Message, res.Diff = "FAIL", "Runtime output or exit code mismatch", diffs.String()
	}
	return res
}

// executeCommand runs a command under ctx and captures its output.
func executeCommand(ctx context.Context, command string, args ...string) Execution {
	start := time.Now()
	cmd := exec.CommandContext(ctx, command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	err := cmd.Run()

	res := Execution{Stdout: stdout.String(), Stderr: stderr.String(), Duration: time.Since(start)}
	var exitErr *exec.ExitError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.TimedOut, res.ExitCode = true, -1
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	case err != nil:
		res.ExitCode = -2
		res.Stderr += "\nExecution error: " + err.Error()
	}
	return res
}

func compileAndRun(compiler string, compilerArgs []string, sourceFile, tempDir, binaryName string) (*TargetResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	binaryPath := filepath.Join(tempDir, binaryName)
	args := append([]string{"-o", binaryPath}, compilerArgs...)
	args = append(args, sourceFile)

	compile := executeCommand(ctx, compiler, args...)
	if compile.ExitCode != 0 || compile.TimedOut {
		return &TargetResult{Compile: compile}, fmt.Errorf("compilation failed with exit code %d", compile.ExitCode)
	}
	if _, err := os.Stat(binaryPath); err != nil {
		return &TargetResult{Compile: compile}, fmt.Errorf("compilation succeeded but binary was not created at %s", binaryPath)
	}

	runCtx, runCancel := context.WithTimeout(context.Background(), *timeout)
	defer runCancel()
	return &TargetResult{Compile: compile, Run: executeCommand(runCtx, binaryPath)}, nil
}

func printSummary(results []*FileTestResult) {
	counts := make(map[string]int)
	for _, r := range results {
		counts[r.Status]++
		label := green("[PASS]")
		switch r.Status {
		case "FAIL", "ERROR":
			label = red("[" + r.Status + "]")
		case "SKIP":
			label = yellow("[SKIP]")
		}
		fmt.Printf("%s %s: %s\n", label, r.File, r.Message)
		if r.Diff != "" {
			for _, line := range strings.Split(strings.TrimRight(r.Diff, "\n"), "\n") {
				fmt.Printf("    %s\n", line)
			}
		}
		if r.Status == "PASS" && r.Target != nil {
			fmt.Printf("    %s compile %s, run %s\n", cyan("time:"), r.Target.Compile.Duration.Round(time.Millisecond), r.Target.Run.Duration.Round(time.Microsecond))
		}
	}
	fmt.Printf("\n%s %d passed, %d failed, %d errors, %d skipped\n",
		bold("Summary:"), counts["PASS"], counts["FAIL"], counts["ERROR"], counts["SKIP"])
}

func writeJSONReport(results []*FileTestResult) error {
	byFile := make(map[string]*FileTestResult, len(results))
	for _, r := range results {
		byFile[r.File] = r
	}
	data, err := json.MarshalIndent(byFile, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(*outputJSON, data, 0o644)
}

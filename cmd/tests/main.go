package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const (
	Reset  = "\033[0m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"
	Bold   = "\033[1m"
	Dim    = "\033[2m"
)

// testEvent is one line of `go test -json` output.
type testEvent struct {
	Action  string  `json:"Action"`
	Package string  `json:"Package"`
	Test    string  `json:"Test"`
	Elapsed float64 `json:"Elapsed"`
	Output  string  `json:"Output"`
}

type PackageResult struct {
	Package     string
	Passed      int
	Failed      int
	Skipped     int
	Duration    time.Duration
	Success     bool
	FailedTests []string
	Output      []string
}

type Suite struct {
	Results  []PackageResult
	Duration time.Duration
}

func (s Suite) totals() (passed, failed, skipped int) {
	for _, r := range s.Results {
		passed += r.Passed
		failed += r.Failed
		skipped += r.Skipped
	}
	return passed, failed, skipped
}

func (s Suite) Success() bool {
	for _, r := range s.Results {
		if !r.Success {
			return false
		}
	}
	return true
}

type runOptions struct {
	short   bool
	race    bool
	run     string
	verbose bool
}

func main() {
	var opts runOptions

	cmd := &cobra.Command{
		Use:          "tests [package...]",
		Short:        "Run the congregate test suite package by package",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			packages := args
			if len(packages) == 0 {
				found, err := discoverPackages(".")
				if err != nil {
					return err
				}
				packages = found
			}
			if len(packages) == 0 {
				printWarning("No test packages found")
				return nil
			}

			printHeader(len(packages))
			if err := checkGoAvailable(); err != nil {
				return err
			}

			suite := runSuite(packages, opts)
			printSummary(suite)

			if !suite.Success() {
				return fmt.Errorf("%d package(s) failed", countFailed(suite))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.short, "short", false, "pass -short to go test")
	cmd.Flags().BoolVar(&opts.race, "race", false, "enable the race detector")
	cmd.Flags().StringVar(&opts.run, "run", "", "only run tests matching this regexp")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "print the output of failing packages")

	if err := cmd.Execute(); err != nil {
		printError("Test suite failed", err.Error())
		os.Exit(1)
	}
}

// discoverPackages lists every directory under root holding a _test.go file.
// Directories starting with "_" or "." are skipped, like the go tool does.
func discoverPackages(root string) ([]string, error) {
	seen := map[string]bool{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") || name == "testdata") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), "_test.go") {
			seen["./"+filepath.ToSlash(filepath.Dir(path))] = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover test packages: %w", err)
	}

	packages := make([]string, 0, len(seen))
	for pkg := range seen {
		packages = append(packages, pkg)
	}
	sort.Strings(packages)
	return packages, nil
}

func runSuite(packages []string, opts runOptions) Suite {
	start := time.Now()
	suite := Suite{Results: make([]PackageResult, 0, len(packages))}

	for i, pkg := range packages {
		fmt.Printf("├─ %s[%d/%d]%s %s%s%s\n", Dim, i+1, len(packages), Reset, Bold, pkg, Reset)

		result := runPackage(pkg, opts)
		printPackage(result, opts.verbose)
		suite.Results = append(suite.Results, result)
	}

	suite.Duration = time.Since(start)
	return suite
}

func goTestArgs(pkg string, opts runOptions) []string {
	args := []string{"test", "-json", "-count=1"}
	if opts.short {
		args = append(args, "-short")
	}
	if opts.race {
		args = append(args, "-race")
	}
	if opts.run != "" {
		args = append(args, "-run", opts.run)
	}
	return append(args, pkg)
}

func runPackage(pkg string, opts runOptions) PackageResult {
	start := time.Now()

	cmd := exec.Command("go", goTestArgs(pkg, opts)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()

	result := parseEvents(pkg, output)
	result.Duration = time.Since(start)
	if err != nil {
		result.Success = false
		if stderr.Len() > 0 {
			result.Output = append(result.Output, strings.Split(strings.TrimSpace(stderr.String()), "\n")...)
		}
	}
	return result
}

// parseEvents folds `go test -json` lines into a PackageResult. Subtests are
// counted like top level tests; non JSON lines such as build errors are kept
// as output.
func parseEvents(pkg string, output []byte) PackageResult {
	result := PackageResult{Package: pkg, Success: true}

	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()

		var ev testEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			result.Output = append(result.Output, string(line))
			continue
		}

		switch ev.Action {
		case "output":
			result.Output = append(result.Output, strings.TrimRight(ev.Output, "\n"))
		case "pass":
			if ev.Test != "" {
				result.Passed++
			}
		case "fail":
			if ev.Test != "" {
				result.Failed++
				result.FailedTests = append(result.FailedTests, ev.Test)
			} else {
				result.Success = false
			}
		case "skip":
			if ev.Test != "" {
				result.Skipped++
			}
		}
	}

	if result.Failed > 0 {
		result.Success = false
	}
	return result
}

func countFailed(suite Suite) int {
	n := 0
	for _, r := range suite.Results {
		if !r.Success {
			n++
		}
	}
	return n
}

func printHeader(packages int) {
	fmt.Println()
	fmt.Printf("🧪 %sRunning %d test package(s)%s\n", Bold+Cyan, packages, Reset)
	fmt.Printf("   %s%s%s\n", Gray, time.Now().Format("15:04:05"), Reset)
	fmt.Println()
}

func printPackage(result PackageResult, verbose bool) {
	ms := result.Duration.Milliseconds()
	if result.Success {
		fmt.Printf("│  %s✓ %d passed%s %s(%dms)%s\n", Green, result.Passed, Reset, Gray, ms, Reset)
	} else {
		fmt.Printf("│  %s✗ %d failed, %d passed%s %s(%dms)%s\n", Red, result.Failed, result.Passed, Reset, Gray, ms, Reset)
		for _, name := range result.FailedTests {
			fmt.Printf("│  %s└─ %s%s\n", Red, name, Reset)
		}
		if verbose {
			for _, line := range result.Output {
				fmt.Printf("│     %s%s%s\n", Dim, line, Reset)
			}
		}
	}
	if result.Skipped > 0 {
		fmt.Printf("│  %s%d skipped%s\n", Yellow, result.Skipped, Reset)
	}
	fmt.Println("│")
}

func printSummary(suite Suite) {
	passed, failed, skipped := suite.totals()

	fmt.Println()
	if suite.Success() {
		fmt.Printf("✅ %sAll tests passed!%s\n", Bold+Green, Reset)
	} else {
		fmt.Printf("❌ %sTest suite failed%s\n", Bold+Red, Reset)
	}

	fmt.Println()
	fmt.Printf("📊 %sSummary%s\n", Bold, Reset)
	fmt.Printf("   %sPassed:%s    %s%d%s\n", Gray, Reset, Green, passed, Reset)
	if failed > 0 {
		fmt.Printf("   %sFailed:%s    %s%d%s\n", Gray, Reset, Red, failed, Reset)
	}
	if skipped > 0 {
		fmt.Printf("   %sSkipped:%s   %d\n", Gray, Reset, skipped)
	}
	fmt.Printf("   %sDuration:%s  %dms\n", Gray, Reset, suite.Duration.Milliseconds())
	fmt.Printf("   %sPackages:%s  %d\n", Gray, Reset, len(suite.Results))
	fmt.Println()
}

func checkGoAvailable() error {
	output, err := exec.Command("go", "version").CombinedOutput()
	if err != nil {
		return fmt.Errorf("go command not available: %w", err)
	}
	fmt.Printf("   %s%s%s\n\n", Gray, strings.TrimSpace(string(output)), Reset)
	return nil
}

func printError(title, message string) {
	fmt.Printf("❌ %s%s%s\n", Bold+Red, title, Reset)
	fmt.Printf("   %s%s%s\n", Red, message, Reset)
	fmt.Println()
}

func printWarning(message string) {
	fmt.Printf("⚠️  %s%s%s\n", Yellow, message, Reset)
	fmt.Println()
}

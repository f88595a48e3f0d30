package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	ktesting "github.com/ormasoftchile/overlay/pkg/kernel/testing"
)

var (
	testScenario string
	testJSON     bool
	testFailFast bool
	testTimeout  string
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

var testCmd = &cobra.Command{
	Use:   "test [tutorial.yaml...]",
	Short: "Run scenario tests for tutorials",
	Long: `Discover scenarios for each tutorial, replay their host inputs against the
engine with instant timing, and compare the session against test.yaml.

Scenarios are discovered by convention at:
  {tutorial-dir}/scenarios/{tutorial-name}/*/scenario.yaml

Only scenarios with a test.yaml file are asserted. Scenarios without
test.yaml are reported as skipped.

Exit codes:
  0 all asserted tests passed
  1 at least one asserted test failed
  2 tutorial validation failed (no tests ran)`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTest,
}

func runTest(cmd *cobra.Command, args []string) error {
	timeout, err := time.ParseDuration(testTimeout)
	if err != nil {
		return fmt.Errorf("invalid --timeout %q: %w", testTimeout, err)
	}
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	runner := &ktesting.Runner{
		Registry: reg,
		Logger:   logger,
		Timeout:  timeout,
		FailFast: testFailFast,
	}

	out := cmd.OutOrStdout()
	allPassed := true
	validationFailed := false

	for _, path := range args {
		var output *ktesting.TestOutput
		if testScenario != "" {
			var res *ktesting.TestResult
			res, err = runner.RunScenario(path, testScenario)
			if err == nil {
				output = singleOutput(res)
			}
		} else {
			output, err = runner.RunAll(path)
		}
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "  ✗ %s: %v\n", path, err)
			validationFailed = true
			continue
		}

		if testJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(output); err != nil {
				return err
			}
		} else {
			printTestOutput(out, output)
		}

		if output.Summary.Failed > 0 || output.Summary.Errors > 0 {
			allPassed = false
		}
		if testFailFast && !allPassed {
			break
		}
	}

	switch {
	case validationFailed:
		return &exitError{code: 2, msg: "tutorial validation failed"}
	case !allPassed:
		return &exitError{code: 1, msg: "scenario tests failed"}
	}
	return nil
}

func singleOutput(res *ktesting.TestResult) *ktesting.TestOutput {
	out := &ktesting.TestOutput{
		Tutorial:  res.TutorialID,
		Scenarios: []ktesting.TestResult{*res},
		Summary:   ktesting.TestSummary{Total: 1},
	}
	switch res.Status {
	case "passed":
		out.Summary.Passed = 1
	case "failed":
		out.Summary.Failed = 1
	case "skipped":
		out.Summary.Skipped = 1
	default:
		out.Summary.Errors = 1
	}
	return out
}

func printTestOutput(w io.Writer, output *ktesting.TestOutput) {
	fmt.Fprintf(w, "\n  %s\n", output.Tutorial)
	for _, s := range output.Scenarios {
		switch s.Status {
		case "passed":
			fmt.Fprintf(w, "    ✓ %-30s %dms\n", s.ScenarioName, s.DurationMs)
		case "failed":
			fmt.Fprintf(w, "    ✗ %-30s %dms\n", s.ScenarioName, s.DurationMs)
			for _, a := range s.Assertions {
				if !a.Passed {
					fmt.Fprintf(w, "        %s: %s\n", a.Type, a.Message)
				}
			}
		case "skipped":
			fmt.Fprintf(w, "    ○ %-30s (no test.yaml)\n", s.ScenarioName)
		case "error":
			fmt.Fprintf(w, "    ✗ %-30s ERROR: %s\n", s.ScenarioName, s.Error)
		}
	}
	fmt.Fprintf(w, "\n  %d scenarios, %d passed, %d failed, %d skipped\n",
		output.Summary.Total, output.Summary.Passed, output.Summary.Failed, output.Summary.Skipped)
	if output.Summary.Errors > 0 {
		fmt.Fprintf(w, "  %d errors\n", output.Summary.Errors)
	}
}

func init() {
	testCmd.Flags().StringVar(&testScenario, "scenario", "", "Run only the named scenario (default: all)")
	testCmd.Flags().BoolVar(&testJSON, "json", false, "Output results as structured JSON")
	testCmd.Flags().BoolVar(&testFailFast, "fail-fast", false, "Stop after first failure")
	testCmd.Flags().StringVar(&testTimeout, "timeout", "30s", "Per-scenario timeout (e.g. 30s, 1m)")
	rootCmd.AddCommand(testCmd)
}

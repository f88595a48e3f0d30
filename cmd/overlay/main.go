package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ormasoftchile/overlay/pkg/kernel/registry"
	"github.com/ormasoftchile/overlay/pkg/kernel/resolve"
	"github.com/ormasoftchile/overlay/pkg/kernel/schema"
	kvalidate "github.com/ormasoftchile/overlay/pkg/kernel/validate"
	"github.com/ormasoftchile/overlay/pkg/logging"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

// Persistent flags.
var (
	registryPath string
	logLevel     string
	logMode      string
	prefsPath    string
	traceDir     string
	speed        float64
)

// logger is built from --log-level and --log-mode before any command runs.
var logger = zap.NewNop()

func main() {
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "overlay",
	Short: "Guided overlay tutorials for CAD hosts",
	Long:  "overlay: step-by-step tutorials that point at the host UI with an animated cursor, watch the host for completion and redirect the learner when the host is in the wrong context.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.New(logMode, logLevel)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	SilenceUsage: true,
}

// loadRegistry loads --registry, or returns an empty registry when the
// flag is unset.
func loadRegistry() (*registry.Registry, error) {
	if registryPath == "" {
		return registry.New(), nil
	}
	reg, err := registry.LoadFile(registryPath)
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	return reg, nil
}

// --- validate ---

var validateKind string

var validateCmd = &cobra.Command{
	Use:   "validate [file.yaml]",
	Short: "Validate a tutorial or registry file",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	filePath := args[0]
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	switch validateKind {
	case "tutorial":
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		t, errs := kvalidate.ValidateFile(filePath, kvalidate.Options{Registry: reg})
		if err := reportValidation(errOut, errs); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ %s is valid (%d steps)\n", t.TutorialID, len(t.Steps))
	case "registry":
		doc, errs := kvalidate.ValidateRegistryFile(filePath)
		if err := reportValidation(errOut, errs); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ registry is valid (%d environments)\n", len(doc.Environments))
	default:
		return fmt.Errorf("unknown --kind %q: use tutorial or registry", validateKind)
	}
	return nil
}

// reportValidation prints warnings and errors, returning an error when
// any error is present.
func reportValidation(w io.Writer, all []*kvalidate.ValidationError) error {
	errs, warnings := kvalidate.Split(all)
	for _, e := range warnings {
		fmt.Fprintf(w, "  ⚠ [%s] %s\n", e.Phase, e.Message)
		if e.Path != "" {
			fmt.Fprintf(w, "    at: %s\n", e.Path)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	fmt.Fprintf(w, "Validation failed: %d error(s)\n\n", len(errs))
	for i, e := range errs {
		fmt.Fprintf(w, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
		if e.Path != "" {
			fmt.Fprintf(w, "     at: %s\n", e.Path)
		}
	}
	return fmt.Errorf("validation failed with %d error(s)", len(errs))
}

// --- resolve ---

var resolveEnv string

var resolveCmd = &cobra.Command{
	Use:   "resolve [path...]",
	Short: "Resolve target paths against the registry",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runResolve,
}

func runResolve(cmd *cobra.Command, args []string) error {
	if registryPath == "" {
		return fmt.Errorf("--registry is required")
	}
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	res := resolve.New(reg, resolve.WithLogger(logger))
	if resolveEnv != "" {
		if !reg.HasEnvironment(resolveEnv) {
			return fmt.Errorf("unknown environment %q", resolveEnv)
		}
		res.SetActive(resolveEnv)
	}

	out := cmd.OutOrStdout()
	missing := 0
	for _, path := range args {
		t, ok := res.Resolve(path)
		if !ok {
			missing++
			fmt.Fprintf(out, "✗ %-32s unresolved in %s\n", path, res.Active())
			continue
		}
		fmt.Fprintf(out, "✓ %-32s %s [%s] %s image %d (%.0f,%.0f %.0fx%.0f)\n",
			path, t.Key, t.Strategy, t.Label, t.ImageIndex,
			t.Rect.X, t.Rect.Y, t.Rect.Width, t.Rect.Height)
	}
	if missing > 0 {
		return fmt.Errorf("%d target(s) unresolved", missing)
	}
	return nil
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:       "schema [tutorial|registry]",
	Short:     "Export a JSON Schema to stdout",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"tutorial", "registry"},
	RunE:      runSchema,
}

func runSchema(cmd *cobra.Command, args []string) error {
	var data []byte
	var err error
	switch args[0] {
	case "tutorial":
		data, err = schema.GenerateTutorialJSONSchema()
	case "registry":
		data, err = schema.GenerateRegistryJSONSchema()
	default:
		return fmt.Errorf("unknown schema %q: use tutorial or registry", args[0])
	}
	if err != nil {
		return fmt.Errorf("generate schema: %w", err)
	}
	if !json.Valid(data) {
		return fmt.Errorf("generated schema is not valid JSON")
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "overlay %s (build: %s)\n", version, commit)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&registryPath, "registry", "", "Component registry YAML")
	pf.StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	pf.StringVar(&logMode, "log-mode", "development", "Log encoding: development (console) or production (JSON)")
	pf.StringVar(&prefsPath, "prefs", "", "Preferences file (default: user config dir)")
	pf.StringVar(&traceDir, "trace", "", "Directory for JSONL session traces")
	pf.Float64Var(&speed, "speed", 1, "Animation speed factor")

	validateCmd.Flags().StringVar(&validateKind, "kind", "tutorial", "Document kind: tutorial or registry")
	resolveCmd.Flags().StringVar(&resolveEnv, "env", "", "Active environment (default: first registered)")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(versionCmd)
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/overlay/pkg/serve"
)

var serveStateDir string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the JSON-RPC host bridge (stdio)",
	Long: `Start a JSON-RPC server that communicates over stdin/stdout.
The host add-in loads tutorials, pushes its context and completion events,
and draws the render/* notifications on its overlay window.
Messages are newline-delimited JSON-RPC 2.0. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		store, err := openPrefs()
		if err != nil {
			return err
		}
		s := serve.New(
			serve.WithLogger(logger),
			serve.WithConfig(serve.Config{
				Registry: reg,
				Prefs:    store,
				TraceDir: traceDir,
				StateDir: serveStateDir,
				Speed:    speed,
			}),
		)
		return s.Run()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveStateDir, "state", "", "Directory for saved progress (enables resume)")
	rootCmd.AddCommand(serveCmd)
}

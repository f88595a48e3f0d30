package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ormasoftchile/overlay/pkg/debugger"
	"github.com/ormasoftchile/overlay/pkg/ecosystem/recorder"
	"github.com/ormasoftchile/overlay/pkg/kernel/animate"
)

var (
	consoleGuidance string
	consoleRecord   string
)

var consoleCmd = &cobra.Command{
	Use:   "console [tutorial.yaml]",
	Short: "Drive a tutorial from an interactive console",
	Long: `Start a readline console over a tutorial session. Host events, context
changes and redirect answers are typed in by hand, and every notification
the engine raises is printed as it happens.

With --record DIR the accepted input is written to DIR/scenario.yaml on
exit, together with a test.yaml asserting the final state, ready for
'overlay test'.`,
	Args: cobra.ExactArgs(1),
	RunE: runConsole,
}

func runConsole(cmd *cobra.Command, args []string) error {
	s, err := startSession(sessionConfig{
		path:     args[0],
		surface:  animate.NewRecorder(),
		sink:     debugger.NewPrinter(os.Stdout),
		guidance: consoleGuidance,
	})
	if err != nil {
		return err
	}
	defer s.close()

	opts := []debugger.Option{debugger.WithTitle(s.tutorial.Title)}
	var rec *recorder.Recorder
	if consoleRecord != "" {
		rec = recorder.New(s.nav, s.nav.Guidance(), s.nav.Context())
		opts = append(opts, debugger.WithHost(rec))
	}
	runErr := debugger.New(s.nav, opts...).Run()

	if rec != nil {
		s.machine.Settle()
		spec := recorder.Expectations(s.machine.Snapshot())
		if err := rec.Save(consoleRecord, "recorded from the console", spec); err != nil {
			logger.Warn("recording not saved", zap.Error(err))
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded %d actions to %s\n", rec.Len(), consoleRecord)
		}
	}
	return runErr
}

func init() {
	consoleCmd.Flags().StringVar(&consoleGuidance, "guidance", "", "Guidance mode: ON, ASK or OFF (default: stored preference)")
	consoleCmd.Flags().StringVar(&consoleRecord, "record", "", "Write the session to DIR as a test scenario")
	rootCmd.AddCommand(consoleCmd)
}

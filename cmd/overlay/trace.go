package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/overlay/pkg/kernel/trace"
)

var traceVerifyCmd = &cobra.Command{
	Use:   "verify [trace.jsonl]",
	Short: "Verify session trace integrity (hash chain + signature)",
	Args:  cobra.ExactArgs(1),
	RunE:  runTraceVerify,
}

func runTraceVerify(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	result, err := trace.VerifyFile(args[0])
	if err != nil {
		return err
	}

	if !result.Valid {
		fmt.Fprintf(out, "✗ Chain broken at event %d\n", result.BrokenAt)
		if result.Error != "" {
			fmt.Fprintf(out, "  %s\n", result.Error)
		}
		return fmt.Errorf("chain verification failed")
	}
	fmt.Fprintf(out, "✓ Chain integrity: %d events, no breaks\n", result.EventCount)
	if !result.Sealed {
		fmt.Fprintf(out, "⚠ Session not sealed (no session_end event)\n")
		return nil
	}

	keyLabel := result.SigningKeyID
	if keyLabel == "" {
		keyLabel = "(default)"
	}
	switch {
	case result.SignatureOK:
		fmt.Fprintf(out, "✓ Signature valid: signed by key %q\n", keyLabel)
	case result.SignatureNoKey:
		fmt.Fprintf(out, "⚠ Signature present (key %q) but %s is not set\n", keyLabel, trace.SigningKeyEnv)
	case result.Signed:
		fmt.Fprintf(out, "✗ Signature invalid\n")
		return fmt.Errorf("signature verification failed")
	}
	return nil
}

func init() {
	traceCmd := &cobra.Command{
		Use:   "trace",
		Short: "Session trace operations",
	}
	traceCmd.AddCommand(traceVerifyCmd)
	rootCmd.AddCommand(traceCmd)
}

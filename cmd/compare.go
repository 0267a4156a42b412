package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var compareSession string

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Reconcile a session's extracted part lists",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		r, err := initRunner(st)
		if err != nil {
			return err
		}

		result, err := r.Compare(ctx, compareSession)
		if err != nil {
			return eris.Wrap(err, "compare session")
		}

		zap.L().Info("comparison complete",
			zap.String("session_id", compareSession),
			zap.Int("groups", len(result.Groups)),
			zap.Int("unmatched", len(result.Unmatched)))

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	compareCmd.Flags().StringVar(&compareSession, "session", "", "session ID (required)")
	_ = compareCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(compareCmd)
}

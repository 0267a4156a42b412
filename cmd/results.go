package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var resultsSession string

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Print everything persisted for a session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		results, err := st.GetResults(ctx, resultsSession)
		if err != nil {
			return eris.Wrap(err, "load results")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List all sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		sessions, err := st.ListSessions(ctx)
		if err != nil {
			return eris.Wrap(err, "list sessions")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sessions)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the store schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		return st.Migrate(ctx)
	},
}

func init() {
	resultsCmd.Flags().StringVar(&resultsSession, "session", "", "session ID (required)")
	_ = resultsCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(migrateCmd)
}

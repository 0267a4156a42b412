package main

import (
	"encoding/json"
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/bom-validator/internal/model"
)

var (
	extractSession string
	extractBOMPath string
	extractSAPPath string
	extractCSPath  string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract part lists from one or more source documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		r, err := initRunner(st)
		if err != nil {
			return err
		}

		inputs := map[model.SourceRole][]byte{}
		for role, path := range map[model.SourceRole]string{
			model.SourceBOM: extractBOMPath,
			model.SourceSAP: extractSAPPath,
			model.SourceCS:  extractCSPath,
		} {
			if path == "" {
				continue
			}
			raw, err := os.ReadFile(path)
			if err != nil {
				return eris.Wrapf(err, "read %s document", role)
			}
			inputs[role] = raw
		}
		if len(inputs) == 0 {
			return eris.New("at least one of --bom, --sap, --cs is required")
		}

		sessionID := extractSession
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		status, err := r.RunSession(ctx, sessionID, inputs)
		if err != nil {
			return eris.Wrap(err, "run session")
		}

		zap.L().Info("extraction finished",
			zap.String("session_id", sessionID),
			zap.Int("succeeded", len(status.Succeeded())),
			zap.Int("failed", len(status.Errors)))

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractSession, "session", "", "session ID (generated when empty)")
	extractCmd.Flags().StringVar(&extractBOMPath, "bom", "", "BOM spreadsheet path (.xlsx)")
	extractCmd.Flags().StringVar(&extractSAPPath, "sap", "", "SAP datasheet path (.pdf)")
	extractCmd.Flags().StringVar(&extractCSPath, "cs", "", "cross-sectional drawing path (.pdf)")
	rootCmd.AddCommand(extractCmd)
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRefreshCIKsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-ciks",
		Short: "Re-sync company identifiers from the SEC ticker mapping",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cfgFile)
			if err != nil {
				return err
			}
			defer a.close()

			updated, err := a.universe.RefreshCIKs(cmd.Context())
			if err != nil {
				return fmt.Errorf("refresh ciks: %w", err)
			}
			a.logger.Info("cik refresh complete", zap.Int("updated", updated))
			return nil
		},
	}
}

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/frahmantamala/teamboard/internal/resolver"
	"github.com/frahmantamala/teamboard/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	checkUser     string
	checkTeam     string
	checkResource string
)

var checkCmd = &cobra.Command{
	Use:   "check [permission]",
	Short: "Check one permission for a user",
	Long: `Run a single permission check through the same resolver and audit path as the API.
Denials are written to the audit log.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configDir)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		log := logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

		app, err := NewApp(cfg, log)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		result, checkErr := app.Authz.Check(ctx, resolver.CheckRequest{
			UserID:       checkUser,
			TeamID:       checkTeam,
			Permission:   args[0],
			ResourceType: "cli",
			ResourceID:   checkResource,
		})

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
		if checkErr != nil {
			return checkErr
		}
		if !result.Granted {
			_ = app.Close()
			os.Exit(2)
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().StringVarP(&checkUser, "user", "u", "", "user id")
	checkCmd.Flags().StringVarP(&checkTeam, "team", "t", "", "team id")
	checkCmd.Flags().StringVar(&checkResource, "resource", "", "resource id recorded on the audit entry")
	_ = checkCmd.MarkFlagRequired("user")
	_ = checkCmd.MarkFlagRequired("team")
}

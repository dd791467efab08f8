package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/frahmantamala/teamboard/internal/role"
	"github.com/frahmantamala/teamboard/internal/seed"
	"github.com/frahmantamala/teamboard/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	seedFile  string
	seedOwner string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the permission catalog and system roles",
	Long: `Register the permission catalog and the owner, admin, manager, editor and viewer
roles with their default bindings. Existing rows are kept, so the command can be re-run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configDir)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		log := logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

		path := seedFile
		if path == "" {
			path = cfg.Seed.Path
		}
		table, err := seed.Load(path)
		if err != nil {
			return err
		}

		app, err := NewApp(cfg, log)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		res, err := seed.NewSeeder(app.Catalog, app.Roles, log).WithFlusher(app.Authz).Apply(ctx, table)
		if err != nil {
			return fmt.Errorf("failed to seed: %w", err)
		}
		fmt.Printf("seeded %d permissions, %d roles, %d new bindings\n", res.Permissions, res.Roles, res.NewBindings)

		if seedOwner == "" {
			return nil
		}
		userID, teamID, ok := strings.Cut(seedOwner, ":")
		if !ok || userID == "" || teamID == "" {
			return fmt.Errorf("--owner must be user:team, got %q", seedOwner)
		}
		owner, err := app.Roles.GetRole(ctx, role.SlugOwner)
		if err != nil {
			return err
		}
		if _, err := app.Teams.AssignRole(ctx, userID, teamID, owner.ID); err != nil {
			return fmt.Errorf("failed to assign owner: %w", err)
		}
		if err := app.Authz.FlushAll(ctx, seed.FlushTrigger); err != nil {
			log.Warn("failed to flush permission cache after owner assignment", "user_id", userID, "team_id", teamID, "error", err)
		}
		fmt.Printf("assigned %s as owner of %s\n", userID, teamID)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "seed table to apply instead of the built-in one")
	seedCmd.Flags().StringVar(&seedOwner, "owner", "", "bootstrap an owner membership, as user:team")
}

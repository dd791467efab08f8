package cmd

import (
	"context"
	"fmt"

	"github.com/frahmantamala/teamboard/internal/permcache"
	"github.com/frahmantamala/teamboard/pkg/logger"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Permission cache commands",
	Long:  `Inspect and invalidate cached permission sets`,
}

var (
	invalidateUser string
	invalidateTeam string
	invalidateAll  bool
)

var invalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Invalidate cached permission sets",
	Long: `Drop one cached (user, team) permission set, or every set with --all. With the redis
backend the change is visible to every instance; with broadcast enabled it is also relayed
to instances running the memory backend.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !invalidateAll && (invalidateUser == "" || invalidateTeam == "") {
			return fmt.Errorf("either --all or both --user and --team are required")
		}

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

		const trigger = "cli"
		if invalidateAll {
			if err := app.Cache.InvalidateAll(ctx, trigger); err != nil {
				return err
			}
			if app.Broadcaster != nil {
				if err := app.Broadcaster.PublishAll(ctx, trigger); err != nil {
					return err
				}
			}
			log.Info("permission cache flushed", "backend", app.Cache.Backend())
			return nil
		}

		key := permcacheKey(invalidateUser, invalidateTeam)
		if err := app.Cache.Invalidate(ctx, trigger, key); err != nil {
			return err
		}
		if app.Broadcaster != nil {
			if err := app.Broadcaster.Publish(ctx, trigger, key); err != nil {
				return err
			}
		}
		log.Info("permission cache entry invalidated", "user_id", invalidateUser, "team_id", invalidateTeam)
		return nil
	},
}

func permcacheKey(userID, teamID string) permcache.Key {
	return permcache.Key{UserID: userID, TeamID: teamID}
}

func init() {
	invalidateCmd.Flags().StringVarP(&invalidateUser, "user", "u", "", "user id")
	invalidateCmd.Flags().StringVarP(&invalidateTeam, "team", "t", "", "team id")
	invalidateCmd.Flags().BoolVar(&invalidateAll, "all", false, "flush every cached permission set")

	cacheCmd.AddCommand(invalidateCmd)
}

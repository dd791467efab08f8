package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/frahmantamala/teamboard/internal/audit"
	"github.com/frahmantamala/teamboard/internal/authz"
	"github.com/frahmantamala/teamboard/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	auditUser       string
	auditTeam       string
	auditAction     string
	auditPermission string
	auditSince      time.Duration
	auditLimit      int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Stream permission audit entries as NDJSON",
	Long:  `Print audit log entries newest first, one JSON object per line.`,
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

		f := audit.Filter{
			UserID:         auditUser,
			TeamID:         auditTeam,
			Action:         audit.Action(auditAction),
			PermissionSlug: auditPermission,
			Limit:          auditLimit,
		}
		if auditSince > 0 {
			f.Since = time.Now().Add(-auditSince)
		}

		cur, err := app.Authz.QueryAudit(ctx, f)
		if err != nil {
			return err
		}
		defer cur.Close()

		enc := json.NewEncoder(os.Stdout)
		for cur.Next() {
			if err := enc.Encode(authz.ToAuditEntryResponse(cur.Entry())); err != nil {
				return err
			}
		}
		return cur.Err()
	},
}

func init() {
	auditCmd.Flags().StringVarP(&auditUser, "user", "u", "", "filter by user id")
	auditCmd.Flags().StringVarP(&auditTeam, "team", "t", "", "filter by team id")
	auditCmd.Flags().StringVarP(&auditAction, "action", "a", "", "filter by action: granted, revoked, checked or denied")
	auditCmd.Flags().StringVarP(&auditPermission, "permission", "p", "", "filter by permission slug")
	auditCmd.Flags().DurationVar(&auditSince, "since", 0, "only entries newer than this, e.g. 24h")
	auditCmd.Flags().IntVarP(&auditLimit, "limit", "n", 100, "maximum entries, 0 for all")
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/portalauthz/internal/app/store/audit"
	"github.com/dalemusser/portalauthz/internal/app/system/authz"
	"github.com/spf13/cobra"
)

func (c *ctl) auditCmd() *cobra.Command {
	var (
		f          audit.QueryFilter
		since, til string
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List audit records, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if f.StartTime, err = parseDay(since); err != nil {
				return fmt.Errorf("--since: %w", err)
			}
			if f.EndTime, err = parseDay(til); err != nil {
				return fmt.Errorf("--until: %w", err)
			}
			if f.EndTime != nil {
				end := f.EndTime.Add(24 * time.Hour)
				f.EndTime = &end
			}
			return c.with(cmd, true, func(ctx context.Context, b *backend) error {
				recs, err := b.Admin.AuditLog(ctx, c.actor, f)
				if err != nil {
					return err
				}
				return c.print(recs)
			})
		},
	}
	cmd.Flags().StringVar(&f.TargetID, "target", "", "Only records about this principal")
	cmd.Flags().StringVar(&f.ActorID, "by", "", "Only records made by this actor")
	cmd.Flags().StringVar(&f.Operation, "operation", "", "Only this operation (set_roles, approve, ...)")
	cmd.Flags().StringVar(&since, "since", "", "First day, YYYY-MM-DD")
	cmd.Flags().StringVar(&til, "until", "", "Last day, YYYY-MM-DD")
	cmd.Flags().Int64Var(&f.Limit, "limit", 50, "Maximum records")
	return cmd
}

func parseDay(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *ctl) decideCmd() *cobra.Command {
	var req authz.Request
	cmd := &cobra.Command{
		Use:   "decide PRINCIPAL_ID CAPABILITY",
		Short: "Ask the resolver whether a principal holds a capability",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.PrincipalID, req.Capability = args[0], args[1]
			return c.with(cmd, false, func(ctx context.Context, b *backend) error {
				d, err := b.Resolver.Decide(ctx, req)
				if err != nil {
					return err
				}
				out := struct {
					Allowed bool   `json:"allowed"`
					Reason  string `json:"reason,omitempty"`
					Message string `json:"message,omitempty"`
					Path    string `json:"path"`
				}{Allowed: d.Allowed, Reason: d.Reason, Path: d.Path}
				if !d.Allowed {
					out.Message = d.Message(req.Capability)
				}
				return c.print(out)
			})
		},
	}
	cmd.Flags().StringVar(&req.ResourceOwnerID, "owner", "", "Owner of the resource being acted on")
	cmd.Flags().StringVar(&req.OrganizationID, "org", "", "Organization the request is scoped to")
	return cmd
}

func (c *ctl) syncClaimsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-claims",
		Short: "Re-project and publish claims for every approved or active principal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(cmd, true, func(ctx context.Context, b *backend) error {
				rep, err := b.Admin.SyncClaims(ctx, c.actor)
				if err != nil {
					return err
				}
				return c.print(rep)
			})
		},
	}
}

func (c *ctl) migrateRolesCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "migrate-roles",
		Short: "Rewrite legacy role fields and spellings into canonical role lists",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(cmd, true, func(ctx context.Context, b *backend) error {
				rep, err := b.Admin.MigrateRoles(ctx, c.actor, dryRun)
				if err != nil {
					return err
				}
				return c.print(rep)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would change without writing")
	return cmd
}

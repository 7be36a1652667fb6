package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/dalemusser/portalauthz/internal/app/system/principaladmin"
	"github.com/dalemusser/portalauthz/internal/domain/models"
	"github.com/spf13/cobra"
)

// mutate runs fn once when the operator pinned a version, otherwise retries
// on Conflict with a fresh read each time.
func (c *ctl) mutate(ctx context.Context, expectedVersion int64, fn func(ctx context.Context, version int64) (models.Principal, error)) (models.Principal, error) {
	if expectedVersion > 0 {
		return fn(ctx, expectedVersion)
	}
	return principaladmin.WithRetry(ctx, c.retries, func(ctx context.Context) (models.Principal, error) {
		return fn(ctx, 0)
	})
}

func (c *ctl) bootstrapCmd() *cobra.Command {
	var email, name string
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the first root principal (only while no principals exist)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(cmd, false, func(ctx context.Context, b *backend) error {
				p, err := b.Admin.Bootstrap(ctx, email, name)
				if err != nil {
					return err
				}
				return c.print(p)
			})
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Email of the root principal (required)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Display name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (c *ctl) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show PRINCIPAL_ID",
		Short: "Show a principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(cmd, true, func(ctx context.Context, b *backend) error {
				p, err := b.Admin.Principal(ctx, c.actor, args[0])
				if err != nil {
					return err
				}
				return c.print(p)
			})
		},
	}
}

func (c *ctl) pendingCmd() *cobra.Command {
	var status string
	var limit int64
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List principals awaiting approval",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(cmd, true, func(ctx context.Context, b *backend) error {
				ps, err := b.Admin.ListByStatus(ctx, c.actor, status, limit)
				if err != nil {
					return err
				}
				return c.print(ps)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", models.StatusPending, "Status to list")
	cmd.Flags().Int64Var(&limit, "limit", 100, "Maximum principals to list")
	return cmd
}

func (c *ctl) setRolesCmd() *cobra.Command {
	var roleIDs []string
	var version int64
	cmd := &cobra.Command{
		Use:   "set-roles PRINCIPAL_ID",
		Short: "Replace a principal's roles (the first is the primary role)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(cmd, true, func(ctx context.Context, b *backend) error {
				p, err := c.mutate(ctx, version, func(ctx context.Context, v int64) (models.Principal, error) {
					return b.Admin.SetRoles(ctx, c.actor, args[0], roleIDs, v)
				})
				if err != nil {
					return err
				}
				return c.print(p)
			})
		},
	}
	cmd.Flags().StringSliceVarP(&roleIDs, "role", "r", nil, "Role ID; repeat or comma-separate (required)")
	cmd.Flags().Int64Var(&version, "expected-version", 0, "Fail with a conflict unless the principal is at this version")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func (c *ctl) setStatusCmd() *cobra.Command {
	var version int64
	cmd := &cobra.Command{
		Use:   "set-status PRINCIPAL_ID STATUS",
		Short: "Change a principal's approval status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(cmd, true, func(ctx context.Context, b *backend) error {
				p, err := c.mutate(ctx, version, func(ctx context.Context, v int64) (models.Principal, error) {
					return b.Admin.SetStatus(ctx, c.actor, args[0], args[1], v)
				})
				if err != nil {
					return err
				}
				return c.print(p)
			})
		},
	}
	cmd.Flags().Int64Var(&version, "expected-version", 0, "Fail with a conflict unless the principal is at this version")
	return cmd
}

func (c *ctl) setOverridesCmd() *cobra.Command {
	var caps []string
	var version int64
	cmd := &cobra.Command{
		Use:   "set-overrides PRINCIPAL_ID",
		Short: "Replace a principal's additive capability overrides",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(cmd, true, func(ctx context.Context, b *backend) error {
				p, err := c.mutate(ctx, version, func(ctx context.Context, v int64) (models.Principal, error) {
					return b.Admin.SetOverrides(ctx, c.actor, args[0], caps, v)
				})
				if err != nil {
					return err
				}
				return c.print(p)
			})
		},
	}
	cmd.Flags().StringSliceVarP(&caps, "capability", "c", nil, "Capability; repeat or comma-separate (none clears)")
	cmd.Flags().Int64Var(&version, "expected-version", 0, "Fail with a conflict unless the principal is at this version")
	return cmd
}

func (c *ctl) setMembershipsCmd() *cobra.Command {
	var pairs []string
	var version int64
	cmd := &cobra.Command{
		Use:   "set-memberships PRINCIPAL_ID",
		Short: "Replace a principal's organization memberships",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ms, err := parseMemberships(pairs)
			if err != nil {
				return err
			}
			return c.with(cmd, true, func(ctx context.Context, b *backend) error {
				p, err := c.mutate(ctx, version, func(ctx context.Context, v int64) (models.Principal, error) {
					return b.Admin.SetMemberships(ctx, c.actor, args[0], ms, v)
				})
				if err != nil {
					return err
				}
				return c.print(p)
			})
		},
	}
	cmd.Flags().StringSliceVarP(&pairs, "membership", "m", nil, "ORG_ID=ROLE; repeat for several (none clears)")
	cmd.Flags().Int64Var(&version, "expected-version", 0, "Fail with a conflict unless the principal is at this version")
	return cmd
}

func parseMemberships(pairs []string) ([]models.OrgMembership, error) {
	out := make([]models.OrgMembership, 0, len(pairs))
	for _, pair := range pairs {
		org, role, ok := strings.Cut(pair, "=")
		org, role = strings.TrimSpace(org), strings.TrimSpace(role)
		if !ok || org == "" || role == "" {
			return nil, fmt.Errorf("membership %q: want ORG_ID=ROLE", pair)
		}
		out = append(out, models.OrgMembership{OrganizationID: org, Role: role})
	}
	return out, nil
}

func (c *ctl) approveCmd() *cobra.Command {
	var role, reason string
	var version int64
	cmd := &cobra.Command{
		Use:   "approve PRINCIPAL_ID",
		Short: "Approve a pending principal with a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(cmd, true, func(ctx context.Context, b *backend) error {
				p, err := c.mutate(ctx, version, func(ctx context.Context, v int64) (models.Principal, error) {
					return b.Admin.Approve(ctx, c.actor, args[0], role, reason, v)
				})
				if err != nil {
					return err
				}
				return c.print(p)
			})
		},
	}
	cmd.Flags().StringVarP(&role, "role", "r", "member", "Role granted on approval")
	cmd.Flags().StringVar(&reason, "reason", "", "Note recorded in the audit log")
	cmd.Flags().Int64Var(&version, "expected-version", 0, "Fail with a conflict unless the principal is at this version")
	return cmd
}

func (c *ctl) denyCmd() *cobra.Command {
	var reason string
	var version int64
	cmd := &cobra.Command{
		Use:   "deny PRINCIPAL_ID",
		Short: "Reject a pending principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(cmd, true, func(ctx context.Context, b *backend) error {
				p, err := c.mutate(ctx, version, func(ctx context.Context, v int64) (models.Principal, error) {
					return b.Admin.Deny(ctx, c.actor, args[0], reason, v)
				})
				if err != nil {
					return err
				}
				return c.print(p)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Note recorded in the audit log")
	cmd.Flags().Int64Var(&version, "expected-version", 0, "Fail with a conflict unless the principal is at this version")
	return cmd
}

// Command portalctl is the operator CLI for the authorization service. Every
// mutation goes through the same mutation API the HTTP surface uses, so it is
// authorized, audited and invalidates sessions exactly as a web request
// would. The one exception is bootstrap, which creates the first root
// principal in an empty store.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dalemusser/portalauthz/internal/app/store/audit"
	"github.com/dalemusser/portalauthz/internal/app/system/authz"
	"github.com/dalemusser/portalauthz/internal/app/system/principaladmin"
	"github.com/dalemusser/portalauthz/internal/domain/models"
	"github.com/spf13/cobra"
)

// adminAPI is the mutation API as driven from the command line.
type adminAPI interface {
	Bootstrap(ctx context.Context, email, displayName string) (models.Principal, error)
	Principal(ctx context.Context, actorID, targetID string) (models.Principal, error)
	ListByStatus(ctx context.Context, actorID, status string, limit int64) ([]models.Principal, error)
	SetRoles(ctx context.Context, actorID, targetID string, roles []string, expectedVersion int64) (models.Principal, error)
	SetStatus(ctx context.Context, actorID, targetID, status string, expectedVersion int64) (models.Principal, error)
	SetOverrides(ctx context.Context, actorID, targetID string, overrides []string, expectedVersion int64) (models.Principal, error)
	SetMemberships(ctx context.Context, actorID, targetID string, ms []models.OrgMembership, expectedVersion int64) (models.Principal, error)
	Approve(ctx context.Context, actorID, targetID, role, reason string, expectedVersion int64) (models.Principal, error)
	Deny(ctx context.Context, actorID, targetID, reason string, expectedVersion int64) (models.Principal, error)
	AuditLog(ctx context.Context, actorID string, f audit.QueryFilter) ([]models.AuditRecord, error)
	SyncClaims(ctx context.Context, actorID string) (principaladmin.SyncReport, error)
	MigrateRoles(ctx context.Context, actorID string, dryRun bool) (principaladmin.MigrationReport, error)
}

type decider interface {
	Decide(ctx context.Context, req authz.Request) (authz.Decision, error)
}

type backend struct {
	Admin    adminAPI
	Resolver decider
	close    func(ctx context.Context) error
}

// ctl carries state shared by every subcommand.
type ctl struct {
	conn    connection
	actor   string
	retries int
	out     io.Writer

	// open is conn.open outside tests.
	open func(ctx context.Context) (*backend, error)
}

func newRootCmd(c *ctl) *cobra.Command {
	if c.open == nil {
		c.open = c.conn.open
	}
	root := &cobra.Command{
		Use:           "portalctl",
		Short:         "Administer portal principals, roles and audit records",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	c.conn.AddFlags(root.PersistentFlags())
	root.PersistentFlags().StringVar(&c.actor, "actor", "", "Principal ID of the operator performing the action")
	root.PersistentFlags().IntVar(&c.retries, "retries", 3, "Retries when a mutation loses a concurrent-write race")

	root.AddCommand(
		c.bootstrapCmd(),
		c.showCmd(),
		c.pendingCmd(),
		c.setRolesCmd(),
		c.setStatusCmd(),
		c.setOverridesCmd(),
		c.setMembershipsCmd(),
		c.approveCmd(),
		c.denyCmd(),
		c.auditCmd(),
		c.decideCmd(),
		c.syncClaimsCmd(),
		c.migrateRolesCmd(),
	)
	return root
}

// with opens the backend, runs fn and closes the backend.
func (c *ctl) with(cmd *cobra.Command, needActor bool, fn func(ctx context.Context, b *backend) error) error {
	if needActor && strings.TrimSpace(c.actor) == "" {
		return fmt.Errorf("--actor is required")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if b.close != nil {
			_ = b.close(context.Background())
		}
	}()
	return fn(ctx, b)
}

func (c *ctl) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describe turns a tagged error into "kind: reason".
func describe(err error) error {
	var e *authz.Error
	if errors.As(err, &e) {
		return fmt.Errorf("%s: %s", e.Kind, authz.ReasonOf(err))
	}
	return err
}

func main() {
	c := &ctl{out: os.Stdout}
	if err := newRootCmd(c).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "portalctl:", describe(err))
		os.Exit(1)
	}
}

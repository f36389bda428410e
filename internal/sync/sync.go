// Package sync reconciles registry team permissions against the desired
// repository list, one organization at a time.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/opsglue/permsync/internal/quay"
	"github.com/opsglue/permsync/internal/repolist"
	"github.com/opsglue/permsync/internal/zendesk"
)

// Options controls a reconciliation run
type Options struct {
	DryRun    bool   // compute and log actions without mutating calls
	Remove    bool   // remove listed repositories instead of adding them
	OrgFilter string // when set, only the organization with this team code is processed
}

// Engine orchestrates the reconciliation process
type Engine struct {
	directory zendesk.Client
	registry  quay.Client
	repos     repolist.Set
	logger    *slog.Logger
	opts      Options
}

// NewEngine creates a new reconciliation engine
func NewEngine(directory zendesk.Client, registry quay.Client, repos repolist.Set, logger *slog.Logger, opts Options) *Engine {
	return &Engine{
		directory: directory,
		registry:  registry,
		repos:     repos,
		logger:    logger,
		opts:      opts,
	}
}

// Run executes one complete reconciliation pass. A directory listing failure
// is fatal; everything after that is recovered per organization or per
// repository and reflected in the returned summary.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	e.logger.Info("starting reconciliation",
		"repositories", len(e.repos),
		"mode", e.mode(),
		"dry_run", e.opts.DryRun)

	orgs, err := e.directory.ListActiveOrganizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}

	summary := &Summary{}
	for _, org := range orgs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if e.opts.OrgFilter != "" && org.TeamID != e.opts.OrgFilter {
			e.logger.Debug("organization does not match filter", "org", org.Name, "team_id", org.TeamID)
			continue
		}
		e.reconcileOrganization(ctx, org, summary)
	}

	return summary, nil
}

// reconcileOrganization closes the gap between the desired repository set and
// one team's current permissions.
func (e *Engine) reconcileOrganization(ctx context.Context, org zendesk.Organization, summary *Summary) {
	logger := e.logger.With("org", org.Name)

	if org.TeamIDError != nil {
		logger.Warn("skipping organization with malformed team id", "error", org.TeamIDError)
		summary.Skipped++
		return
	}
	if org.TeamID == "" {
		logger.Warn("skipping organization without team id")
		summary.Skipped++
		return
	}
	logger = logger.With("team_id", org.TeamID)

	current, err := e.registry.TeamPermissions(ctx, org.TeamID)
	if err != nil {
		switch {
		case errors.Is(err, quay.ErrTeamNotFound):
			logger.Warn("skipping organization, team not found in registry")
		case errors.Is(err, quay.ErrPermissionDenied):
			logger.Warn("skipping organization, permission denied for team", "error", err)
		default:
			logger.Error("skipping organization, failed to fetch team permissions", "error", err)
		}
		summary.Skipped++
		return
	}

	if e.opts.OrgFilter != "" {
		e.logCurrentPermissions(logger, current)
	}

	plan := e.buildPlan(org.TeamID, current)
	if plan.Empty() {
		logger.Info("already in desired state", "in_sync", plan.InSync)
	} else {
		logger.Info("reconciliation plan",
			"grant", len(plan.Grant),
			"revoke", len(plan.Revoke),
			"in_sync", plan.InSync)
	}

	if e.opts.DryRun {
		e.logPlanDetails(logger, plan)
		summary.Granted += len(plan.Grant)
		summary.Revoked += len(plan.Revoke)
	} else {
		e.applyPlan(ctx, logger, plan, summary)
	}

	summary.InSync += plan.InSync
	summary.Organizations++
}

// buildPlan computes the set difference between the desired repository list
// and the team's current permissions. In add mode, desired repositories not
// yet granted become grants; in remove mode, desired repositories currently
// granted become revocations. Repositories already in the desired state count
// as in-sync.
func (e *Engine) buildPlan(teamID string, current map[string]string) *Plan {
	plan := &Plan{TeamID: teamID}

	for _, name := range e.repos.Names() {
		_, has := current[name]
		switch {
		case e.opts.Remove && has:
			plan.Revoke = append(plan.Revoke, Action{TeamID: teamID, Repository: name})
		case !e.opts.Remove && !has:
			plan.Grant = append(plan.Grant, Action{TeamID: teamID, Repository: name})
		default:
			plan.InSync++
		}
	}

	return plan
}

// applyPlan issues the permission calls one at a time. A failed call is
// logged and counted; the remaining repositories are still processed.
func (e *Engine) applyPlan(ctx context.Context, logger *slog.Logger, plan *Plan, summary *Summary) {
	for _, action := range plan.Grant {
		logger.Info("granting permission", "repository", action.Repository)
		if err := e.registry.SetPermission(ctx, action.TeamID, action.Repository, true); err != nil {
			logger.Error("failed to grant permission", "repository", action.Repository, "error", err)
			summary.Failed++
			continue
		}
		summary.Granted++
	}

	for _, action := range plan.Revoke {
		logger.Info("revoking permission", "repository", action.Repository)
		if err := e.registry.SetPermission(ctx, action.TeamID, action.Repository, false); err != nil {
			logger.Error("failed to revoke permission", "repository", action.Repository, "error", err)
			summary.Failed++
			continue
		}
		summary.Revoked++
	}
}

// logPlanDetails logs every intended action for dry-run
func (e *Engine) logPlanDetails(logger *slog.Logger, plan *Plan) {
	for _, action := range plan.Grant {
		logger.Info("[dry-run] would grant", "repository", action.Repository)
	}
	for _, action := range plan.Revoke {
		logger.Info("[dry-run] would revoke", "repository", action.Repository)
	}
}

// logCurrentPermissions lists the team's current repositories for single-org
// runs, marking membership in the desired list.
func (e *Engine) logCurrentPermissions(logger *slog.Logger, current map[string]string) {
	names := make([]string, 0, len(current))
	for name := range current {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		logger.Debug("current permission",
			"repository", name,
			"role", current[name],
			"in_target_list", e.repos.Contains(name))
	}
}

// mode returns a log-friendly name for the run mode
func (e *Engine) mode() string {
	if e.opts.Remove {
		return "remove"
	}
	return "add"
}

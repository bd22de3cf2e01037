package permission

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/miniapp/internal/infrastructure/logging"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/miniapp/internal/shared/types"
	"github.com/GriffinCanCode/miniapp/internal/storage"
)

// Reconciliation outcomes recorded in metrics
const (
	OutcomeReady           = "ready"
	OutcomeConsentRequired = "consent_required"
	OutcomeUnavailable     = "unavailable"
)

// maxDescription bounds stored descriptions, in runes, after sanitising
const maxDescription = 512

// Decision is one host or user answer for a permission
type Decision struct {
	Type        types.PermissionType `json:"name"`
	Status      types.GrantStatus    `json:"status"`
	Description string               `json:"description,omitempty"`
}

// Options configures an Engine
type Options struct {
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

// Engine is the permission reconciliation engine
type Engine struct {
	store     *storage.Store
	sanitizer *bluemonday.Policy
	logger    *zap.Logger
	metrics   *monitoring.Metrics
}

// New creates an Engine over the grant store
func New(store *storage.Store, opts Options) *Engine {
	return &Engine{
		store:     store,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logging.OrNop(opts.Logger).Named("permission"),
		metrics:   opts.Metrics,
	}
}

// Verify checks manifest.RequiredPermissions against the stored grants.
// On success grants outside the manifest's permission set are pruned.
// A required permission outside the taxonomy can never be granted, so it
// fails with Unavailable instead of asking for consent.
func (e *Engine) Verify(ctx context.Context, identity types.Identity, manifest *types.Manifest) error {
	if err := identity.Validate(); err != nil {
		return err
	}
	if manifest == nil {
		return types.NewError(types.KindMetaDataFailure, "manifest is missing")
	}

	var unknown []types.PermissionType
	for _, required := range manifest.Required() {
		if !required.Known() {
			unknown = append(unknown, required)
		}
	}
	if len(unknown) > 0 {
		e.metrics.RecordReconciliation(OutcomeUnavailable)
		e.logger.Warn("required permissions not available on this host", logging.Identity(identity), zap.Any("permissions", unknown))
		failure := types.NewError(types.KindUnavailable, "required permissions not available: "+joinTypes(unknown))
		failure.Missing = unknown
		return failure
	}

	var missing []types.PermissionType
	_, err := e.store.UpdateGrants(ctx, identity.AppID, func(grants []types.Grant) ([]types.Grant, error) {
		byType := index(grants)
		for _, required := range manifest.Required() {
			if g, ok := byType[required]; !ok || g.Status != types.GrantAllowed {
				missing = append(missing, required)
			}
		}
		if len(missing) > 0 {
			return grants, nil
		}
		kept := grants[:0:0]
		for _, g := range grants {
			if manifest.Declares(g.Type) {
				kept = append(kept, g)
			}
		}
		if pruned := len(grants) - len(kept); pruned > 0 {
			e.logger.Debug("pruned stale grants", logging.Identity(identity), zap.Int("count", pruned))
		}
		return kept, nil
	})
	if err != nil {
		return fmt.Errorf("reconcile grants: %w", err)
	}

	if len(missing) > 0 {
		e.metrics.RecordReconciliation(OutcomeConsentRequired)
		e.logger.Info("consent required", logging.Identity(identity), zap.Any("missing", missing))
		failure := types.NewError(types.KindMetaDataFailure, "required permissions not granted: "+joinTypes(missing))
		failure.Missing = missing
		return failure
	}
	e.metrics.RecordReconciliation(OutcomeReady)
	return nil
}

// Record stores host decisions. Decisions for permissions the manifest does
// not declare, or that are not in the taxonomy, are stored as unavailable.
func (e *Engine) Record(ctx context.Context, appID string, manifest *types.Manifest, decisions []Decision) ([]types.Grant, error) {
	if err := types.ValidateAppID(appID); err != nil {
		return nil, err
	}
	for _, d := range decisions {
		if d.Type == "" {
			return nil, types.NewError(types.KindUnavailable, "permission name is empty")
		}
		if !d.Status.Valid() {
			return nil, types.NewError(types.KindUnavailable, fmt.Sprintf("invalid status %q for %s", d.Status, d.Type))
		}
	}

	return e.store.UpdateGrants(ctx, appID, func(grants []types.Grant) ([]types.Grant, error) {
		byType := index(grants)
		for _, d := range decisions {
			status := d.Status
			if !d.Type.Known() || manifest == nil || !manifest.Declares(d.Type) {
				status = types.GrantUnavailable
			}
			next := types.Grant{Type: d.Type, Status: status, Description: e.sanitize(d.Description)}
			if prev, ok := byType[d.Type]; ok && prev.Status == next.Status && prev.Description == next.Description {
				next.UpdatedAt = prev.UpdatedAt
			}
			byType[d.Type] = next
		}
		return sorted(byType), nil
	})
}

// Status returns the effective status of one permission. The bool is false
// when no decision has been recorded for a declared, known permission.
func (e *Engine) Status(ctx context.Context, appID string, manifest *types.Manifest, p types.PermissionType) (types.GrantStatus, bool, error) {
	if !p.Known() || manifest == nil || !manifest.Declares(p) {
		return types.GrantUnavailable, true, nil
	}
	grants, err := e.store.Grants(ctx, appID)
	if err != nil {
		return "", false, err
	}
	for _, g := range grants {
		if g.Type == p {
			return g.Status, true, nil
		}
	}
	return "", false, nil
}

// Pending lists declared permissions awaiting a decision, plus required
// permissions whose recorded decision is not allowed. Reasons are
// sanitised for display.
func (e *Engine) Pending(ctx context.Context, appID string, manifest *types.Manifest) ([]types.PermissionRequest, error) {
	if manifest == nil {
		return nil, nil
	}
	grants, err := e.store.Grants(ctx, appID)
	if err != nil {
		return nil, err
	}
	byType := index(grants)
	required := make(map[types.PermissionType]bool)
	for _, p := range manifest.Required() {
		required[p] = true
	}

	var pending []types.PermissionRequest
	for _, req := range manifest.Requests() {
		if !req.Type.Known() {
			continue
		}
		g, ok := byType[req.Type]
		if ok && (!required[req.Type] || g.Status == types.GrantAllowed) {
			continue
		}
		pending = append(pending, types.PermissionRequest{Type: req.Type, Reason: e.sanitize(req.Reason)})
	}
	return pending, nil
}

// Grants returns the stored grants of appID
func (e *Engine) Grants(ctx context.Context, appID string) ([]types.Grant, error) {
	if err := types.ValidateAppID(appID); err != nil {
		return nil, err
	}
	return e.store.Grants(ctx, appID)
}

func (e *Engine) sanitize(s string) string {
	clean := strings.TrimSpace(e.sanitizer.Sanitize(s))
	if runes := []rune(clean); len(runes) > maxDescription {
		clean = string(runes[:maxDescription])
	}
	return clean
}

func index(grants []types.Grant) map[types.PermissionType]types.Grant {
	m := make(map[types.PermissionType]types.Grant, len(grants))
	for _, g := range grants {
		m[g.Type] = g
	}
	return m
}

func sorted(m map[types.PermissionType]types.Grant) []types.Grant {
	out := make([]types.Grant, 0, len(m))
	for _, g := range m {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

func joinTypes(ps []types.PermissionType) string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

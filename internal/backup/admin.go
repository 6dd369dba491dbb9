// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

/*
admin.go - Configuration Mutations

Admin sits between the REST handlers and the catalog for every
configuration write: it enforces the semantic rules the store cannot
express (closed db_type set, referenced entities existing, schedule
encryption requiring the master key), encrypts inbound secrets into their
at-rest blob, computes next_run_at on schedule transitions, and appends an
audit event for every mutation. Reads go straight to the store.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"strings"
	"time"

	"github.com/tomtom215/custodia/internal/config"
	"github.com/tomtom215/custodia/internal/logging"
	"github.com/tomtom215/custodia/internal/models"
)

// AdminCatalog is the persistence surface configuration mutations run
// against. *store.Store implements it.
type AdminCatalog interface {
	CreateTarget(ctx context.Context, t *models.Target, secretsBlob string) error
	GetTarget(ctx context.Context, id string) (*models.Target, error)
	UpdateTarget(ctx context.Context, t *models.Target, secretsProvided bool, secretsBlob string) error
	DeleteTarget(ctx context.Context, id string) error

	CreateDestination(ctx context.Context, d *models.Destination, secretsBlob string) error
	GetDestination(ctx context.Context, id string) (*models.Destination, error)
	UpdateDestination(ctx context.Context, d *models.Destination, secretsProvided bool, secretsBlob string) error
	DeleteDestination(ctx context.Context, id string) error

	CreateSchedule(ctx context.Context, sch *models.Schedule) error
	GetSchedule(ctx context.Context, id string) (*models.Schedule, error)
	UpdateSchedule(ctx context.Context, sch *models.Schedule) error
	DeleteSchedule(ctx context.Context, id string) error

	AppendAuditEvent(ctx context.Context, ev *models.AuditEvent) error
}

// Actor identifies the authenticated user behind a mutation, for the audit
// trail. The zero value means an unauthenticated or system caller.
type Actor struct {
	UserID   string
	UserName string
}

// Admin executes configuration mutations with validation, secret
// encryption, and audit bookkeeping.
type Admin struct {
	catalog AdminCatalog
	codec   *config.SecretsCodec
}

// NewAdmin wires the mutation layer over a catalog and secrets codec.
func NewAdmin(catalog AdminCatalog, codec *config.SecretsCodec) *Admin {
	return &Admin{catalog: catalog, codec: codec}
}

// CreateTarget validates and persists a new backup target.
func (a *Admin) CreateTarget(ctx context.Context, req models.TargetCreateRequest, actor Actor) (*models.Target, error) {
	dbType := models.NormalizeDatabaseType(req.DBType)
	if !dbType.Valid() {
		return nil, models.ErrValidation.New("unsupported database type: %s", req.DBType)
	}

	blob, err := a.encodeSecrets(req.Secrets)
	if err != nil {
		return nil, err
	}

	target := &models.Target{
		Name:     strings.TrimSpace(req.Name),
		DBType:   dbType,
		Config:   req.Config,
		IsActive: true,
	}
	if err := a.catalog.CreateTarget(ctx, target, blob); err != nil {
		return nil, err
	}

	a.auditMutation(ctx, models.OpTargetCreate, actor, &models.AuditEvent{
		TargetID: target.ID, TargetName: target.Name,
		Details: map[string]any{"db_type": string(target.DBType)},
	})
	return target, nil
}

// UpdateTarget applies a partial mutation to a target. A non-nil empty
// secrets map clears the stored blob.
func (a *Admin) UpdateTarget(ctx context.Context, id string, req models.TargetUpdateRequest, actor Actor) (*models.Target, error) {
	target, err := a.catalog.GetTarget(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		target.Name = strings.TrimSpace(*req.Name)
	}
	if req.DBType != nil {
		dbType := models.NormalizeDatabaseType(*req.DBType)
		if !dbType.Valid() {
			return nil, models.ErrValidation.New("unsupported database type: %s", *req.DBType)
		}
		target.DBType = dbType
	}
	if req.Config != nil {
		target.Config = *req.Config
	}
	if req.IsActive != nil {
		target.IsActive = *req.IsActive
	}

	secretsProvided := req.Secrets != nil
	blob := ""
	if secretsProvided {
		if blob, err = a.encodeSecrets(req.Secrets); err != nil {
			return nil, err
		}
	}

	if err := a.catalog.UpdateTarget(ctx, target, secretsProvided, blob); err != nil {
		return nil, err
	}

	a.auditMutation(ctx, models.OpTargetUpdate, actor, &models.AuditEvent{
		TargetID: target.ID, TargetName: target.Name,
	})
	return a.catalog.GetTarget(ctx, id)
}

// DeleteTarget removes a target, cascading its schedules and runs.
func (a *Admin) DeleteTarget(ctx context.Context, id string, actor Actor) error {
	target, err := a.catalog.GetTarget(ctx, id)
	if err != nil {
		return err
	}
	if err := a.catalog.DeleteTarget(ctx, id); err != nil {
		return err
	}
	a.auditMutation(ctx, models.OpTargetDelete, actor, &models.AuditEvent{
		TargetID: target.ID, TargetName: target.Name,
	})
	return nil
}

// CreateDestination validates and persists a new destination.
func (a *Admin) CreateDestination(ctx context.Context, req models.DestinationCreateRequest, actor Actor) (*models.Destination, error) {
	destType := models.DestinationType(strings.ToLower(strings.TrimSpace(req.Type)))
	if !destType.Valid() {
		return nil, models.ErrValidation.New("unsupported destination type: %s", req.Type)
	}
	if err := validateDestinationRequirements(destType, req.Config, req.Secrets); err != nil {
		return nil, err
	}

	blob, err := a.encodeSecrets(req.Secrets)
	if err != nil {
		return nil, err
	}

	dest := &models.Destination{
		Name:     strings.TrimSpace(req.Name),
		Type:     destType,
		Config:   req.Config,
		IsActive: true,
	}
	if err := a.catalog.CreateDestination(ctx, dest, blob); err != nil {
		return nil, err
	}

	a.auditMutation(ctx, models.OpDestinationCreate, actor, &models.AuditEvent{
		DestinationID: dest.ID, DestinationName: dest.Name,
		Details: map[string]any{"destination_type": string(dest.Type)},
	})
	return dest, nil
}

// UpdateDestination applies a partial mutation to a destination.
func (a *Admin) UpdateDestination(ctx context.Context, id string, req models.DestinationUpdateRequest, actor Actor) (*models.Destination, error) {
	dest, err := a.catalog.GetDestination(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		dest.Name = strings.TrimSpace(*req.Name)
	}
	if req.Type != nil {
		destType := models.DestinationType(strings.ToLower(strings.TrimSpace(*req.Type)))
		if !destType.Valid() {
			return nil, models.ErrValidation.New("unsupported destination type: %s", *req.Type)
		}
		dest.Type = destType
	}
	if req.Config != nil {
		dest.Config = *req.Config
	}
	if req.IsActive != nil {
		dest.IsActive = *req.IsActive
	}

	secretsProvided := req.Secrets != nil
	blob := ""
	if secretsProvided {
		if blob, err = a.encodeSecrets(req.Secrets); err != nil {
			return nil, err
		}
	}

	if err := a.catalog.UpdateDestination(ctx, dest, secretsProvided, blob); err != nil {
		return nil, err
	}

	a.auditMutation(ctx, models.OpDestinationUpdate, actor, &models.AuditEvent{
		DestinationID: dest.ID, DestinationName: dest.Name,
	})
	return a.catalog.GetDestination(ctx, id)
}

// DeleteDestination removes a destination. The built-in local destination is
// protected by the store.
func (a *Admin) DeleteDestination(ctx context.Context, id string, actor Actor) error {
	dest, err := a.catalog.GetDestination(ctx, id)
	if err != nil {
		return err
	}
	if err := a.catalog.DeleteDestination(ctx, id); err != nil {
		return err
	}
	a.auditMutation(ctx, models.OpDestinationDelete, actor, &models.AuditEvent{
		DestinationID: dest.ID, DestinationName: dest.Name,
	})
	return nil
}

// CreateSchedule validates references, seals the encryption password, and
// persists a new schedule with its initial next_run_at.
func (a *Admin) CreateSchedule(ctx context.Context, req models.ScheduleCreateRequest, actor Actor) (*models.Schedule, error) {
	if _, err := a.catalog.GetTarget(ctx, req.TargetID); err != nil {
		return nil, err
	}
	for _, destID := range req.DestinationIDs {
		if _, err := a.catalog.GetDestination(ctx, destID); err != nil {
			return nil, err
		}
	}

	retention, err := a.sealRetention(req.Retention, nil)
	if err != nil {
		return nil, err
	}

	sched := &models.Schedule{
		Name:            strings.TrimSpace(req.Name),
		TargetID:        req.TargetID,
		DestinationIDs:  req.DestinationIDs,
		Enabled:         req.Enabled,
		IntervalSeconds: req.IntervalSeconds,
		Retention:       retention,
	}
	next, err := InitialNextRunAt(time.Now().UTC(), sched.Enabled, sched.IntervalSeconds, sched.Retention)
	if err != nil {
		return nil, err
	}
	sched.NextRunAt = next

	if err := a.catalog.CreateSchedule(ctx, sched); err != nil {
		return nil, err
	}

	a.auditMutation(ctx, models.OpScheduleCreate, actor, &models.AuditEvent{
		ScheduleID: sched.ID, ScheduleName: sched.Name,
		TargetID: sched.TargetID,
		Details:  map[string]any{"interval_seconds": sched.IntervalSeconds, "enabled": sched.Enabled},
	})
	return a.catalog.GetSchedule(ctx, sched.ID)
}

// UpdateSchedule applies a partial mutation. Disabling clears next_run_at;
// enabling, or changing the interval or anchor while enabled, recomputes it.
func (a *Admin) UpdateSchedule(ctx context.Context, id string, req models.ScheduleUpdateRequest, actor Actor) (*models.Schedule, error) {
	sched, err := a.catalog.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	wasEnabled := sched.Enabled

	if req.Name != nil {
		sched.Name = strings.TrimSpace(*req.Name)
	}
	if req.TargetID != nil {
		if _, err := a.catalog.GetTarget(ctx, *req.TargetID); err != nil {
			return nil, err
		}
		sched.TargetID = *req.TargetID
	}
	if req.DestinationIDs != nil {
		for _, destID := range req.DestinationIDs {
			if _, err := a.catalog.GetDestination(ctx, destID); err != nil {
				return nil, err
			}
		}
		sched.DestinationIDs = req.DestinationIDs
	}
	timingChanged := false
	if req.IntervalSeconds != nil && *req.IntervalSeconds != sched.IntervalSeconds {
		sched.IntervalSeconds = *req.IntervalSeconds
		timingChanged = true
	}
	if req.Retention != nil {
		if req.Retention.RunAtTime != sched.Retention.RunAtTime {
			timingChanged = true
		}
		if sched.Retention, err = a.sealRetention(*req.Retention, &sched.Retention); err != nil {
			return nil, err
		}
	}
	if req.Enabled != nil {
		sched.Enabled = *req.Enabled
	}

	switch {
	case !sched.Enabled:
		sched.NextRunAt = nil
	case !wasEnabled || timingChanged || sched.NextRunAt == nil:
		next, err := InitialNextRunAt(time.Now().UTC(), true, sched.IntervalSeconds, sched.Retention)
		if err != nil {
			return nil, err
		}
		sched.NextRunAt = next
	}

	if err := a.catalog.UpdateSchedule(ctx, sched); err != nil {
		return nil, err
	}

	a.auditMutation(ctx, models.OpScheduleUpdate, actor, &models.AuditEvent{
		ScheduleID: sched.ID, ScheduleName: sched.Name,
		TargetID: sched.TargetID,
	})
	return a.catalog.GetSchedule(ctx, id)
}

// DeleteSchedule removes a schedule and its runs.
func (a *Admin) DeleteSchedule(ctx context.Context, id string, actor Actor) error {
	sched, err := a.catalog.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	if err := a.catalog.DeleteSchedule(ctx, id); err != nil {
		return err
	}
	a.auditMutation(ctx, models.OpScheduleDelete, actor, &models.AuditEvent{
		ScheduleID: sched.ID, ScheduleName: sched.Name,
		TargetID: sched.TargetID,
	})
	return nil
}

// encodeSecrets turns inbound secret material into its at-rest blob. The
// codec rejects non-empty secrets with EncryptionNotConfigured when no
// master key is set, so credentials never persist in plaintext.
func (a *Admin) encodeSecrets(secrets models.Secrets) (string, error) {
	if len(secrets) == 0 {
		return "", nil
	}
	return a.codec.EncodeSecrets(secrets)
}

// sealRetention encrypts an inbound plaintext encryption password into the
// stored policy and never lets plaintext persist. When a mutation carries no
// new password, the previously stored token survives.
func (a *Admin) sealRetention(policy models.RetentionPolicy, previous *models.RetentionPolicy) (models.RetentionPolicy, error) {
	password := strings.TrimSpace(policy.EncryptPassword)
	policy.EncryptPassword = ""

	switch {
	case password != "":
		token, err := a.codec.EncryptValue(password)
		if err != nil {
			return models.RetentionPolicy{}, err
		}
		policy.EncryptPasswordEncrypted = token
	case previous != nil && previous.EncryptPasswordEncrypted != "":
		policy.EncryptPasswordEncrypted = previous.EncryptPasswordEncrypted
	}

	if policy.Encrypt && policy.EncryptPasswordEncrypted == "" {
		return models.RetentionPolicy{}, models.ErrValidation.New(
			"retention.encrypt requires an encryption password")
	}
	return policy, nil
}

// auditMutation appends an instantaneous configuration-change event. Audit
// failures are logged, never propagated; the mutation itself succeeded.
func (a *Admin) auditMutation(ctx context.Context, operation string, actor Actor, ev *models.AuditEvent) {
	now := time.Now().UTC()
	ev.Operation = operation
	ev.Trigger = models.TriggerManual
	ev.Status = models.StatusSuccess
	ev.StartedAt = now
	ev.FinishedAt = &now
	ev.UserID = actor.UserID
	ev.UserName = actor.UserName
	if err := a.catalog.AppendAuditEvent(ctx, ev); err != nil {
		logging.Warn().Err(err).Str("operation", operation).Msg("Failed to append configuration audit event")
	}
}

// validateDestinationRequirements enforces the per-type credential rules at
// creation time: SFTP needs a password or private key, Drive needs a
// service-account credential and a folder id.
func validateDestinationRequirements(destType models.DestinationType, cfg models.DestinationConfig, secrets models.Secrets) error {
	switch destType {
	case models.DestinationSFTP:
		if cfg.Host == "" {
			return models.ErrValidation.New("sftp destination requires config.host")
		}
		if secrets["password"] == "" && secrets["private_key"] == "" {
			return models.ErrValidation.New("sftp destination requires a password or private_key secret")
		}
	case models.DestinationGoogleDrive:
		if cfg.FolderID == "" {
			return models.ErrValidation.New("google_drive destination requires config.folder_id")
		}
		if secrets["service_account_json"] == "" {
			return models.ErrValidation.New("google_drive destination requires a service_account_json secret")
		}
	case models.DestinationLocal:
		if cfg.Path == "" {
			return models.ErrValidation.New("local destination requires config.path")
		}
	}
	return nil
}

// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/tomtom215/custodia/internal/models"
)

const driveFolderMIME = "application/vnd.google-apps.folder"

// maxParentHops bounds the parent-chain walk during delete validation so a
// cyclic or pathologically deep folder graph cannot spin the sweep forever.
const maxParentHops = 50

// driveIDPattern is the shape of a Drive file id. Path-style ids from the
// other providers fail this check immediately.
var driveIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Drive stores backup artifacts in Google Drive under a configured root
// folder. The layout is two levels deep: one subfolder per target (created
// on demand), artifacts inside it. Backup ids are opaque Drive file ids, so
// prefix semantics are implemented by resolving the subfolder named by the
// prefix's directory segment and filtering its children by name.
type Drive struct {
	svc    *drive.Service
	rootID string
}

// NewDrive creates a Drive provider authenticated with a service account.
func NewDrive(ctx context.Context, serviceAccountJSON, folderID string) (*Drive, error) {
	if strings.TrimSpace(serviceAccountJSON) == "" {
		return nil, models.ErrValidation.New("google drive destination requires a service_account_json secret")
	}
	if folderID == "" {
		return nil, models.ErrValidation.New("google drive destination requires a folder_id")
	}

	// Parse the key up front: drive.NewService defers credential parsing
	// until the first request, which would surface a malformed key as an
	// opaque provider failure mid-run instead of at configuration time.
	creds, err := google.CredentialsFromJSON(ctx, []byte(serviceAccountJSON), drive.DriveScope)
	if err != nil {
		return nil, models.ErrValidation.New("invalid google service account key: %v", err)
	}

	svc, err := drive.NewService(ctx,
		option.WithCredentials(creds),
	)
	if err != nil {
		return nil, models.ErrProviderFailure.New("failed to initialize google drive client: %v", err)
	}

	return &Drive{svc: svc, rootID: folderID}, nil
}

// List returns artifacts matching prefix, newest first. A prefix with a
// directory segment ("pg_main/sched-1-") resolves to children of that
// subfolder; without one it matches files placed directly under the root.
// A subfolder that does not exist yet is an empty listing.
func (d *Drive) List(ctx context.Context, prefix string) ([]models.StoredBackup, error) {
	parentID := d.rootID
	namePrefix := prefix

	if sub, rest, ok := strings.Cut(prefix, "/"); ok {
		folderID, err := d.findSubfolder(ctx, sub)
		if err != nil {
			return nil, err
		}
		if folderID == "" {
			return []models.StoredBackup{}, nil
		}
		parentID = folderID
		namePrefix = rest
	}

	query := "'" + escapeDriveQuery(parentID) + "' in parents and trashed = false and mimeType != '" + driveFolderMIME + "'"

	backups := []models.StoredBackup{}
	pageToken := ""
	for {
		call := d.svc.Files.List().
			Q(query).
			Fields("nextPageToken, files(id, name, createdTime, size)").
			PageSize(1000).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		res, err := call.Do()
		if err != nil {
			return nil, models.ErrProviderFailure.New("failed to list google drive backups: %v", err)
		}

		for _, f := range res.Files {
			if namePrefix != "" && !strings.HasPrefix(f.Name, namePrefix) {
				continue
			}
			backups = append(backups, models.StoredBackup{
				ID:        f.Id,
				Name:      f.Name,
				CreatedAt: parseDriveTime(f.CreatedTime),
				Size:      f.Size,
			})
		}

		pageToken = res.NextPageToken
		if pageToken == "" {
			break
		}
	}

	sortNewestFirst(backups)
	return backups, nil
}

// Upload places localPath into the subfolder named by destName's directory
// segment, creating the subfolder when missing. A destName without a segment
// goes directly under the root.
func (d *Drive) Upload(ctx context.Context, localPath, destName string) (*models.StoredBackup, error) {
	if err := validateDestName(destName); err != nil {
		return nil, err
	}

	parentID := d.rootID
	name := destName
	if sub, rest, ok := strings.Cut(destName, "/"); ok {
		folderID, err := d.ensureSubfolder(ctx, sub)
		if err != nil {
			return nil, err
		}
		parentID = folderID
		name = rest
	}

	src, err := os.Open(localPath) //nolint:gosec // G304: pipeline-owned temp file
	if err != nil {
		return nil, models.ErrProviderFailure.New("failed to open backup artifact: %v", err)
	}
	defer src.Close() //nolint:errcheck // Best effort cleanup

	meta := &drive.File{Name: name, Parents: []string{parentID}}
	created, err := d.svc.Files.Create(meta).
		Media(src).
		Fields("id, name, createdTime, size").
		Context(ctx).
		Do()
	if err != nil {
		return nil, models.ErrProviderFailure.New("failed to upload %s to google drive: %v", name, err)
	}

	return &models.StoredBackup{
		ID:        created.Id,
		Name:      created.Name,
		CreatedAt: parseDriveTime(created.CreatedTime),
		Size:      created.Size,
	}, nil
}

// Download fetches the artifact identified by backupID into destPath.
func (d *Drive) Download(ctx context.Context, backupID, destPath string) error {
	if err := d.ValidateBackupID(backupID); err != nil {
		return err
	}

	res, err := d.svc.Files.Get(backupID).Context(ctx).Download()
	if err != nil {
		if isDriveNotFound(err) {
			return models.ErrNotFound.New("backup not found: %s", backupID)
		}
		return models.ErrProviderFailure.New("failed to download google drive backup: %v", err)
	}
	defer res.Body.Close() //nolint:errcheck // Best effort cleanup

	dst, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640) //nolint:gosec // G304: pipeline-owned temp file
	if err != nil {
		return models.ErrProviderFailure.New("failed to create download target: %v", err)
	}

	if _, err := io.Copy(dst, res.Body); err != nil {
		dst.Close() //nolint:errcheck // Best effort cleanup on error
		return models.ErrProviderFailure.New("failed to download %s: %v", backupID, err)
	}
	if err := dst.Close(); err != nil {
		return models.ErrProviderFailure.New("failed to finalize download: %v", err)
	}
	return nil
}

// Delete removes the given artifacts. Each file's parent chain must reach
// the configured root folder; files elsewhere in the account are refused
// even when the id is valid.
func (d *Drive) Delete(ctx context.Context, backups []models.StoredBackup) error {
	for _, b := range backups {
		if err := d.ValidateBackupID(b.ID); err != nil {
			return err
		}
		if err := d.validateUnderRoot(ctx, b.ID); err != nil {
			return err
		}
		if err := d.svc.Files.Delete(b.ID).Context(ctx).Do(); err != nil {
			if isDriveNotFound(err) {
				continue
			}
			return models.ErrProviderFailure.New("failed to delete backup %s: %v", b.ID, err)
		}
	}
	return nil
}

// validateUnderRoot walks the file's parent chain upward until it reaches
// the configured root folder or runs out of hops.
func (d *Drive) validateUnderRoot(ctx context.Context, fileID string) error {
	current := fileID
	for hop := 0; hop < maxParentHops; hop++ {
		f, err := d.svc.Files.Get(current).Fields("id, parents").Context(ctx).Do()
		if err != nil {
			if isDriveNotFound(err) {
				if hop == 0 {
					return models.ErrNotFound.New("backup not found: %s", fileID)
				}
				// An ancestor vanished mid-walk; the chain cannot
				// reach the root.
				break
			}
			return models.ErrProviderFailure.New("failed to resolve google drive parents: %v", err)
		}
		if len(f.Parents) == 0 {
			break
		}
		for _, p := range f.Parents {
			if p == d.rootID {
				return nil
			}
		}
		current = f.Parents[0]
	}
	return models.ErrValidation.New("backup %s is not inside the configured google drive folder", fileID)
}

// ValidateBackupID checks the id has the opaque Drive file-id shape. Whether
// the file actually lives under the root is verified against the API by the
// operations that mutate state.
func (d *Drive) ValidateBackupID(backupID string) error {
	if backupID == "" {
		return models.ErrValidation.New("backup id is required")
	}
	if len(backupID) > 256 || !driveIDPattern.MatchString(backupID) {
		return models.ErrValidation.New("invalid google drive backup id: %s", backupID)
	}
	return nil
}

// Probe lists a single child of the root folder, proving both the credential
// and the folder id.
func (d *Drive) Probe(ctx context.Context) error {
	_, err := d.svc.Files.List().
		Q("'" + escapeDriveQuery(d.rootID) + "' in parents and trashed = false").
		Fields("files(id)").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return models.ErrProviderFailure.New("google drive folder is not accessible: %v", err)
	}
	return nil
}

// findSubfolder resolves the per-target subfolder by name. Returns "" when
// it does not exist.
func (d *Drive) findSubfolder(ctx context.Context, name string) (string, error) {
	query := "name = '" + escapeDriveQuery(name) + "'" +
		" and '" + escapeDriveQuery(d.rootID) + "' in parents" +
		" and mimeType = '" + driveFolderMIME + "'" +
		" and trashed = false"

	res, err := d.svc.Files.List().
		Q(query).
		Fields("files(id)").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", models.ErrProviderFailure.New("failed to resolve google drive subfolder %s: %v", name, err)
	}
	if len(res.Files) == 0 {
		return "", nil
	}
	return res.Files[0].Id, nil
}

// ensureSubfolder resolves the per-target subfolder, creating it when
// missing.
func (d *Drive) ensureSubfolder(ctx context.Context, name string) (string, error) {
	id, err := d.findSubfolder(ctx, name)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	created, err := d.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: driveFolderMIME,
		Parents:  []string{d.rootID},
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", models.ErrProviderFailure.New("failed to create google drive subfolder %s: %v", name, err)
	}
	return created.Id, nil
}

// escapeDriveQuery escapes a value for interpolation into a Drive query
// string. Backslashes first, then quotes.
func escapeDriveQuery(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `'`, `\'`)
}

// parseDriveTime parses Drive's RFC3339 createdTime; a malformed value
// degrades to the zero time rather than failing a listing.
func parseDriveTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// isDriveNotFound reports whether err is a Drive API 404.
func isDriveNotFound(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusNotFound
	}
	return false
}

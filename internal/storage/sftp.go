// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package storage

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/tomtom215/custodia/internal/models"
)

// sftpConnectTimeout bounds the TCP dial and SSH handshake so an unreachable
// host fails a connection test quickly instead of hanging a pipeline.
const sftpConnectTimeout = 10 * time.Second

// SFTP stores backup artifacts on a remote host under a base path. Every
// operation dials a fresh session and closes it when done; backups are
// infrequent enough that connection reuse buys nothing and a held-open
// session is one more thing to leak.
//
// Backup ids are full remote paths. Delete refuses any id that does not
// resolve under the base path.
type SFTP struct {
	host       string
	port       int
	username   string
	base       string
	password   string
	privateKey string
	passphrase string
}

// NewSFTP creates an SFTP provider from destination config and decrypted
// secrets. Credential problems surface on first use, not at construction.
func NewSFTP(cfg models.DestinationConfig, secrets models.Secrets) *SFTP {
	port := cfg.Port
	if port == 0 {
		port = 22
	}
	return &SFTP{
		host:       cfg.Host,
		port:       port,
		username:   cfg.Username,
		base:       path.Clean(cfg.Path),
		password:   secrets["password"],
		privateKey: secrets["private_key"],
		passphrase: secrets["private_key_passphrase"],
	}
}

// connect dials the remote host and opens an SFTP session. The caller must
// close both returned clients, SFTP first.
func (s *SFTP) connect(ctx context.Context) (*ssh.Client, *sftp.Client, error) {
	auth, err := s.authMethods()
	if err != nil {
		return nil, nil, err
	}

	sshCfg := &ssh.ClientConfig{
		User: s.username,
		Auth: auth,
		// Backup destinations are operator-configured hosts; host key
		// pinning is not part of the destination config.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // G106
		Timeout:         sftpConnectTimeout,
	}

	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))

	dialer := net.Dialer{Timeout: sftpConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, models.ErrProviderFailure.New("failed to reach sftp host %s: %v", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshCfg)
	if err != nil {
		conn.Close() //nolint:errcheck // Best effort cleanup on error
		return nil, nil, models.ErrProviderFailure.New("sftp authentication failed for %s@%s: %v", s.username, addr, err)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close() //nolint:errcheck // Best effort cleanup on error
		return nil, nil, models.ErrProviderFailure.New("failed to open sftp session: %v", err)
	}

	return sshClient, client, nil
}

// authMethods builds the SSH auth chain: private key first when configured,
// password as fallback.
func (s *SFTP) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if strings.TrimSpace(s.privateKey) != "" {
		var signer ssh.Signer
		var err error
		if s.passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(s.privateKey), []byte(s.passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey([]byte(s.privateKey))
		}
		if err != nil {
			return nil, models.ErrValidation.New("invalid sftp private key: %v", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if s.password != "" {
		methods = append(methods, ssh.Password(s.password))
	}

	if len(methods) == 0 {
		return nil, models.ErrValidation.New("sftp destination requires a password or private key")
	}
	return methods, nil
}

// List walks the base path and returns every file whose path relative to the
// base starts with prefix, newest first. A missing base path is an empty
// destination.
func (s *SFTP) List(ctx context.Context, prefix string) ([]models.StoredBackup, error) {
	sshClient, client, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer sshClient.Close() //nolint:errcheck // Best effort cleanup
	defer client.Close()    //nolint:errcheck // Best effort cleanup

	if _, err := client.Stat(s.base); err != nil {
		if os.IsNotExist(err) {
			return []models.StoredBackup{}, nil
		}
		return nil, models.ErrProviderFailure.New("failed to access sftp base path: %v", err)
	}

	backups := []models.StoredBackup{}
	walker := client.Walk(s.base)
	for walker.Step() {
		if err := walker.Err(); err != nil {
			return nil, models.ErrProviderFailure.New("failed to list sftp backups: %v", err)
		}
		info := walker.Stat()
		if info == nil || info.IsDir() {
			continue
		}
		full := walker.Path()
		rel := strings.TrimPrefix(full, s.base+"/")
		if prefix != "" && !strings.HasPrefix(rel, prefix) {
			continue
		}
		backups = append(backups, models.StoredBackup{
			ID:        full,
			Name:      path.Base(full),
			CreatedAt: info.ModTime().UTC(),
			Size:      info.Size(),
		})
	}

	sortNewestFirst(backups)
	return backups, nil
}

// Upload copies localPath to base/destName, creating intermediate remote
// directories one segment at a time.
func (s *SFTP) Upload(ctx context.Context, localPath, destName string) (*models.StoredBackup, error) {
	if err := validateDestName(destName); err != nil {
		return nil, err
	}

	sshClient, client, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer sshClient.Close() //nolint:errcheck // Best effort cleanup
	defer client.Close()    //nolint:errcheck // Best effort cleanup

	remote := path.Join(s.base, destName)
	if err := mkdirWalk(client, path.Dir(remote)); err != nil {
		return nil, err
	}

	src, err := os.Open(localPath) //nolint:gosec // G304: pipeline-owned temp file
	if err != nil {
		return nil, models.ErrProviderFailure.New("failed to open backup artifact: %v", err)
	}
	defer src.Close() //nolint:errcheck // Best effort cleanup

	dst, err := client.Create(remote)
	if err != nil {
		return nil, models.ErrProviderFailure.New("failed to create remote file %s: %v", remote, err)
	}

	size, err := io.Copy(dst, src)
	if err != nil {
		dst.Close() //nolint:errcheck // Best effort cleanup on error
		return nil, models.ErrProviderFailure.New("failed to upload to %s: %v", remote, err)
	}
	if err := dst.Close(); err != nil {
		return nil, models.ErrProviderFailure.New("failed to finalize upload to %s: %v", remote, err)
	}

	return &models.StoredBackup{
		ID:        remote,
		Name:      path.Base(remote),
		CreatedAt: time.Now().UTC(),
		Size:      size,
	}, nil
}

// mkdirWalk creates dir and its ancestors one segment at a time. A failed
// Mkdir is tolerated when the segment turns out to exist, so concurrent
// uploads into the same target directory do not trip each other.
func mkdirWalk(client *sftp.Client, dir string) error {
	if dir == "" || dir == "/" || dir == "." {
		return nil
	}

	cur := ""
	if strings.HasPrefix(dir, "/") {
		cur = "/"
	}
	for _, seg := range strings.Split(strings.Trim(dir, "/"), "/") {
		if seg == "" {
			continue
		}
		cur = path.Join(cur, seg)
		if _, err := client.Stat(cur); err == nil {
			continue
		}
		if err := client.Mkdir(cur); err != nil {
			if _, statErr := client.Stat(cur); statErr == nil {
				continue
			}
			return models.ErrProviderFailure.New("failed to create remote directory %s: %v", cur, err)
		}
	}
	return nil
}

// Download copies the remote artifact identified by backupID to destPath.
func (s *SFTP) Download(ctx context.Context, backupID, destPath string) error {
	if err := s.ValidateBackupID(backupID); err != nil {
		return err
	}

	sshClient, client, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer sshClient.Close() //nolint:errcheck // Best effort cleanup
	defer client.Close()    //nolint:errcheck // Best effort cleanup

	src, err := client.Open(backupID)
	if err != nil {
		if os.IsNotExist(err) {
			return models.ErrNotFound.New("backup not found: %s", backupID)
		}
		return models.ErrProviderFailure.New("failed to open remote backup: %v", err)
	}
	defer src.Close() //nolint:errcheck // Best effort cleanup

	dst, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640) //nolint:gosec // G304: pipeline-owned temp file
	if err != nil {
		return models.ErrProviderFailure.New("failed to create download target: %v", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close() //nolint:errcheck // Best effort cleanup on error
		return models.ErrProviderFailure.New("failed to download %s: %v", backupID, err)
	}
	if err := dst.Close(); err != nil {
		return models.ErrProviderFailure.New("failed to finalize download: %v", err)
	}
	return nil
}

// Delete removes the given artifacts. Every id is re-validated against the
// base path before anything is removed so a stale or forged id cannot reach
// outside the destination root.
func (s *SFTP) Delete(ctx context.Context, backups []models.StoredBackup) error {
	for _, b := range backups {
		if err := s.ValidateBackupID(b.ID); err != nil {
			return err
		}
	}

	sshClient, client, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer sshClient.Close() //nolint:errcheck // Best effort cleanup
	defer client.Close()    //nolint:errcheck // Best effort cleanup

	for _, b := range backups {
		if err := client.Remove(b.ID); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return models.ErrProviderFailure.New("failed to delete backup %s: %v", b.ID, err)
		}
	}
	return nil
}

// ValidateBackupID accepts only absolute remote paths under the base path.
func (s *SFTP) ValidateBackupID(backupID string) error {
	if backupID == "" {
		return models.ErrValidation.New("backup id is required")
	}
	clean := path.Clean(backupID)
	if clean != s.base && !strings.HasPrefix(clean, s.base+"/") {
		return models.ErrValidation.New("backup id %s is outside the destination path %s", backupID, s.base)
	}
	if clean == s.base {
		return models.ErrValidation.New("backup id %s is not a file path", backupID)
	}
	return nil
}

// Probe connects, ensures the base path exists, and round-trips a small
// marker file to prove write access.
func (s *SFTP) Probe(ctx context.Context) error {
	sshClient, client, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer sshClient.Close() //nolint:errcheck // Best effort cleanup
	defer client.Close()    //nolint:errcheck // Best effort cleanup

	if _, err := client.Stat(s.base); err != nil {
		if !os.IsNotExist(err) {
			return models.ErrProviderFailure.New("failed to access sftp base path: %v", err)
		}
		if err := mkdirWalk(client, s.base); err != nil {
			return err
		}
	}

	probe := path.Join(s.base, fmt.Sprintf(".custodia-test-%d.tmp", os.Getpid()))
	f, err := client.Create(probe)
	if err != nil {
		return models.ErrProviderFailure.New("sftp base path is not writable: %v", err)
	}
	if _, err := f.Write([]byte("connection test")); err != nil {
		f.Close() //nolint:errcheck // Best effort cleanup on error
		return models.ErrProviderFailure.New("sftp write test failed: %v", err)
	}
	if err := f.Close(); err != nil {
		return models.ErrProviderFailure.New("sftp write test failed: %v", err)
	}
	if err := client.Remove(probe); err != nil {
		return models.ErrProviderFailure.New("failed to remove sftp test file: %v", err)
	}
	return nil
}

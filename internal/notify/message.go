// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package notify

import (
	"fmt"
	"strings"

	"github.com/tomtom215/custodia/internal/backup"
	"github.com/tomtom215/custodia/internal/models"
)

// statusLabel maps run statuses to the human heading used in messages.
func statusLabel(status models.RunStatus) string {
	switch status {
	case models.StatusSuccess:
		return "Backup completed"
	case models.StatusWarning:
		return "Backup completed with warnings"
	default:
		return "Backup failed"
	}
}

// subjectLine builds the email subject.
func subjectLine(n backup.RunNotification) string {
	name := n.ScheduleName
	if name == "" {
		name = n.TargetName
	}
	return fmt.Sprintf("[Custodia] %s: %s", statusLabel(n.Status), name)
}

// formatBytes renders a byte count with a binary unit, matching how sizes
// appear elsewhere in run details.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// renderText builds the plain-text body shared by email and used as the
// source for the Telegram HTML body.
func renderText(n backup.RunNotification) string {
	var b strings.Builder
	b.WriteString(statusLabel(n.Status))
	b.WriteString("\n\n")
	if n.ScheduleName != "" {
		fmt.Fprintf(&b, "Schedule: %s\n", n.ScheduleName)
	}
	if n.TargetName != "" {
		fmt.Fprintf(&b, "Target: %s\n", n.TargetName)
	}
	if n.BackupFilename != "" {
		fmt.Fprintf(&b, "Backup: %s\n", n.BackupFilename)
	}
	if n.ArtifactSize > 0 {
		fmt.Fprintf(&b, "Size: %s\n", formatBytes(n.ArtifactSize))
	}
	for _, up := range n.Uploads {
		fmt.Fprintf(&b, "Uploaded to %s (%s)\n", up.DestinationName, formatBytes(up.Size))
	}
	if n.ErrorMessage != "" {
		fmt.Fprintf(&b, "\nError: %s\n", n.ErrorMessage)
	}
	return b.String()
}

// renderHTML builds the Telegram body. Only the heading carries markup; all
// interpolated values are escaped.
func renderHTML(n backup.RunNotification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n\n", escapeHTML(statusLabel(n.Status)))
	if n.ScheduleName != "" {
		fmt.Fprintf(&b, "Schedule: %s\n", escapeHTML(n.ScheduleName))
	}
	if n.TargetName != "" {
		fmt.Fprintf(&b, "Target: %s\n", escapeHTML(n.TargetName))
	}
	if n.BackupFilename != "" {
		fmt.Fprintf(&b, "Backup: <code>%s</code>\n", escapeHTML(n.BackupFilename))
	}
	if n.ArtifactSize > 0 {
		fmt.Fprintf(&b, "Size: %s\n", formatBytes(n.ArtifactSize))
	}
	for _, up := range n.Uploads {
		fmt.Fprintf(&b, "Uploaded to %s (%s)\n", escapeHTML(up.DestinationName), formatBytes(up.Size))
	}
	if n.ErrorMessage != "" {
		fmt.Fprintf(&b, "\nError: %s\n", escapeHTML(n.ErrorMessage))
	}
	return b.String()
}

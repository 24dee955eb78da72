package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/muurk/rmtemplates/internal/device"
	"github.com/muurk/rmtemplates/internal/session"
	"github.com/muurk/rmtemplates/internal/syncer"
	"github.com/muurk/rmtemplates/internal/templates"
)

// ResultType indicates success or failure
type ResultType int

const (
	ResultSuccess ResultType = iota
	ResultFailure
	ResultWarning
)

// Detail is one key-value line of a result box
type Detail struct {
	Key   string
	Value string
}

// Result represents a result box (success, failure, or warning)
type Result struct {
	Type            ResultType
	Title           string   // e.g., "Sync complete"
	Details         []Detail // Shown in order
	Error           error    // Error (for failure results)
	Troubleshooting []string // Troubleshooting tips (for failure results)
	Width           int
}

// NewSuccessResult creates a success result box
func NewSuccessResult(title string, details ...Detail) *Result {
	return &Result{
		Type:    ResultSuccess,
		Title:   title,
		Details: details,
		Width:   GetTerminalWidth(),
	}
}

// NewFailureResult creates a failure result box
func NewFailureResult(title string, err error, troubleshooting []string) *Result {
	return &Result{
		Type:            ResultFailure,
		Title:           title,
		Error:           err,
		Troubleshooting: troubleshooting,
		Width:           GetTerminalWidth(),
	}
}

// NewWarningResult creates a warning result box
func NewWarningResult(title string, details ...Detail) *Result {
	return &Result{
		Type:    ResultWarning,
		Title:   title,
		Details: details,
		Width:   GetTerminalWidth(),
	}
}

// NewErrorResult builds a failure box whose tips come from the error itself
func NewErrorResult(title string, err error) *Result {
	return NewFailureResult(title, err, Troubleshooting(err))
}

// NewSyncResult summarizes a finished sync
func NewSyncResult(r syncer.Result) *Result {
	if r.Count == 0 {
		return NewSuccessResult("Nothing to sync", Detail{"Pending", "0"})
	}
	details := []Detail{{"Changes", fmt.Sprint(r.Count)}}
	if len(r.Uploaded) > 0 {
		details = append(details, Detail{"Uploaded", strings.Join(r.Uploaded, ", ")})
	}
	if len(r.Deleted) > 0 {
		details = append(details, Detail{"Deleted", strings.Join(r.Deleted, ", ")})
	}
	details = append(details, Detail{"Duration", r.Elapsed.Round(time.Millisecond).String()})
	return NewSuccessResult("Sync complete", details...)
}

// NewBackupResult summarizes a finished backup
func NewBackupResult(r *device.BackupResult) *Result {
	return NewSuccessResult("Backup complete",
		Detail{"File", r.FilePath},
		Detail{"Size", FormatBytes(r.SizeBytes)},
		Detail{"Files", fmt.Sprint(r.Files)},
	)
}

// Troubleshooting returns tips for err, one per line of advice
func Troubleshooting(err error) []string {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrBusy):
		return []string{"Another operation is running; wait for it to finish"}
	case errors.Is(err, session.ErrConnectionLost):
		return []string{"The device stopped responding", "Retry the connection or disconnect"}
	case errors.Is(err, templates.ErrInvalidFilename):
		return []string{"Use letters, numbers, '-' and '_' only in template file names"}
	case errors.Is(err, templates.ErrDuplicateTemplate):
		return []string{"Rename the existing template or choose another file name"}
	}

	var tips []string
	for _, line := range strings.Split(device.TroubleshootingHint(err), "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "•"))
		if line == "" || line == "Troubleshooting:" {
			continue
		}
		tips = append(tips, line)
	}
	return tips
}

// SetWidth sets the terminal width for responsive rendering
func (r *Result) SetWidth(width int) *Result {
	r.Width = width
	return r
}

// AddDetail adds a detail key-value pair
func (r *Result) AddDetail(key, value string) *Result {
	r.Details = append(r.Details, Detail{Key: key, Value: value})
	return r
}

// Render returns the styled result box as a string
func (r *Result) Render() string {
	width := r.Width
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	lines := []string{""}
	switch r.Type {
	case ResultFailure:
		lines = append(lines, ErrorTitleStyle.Render(fmt.Sprintf("   %s  FAILED  ─  %s", FailureMarker, r.Title)), "")
		if r.Error != nil {
			lines = append(lines, ErrorMessageStyle.Render("   Error: "+r.Error.Error()), "")
		}
		if len(r.Troubleshooting) > 0 {
			lines = append(lines, r.renderTroubleshootingBox(width), "")
		}
		return ErrorBoxStyle(width).Render(strings.Join(lines, "\n"))

	case ResultWarning:
		lines = append(lines, UnsyncedStyle.Bold(true).Render(fmt.Sprintf("   %s  WARNING  ─  %s", WarningMarker, r.Title)), "")
		lines = append(lines, r.renderDetails()...)
		lines = append(lines, "")
		return WarningBoxStyle(width).Render(strings.Join(lines, "\n"))

	default:
		lines = append(lines, SuccessTitleStyle.Render(fmt.Sprintf("   %s  SUCCESS  ─  %s", SuccessMarker, r.Title)), "")
		lines = append(lines, r.renderDetails()...)
		lines = append(lines, "")
		return SuccessBoxStyle(width).Render(strings.Join(lines, "\n"))
	}
}

func (r *Result) renderDetails() []string {
	lines := make([]string, 0, len(r.Details))
	for _, d := range r.Details {
		lines = append(lines, ResultKeyStyle.Render("   "+d.Key+":")+" "+ResultValueStyle.Render(d.Value))
	}
	return lines
}

func (r *Result) renderTroubleshootingBox(width int) string {
	lines := []string{TroubleshootingTitleStyle.Render("Troubleshooting:"), ""}
	for _, tip := range r.Troubleshooting {
		lines = append(lines, TroubleshootingItemStyle.Render("  • "+tip))
	}
	return TroubleshootingBoxStyle(width).Render(strings.Join(lines, "\n"))
}

// String implements fmt.Stringer
func (r *Result) String() string {
	return r.Render()
}

// FormatBytes renders a byte count for humans ("1.5 MB")
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

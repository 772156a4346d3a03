package feed

import (
	"fmt"
	"time"

	"github.com/averlane/beatlink-cli/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

type RenderOptions struct {
	Now time.Time
	// Compact limits output to the newest entries, like the bell dropdown.
	Compact bool
	// CompactLimit caps the compact view; defaults to 5.
	CompactLimit int
}

// Render formats the notification list, newest first, for the terminal.
func Render(notifications []domain.Notification, opts RenderOptions) string {
	return renderView(notifications, opts, newStyles())
}

func renderView(notifications []domain.Notification, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Notifications"),
		s.header.Render(fmt.Sprintf("entries: %d", len(notifications))),
	}

	if len(notifications) == 0 {
		lines = append(lines, s.empty.Render("No notifications."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	visible := notifications
	if opts.Compact {
		limit := opts.CompactLimit
		if limit <= 0 {
			limit = 5
		}
		if len(visible) > limit {
			visible = visible[:limit]
		}
	}

	for _, entry := range visible {
		lines = append(lines, renderEntry(entry, opts, s))
	}

	if len(visible) < len(notifications) {
		lines = append(lines, s.empty.Render(fmt.Sprintf("… and %d more", len(notifications)-len(visible))))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderEntry(entry domain.Notification, opts RenderOptions, s styles) string {
	marker := " "
	if entry.Live {
		marker = s.live.Render("●")
	}

	return fmt.Sprintf("%s %s %s %s",
		marker,
		s.kind.Render(fmt.Sprintf("[%s]", entry.Kind)),
		s.message.Render(entry.Message),
		s.timestamp.Render(relativeTime(entry.Timestamp, opts.Now)),
	)
}

// RenderToast formats a transient one-line notice.
func RenderToast(toast domain.Toast) string {
	s := newStyles()
	marker := s.live.Render("▸")
	if toast.Level != "" {
		return fmt.Sprintf("%s %s %s", marker, s.kind.Render(fmt.Sprintf("[%s]", toast.Level)), s.message.Render(toast.Message))
	}
	return fmt.Sprintf("%s %s", marker, s.message.Render(toast.Message))
}

func relativeTime(timestamp, now time.Time) string {
	if now.IsZero() {
		now = time.Now()
	}
	if timestamp.IsZero() {
		return ""
	}

	elapsed := now.Sub(timestamp)
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return fmt.Sprintf("%dm ago", int(elapsed.Minutes()))
	case elapsed < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(elapsed.Hours()))
	default:
		return timestamp.Format("2006-01-02 15:04")
	}
}

// Package export writes notification history as a spreadsheet-friendly CSV.
package export

import (
	"encoding/csv"
	"io"
	"strings"
	"time"

	"notification-dispatch/internal/models"
)

// BOM makes Excel read the file as UTF-8.
const BOM = "\uFEFF"

// Header is the localized column row.
var Header = []string{"ID", "Kanal", "Alıcılar", "Konu", "Mesaj", "Öncelik", "Durum", "Planlanan Zaman", "Oluşturulma", "Hata"}

// RecipientSeparator joins recipients inside one cell.
const RecipientSeparator = "; "

// WriteCSV writes a BOM, the header and one row per notification.
func WriteCSV(w io.Writer, notifications []models.Notification) error {
	if _, err := io.WriteString(w, BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, n := range notifications {
		if err := cw.Write(Row(n)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Row renders one notification as CSV fields in Header order.
func Row(n models.Notification) []string {
	return []string{
		n.ID,
		string(n.Type),
		strings.Join(n.Recipients, RecipientSeparator),
		n.Subject,
		n.Message,
		string(n.Priority),
		string(n.Status),
		formatTime(n.ScheduledAt),
		n.CreatedAt.UTC().Format(time.RFC3339),
		n.Error,
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Filename returns the download name for an export taken at t.
func Filename(t time.Time) string {
	return "notifications-" + t.UTC().Format("20060102-150405") + ".csv"
}

package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"notification-dispatch/internal/errs"
	"notification-dispatch/internal/models"
)

const notificationColumns = `id, type, recipients, subject, message, priority, status, template_name,
       scheduled_at, sent_at, created_at, updated_at, metadata, attachments, deliveries,
       error, retry_count, version`

func (d *DB) CreateNotification(ctx context.Context, n models.Notification) error {
	metadata, attachments, deliveries, err := encodeNotificationJSON(n)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO notifications (
            id, type, recipients, subject, message, priority, status, template_name,
            scheduled_at, sent_at, created_at, updated_at, metadata, attachments, deliveries,
            error, retry_count, version
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	_, err = d.Conn.Exec(ctx, query,
		n.ID, string(n.Type), n.Recipients, n.Subject, n.Message, string(n.Priority),
		string(n.Status), n.TemplateName, n.ScheduledAt, n.SentAt, n.CreatedAt, n.UpdatedAt,
		metadata, attachments, deliveries, n.Error, n.RetryCount, n.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return errs.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// storedID reports whether id can name a row of the uuid-keyed table. Anything
// else is treated as absent instead of reaching Postgres as a cast error.
func storedID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (d *DB) GetNotification(ctx context.Context, id string) (models.Notification, error) {
	if !storedID(id) {
		return models.Notification{}, errs.ErrNotFound
	}
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	n, err := scanNotification(d.Conn.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Notification{}, errs.ErrNotFound
		}
		return models.Notification{}, fmt.Errorf("failed to get notification %s: %w", id, err)
	}
	return n, nil
}

// ListNotifications returns one page of matching notifications, newest first,
// and the total number of matches.
func (d *DB) ListNotifications(ctx context.Context, f models.NotificationFilter, p models.Page) ([]models.Notification, int, error) {
	p = p.Normalize()
	where, args := notificationWhere(f)

	var total int
	if err := d.Conn.QueryRow(ctx, `SELECT COUNT(*) FROM notifications`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM notifications%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		notificationColumns, where, len(args)+1, len(args)+2)
	rows, err := d.Conn.Query(ctx, query, append(args, p.Limit, p.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	notifications := make([]models.Notification, 0, p.Limit)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, total, nil
}

// CountByStatus counts notifications created within [from, to].
func (d *DB) CountByStatus(ctx context.Context, from, to *time.Time) (map[models.Status]int, error) {
	where, args := notificationWhere(models.NotificationFilter{From: from, To: to})
	rows, err := d.Conn.Query(ctx, `SELECT status, COUNT(*) FROM notifications`+where+` GROUP BY status`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count notifications by status: %w", err)
	}
	defer rows.Close()

	out := make(map[models.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		out[models.Status(status)] = count
	}
	return out, rows.Err()
}

// TransitionNotification applies tr only while the row still carries
// tr.ExpectedVersion.
func (d *DB) TransitionNotification(ctx context.Context, tr models.Transition) (models.Notification, error) {
	if !storedID(tr.ID) {
		return models.Notification{}, errs.ErrNotFound
	}
	var deliveries any
	if tr.Deliveries != nil {
		b, err := json.Marshal(tr.Deliveries)
		if err != nil {
			return models.Notification{}, fmt.Errorf("failed to encode deliveries: %w", err)
		}
		deliveries = b
	}
	retry := 0
	if tr.IncrementRetry {
		retry = 1
	}
	query := `
        UPDATE notifications
        SET status = $1, error = $2,
            deliveries = COALESCE($3, deliveries),
            sent_at = COALESCE($4, sent_at),
            retry_count = retry_count + $5,
            updated_at = $6,
            version = version + 1
        WHERE id = $7 AND version = $8
        RETURNING ` + notificationColumns
	n, err := scanNotification(d.Conn.QueryRow(ctx, query,
		string(tr.Status), tr.Error, deliveries, tr.SentAt, retry, tr.At, tr.ID, tr.ExpectedVersion))
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Notification{}, fmt.Errorf("failed to update notification status: %w", err)
	}

	var exists bool
	if err := d.Conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1)`, tr.ID).Scan(&exists); err != nil {
		return models.Notification{}, fmt.Errorf("failed to check notification %s: %w", tr.ID, err)
	}
	if !exists {
		return models.Notification{}, errs.ErrNotFound
	}
	return models.Notification{}, errs.ErrVersionConflict
}

func (d *DB) DeleteNotification(ctx context.Context, id string) error {
	if !storedID(id) {
		return errs.ErrNotFound
	}
	result, err := d.Conn.Exec(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	if result.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// DeleteNotifications removes the given ids and reports how many existed.
func (d *DB) DeleteNotifications(ctx context.Context, ids []string) (int, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if storedID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}
	result, err := d.Conn.Exec(ctx, `DELETE FROM notifications WHERE id = ANY($1::uuid[])`, valid)
	if err != nil {
		return 0, fmt.Errorf("failed to delete notifications: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// DueNotifications lists scheduled notifications due at or before now, oldest
// schedule first.
func (d *DB) DueNotifications(ctx context.Context, now time.Time, limit int) ([]models.Notification, error) {
	query := `SELECT ` + notificationColumns + `
        FROM notifications
        WHERE status = 'scheduled' AND scheduled_at <= $1
        ORDER BY scheduled_at
        LIMIT $2`
	rows, err := d.Conn.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get due notifications: %w", err)
	}
	defer rows.Close()

	var due []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		due = append(due, n)
	}
	return due, rows.Err()
}

func notificationWhere(f models.NotificationFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Type != "" {
		add("type = $%d", string(f.Type))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Priority != "" {
		add("priority = $%d", string(f.Priority))
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		add("(array_to_string(recipients, ' ') ILIKE $%[1]d OR subject ILIKE $%[1]d OR message ILIKE $%[1]d)", "%"+escapeLike(q)+"%")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanNotification(row pgx.Row) (models.Notification, error) {
	var n models.Notification
	var typ, priority, status string
	var metadata, attachments, deliveries []byte
	err := row.Scan(
		&n.ID, &typ, &n.Recipients, &n.Subject, &n.Message, &priority, &status, &n.TemplateName,
		&n.ScheduledAt, &n.SentAt, &n.CreatedAt, &n.UpdatedAt, &metadata, &attachments, &deliveries,
		&n.Error, &n.RetryCount, &n.Version,
	)
	if err != nil {
		return models.Notification{}, err
	}
	n.Type = models.Channel(typ)
	n.Priority = models.Priority(priority)
	n.Status = models.Status(status)
	if err := decodeJSON(metadata, &n.Metadata); err != nil {
		return models.Notification{}, fmt.Errorf("invalid metadata for %s: %w", n.ID, err)
	}
	if err := decodeJSON(attachments, &n.Attachments); err != nil {
		return models.Notification{}, fmt.Errorf("invalid attachments for %s: %w", n.ID, err)
	}
	if err := decodeJSON(deliveries, &n.Deliveries); err != nil {
		return models.Notification{}, fmt.Errorf("invalid deliveries for %s: %w", n.ID, err)
	}
	return n, nil
}

func encodeNotificationJSON(n models.Notification) (metadata, attachments, deliveries any, err error) {
	if metadata, err = encodeJSON(len(n.Metadata) > 0, n.Metadata); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	if attachments, err = encodeJSON(len(n.Attachments) > 0, n.Attachments); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode attachments: %w", err)
	}
	if deliveries, err = encodeJSON(len(n.Deliveries) > 0, n.Deliveries); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode deliveries: %w", err)
	}
	return metadata, attachments, deliveries, nil
}

// encodeJSON returns nil (SQL NULL) when present is false.
func encodeJSON(present bool, v any) (any, error) {
	if !present {
		return nil, nil
	}
	return json.Marshal(v)
}

func decodeJSON(b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}

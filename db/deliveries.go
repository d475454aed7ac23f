package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xlog-social/xlog/domain"
)

const (
	sqlInsertDelivery = `INSERT INTO deliveries(id, activity_id, kind, remote_inbox, status, attempt_count, last_error, user_id, post_id, activity_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlInsertDeliveryIfAbsent = sqlInsertDelivery + ` ON CONFLICT(activity_id) DO NOTHING`

	sqlSelectDelivery           = `SELECT id, activity_id, kind, remote_inbox, status, attempt_count, last_error, user_id, post_id, activity_json, created_at, updated_at FROM deliveries`
	sqlSelectDeliveryByActivity = sqlSelectDelivery + ` WHERE activity_id = ?`
	sqlSelectRetryable          = sqlSelectDelivery + ` WHERE status = ? AND attempt_count < ? ORDER BY updated_at LIMIT ?`
	sqlSelectFailed             = sqlSelectDelivery + ` WHERE status = ? ORDER BY updated_at DESC LIMIT ?`

	sqlFillDeliveryMetadata = `UPDATE deliveries SET
		user_id = COALESCE(user_id, ?),
		post_id = COALESCE(post_id, ?),
		remote_inbox = CASE WHEN remote_inbox = '' THEN ? ELSE remote_inbox END
		WHERE activity_id = ? AND (user_id IS NULL OR post_id IS NULL OR remote_inbox = '')`

	sqlUpdateDeliveryPayload = `UPDATE deliveries SET activity_json = ?, updated_at = ? WHERE activity_id = ?`
	sqlMarkDeliverySent      = `UPDATE deliveries SET status = ?, attempt_count = attempt_count + 1, last_error = NULL, updated_at = ?
		WHERE activity_id = ? AND status IN (?, ?)`
	sqlMarkDeliveryFailed = `UPDATE deliveries SET status = ?, attempt_count = attempt_count + 1, last_error = ?, updated_at = ?
		WHERE activity_id = ? AND status IN (?, ?)`
	sqlMarkDeliveryRetrying = `UPDATE deliveries SET status = ?, updated_at = ? WHERE activity_id = ? AND status = ?`
)

// retryScanLimit bounds one scheduler tick.
const retryScanLimit = 500

func deliveryArgs(d *domain.Delivery) []any {
	return []any{
		d.Id.String(),
		d.ActivityId,
		string(d.Kind),
		d.RemoteInbox,
		string(d.Status),
		d.AttemptCount,
		nullString(d.LastError),
		nullUUID(d.UserId),
		nullUUID(d.PostId),
		nullString(d.ActivityJSON),
		toMillis(d.CreatedAt),
		toMillis(d.UpdatedAt),
	}
}

// EnsureDelivery inserts d if no row exists for its activity id and returns the
// stored row. An existing row keeps its values; only a missing user, post or
// inbox is filled in from d.
func (db *DB) EnsureDelivery(ctx context.Context, d *domain.Delivery) (*domain.Delivery, error) {
	var stored *domain.Delivery
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, db.rebind(sqlInsertDeliveryIfAbsent), deliveryArgs(d)...); err != nil {
			return fmt.Errorf("upsert delivery %s: %w", d.ActivityId, err)
		}
		if _, err := tx.ExecContext(ctx, db.rebind(sqlFillDeliveryMetadata),
			nullUUID(d.UserId), nullUUID(d.PostId), d.RemoteInbox, d.ActivityId); err != nil {
			return fmt.Errorf("fill delivery %s: %w", d.ActivityId, err)
		}
		var err error
		stored, err = scanDelivery(tx.QueryRowContext(ctx, db.rebind(sqlSelectDeliveryByActivity), d.ActivityId))
		return err
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// EnqueueDelivery records a new pending delivery together with the job that drives it.
func (db *DB) EnqueueDelivery(ctx context.Context, d *domain.Delivery, job *domain.DeliveryJob) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, db.rebind(sqlInsertDelivery), deliveryArgs(d)...); err != nil {
			return fmt.Errorf("insert delivery %s: %w", d.ActivityId, err)
		}
		return db.insertJob(ctx, tx, job)
	})
}

// RequeueDelivery moves a failed delivery to retrying and pushes job in one
// transaction. It reports false if the row was no longer failed.
func (db *DB) RequeueDelivery(ctx context.Context, activityId string, job *domain.DeliveryJob, now time.Time) (bool, error) {
	requeued := false
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, db.rebind(sqlMarkDeliveryRetrying),
			string(domain.DeliveryRetrying), toMillis(now), activityId, string(domain.DeliveryFailed))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil || n == 0 {
			return err
		}
		if job.VisibleAt.IsZero() {
			job.VisibleAt = now
		}
		if job.CreatedAt.IsZero() {
			job.CreatedAt = now
		}
		if err := db.insertJob(ctx, tx, job); err != nil {
			return err
		}
		requeued = true
		return nil
	})
	return requeued, err
}

func (db *DB) ReadDelivery(ctx context.Context, activityId string) (*domain.Delivery, error) {
	d, err := scanDelivery(db.db.QueryRowContext(ctx, db.rebind(sqlSelectDeliveryByActivity), activityId))
	if err != nil {
		return nil, notFound(err, "delivery "+activityId)
	}
	return d, nil
}

// SaveDeliveryPayload snapshots the serialized activity before it is sent.
func (db *DB) SaveDeliveryPayload(ctx context.Context, activityId, payload string, now time.Time) error {
	_, err := db.exec(ctx, sqlUpdateDeliveryPayload, payload, toMillis(now), activityId)
	return err
}

// MarkDeliverySent and MarkDeliveryFailed only move rows that are pending or retrying.
func (db *DB) MarkDeliverySent(ctx context.Context, activityId string, now time.Time) (bool, error) {
	n, err := db.exec(ctx, sqlMarkDeliverySent,
		string(domain.DeliverySent), toMillis(now), activityId,
		string(domain.DeliveryPending), string(domain.DeliveryRetrying))
	return n == 1, err
}

func (db *DB) MarkDeliveryFailed(ctx context.Context, activityId, lastError string, now time.Time) (bool, error) {
	n, err := db.exec(ctx, sqlMarkDeliveryFailed,
		string(domain.DeliveryFailed), lastError, toMillis(now), activityId,
		string(domain.DeliveryPending), string(domain.DeliveryRetrying))
	return n == 1, err
}

// ReadRetryableDeliveries returns failed rows with attempts left, oldest first.
func (db *DB) ReadRetryableDeliveries(ctx context.Context, maxAttempts int) ([]domain.Delivery, error) {
	return db.queryDeliveries(ctx, sqlSelectRetryable, string(domain.DeliveryFailed), maxAttempts, retryScanLimit)
}

// ReadFailedDeliveries returns the most recently failed rows first.
func (db *DB) ReadFailedDeliveries(ctx context.Context, limit int) ([]domain.Delivery, error) {
	return db.queryDeliveries(ctx, sqlSelectFailed, string(domain.DeliveryFailed), limit)
}

func (db *DB) queryDeliveries(ctx context.Context, query string, args ...any) ([]domain.Delivery, error) {
	rows, err := db.db.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []domain.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, *d)
	}
	return deliveries, rows.Err()
}

func scanDelivery(row scanner) (*domain.Delivery, error) {
	var (
		d                    domain.Delivery
		idStr, kind, status  string
		lastError, payload   sql.NullString
		userId, postId       sql.NullString
		createdAt, updatedAt int64
	)
	err := row.Scan(&idStr, &d.ActivityId, &kind, &d.RemoteInbox, &status, &d.AttemptCount, &lastError,
		&userId, &postId, &payload, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	d.Id, _ = uuid.Parse(idStr)
	d.Kind = domain.DeliveryKind(kind)
	d.Status = domain.DeliveryStatus(status)
	d.LastError = lastError.String
	d.UserId = parseNullUUID(userId)
	d.PostId = parseNullUUID(postId)
	d.ActivityJSON = payload.String
	d.CreatedAt = fromMillis(createdAt)
	d.UpdatedAt = fromMillis(updatedAt)
	return &d, nil
}

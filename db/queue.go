package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xlog-social/xlog/domain"
)

const (
	sqlInsertJob = `INSERT INTO delivery_jobs(id, activity_id, kind, user_id, post_id, inbox_url, receive_count, visible_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`
	// The outer visible_at check makes a concurrent claim of the same row a no-op.
	sqlClaimJob = `UPDATE delivery_jobs SET visible_at = ?, receive_count = receive_count + 1
		WHERE id = (SELECT id FROM delivery_jobs WHERE visible_at <= ? ORDER BY visible_at, created_at LIMIT 1)
		AND visible_at <= ?
		RETURNING id, activity_id, kind, user_id, post_id, inbox_url, receive_count, visible_at, created_at`
	sqlDeleteJob = `DELETE FROM delivery_jobs WHERE id = ?`
	sqlCountJobs = `SELECT COUNT(*) FROM delivery_jobs`
)

func (db *DB) PushJob(ctx context.Context, job *domain.DeliveryJob) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		return db.insertJob(ctx, tx, job)
	})
}

func (db *DB) insertJob(ctx context.Context, tx *sql.Tx, job *domain.DeliveryJob) error {
	now := time.Now()
	if job.Id == uuid.Nil {
		job.Id = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.VisibleAt.IsZero() {
		job.VisibleAt = now
	}
	_, err := tx.ExecContext(ctx, db.rebind(sqlInsertJob),
		job.Id.String(),
		job.ActivityId,
		string(job.Kind),
		nullUUID(job.UserId),
		nullUUID(job.PostId),
		job.InboxURL,
		toMillis(job.VisibleAt),
		toMillis(job.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert delivery job %s: %w", job.ActivityId, err)
	}
	return nil
}

// ClaimJob leases the oldest visible job until now+lease. It returns nil when
// nothing is visible. A job that is not acked before the lease ends becomes
// visible again.
func (db *DB) ClaimJob(ctx context.Context, now time.Time, lease time.Duration) (*domain.DeliveryJob, error) {
	var job *domain.DeliveryJob
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, db.rebind(sqlClaimJob), toMillis(now.Add(lease)), toMillis(now), toMillis(now))
		var (
			j                    domain.DeliveryJob
			idStr, kind          string
			userId, postId       sql.NullString
			visibleAt, createdAt int64
		)
		err := row.Scan(&idStr, &j.ActivityId, &kind, &userId, &postId, &j.InboxURL, &j.ReceiveCount, &visibleAt, &createdAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		j.Id, _ = uuid.Parse(idStr)
		j.Kind = domain.DeliveryKind(kind)
		j.UserId = parseNullUUID(userId)
		j.PostId = parseNullUUID(postId)
		j.VisibleAt = fromMillis(visibleAt)
		j.CreatedAt = fromMillis(createdAt)
		job = &j
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim delivery job: %w", err)
	}
	return job, nil
}

func (db *DB) AckJob(ctx context.Context, id uuid.UUID) error {
	_, err := db.exec(ctx, sqlDeleteJob, id.String())
	return err
}

func (db *DB) CountJobs(ctx context.Context) (int, error) {
	var n int
	err := db.db.QueryRowContext(ctx, sqlCountJobs).Scan(&n)
	return n, err
}

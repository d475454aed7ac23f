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
	sqlInsertInboxObject = `INSERT INTO inbox_objects(id, activity_id, type, actor, object_id, local_user_id, raw_json, received_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(activity_id) DO NOTHING`
	sqlSelectInboxObjectByActivity = `SELECT id, activity_id, type, actor, object_id, local_user_id, raw_json, received_at, applied_at FROM inbox_objects WHERE activity_id = ?`
	sqlMarkInboxObjectApplied      = `UPDATE inbox_objects SET applied_at = ? WHERE activity_id = ? AND applied_at IS NULL`
)

// InsertInboxObject appends to the inbound audit log. It reports false when an
// object with the same activity id was already recorded.
func (db *DB) InsertInboxObject(ctx context.Context, obj *domain.InboxObject) (bool, error) {
	n, err := db.exec(ctx, sqlInsertInboxObject,
		obj.Id.String(),
		nullString(obj.ActivityId),
		obj.Type,
		obj.Actor,
		nullString(obj.ObjectId),
		nullUUID(obj.LocalUserId),
		obj.RawJSON,
		toMillis(obj.ReceivedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert inbox object: %w", err)
	}
	return n == 1, nil
}

func (db *DB) ReadInboxObjectByActivityId(ctx context.Context, activityId string) (*domain.InboxObject, error) {
	var (
		obj                  domain.InboxObject
		idStr                string
		actId, objId, userId sql.NullString
		receivedAt           int64
		appliedAt            sql.NullInt64
	)
	err := db.db.QueryRowContext(ctx, db.rebind(sqlSelectInboxObjectByActivity), activityId).
		Scan(&idStr, &actId, &obj.Type, &obj.Actor, &objId, &userId, &obj.RawJSON, &receivedAt, &appliedAt)
	if err != nil {
		return nil, notFound(err, "inbox object "+activityId)
	}
	obj.Id, _ = uuid.Parse(idStr)
	obj.ActivityId = actId.String
	obj.ObjectId = objId.String
	obj.LocalUserId = parseNullUUID(userId)
	obj.ReceivedAt = fromMillis(receivedAt)
	if appliedAt.Valid {
		at := fromMillis(appliedAt.Int64)
		obj.AppliedAt = &at
	}
	return &obj, nil
}

// MarkInboxObjectApplied records that the effects of an activity were applied.
func (db *DB) MarkInboxObjectApplied(ctx context.Context, activityId string, at time.Time) error {
	_, err := db.exec(ctx, sqlMarkInboxObjectApplied, toMillis(at), activityId)
	return err
}

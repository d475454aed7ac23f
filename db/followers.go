package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/xlog-social/xlog/domain"
)

const (
	sqlInsertFollower = `INSERT INTO followers(id, local_user_id, remote_actor, inbox_url, approved, created_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(local_user_id, remote_actor) DO NOTHING`
	sqlDeleteFollower  = `DELETE FROM followers WHERE local_user_id = ? AND remote_actor = ?`
	sqlSelectFollowers = `SELECT id, local_user_id, remote_actor, inbox_url, approved, created_at FROM followers WHERE local_user_id = ? ORDER BY created_at`
	sqlCountFollowers  = `SELECT COUNT(*) FROM followers WHERE local_user_id = ? AND approved = ?`

	sqlInsertFollowing = `INSERT INTO following(id, local_user_id, remote_actor, inbox_url, activity_id, accepted, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(local_user_id, remote_actor) DO NOTHING`
	sqlSelectFollowing        = `SELECT id, local_user_id, remote_actor, inbox_url, activity_id, accepted, created_at FROM following`
	sqlSelectFollowingByUser  = sqlSelectFollowing + ` WHERE local_user_id = ? ORDER BY created_at`
	sqlSelectFollowingByActor = sqlSelectFollowing + ` WHERE local_user_id = ? AND remote_actor = ?`
	sqlAcceptFollowing        = `UPDATE following SET accepted = ? WHERE local_user_id = ? AND activity_id = ?`
)

// InsertFollowerIfAbsent reports whether a new row was written.
func (db *DB) InsertFollowerIfAbsent(ctx context.Context, f *domain.Follower) (bool, error) {
	n, err := db.exec(ctx, sqlInsertFollower,
		f.Id.String(),
		f.LocalUserId.String(),
		f.RemoteActor,
		f.InboxURL,
		f.Approved,
		toMillis(f.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert follower %s: %w", f.RemoteActor, err)
	}
	return n == 1, nil
}

func (db *DB) DeleteFollower(ctx context.Context, localUserId uuid.UUID, remoteActor string) (bool, error) {
	n, err := db.exec(ctx, sqlDeleteFollower, localUserId.String(), remoteActor)
	return n > 0, err
}

func (db *DB) ReadFollowers(ctx context.Context, localUserId uuid.UUID) ([]domain.Follower, error) {
	rows, err := db.db.QueryContext(ctx, db.rebind(sqlSelectFollowers), localUserId.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var followers []domain.Follower
	for rows.Next() {
		var (
			f                domain.Follower
			idStr, userIdStr string
			createdAt        int64
		)
		if err := rows.Scan(&idStr, &userIdStr, &f.RemoteActor, &f.InboxURL, &f.Approved, &createdAt); err != nil {
			return nil, err
		}
		f.Id, _ = uuid.Parse(idStr)
		f.LocalUserId, _ = uuid.Parse(userIdStr)
		f.CreatedAt = fromMillis(createdAt)
		followers = append(followers, f)
	}
	return followers, rows.Err()
}

func (db *DB) CountApprovedFollowers(ctx context.Context, localUserId uuid.UUID) (int, error) {
	var n int
	err := db.db.QueryRowContext(ctx, db.rebind(sqlCountFollowers), localUserId.String(), true).Scan(&n)
	return n, err
}

// InsertFollowingIfAbsent reports whether a new row was written.
func (db *DB) InsertFollowingIfAbsent(ctx context.Context, f *domain.Following) (bool, error) {
	n, err := db.exec(ctx, sqlInsertFollowing,
		f.Id.String(),
		f.LocalUserId.String(),
		f.RemoteActor,
		f.InboxURL,
		f.ActivityId,
		f.Accepted,
		toMillis(f.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert following %s: %w", f.RemoteActor, err)
	}
	return n == 1, nil
}

func (db *DB) ReadFollowing(ctx context.Context, localUserId uuid.UUID) ([]domain.Following, error) {
	rows, err := db.db.QueryContext(ctx, db.rebind(sqlSelectFollowingByUser), localUserId.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var following []domain.Following
	for rows.Next() {
		f, err := scanFollowing(rows)
		if err != nil {
			return nil, err
		}
		following = append(following, *f)
	}
	return following, rows.Err()
}

func (db *DB) ReadFollowingByActor(ctx context.Context, localUserId uuid.UUID, remoteActor string) (*domain.Following, error) {
	f, err := scanFollowing(db.db.QueryRowContext(ctx, db.rebind(sqlSelectFollowingByActor), localUserId.String(), remoteActor))
	if err != nil {
		return nil, notFound(err, "following "+remoteActor)
	}
	return f, nil
}

// AcceptFollowing marks the follow request identified by activityId as accepted.
func (db *DB) AcceptFollowing(ctx context.Context, localUserId uuid.UUID, activityId string) (bool, error) {
	n, err := db.exec(ctx, sqlAcceptFollowing, true, localUserId.String(), activityId)
	return n > 0, err
}

func scanFollowing(row scanner) (*domain.Following, error) {
	var (
		f                domain.Following
		idStr, userIdStr string
		createdAt        int64
	)
	if err := row.Scan(&idStr, &userIdStr, &f.RemoteActor, &f.InboxURL, &f.ActivityId, &f.Accepted, &createdAt); err != nil {
		return nil, err
	}
	f.Id, _ = uuid.Parse(idStr)
	f.LocalUserId, _ = uuid.Parse(userIdStr)
	f.CreatedAt = fromMillis(createdAt)
	return &f, nil
}

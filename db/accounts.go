package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/xlog-social/xlog/domain"
)

const (
	sqlInsertAccount     = `INSERT INTO accounts(id, username, display_name, summary, public_key_pem, private_key_pem, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlSelectAccount     = `SELECT id, username, display_name, summary, public_key_pem, private_key_pem, created_at FROM accounts`
	sqlSelectAccountById = sqlSelectAccount + ` WHERE id = ?`
	sqlSelectAccountByUn = sqlSelectAccount + ` WHERE username = ?`
	sqlSelectAccounts    = sqlSelectAccount + ` ORDER BY created_at`
	sqlCountAccounts     = `SELECT COUNT(*) FROM accounts`
)

func (db *DB) CreateAccount(ctx context.Context, acc *domain.Account) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, db.rebind(sqlInsertAccount),
			acc.Id.String(),
			acc.Username,
			acc.DisplayName,
			acc.Summary,
			acc.PublicKeyPem,
			acc.PrivateKeyPem,
			toMillis(acc.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert account %s: %w", acc.Username, err)
		}
		return nil
	})
}

func (db *DB) ReadAccountByUsername(ctx context.Context, username string) (*domain.Account, error) {
	acc, err := scanAccount(db.db.QueryRowContext(ctx, db.rebind(sqlSelectAccountByUn), username))
	if err != nil {
		return nil, notFound(err, "account "+username)
	}
	return acc, nil
}

func (db *DB) ReadAccountById(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	acc, err := scanAccount(db.db.QueryRowContext(ctx, db.rebind(sqlSelectAccountById), id.String()))
	if err != nil {
		return nil, notFound(err, "account "+id.String())
	}
	return acc, nil
}

func (db *DB) ReadAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := db.db.QueryContext(ctx, sqlSelectAccounts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *acc)
	}
	return accounts, rows.Err()
}

func (db *DB) CountAccounts(ctx context.Context) (int, error) {
	var n int
	err := db.db.QueryRowContext(ctx, sqlCountAccounts).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*domain.Account, error) {
	var (
		acc       domain.Account
		idStr     string
		createdAt int64
	)
	err := row.Scan(&idStr, &acc.Username, &acc.DisplayName, &acc.Summary, &acc.PublicKeyPem, &acc.PrivateKeyPem, &createdAt)
	if err != nil {
		return nil, err
	}
	acc.Id, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("account id %q: %w", idStr, err)
	}
	acc.CreatedAt = fromMillis(createdAt)
	return &acc, nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/iliyamo/athlia-api/internal/model"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

const accountColumns = "id,username,mail,password_hash,avatar,statut_account,created_at,last_connection"

type AccountRepo struct{ DB *sql.DB }

func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{DB: db} }

// NormalizeMail trims and lowercases a mail address.
func NormalizeMail(mail string) string {
	return strings.ToLower(strings.TrimSpace(mail))
}

// Create inserts a. A fresh UUID is assigned when a.ID is empty and the mail
// is normalized in place.
func (r *AccountRepo) Create(ctx context.Context, a *model.Account) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.Mail = NormalizeMail(a.Mail)
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO accounts ("+accountColumns+") VALUES (?,?,?,?,?,?,?,?)",
		a.ID, a.Username, a.Mail, a.PasswordHash, a.Avatar, a.StatutAccount, a.CreatedAt, a.LastConnection)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
			return ErrMailExists
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetByMail fetches an account by normalized mail.
func (r *AccountRepo) GetByMail(ctx context.Context, mail string) (model.Account, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE mail=? LIMIT 1", NormalizeMail(mail))
	return scanAccount(row)
}

// GetByID fetches an account by id.
func (r *AccountRepo) GetByID(ctx context.Context, id string) (model.Account, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id=? LIMIT 1", id)
	return scanAccount(row)
}

// TouchLastConnection records a successful sign-in.
func (r *AccountRepo) TouchLastConnection(ctx context.Context, id string, at time.Time) error {
	if _, err := r.DB.ExecContext(ctx,
		"UPDATE accounts SET last_connection=? WHERE id=?", at, id); err != nil {
		return fmt.Errorf("touch last_connection: %w", err)
	}
	return nil
}

// UpdatePasswordHash replaces the stored credential hash.
func (r *AccountRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE accounts SET password_hash=? WHERE id=?", hash, id)
	if err != nil {
		return fmt.Errorf("update password_hash: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update password_hash: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAccount(row *sql.Row) (model.Account, error) {
	var (
		a              model.Account
		avatar, statut sql.NullString
		lastConnection sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Username, &a.Mail, &a.PasswordHash, &avatar, &statut, &a.CreatedAt, &lastConnection)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, ErrNotFound
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("scan account: %w", err)
	}
	if avatar.Valid {
		a.Avatar = &avatar.String
	}
	if statut.Valid {
		a.StatutAccount = &statut.String
	}
	if lastConnection.Valid {
		t := lastConnection.Time
		a.LastConnection = &t
	}
	return a, nil
}

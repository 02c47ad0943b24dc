package userstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	otcAuth "github.com/MrEthical07/otcAuth"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type dialect string

const (
	dialectSQLite   dialect = "sqlite"
	dialectPostgres dialect = "postgres"
)

const uniqueViolation = "23505"

func dialectOf(driver string) (dialect, error) {
	switch driver {
	case "sqlite":
		return dialectSQLite, nil
	case "postgres", "pgx":
		return dialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported user store driver %q", driver)
	}
}

type userRow struct {
	ID           int64     `db:"id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	Phone        string    `db:"phone"`
	PasswordHash string    `db:"password_hash"`
	Confirmed    bool      `db:"is_confirmed"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r userRow) user() otcAuth.User {
	return otcAuth.User{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		Phone:        r.Phone,
		PasswordHash: r.PasswordHash,
		Confirmed:    r.Confirmed,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

const userColumns = `id, name, email, phone, password_hash, is_confirmed, created_at, updated_at`

// Store is an otcAuth.UserStore on a SQL database. Emails are matched
// through a lower-cased email_key column carrying the unique index.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open connects with driver ("sqlite", "postgres" or "pgx") and pings the
// database. The schema is not touched; run [Migrate] first.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	d, err := dialectOf(driver)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting user store: %w", err)
	}
	if d == dialectSQLite {
		// SQLite serializes writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	return New(db), nil
}

// New wraps an open handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) CreateUser(ctx context.Context, in otcAuth.CreateUserInput) (otcAuth.User, error) {
	now := s.now().UTC()
	query := s.db.Rebind(`INSERT INTO users (name, email, email_key, phone, password_hash, is_confirmed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING ` + userColumns)

	var row userRow
	err := s.db.QueryRowxContext(ctx, query,
		in.Name, in.Email, emailKey(in.Email), in.Phone, in.PasswordHash, false, now, now,
	).StructScan(&row)
	if err != nil {
		return otcAuth.User{}, mapErr(err)
	}
	return row.user(), nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (otcAuth.User, error) {
	var row userRow
	query := s.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		return otcAuth.User{}, mapErr(err)
	}
	return row.user(), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (otcAuth.User, error) {
	var row userRow
	query := s.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE email_key = ?`)
	if err := s.db.GetContext(ctx, &row, query, emailKey(email)); err != nil {
		return otcAuth.User{}, mapErr(err)
	}
	return row.user(), nil
}

func (s *Store) ConfirmUser(ctx context.Context, id int64) error {
	query := s.db.Rebind(`UPDATE users SET is_confirmed = ?, updated_at = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, true, s.now().UTC(), id)
	return affected(res, err)
}

// UpdateUser writes the non-nil fields of update in one statement.
func (s *Store) UpdateUser(ctx context.Context, id int64, update otcAuth.UserUpdate) error {
	var (
		sets []string
		args []any
	)
	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Email != nil {
		sets = append(sets, "email = ?", "email_key = ?")
		args = append(args, *update.Email, emailKey(*update.Email))
	}
	if update.Phone != nil {
		sets = append(sets, "phone = ?")
		args = append(args, *update.Phone)
	}
	if update.PasswordHash != nil {
		sets = append(sets, "password_hash = ?")
		args = append(args, *update.PasswordHash)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, s.now().UTC(), id)

	query := s.db.Rebind(`UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, args...)
	return affected(res, err)
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM users WHERE id = ?`), id)
	return affected(res, err)
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return otcAuth.ErrUserNotFound
	}
	return nil
}

// mapErr translates driver errors into the otcAuth.UserStore contract.
func mapErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return otcAuth.ErrUserNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return otcAuth.ErrConflict
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return otcAuth.ErrConflict
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(liteErr.Error(), "UNIQUE")) {
			return otcAuth.ErrConflict
		}
	}

	return err
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

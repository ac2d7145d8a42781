package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/consulthub/internal/apperror"
	"github.com/sakif/consulthub/internal/model"
	"github.com/sakif/consulthub/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, username, email, password_hash, field,
	notify_own_channel, notify_general_channel, created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*model.User, error) {
	var u model.User
	err := s.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.Field,
		&u.Notifications.OwnChannel,
		&u.Notifications.GeneralChannel,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new user. The caller supplies the ID; timestamps are
// set here.
//
// UNIQUE VIOLATIONS:
// The service pre-checks username and email, but two registrations can race
// past those checks. The UNIQUE constraints are the final word and we map
// their failure to the same Conflict messages the pre-checks produce.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Field,
		user.Notifications.OwnChannel,
		user.Notifications.GeneralChannel,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if col, ok := uniqueViolation(err); ok {
			switch col {
			case "users.email":
				return apperror.Conflict("Account with email already exists")
			default:
				return apperror.Conflict("Account with username already exists")
			}
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Username, err)
	}

	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUserBy(ctx, "id", id)
}

func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return db.getUserBy(ctx, "username", username)
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUserBy(ctx, "email", email)
}

// getUserBy looks up a single user by one unique column. column is always
// a constant from this file, never caller input.
func (db *DB) getUserBy(ctx context.Context, column, value string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`,
		value,
	)
	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("sqlite: getting user by %s: %w", column, err)
	}
	return u, nil
}

// ListUsersByChannel returns notification recipients for channel.
//
//   - "general": everyone subscribed to the general channel
//   - anything else: members of that field who want own-channel mail
func (db *DB) ListUsersByChannel(ctx context.Context, channel string) ([]model.User, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if channel == model.GeneralChannel {
		rows, err = db.conn.QueryContext(ctx,
			`SELECT `+userColumns+` FROM users
			 WHERE notify_general_channel = 1
			 ORDER BY rowid`,
		)
	} else {
		rows, err = db.conn.QueryContext(ctx,
			`SELECT `+userColumns+` FROM users
			 WHERE field = ? AND notify_own_channel = 1
			 ORDER BY rowid`,
			channel,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users for channel %s: %w", channel, err)
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating user rows: %w", err)
	}

	return users, nil
}

// UpdateUser persists the mutable attributes: field and notification
// preferences. Username, email and password are never rewritten.
func (db *DB) UpdateUser(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE users
		 SET field = ?, notify_own_channel = ?, notify_general_channel = ?, updated_at = ?
		 WHERE id = ?`,
		user.Field,
		user.Notifications.OwnChannel,
		user.Notifications.GeneralChannel,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", user.ID)
	}

	return nil
}

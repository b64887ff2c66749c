package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"identity-sweeper/internal/directory"
)

// SQLDirectory implements directory.Directory straight against the Crowd
// schema (cwd_user, cwd_user_attribute) for installs where the REST surface
// is not exposed. Deactivating via SQL bypasses the application cache; the
// instance picks the change up on its next directory sync.
type SQLDirectory struct {
	db    *DB
	runAs string
	log   *slog.Logger
}

func NewSQLDirectory(log *slog.Logger, dbConn *DB, runAs string) *SQLDirectory {
	return &SQLDirectory{db: dbConn, runAs: runAs, log: log}
}

func (d *SQLDirectory) ListActiveUsers(ctx context.Context) ([]directory.User, error) {
	rows, err := d.db.Pool.Query(ctx,
		`SELECT user_name, display_name, email_address
		 FROM cwd_user
		 WHERE active = 1
		 ORDER BY user_name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query active users: %w", err)
	}
	defer rows.Close()

	var users []directory.User
	for rows.Next() {
		var name string
		var displayName, email *string
		if err := rows.Scan(&name, &displayName, &email); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		u := directory.User{Name: name, Active: true}
		if displayName != nil {
			u.DisplayName = *displayName
		}
		if email != nil {
			u.Email = *email
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (d *SQLDirectory) LastLogin(ctx context.Context, username string) (time.Time, bool, error) {
	var raw string
	err := d.db.Pool.QueryRow(ctx,
		`SELECT ua.attribute_value
		 FROM cwd_user_attribute ua
		 JOIN cwd_user u ON u.id = ua.user_id
		 WHERE u.lower_user_name = lower($1)
		   AND ua.attribute_name = 'login.lastLoginMillis'`,
		username,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to look up last login for %s: %w", username, err)
	}

	millis, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("malformed login.lastLoginMillis value %q for %s", raw, username)
	}
	return time.UnixMilli(millis).UTC(), true, nil
}

func (d *SQLDirectory) DeactivateUser(ctx context.Context, username string) error {
	tag, err := d.db.Pool.Exec(ctx,
		`UPDATE cwd_user SET active = 0 WHERE lower_user_name = lower($1) AND active = 1`,
		username,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate %s: %w", username, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s not found or already inactive", username)
	}
	return nil
}

// CurrentUsername has no backend session to consult in SQL mode; the run-as
// account comes from configuration instead.
func (d *SQLDirectory) CurrentUsername(ctx context.Context) (string, error) {
	if strings.TrimSpace(d.runAs) == "" {
		return "", errors.New("no run-as username configured")
	}
	return d.runAs, nil
}

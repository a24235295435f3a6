package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-admin/internal/domain"
	"github.com/jackc/pgx/v5"
)

const userColumns = `user_id, first_name, last_name, birthday::text, country, phone, avatar, created_at, updated_at`

// ListUsers returns all users ordered by name.
func (r *Repository) ListUsers(ctx context.Context) ([]*domain.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY last_name, first_name, user_id`)
	if err != nil {
		return nil, fmt.Errorf("ListUsers: querying: %w", err)
	}
	defer rows.Close()

	users := make([]*domain.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("ListUsers: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListUsers: iterating rows: %w", err)
	}
	return users, nil
}

// GetUser returns a user by id.
func (r *Repository) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return GetUserWithQuerier(ctx, r.pool, userID, false)
}

// GetUserWithQuerier loads a user through q. forUpdate locks the row for the
// rest of the surrounding transaction.
func GetUserWithQuerier(ctx context.Context, q Querier, userID string, forUpdate bool) (*domain.User, error) {
	sql := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}

	u, err := scanUser(q.QueryRow(ctx, sql, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "user", ID: userID}
	}
	if err != nil {
		return nil, fmt.Errorf("GetUser: %w", err)
	}
	return u, nil
}

// CreateUser inserts a new user and fills its timestamps.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (user_id, first_name, last_name, birthday, country, phone, avatar)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7)
		RETURNING created_at, updated_at
	`, user.UserID, user.FirstName, user.LastName, birthdayArg(user.Birthday), user.Country, user.Phone, user.Avatar).
		Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("CreateUser: %w", mapError(err))
	}
	return nil
}

// UpdateUser applies patch to the stored user.
func (r *Repository) UpdateUser(ctx context.Context, userID string, patch domain.UserPatch) (*domain.User, error) {
	var updated *domain.User
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		u, err := GetUserWithQuerier(ctx, tx, userID, true)
		if err != nil {
			return err
		}
		patch.Apply(u)

		err = tx.QueryRow(ctx, `
			UPDATE users
			SET first_name = $2, last_name = $3, birthday = $4::date, country = $5, phone = $6, updated_at = now()
			WHERE user_id = $1
			RETURNING updated_at
		`, u.UserID, u.FirstName, u.LastName, birthdayArg(u.Birthday), u.Country, u.Phone).Scan(&u.UpdatedAt)
		if err != nil {
			return fmt.Errorf("updating user: %w", err)
		}
		updated = u
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("UpdateUser: %w", err)
	}
	return updated, nil
}

// DeleteUser removes the user. Under DeleteCascade the user's transactions go
// first; under DeleteRestrict their presence is a ConflictError.
func (r *Repository) DeleteUser(ctx context.Context, userID string, policy domain.DeletePolicy) (int, error) {
	var removed int
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := GetUserWithQuerier(ctx, tx, userID, true); err != nil {
			return err
		}

		var refs []string
		rows, err := tx.Query(ctx, `SELECT reference FROM transactions WHERE user_id = $1 ORDER BY reference`, userID)
		if err != nil {
			return fmt.Errorf("listing transactions: %w", err)
		}
		refs, err = pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("listing transactions: %w", err)
		}

		if len(refs) > 0 && policy == domain.DeleteRestrict {
			return &domain.ConflictError{Message: "user still has transactions", References: refs}
		}

		tag, err := tx.Exec(ctx, `DELETE FROM transactions WHERE user_id = $1`, userID)
		if err != nil {
			return fmt.Errorf("deleting transactions: %w", err)
		}
		removed = int(tag.RowsAffected())

		if _, err := tx.Exec(ctx, `DELETE FROM users WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("deleting user: %w", mapError(err))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("DeleteUser: %w", err)
	}
	return removed, nil
}

// upsertUserWithQuerier writes an import's user row. The stored avatar is
// kept when avatar is empty and created_at is never touched. It reports
// whether the row was inserted.
func upsertUserWithQuerier(ctx context.Context, q Querier, u *domain.User, avatar string, at time.Time) (bool, error) {
	var created bool
	err := q.QueryRow(ctx, `
		INSERT INTO users (user_id, first_name, last_name, birthday, country, phone, avatar, created_at, updated_at)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name  = EXCLUDED.last_name,
			birthday   = EXCLUDED.birthday,
			country    = EXCLUDED.country,
			phone      = EXCLUDED.phone,
			avatar     = CASE WHEN EXCLUDED.avatar = '' THEN users.avatar ELSE EXCLUDED.avatar END,
			updated_at = EXCLUDED.updated_at
		RETURNING (xmax = 0)
	`, u.UserID, u.FirstName, u.LastName, birthdayArg(u.Birthday), u.Country, u.Phone, avatar, at).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("upserting user %s: %w", u.UserID, err)
	}
	return created, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u        domain.User
		birthday *string
	)
	if err := row.Scan(&u.UserID, &u.FirstName, &u.LastName, &birthday, &u.Country, &u.Phone, &u.Avatar, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if birthday != nil {
		d, err := civil.ParseDate(*birthday)
		if err != nil {
			return nil, fmt.Errorf("parsing birthday %q: %w", *birthday, err)
		}
		u.Birthday = &d
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

func birthdayArg(d *civil.Date) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

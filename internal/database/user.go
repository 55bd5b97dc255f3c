package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jason-s-yu/examarena/internal/auth"
	"github.com/jason-s-yu/examarena/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrUsernameTaken is returned by CreateUser when the username already exists.
var ErrUsernameTaken = errors.New("username already taken")

// ErrInvalidCredentials is returned by AuthenticateUser for an unknown user or a wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

const userColumns = `id, username, password, rating, is_admin, created_at, last_login_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Password, &u.Rating, &u.IsAdmin, &u.CreatedAt, &u.LastLoginAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser hashes user.Password and inserts the user. A zero rating gets defaultRating.
func CreateUser(ctx context.Context, user *models.User, defaultRating int) error {
	if user.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("failed to generate user id: %w", err)
		}
		user.ID = id
	}
	if user.Rating == 0 {
		user.Rating = defaultRating
	}

	hash, err := auth.HashPassword(user.Password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.Password = hash

	q := `INSERT INTO users (id, username, password, rating, is_admin)
	      VALUES ($1, $2, $3, $4, $5)
	      RETURNING created_at`

	err = pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, q,
			user.ID, user.Username, user.Password, user.Rating, user.IsAdmin,
		).Scan(&user.CreatedAt)
	})
	if IsUniqueViolation(err) {
		return ErrUsernameTaken
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(DB.QueryRow(ctx, q, username))
}

func GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(DB.QueryRow(ctx, q, id))
}

// GetUserRating reads only the current rating.
func GetUserRating(ctx context.Context, id uuid.UUID) (int, error) {
	var r int
	err := DB.QueryRow(ctx, `SELECT rating FROM users WHERE id = $1`, id).Scan(&r)
	return r, err
}

// AuthenticateUser checks the credentials, stamps the login time and returns a signed token.
func AuthenticateUser(ctx context.Context, username, password string) (string, *models.User, error) {
	user, err := GetUserByUsername(ctx, username)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to load user: %w", err)
	}

	match, err := auth.ComparePasswordAndHash(password, user.Password)
	if err != nil || !match {
		return "", nil, ErrInvalidCredentials
	}

	if _, err := DB.Exec(ctx, `UPDATE users SET last_login_at = NOW() WHERE id = $1`, user.ID); err != nil {
		return "", nil, fmt.Errorf("failed to stamp login: %w", err)
	}
	if auth.NeedsRehash(user.Password) {
		rehashPassword(ctx, user.ID, password)
	}

	token, err := auth.CreateJWT(user.ID.String())
	if err != nil {
		return "", nil, fmt.Errorf("failed to create jwt: %w", err)
	}
	user.Password = ""
	return token, user, nil
}

// rehashPassword stores password under the current argon2 cost. Failures only
// leave the old hash in place.
func rehashPassword(ctx context.Context, userID uuid.UUID, password string) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("failed to rehash password")
		return
	}
	if _, err := DB.Exec(ctx, `UPDATE users SET password = $2 WHERE id = $1`, userID, hash); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("failed to store rehashed password")
	}
}

// ListLeaderboard returns up to limit users ordered by rating, best first.
func ListLeaderboard(ctx context.Context, limit int) ([]models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users ORDER BY rating DESC, username ASC LIMIT $1`
	rows, err := DB.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		u.Password = ""
		out = append(out, *u)
	}
	return out, rows.Err()
}

// IsUniqueViolation reports whether err is a Postgres unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

package repository

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codu-code/codu/internal/db"
	"github.com/codu-code/codu/internal/model"
	"github.com/google/uuid"
)

type DBUserRepository struct {
	db    db.DB
	clock Clock
}

func NewDBUserRepository(d db.DB, clock Clock) *DBUserRepository {
	return &DBUserRepository{db: d, clock: clock}
}

const userColumns = `id, username, name, email, bio, image, role, public_key, created_at`

func scanUser(row scanner) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.Name, &u.Email, &u.Bio, &u.Image, &u.Role, &u.PublicKey, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning user: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

// Create inserts u, filling in id, role and creation time when unset.
func (r *DBUserRepository) Create(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		u.ID = model.UserID(uuid.New().String())
	}
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.clock.now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Name, u.Email, u.Bio, u.Image, u.Role, u.PublicKey, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %q: %w", u.Username, ErrConflict)
		}
		return fmt.Errorf("error creating user: %w", err)
	}
	repoLogger.Debug().Str("user_id", string(u.ID)).Str("username", u.Username).Msg("User created")
	return nil
}

// Upsert creates or refreshes a user mirrored from an identity provider.
// Role and public key are left alone on update.
func (r *DBUserRepository) Upsert(ctx context.Context, u *model.User) error {
	existing, err := r.Get(ctx, u.ID)
	if errors.Is(err, ErrNotFound) {
		return r.Create(ctx, u)
	}
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE users SET username = ?, name = ?, email = ?, image = ? WHERE id = ?`,
		u.Username, u.Name, u.Email, u.Image, u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %q: %w", u.Username, ErrConflict)
		}
		return fmt.Errorf("error updating user: %w", err)
	}
	u.Role = existing.Role
	u.PublicKey = existing.PublicKey
	u.Bio = existing.Bio
	u.CreatedAt = existing.CreatedAt
	return nil
}

func (r *DBUserRepository) Get(ctx context.Context, id model.UserID) (*model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r *DBUserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username))
}

func (r *DBUserRepository) UpdateProfile(ctx context.Context, id model.UserID, name, bio string) error {
	return r.exec(ctx, `UPDATE users SET name = ?, bio = ? WHERE id = ?`, name, bio, id)
}

func (r *DBUserRepository) SetImage(ctx context.Context, id model.UserID, image string) error {
	return r.exec(ctx, `UPDATE users SET image = ? WHERE id = ?`, image, id)
}

func (r *DBUserRepository) SetPublicKey(ctx context.Context, id model.UserID, publicKey string) error {
	return r.exec(ctx, `UPDATE users SET public_key = ? WHERE id = ?`, publicKey, id)
}

func (r *DBUserRepository) SetRole(ctx context.Context, id model.UserID, role model.Role) error {
	return r.exec(ctx, `UPDATE users SET role = ? WHERE id = ?`, role, id)
}

func (r *DBUserRepository) Delete(ctx context.Context, id model.UserID) error {
	return r.exec(ctx, `DELETE FROM users WHERE id = ?`, id)
}

func (r *DBUserRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error updating user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CreateSession issues an opaque token for id. Only its hash is stored.
func (r *DBUserRepository) CreateSession(ctx context.Context, id model.UserID, ttl time.Duration) (string, *model.Session, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("error generating session token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	session := &model.Session{UserID: id, ExpiresAt: r.clock.now().Add(ttl)}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (token_hash, user_id, expires_at) VALUES (?, ?, ?)`,
		hashToken(token), session.UserID, session.ExpiresAt)
	if err != nil {
		return "", nil, fmt.Errorf("error creating session: %w", err)
	}
	return token, session, nil
}

// GetSession resolves a token. Expired sessions are removed and reported as
// ErrNotFound.
func (r *DBUserRepository) GetSession(ctx context.Context, token string) (*model.Session, error) {
	var s model.Session
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM sessions WHERE token_hash = ?`, hashToken(token)).Scan(&s.UserID, &s.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error loading session: %w", err)
	}

	if s.Expired(r.clock.now()) {
		if err := r.DeleteSession(ctx, token); err != nil {
			repoLogger.Warn().Err(err).Msg("Failed to drop expired session")
		}
		return nil, ErrNotFound
	}
	return &s, nil
}

func (r *DBUserRepository) DeleteSession(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = ?`, hashToken(token)); err != nil {
		return fmt.Errorf("error deleting session: %w", err)
	}
	return nil
}

func (r *DBUserRepository) DeleteSessionsFor(ctx context.Context, id model.UserID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, id); err != nil {
		return fmt.Errorf("error deleting sessions: %w", err)
	}
	return nil
}

// PurgeExpiredSessions removes every session past its expiry.
func (r *DBUserRepository) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, r.clock.now())
	if err != nil {
		return 0, fmt.Errorf("error purging sessions: %w", err)
	}
	return res.RowsAffected()
}

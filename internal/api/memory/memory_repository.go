package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-insurance-assistant/internal/types"
)

var _ Repository = (*PostgresRepository)(nil)

// PGXPool is the subset of pgxpool.Pool the repository needs. Satisfied by
// *pgxpool.Pool in production and by pgxmock in tests.
type PGXPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Repository defines the contract for user-profile and session-log persistence.
type Repository interface {
	// FindUserByIdentity runs the single disjunctive identity lookup
	// (user_identifier OR phone_number). Returns types.ErrNotFound when no
	// row matches.
	FindUserByIdentity(ctx context.Context, identifier, phone string) (*types.User, error)

	// CreateUser inserts a new user with all profile fields null.
	// A unique violation on either identity column surfaces as types.ErrConflict.
	CreateUser(ctx context.Context, identifier, phone string) (*types.User, error)

	// GetUserByID retrieves a user by primary key. Returns types.ErrNotFound
	// if the user doesn't exist.
	GetUserByID(ctx context.Context, userID uuid.UUID) (*types.User, error)

	// UpdateProfile applies a partial update; nil fields are left untouched.
	// Returns the refreshed user.
	UpdateProfile(ctx context.Context, userID uuid.UUID, params types.UpdateProfileParams) (*types.User, error)

	// CreateSession appends one session row for a turn.
	CreateSession(ctx context.Context, userID uuid.UUID, transcript string, structuredData map[string]any, mode types.SessionMode) (*types.Session, error)

	// GetSession retrieves one session row. Returns types.ErrNotFound if absent.
	GetSession(ctx context.Context, sessionID uuid.UUID) (*types.Session, error)

	// GetRecentSessions returns up to limit sessions for the user in
	// timestamp order, oldest of the window first.
	GetRecentSessions(ctx context.Context, userID uuid.UUID, limit int) ([]types.Session, error)

	// RecordTurn applies the profile update (when non-empty) and appends the
	// session row in a single transaction, so a failed log append never
	// leaves a half-applied merge behind.
	RecordTurn(ctx context.Context, userID uuid.UUID, params types.UpdateProfileParams, transcript string, structuredData map[string]any, mode types.SessionMode) (*types.Session, error)
}

type PostgresRepository struct {
	logger *slog.Logger
	pgpool PGXPool
}

func NewPostgresRepository(pgpool PGXPool, logger *slog.Logger) *PostgresRepository {
	return &PostgresRepository{
		logger: logger,
		pgpool: pgpool,
	}
}

const userColumns = `id, phone_number, user_identifier, name, age, location, insurance_interest, last_summary, created_at, updated_at`

func scanUser(row pgx.Row) (*types.User, error) {
	var u types.User
	err := row.Scan(&u.ID, &u.PhoneNumber, &u.UserIdentifier, &u.Name, &u.Age,
		&u.Location, &u.InsuranceInterest, &u.LastSummary, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *PostgresRepository) FindUserByIdentity(ctx context.Context, identifier, phone string) (*types.User, error) {
	ctx, span := otel.Tracer("MemoryRepo").Start(ctx, "FindUserByIdentity", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()

	// Inclusive-or lookup: either key matches. Duplicate matches (same phone
	// under different identifiers) are broken deterministically by the
	// oldest row.
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE (user_identifier = $1 AND $1 <> '') OR (phone_number = $2 AND $2 <> '')
		ORDER BY created_at, id
		LIMIT 1
	`
	user, err := scanUser(r.pgpool.QueryRow(ctx, query, identifier, phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Ok, "No matching user")
			return nil, types.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "Identity lookup failed")
		return nil, fmt.Errorf("failed to look up user by identity: %w", err)
	}

	span.SetAttributes(attribute.String("db.user.id", user.ID.String()))
	span.SetStatus(codes.Ok, "User found")
	return user, nil
}

func (r *PostgresRepository) CreateUser(ctx context.Context, identifier, phone string) (*types.User, error) {
	ctx, span := otel.Tracer("MemoryRepo").Start(ctx, "CreateUser", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()

	query := `
		INSERT INTO users (user_identifier, phone_number)
		VALUES (NULLIF($1, ''), NULLIF($2, ''))
		RETURNING ` + userColumns

	user, err := scanUser(r.pgpool.QueryRow(ctx, query, identifier, phone))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // Unique violation
			span.SetStatus(codes.Error, "Duplicate identity")
			return nil, types.ErrConflict
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create user")
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	span.SetAttributes(attribute.String("db.user.id", user.ID.String()))
	span.SetStatus(codes.Ok, "User created")
	return user, nil
}

func (r *PostgresRepository) GetUserByID(ctx context.Context, userID uuid.UUID) (*types.User, error) {
	ctx, span := otel.Tracer("MemoryRepo").Start(ctx, "GetUserByID", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "users"),
		attribute.String("db.user.id", userID.String()),
	))
	defer span.End()

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.pgpool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to fetch user")
		return nil, fmt.Errorf("failed to fetch user %s: %w", userID, err)
	}

	span.SetStatus(codes.Ok, "User fetched")
	return user, nil
}

// buildProfileUpdate assembles the dynamic SET clause for a partial profile
// update. Only non-nil fields are written; updated_at always advances.
func buildProfileUpdate(userID uuid.UUID, params types.UpdateProfileParams) (string, []any) {
	var setClauses []string
	var args []any
	argID := 1

	if params.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argID))
		args = append(args, *params.Name)
		argID++
	}
	if params.Age != nil {
		setClauses = append(setClauses, fmt.Sprintf("age = $%d", argID))
		args = append(args, *params.Age)
		argID++
	}
	if params.Location != nil {
		setClauses = append(setClauses, fmt.Sprintf("location = $%d", argID))
		args = append(args, *params.Location)
		argID++
	}
	if params.InsuranceInterest != nil {
		setClauses = append(setClauses, fmt.Sprintf("insurance_interest = $%d", argID))
		args = append(args, *params.InsuranceInterest)
		argID++
	}
	if params.LastSummary != nil {
		setClauses = append(setClauses, fmt.Sprintf("last_summary = $%d", argID))
		args = append(args, *params.LastSummary)
		argID++
	}

	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", argID))
	args = append(args, time.Now())
	argID++

	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d RETURNING %s",
		strings.Join(setClauses, ", "), argID, userColumns)
	args = append(args, userID)
	return query, args
}

func (r *PostgresRepository) UpdateProfile(ctx context.Context, userID uuid.UUID, params types.UpdateProfileParams) (*types.User, error) {
	ctx, span := otel.Tracer("MemoryRepo").Start(ctx, "UpdateProfile", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "users"),
		attribute.String("db.user.id", userID.String()),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "UpdateProfile"), slog.String("userID", userID.String()))

	if params.IsZero() {
		l.DebugContext(ctx, "UpdateProfile called with no fields to update")
		return r.GetUserByID(ctx, userID)
	}

	query, args := buildProfileUpdate(userID, params)
	user, err := scanUser(r.pgpool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to update profile")
		l.ErrorContext(ctx, "Failed to update profile", slog.Any("error", err))
		return nil, fmt.Errorf("failed to update profile for user %s: %w", userID, err)
	}

	span.SetStatus(codes.Ok, "Profile updated")
	return user, nil
}

func marshalStructuredData(structuredData map[string]any) ([]byte, error) {
	if len(structuredData) == 0 {
		return nil, nil
	}
	return json.Marshal(structuredData)
}

func scanSession(row pgx.Row) (*types.Session, error) {
	var s types.Session
	var raw []byte
	err := row.Scan(&s.SessionID, &s.UserID, &s.Transcript, &raw, &s.Mode, &s.Timestamp)
	if err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.StructuredData); err != nil {
			return nil, fmt.Errorf("failed to decode structured_data: %w", err)
		}
	}
	return &s, nil
}

const sessionColumns = `session_id, user_id, transcript, structured_data, mode, timestamp`

func (r *PostgresRepository) CreateSession(ctx context.Context, userID uuid.UUID, transcript string, structuredData map[string]any, mode types.SessionMode) (*types.Session, error) {
	ctx, span := otel.Tracer("MemoryRepo").Start(ctx, "CreateSession", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "sessions"),
		attribute.String("db.user.id", userID.String()),
		attribute.String("session.mode", string(mode)),
	))
	defer span.End()

	raw, err := marshalStructuredData(structuredData)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to encode structured_data: %w", err)
	}

	query := `
		INSERT INTO sessions (user_id, transcript, structured_data, mode)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + sessionColumns

	session, err := scanSession(r.pgpool.QueryRow(ctx, query, userID, transcript, raw, string(mode)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create session")
		return nil, fmt.Errorf("failed to create session for user %s: %w", userID, err)
	}

	span.SetAttributes(attribute.String("session.id", session.SessionID.String()))
	span.SetStatus(codes.Ok, "Session created")
	return session, nil
}

func (r *PostgresRepository) GetSession(ctx context.Context, sessionID uuid.UUID) (*types.Session, error) {
	ctx, span := otel.Tracer("MemoryRepo").Start(ctx, "GetSession", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "sessions"),
		attribute.String("session.id", sessionID.String()),
	))
	defer span.End()

	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE session_id = $1`
	session, err := scanSession(r.pgpool.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to fetch session")
		return nil, fmt.Errorf("failed to fetch session %s: %w", sessionID, err)
	}

	span.SetStatus(codes.Ok, "Session fetched")
	return session, nil
}

func (r *PostgresRepository) GetRecentSessions(ctx context.Context, userID uuid.UUID, limit int) ([]types.Session, error) {
	ctx, span := otel.Tracer("MemoryRepo").Start(ctx, "GetRecentSessions", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "sessions"),
		attribute.String("db.user.id", userID.String()),
		attribute.Int("limit", limit),
	))
	defer span.End()

	// Take the trailing window by timestamp, then restore insertion order so
	// callers see oldest-of-window first.
	query := `
		SELECT ` + sessionColumns + ` FROM (
			SELECT ` + sessionColumns + `
			FROM sessions
			WHERE user_id = $1
			ORDER BY timestamp DESC, session_id DESC
			LIMIT $2
		) recent
		ORDER BY timestamp, session_id
	`
	rows, err := r.pgpool.Query(ctx, query, userID, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to fetch recent sessions")
		return nil, fmt.Errorf("failed to fetch recent sessions for user %s: %w", userID, err)
	}
	defer rows.Close()

	var sessions []types.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed iterating session rows: %w", err)
	}

	span.SetAttributes(attribute.Int("sessions.count", len(sessions)))
	span.SetStatus(codes.Ok, "Recent sessions fetched")
	return sessions, nil
}

func (r *PostgresRepository) RecordTurn(ctx context.Context, userID uuid.UUID, params types.UpdateProfileParams, transcript string, structuredData map[string]any, mode types.SessionMode) (*types.Session, error) {
	ctx, span := otel.Tracer("MemoryRepo").Start(ctx, "RecordTurn", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "TX"),
		attribute.String("db.user.id", userID.String()),
		attribute.String("session.mode", string(mode)),
	))
	defer span.End()

	raw, err := marshalStructuredData(structuredData)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to encode structured_data: %w", err)
	}

	tx, err := r.pgpool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to start transaction")
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if !params.IsZero() {
		query, args := buildProfileUpdate(userID, params)
		if _, err := scanUser(tx.QueryRow(ctx, query, args...)); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to update profile in turn")
			return nil, fmt.Errorf("failed to update profile in turn for user %s: %w", userID, err)
		}
	}

	insert := `
		INSERT INTO sessions (user_id, transcript, structured_data, mode)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + sessionColumns

	session, err := scanSession(tx.QueryRow(ctx, insert, userID, transcript, raw, string(mode)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to append session in turn")
		return nil, fmt.Errorf("failed to append session in turn for user %s: %w", userID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to commit turn")
		return nil, fmt.Errorf("failed to commit turn for user %s: %w", userID, err)
	}

	span.SetAttributes(attribute.String("session.id", session.SessionID.String()))
	span.SetStatus(codes.Ok, "Turn recorded")
	return session, nil
}

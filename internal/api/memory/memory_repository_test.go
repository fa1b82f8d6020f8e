package memory

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-insurance-assistant/internal/types"
)

var userCols = []string{"id", "phone_number", "user_identifier", "name", "age",
	"location", "insurance_interest", "last_summary", "created_at", "updated_at"}

var sessionCols = []string{"session_id", "user_id", "transcript", "structured_data", "mode", "timestamp"}

func setupRepositoryTest(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPostgresRepository(mockPool, logger), mockPool
}

func emptyUserRow(id uuid.UUID, identifier, phone *string) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(userCols).
		AddRow(id, phone, identifier, (*string)(nil), (*int)(nil), (*string)(nil), (*string)(nil), (*string)(nil), now, now)
}

func TestPostgresRepository_FindUserByIdentity(t *testing.T) {
	ctx := context.Background()

	t.Run("matches on either identity key", func(t *testing.T) {
		repo, mockPool := setupRepositoryTest(t)
		userID := uuid.New()
		identifier := "u-1"

		mockPool.ExpectQuery(`(?s)SELECT .+ FROM users\s+WHERE \(user_identifier = \$1 AND \$1 <> ''\) OR \(phone_number = \$2 AND \$2 <> ''\)\s+ORDER BY created_at, id\s+LIMIT 1`).
			WithArgs("u-1", "").
			WillReturnRows(emptyUserRow(userID, &identifier, nil))

		user, err := repo.FindUserByIdentity(ctx, "u-1", "")
		require.NoError(t, err)
		assert.Equal(t, userID, user.ID)
		require.NotNil(t, user.UserIdentifier)
		assert.Equal(t, "u-1", *user.UserIdentifier)
		assert.Nil(t, user.PhoneNumber)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("no match maps to not found", func(t *testing.T) {
		repo, mockPool := setupRepositoryTest(t)

		mockPool.ExpectQuery(`(?s)FROM users\s+WHERE \(user_identifier`).
			WithArgs("missing", "").
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.FindUserByIdentity(ctx, "missing", "")
		assert.ErrorIs(t, err, types.ErrNotFound)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgresRepository_CreateUser(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts with null-normalized identity keys", func(t *testing.T) {
		repo, mockPool := setupRepositoryTest(t)
		userID := uuid.New()
		phone := "+15550123"

		mockPool.ExpectQuery(`(?s)INSERT INTO users \(user_identifier, phone_number\)\s+VALUES \(NULLIF\(\$1, ''\), NULLIF\(\$2, ''\)\)`).
			WithArgs("", "+15550123").
			WillReturnRows(emptyUserRow(userID, nil, &phone))

		user, err := repo.CreateUser(ctx, "", "+15550123")
		require.NoError(t, err)
		assert.Equal(t, userID, user.ID)
		assert.Nil(t, user.UserIdentifier)
		require.NotNil(t, user.PhoneNumber)
		assert.Equal(t, "+15550123", *user.PhoneNumber)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("unique violation maps to conflict", func(t *testing.T) {
		repo, mockPool := setupRepositoryTest(t)

		mockPool.ExpectQuery(`(?s)INSERT INTO users`).
			WithArgs("u-1", "").
			WillReturnError(&pgconn.PgError{Code: "23505"})

		_, err := repo.CreateUser(ctx, "u-1", "")
		assert.ErrorIs(t, err, types.ErrConflict)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgresRepository_UpdateProfile(t *testing.T) {
	ctx := context.Background()

	t.Run("writes only the provided fields", func(t *testing.T) {
		repo, mockPool := setupRepositoryTest(t)
		userID := uuid.New()
		name := "Alice"
		now := time.Now()

		rows := pgxmock.NewRows(userCols).
			AddRow(userID, (*string)(nil), (*string)(nil), &name, (*int)(nil), (*string)(nil), (*string)(nil), (*string)(nil), now, now)

		mockPool.ExpectQuery(`UPDATE users SET name = \$1, updated_at = \$2 WHERE id = \$3 RETURNING`).
			WithArgs("Alice", pgxmock.AnyArg(), userID).
			WillReturnRows(rows)

		user, err := repo.UpdateProfile(ctx, userID, types.UpdateProfileParams{Name: &name})
		require.NoError(t, err)
		require.NotNil(t, user.Name)
		assert.Equal(t, "Alice", *user.Name)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("empty params degrade to a plain read", func(t *testing.T) {
		repo, mockPool := setupRepositoryTest(t)
		userID := uuid.New()

		mockPool.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
			WithArgs(userID).
			WillReturnRows(emptyUserRow(userID, nil, nil))

		user, err := repo.UpdateProfile(ctx, userID, types.UpdateProfileParams{})
		require.NoError(t, err)
		assert.Equal(t, userID, user.ID)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("unknown user maps to not found", func(t *testing.T) {
		repo, mockPool := setupRepositoryTest(t)
		userID := uuid.New()
		loc := "Lisbon"

		mockPool.ExpectQuery(`UPDATE users SET location = \$1, updated_at = \$2 WHERE id = \$3`).
			WithArgs("Lisbon", pgxmock.AnyArg(), userID).
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.UpdateProfile(ctx, userID, types.UpdateProfileParams{Location: &loc})
		assert.ErrorIs(t, err, types.ErrNotFound)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgresRepository_CreateSession(t *testing.T) {
	ctx := context.Background()

	t.Run("appends one row with encoded structured data", func(t *testing.T) {
		repo, mockPool := setupRepositoryTest(t)
		userID := uuid.New()
		sessionID := uuid.New()
		transcript := "User: hi\nAI: hello"

		rows := pgxmock.NewRows(sessionCols).
			AddRow(sessionID, userID, transcript, []byte(`{"intent":"greeting"}`), types.ModeChat, time.Now())

		mockPool.ExpectQuery(`(?s)INSERT INTO sessions \(user_id, transcript, structured_data, mode\)`).
			WithArgs(userID, transcript, []byte(`{"intent":"greeting"}`), "chat").
			WillReturnRows(rows)

		session, err := repo.CreateSession(ctx, userID, transcript, map[string]any{"intent": "greeting"}, types.ModeChat)
		require.NoError(t, err)
		assert.Equal(t, sessionID, session.SessionID)
		assert.Equal(t, types.ModeChat, session.Mode)
		assert.Equal(t, "greeting", session.StructuredData["intent"])
		require.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("empty structured data stays null", func(t *testing.T) {
		repo, mockPool := setupRepositoryTest(t)
		userID := uuid.New()
		sessionID := uuid.New()

		rows := pgxmock.NewRows(sessionCols).
			AddRow(sessionID, userID, "[Voice Session Started]", []byte(nil), types.ModeVoice, time.Now())

		mockPool.ExpectQuery(`(?s)INSERT INTO sessions`).
			WithArgs(userID, "[Voice Session Started]", []byte(nil), "voice").
			WillReturnRows(rows)

		session, err := repo.CreateSession(ctx, userID, "[Voice Session Started]", nil, types.ModeVoice)
		require.NoError(t, err)
		assert.Nil(t, session.StructuredData)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgresRepository_GetRecentSessions(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the window oldest first", func(t *testing.T) {
		repo, mockPool := setupRepositoryTest(t)
		userID := uuid.New()
		older := time.Now().Add(-time.Hour)
		newer := time.Now()

		rows := pgxmock.NewRows(sessionCols).
			AddRow(uuid.New(), userID, "first", []byte(nil), types.ModeChat, older).
			AddRow(uuid.New(), userID, "second", []byte(nil), types.ModeChat, newer)

		mockPool.ExpectQuery(`(?s)ORDER BY timestamp DESC, session_id DESC\s+LIMIT \$2`).
			WithArgs(userID, 3).
			WillReturnRows(rows)

		sessions, err := repo.GetRecentSessions(ctx, userID, 3)
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		assert.Equal(t, "first", sessions[0].Transcript)
		assert.Equal(t, "second", sessions[1].Transcript)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("no sessions yields an empty slice", func(t *testing.T) {
		repo, mockPool := setupRepositoryTest(t)
		userID := uuid.New()

		mockPool.ExpectQuery(`(?s)ORDER BY timestamp DESC, session_id DESC`).
			WithArgs(userID, 3).
			WillReturnRows(pgxmock.NewRows(sessionCols))

		sessions, err := repo.GetRecentSessions(ctx, userID, 3)
		require.NoError(t, err)
		assert.Empty(t, sessions)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgresRepository_RecordTurn(t *testing.T) {
	ctx := context.Background()

	t.Run("merge and append commit together", func(t *testing.T) {
		repo, mockPool := setupRepositoryTest(t)
		userID := uuid.New()
		sessionID := uuid.New()
		name := "Alice"

		mockPool.ExpectBegin()
		mockPool.ExpectQuery(`UPDATE users SET name = \$1, updated_at = \$2 WHERE id = \$3`).
			WithArgs("Alice", pgxmock.AnyArg(), userID).
			WillReturnRows(emptyUserRow(userID, nil, nil))
		mockPool.ExpectQuery(`(?s)INSERT INTO sessions`).
			WithArgs(userID, "User: hi\nAI: hello", pgxmock.AnyArg(), "chat").
			WillReturnRows(pgxmock.NewRows(sessionCols).
				AddRow(sessionID, userID, "User: hi\nAI: hello", []byte(nil), types.ModeChat, time.Now()))
		mockPool.ExpectCommit()

		session, err := repo.RecordTurn(ctx, userID, types.UpdateProfileParams{Name: &name},
			"User: hi\nAI: hello", map[string]any{"name": "Alice"}, types.ModeChat)
		require.NoError(t, err)
		assert.Equal(t, sessionID, session.SessionID)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("empty params skip the profile update", func(t *testing.T) {
		repo, mockPool := setupRepositoryTest(t)
		userID := uuid.New()
		sessionID := uuid.New()

		mockPool.ExpectBegin()
		mockPool.ExpectQuery(`(?s)INSERT INTO sessions`).
			WithArgs(userID, "User: hi\nAI: hello", []byte(nil), "voice-emulated").
			WillReturnRows(pgxmock.NewRows(sessionCols).
				AddRow(sessionID, userID, "User: hi\nAI: hello", []byte(nil), types.ModeVoiceEmulated, time.Now()))
		mockPool.ExpectCommit()

		session, err := repo.RecordTurn(ctx, userID, types.UpdateProfileParams{},
			"User: hi\nAI: hello", nil, types.ModeVoiceEmulated)
		require.NoError(t, err)
		assert.Equal(t, types.ModeVoiceEmulated, session.Mode)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("append failure rolls the merge back", func(t *testing.T) {
		repo, mockPool := setupRepositoryTest(t)
		userID := uuid.New()
		name := "Alice"

		mockPool.ExpectBegin()
		mockPool.ExpectQuery(`UPDATE users SET name = \$1`).
			WithArgs("Alice", pgxmock.AnyArg(), userID).
			WillReturnRows(emptyUserRow(userID, nil, nil))
		mockPool.ExpectQuery(`(?s)INSERT INTO sessions`).
			WithArgs(userID, "t", pgxmock.AnyArg(), "chat").
			WillReturnError(&pgconn.PgError{Code: "53300"})
		mockPool.ExpectRollback()

		_, err := repo.RecordTurn(ctx, userID, types.UpdateProfileParams{Name: &name},
			"t", map[string]any{"name": "Alice"}, types.ModeChat)
		require.Error(t, err)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})
}

package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"coursebot/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestUserRepo_EnsureUser(t *testing.T) {
	tests := []struct {
		name     string
		inserted bool
	}{
		{name: "new user", inserted: true},
		{name: "existing user", inserted: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			assert.NoError(t, err)
			defer db.Close()

			repo := NewUserRepo(db)

			mock.ExpectQuery("INSERT INTO users").
				WithArgs(int64(123), "jan", "Jan").
				WillReturnRows(sqlmock.NewRows([]string{"inserted"}).AddRow(tt.inserted))

			created, err := repo.EnsureUser(context.Background(), &domain.User{UserID: 123, Username: "jan", FirstName: "Jan"})

			assert.NoError(t, err)
			assert.Equal(t, tt.inserted, created)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUserRepo_Get(t *testing.T) {
	columns := []string{"user_id", "username", "first_name", "email", "is_admin", "active", "last_lesson", "completed", "completed_at", "created_at"}
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		mockRows      *sqlmock.Rows
		mockError     error
		expectedError error
		expectDone    bool
	}{
		{
			name:     "active user",
			mockRows: sqlmock.NewRows(columns).AddRow(int64(1), "jan", "Jan", "", false, true, 3, false, nil, created),
		},
		{
			name:       "completed user",
			mockRows:   sqlmock.NewRows(columns).AddRow(int64(1), "jan", "Jan", "jan@example.com", false, true, 9, true, created, created),
			expectDone: true,
		},
		{
			name:          "user not exists",
			mockError:     sql.ErrNoRows,
			expectedError: domain.ErrUserNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			assert.NoError(t, err)
			defer db.Close()

			repo := NewUserRepo(db)

			expect := mock.ExpectQuery("SELECT user_id, username, first_name").WithArgs(int64(1))
			if tt.mockError != nil {
				expect.WillReturnError(tt.mockError)
			} else {
				expect.WillReturnRows(tt.mockRows)
			}

			user, err := repo.Get(context.Background(), 1)

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Nil(t, user)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, int64(1), user.UserID)
				assert.Equal(t, tt.expectDone, user.Completed)
				assert.Equal(t, tt.expectDone, user.CompletedAt != nil)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUserRepo_UpdateProgress(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := NewUserRepo(db)

	mock.ExpectExec("UPDATE users SET last_lesson").
		WithArgs(int64(5), 2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.UpdateProgress(context.Background(), 5, 2)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_SetActive_UnknownUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := NewUserRepo(db)

	mock.ExpectExec("UPDATE users SET active").
		WithArgs(int64(5), false).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.SetActive(context.Background(), 5, false)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_IsAdmin(t *testing.T) {
	tests := []struct {
		name      string
		mockRows  *sqlmock.Rows
		mockError error
		expected  bool
	}{
		{name: "admin", mockRows: sqlmock.NewRows([]string{"is_admin"}).AddRow(true), expected: true},
		{name: "regular user", mockRows: sqlmock.NewRows([]string{"is_admin"}).AddRow(false), expected: false},
		{name: "user not exists", mockError: sql.ErrNoRows, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			assert.NoError(t, err)
			defer db.Close()

			repo := NewUserRepo(db)

			query := "SELECT is_admin FROM users WHERE user_id = \\$1"
			if tt.mockError != nil {
				mock.ExpectQuery(query).WithArgs(int64(77)).WillReturnError(tt.mockError)
			} else {
				mock.ExpectQuery(query).WithArgs(int64(77)).WillReturnRows(tt.mockRows)
			}

			admin, err := repo.IsAdmin(context.Background(), 77)

			assert.NoError(t, err)
			assert.Equal(t, tt.expected, admin)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUserRepo_ListActive(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := NewUserRepo(db)

	mock.ExpectQuery("SELECT user_id FROM users WHERE active = TRUE").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(int64(1)).AddRow(int64(4)))

	ids, err := repo.ListActive(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, []int64{1, 4}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_Stats(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := NewUserRepo(db)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"total", "active", "completed", "with_email"}).AddRow(10, 7, 2, 3))

	stats, err := repo.Stats(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, &domain.UserStats{Total: 10, Active: 7, Completed: 2, WithEmail: 3}, stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

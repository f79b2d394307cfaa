// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/traylinx/tess/internal/config"
	"github.com/traylinx/tess/internal/provider"
	"github.com/traylinx/tess/internal/util"
)

func newMock(t *testing.T, driver string) (*HistoryStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, driver), mock
}

func TestBind(t *testing.T) {
	pg := New(nil, config.HistoryPostgres)
	assert.Equal(t, "a = $1 AND b <= $2", pg.bind("a = ? AND b <= ?"))

	lite := New(nil, config.HistorySQLite)
	assert.Equal(t, "a = ? AND b <= ?", lite.bind("a = ? AND b <= ?"))
}

func TestLoad_ReturnsOldestFirst(t *testing.T) {
	s, mock := newMock(t, config.HistoryPostgres)

	rows := sqlmock.NewRows([]string{"role", "content"}).
		AddRow("assistant", `{"action":"reply","content":"hi"}`).
		AddRow("user", "hello")
	mock.ExpectQuery("SELECT role, content FROM tess_history WHERE session_id = $1 ORDER BY seq DESC LIMIT $2").
		WithArgs("console", 4).
		WillReturnRows(rows)

	msgs, err := s.Load(context.Background(), "console", 4)
	require.NoError(t, err)
	assert.Equal(t, []provider.Message{
		{Role: provider.RoleUser, Content: "hello"},
		{Role: provider.RoleAssistant, Content: `{"action":"reply","content":"hi"}`},
	}, msgs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppend_TrimsBeyondLimit(t *testing.T) {
	s, mock := newMock(t, config.HistorySQLite)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COALESCE(MAX(seq), 0) FROM tess_history WHERE session_id = ?").
		WithArgs("console").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(4))
	insert := "INSERT INTO tess_history (session_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?)"
	mock.ExpectExec(insert).WithArgs("console", int64(5), "user", "open firefox", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insert).WithArgs("console", int64(6), "assistant", "{}", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM tess_history WHERE session_id = ? AND seq <= ?").
		WithArgs("console", int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := s.Append(context.Background(), "console", 4,
		provider.Message{Role: provider.RoleUser, Content: "open firefox"},
		provider.Message{Role: provider.RoleAssistant, Content: "{}"},
	)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppend_RollsBackOnError(t *testing.T) {
	s, mock := newMock(t, config.HistorySQLite)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COALESCE(MAX(seq), 0) FROM tess_history WHERE session_id = ?").
		WithArgs("console").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(0))
	mock.ExpectExec("INSERT INTO tess_history (session_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?)").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.Append(context.Background(), "console", 0, provider.Message{Role: provider.RoleUser, Content: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppend_NothingToStore(t *testing.T) {
	s, mock := newMock(t, config.HistorySQLite)
	require.NoError(t, s.Append(context.Background(), "console", 10))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClear(t *testing.T) {
	s, mock := newMock(t, config.HistoryPostgres)
	mock.ExpectExec("DELETE FROM tess_history WHERE session_id = $1").
		WithArgs("console").
		WillReturnResult(sqlmock.NewResult(0, 3))
	require.NoError(t, s.Clear(context.Background(), "console"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_SQLiteRoundTrip(t *testing.T) {
	t.Setenv("TESS_STATE_DIR", t.TempDir())
	state, err := util.NewStateDir()
	require.NoError(t, err)

	ctx := context.Background()
	s, err := Open(ctx, config.HistoryConfig{Persist: true, Driver: config.HistorySQLite, DSN: "db/history.db"}, state)
	require.NoError(t, err)
	defer s.Close()
	assert.FileExists(t, filepath.Join(state.Root(), "db", "history.db"))

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Append(ctx, "console", 4,
			provider.Message{Role: provider.RoleUser, Content: "cmd"},
			provider.Message{Role: provider.RoleAssistant, Content: "resp"},
		))
	}
	msgs, err := s.Load(ctx, "console", 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 4)
	assert.Equal(t, provider.RoleUser, msgs[0].Role)

	other, err := s.Load(ctx, "other", 10)
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, s.Clear(ctx, "console"))
	msgs, err = s.Load(ctx, "console", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	t.Setenv("TESS_STATE_DIR", t.TempDir())
	state, err := util.NewStateDir()
	require.NoError(t, err)
	_, err = Open(context.Background(), config.HistoryConfig{Driver: "mongo"}, state)
	assert.Error(t, err)
}

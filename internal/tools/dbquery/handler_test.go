// internal/tools/dbquery/handler_test.go
package dbquery

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-voice-agent/internal/common/logger"
)

func newTestHandler(t *testing.T) (*Handler, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := DefaultConfig()
	cfg.Timeout = 2 * time.Second
	return NewHandler(cfg, db, logger.NewTestLogger(t)), mock
}

func TestExecuteRecentSessions(t *testing.T) {
	h, mock := newTestHandler(t)

	now := time.Now()
	mock.ExpectQuery("SELECT session_id, room_name, turn_count, started_at FROM agent_sessions").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "room_name", "turn_count", "started_at"}).
			AddRow("s1", "room-a", 3, now).
			AddRow("s2", "room-b", 1, now))

	out, err := h.Execute(context.Background(), "recent_sessions", map[string]interface{}{"limit": 5})
	require.NoError(t, err)

	assert.Equal(t, 2, out.RowCount)
	assert.Equal(t, "s1", out.Data[0]["session_id"])
	assert.Equal(t, "room-b", out.Data[1]["room_name"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteUnknownQuery(t *testing.T) {
	h, _ := newTestHandler(t)

	_, err := h.Execute(context.Background(), "drop_tables", nil)
	require.ErrorIs(t, err, ErrInvalidQueryName)
}

func TestExecuteMissingParam(t *testing.T) {
	h, _ := newTestHandler(t)

	_, err := h.Execute(context.Background(), "session_by_room", map[string]interface{}{})
	require.ErrorIs(t, err, ErrInvalidQueryName)
	assert.Contains(t, err.Error(), "room_name")
}

func TestExecuteQueryError(t *testing.T) {
	h, mock := newTestHandler(t)

	mock.ExpectQuery("SELECT relname AS table_name").
		WithArgs("missing_table").
		WillReturnError(assert.AnError)

	_, err := h.Execute(context.Background(), "table_row_count", map[string]interface{}{"table_name": "missing_table"})
	require.ErrorIs(t, err, ErrQueryExecutionFailed)
}

func TestExecuteByteColumnsDecoded(t *testing.T) {
	h, mock := newTestHandler(t)

	mock.ExpectQuery("SELECT relname AS table_name").
		WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "row_count"}).
			AddRow([]byte("users"), 42))

	out, err := h.Execute(context.Background(), "table_row_count", map[string]interface{}{"table_name": "users"})
	require.NoError(t, err)
	assert.Equal(t, "users", out.Data[0]["table_name"])
}

func TestToolDeclaration(t *testing.T) {
	h, _ := newTestHandler(t)
	tool := h.Tool()

	assert.Equal(t, ToolName, tool.Name)

	props := tool.InputSchema["properties"].(map[string]interface{})
	queryName := props["query_name"].(map[string]interface{})
	enum := queryName["enum"].([]interface{})
	assert.Contains(t, enum, "recent_sessions")
	assert.Contains(t, enum, "session_by_room")
	assert.Contains(t, enum, "table_row_count")
}

// internal/tools/dbquery/handler.go
package dbquery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"mcp-voice-agent/internal/common/logger"
	"mcp-voice-agent/internal/tools"
)

const (
	ToolName = "db_query"
)

var (
	ErrQueryExecutionFailed = errors.New("DATABASE_QUERY_FAILED")
	ErrQueryTimeout         = errors.New("QUERY_TIMEOUT")
	ErrInvalidQueryName     = errors.New("INVALID_QUERY_NAME")
)

// Output is the tool result for one executed query.
type Output struct {
	Data               []map[string]interface{} `json:"data"`
	RowCount           int                      `json:"rowCount"`
	QueryExecutionTime string                   `json:"queryExecutionTime"`
}

// Handler runs allow-listed read-only queries against the configured
// Postgres database.
type Handler struct {
	config *Config
	db     *sql.DB
	logger logger.Logger
}

func NewHandler(config *Config, db *sql.DB, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		db:     db,
		logger: log.With(map[string]interface{}{"tool": ToolName}),
	}
}

// Tool exposes the handler as a registry tool.
func (h *Handler) Tool() tools.Tool {
	names := QueryNames()
	sort.Strings(names)
	asAny := make([]interface{}, len(names))
	for i, n := range names {
		asAny[i] = n
	}

	return tools.Tool{
		Name:        ToolName,
		Description: "Run a named read-only query against the project database. Available queries: " + strings.Join(names, ", "),
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query_name": map[string]interface{}{
					"type":        "string",
					"enum":        asAny,
					"description": "Which allow-listed query to run",
				},
				"params": map[string]interface{}{
					"type":        "object",
					"description": "Named parameters for the query",
				},
			},
			"required": []interface{}{"query_name"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			queryName, _ := args["query_name"].(string)
			params, _ := args["params"].(map[string]interface{})
			return h.Execute(ctx, queryName, params)
		},
	}
}

// Execute runs one named query with its parameters in declaration order.
func (h *Handler) Execute(ctx context.Context, queryName string, params map[string]interface{}) (*Output, error) {
	query, exists := queryRegistry[queryName]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrInvalidQueryName, queryName)
	}

	args := make([]interface{}, 0, len(query.Params))
	for _, p := range query.Params {
		val, ok := params[p]
		if !ok {
			return nil, fmt.Errorf("%w: missing parameter %q for query %s", ErrInvalidQueryName, p, queryName)
		}
		args = append(args, val)
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	start := time.Now()
	rows, err := h.db.QueryContext(ctx, query.SQL, args...)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrQueryTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrQueryExecutionFailed, err)
	}
	defer rows.Close()

	data, err := h.scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryExecutionFailed, err)
	}

	h.logger.Info("query executed", map[string]interface{}{
		"queryName": queryName,
		"rowCount":  len(data),
	})

	return &Output{
		Data:               data,
		RowCount:           len(data),
		QueryExecutionTime: time.Since(start).String(),
	}, nil
}

func (h *Handler) scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	data := make([]map[string]interface{}, 0)
	for rows.Next() {
		if len(data) >= h.config.MaxRows {
			break
		}

		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			val := values[i]
			if b, ok := val.([]byte); ok {
				val = string(b)
			}
			row[col] = val
		}
		data = append(data, row)
	}

	return data, rows.Err()
}

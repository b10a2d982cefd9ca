// internal/tools/dbquery/config.go
package dbquery

import "time"

type Config struct {
	Timeout time.Duration
	MaxRows int
}

func DefaultConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
		MaxRows: 100,
	}
}

// namedQuery is one allow-listed read-only statement. The model picks by
// name and supplies positional parameters; it never sends raw SQL.
type namedQuery struct {
	SQL         string
	Description string
	Params      []string
}

var queryRegistry = map[string]namedQuery{
	"recent_sessions": {
		SQL:         `SELECT session_id, room_name, turn_count, started_at FROM agent_sessions ORDER BY started_at DESC LIMIT $1`,
		Description: "List the most recent agent sessions",
		Params:      []string{"limit"},
	},
	"session_by_room": {
		SQL:         `SELECT session_id, room_name, turn_count, started_at FROM agent_sessions WHERE room_name = $1 ORDER BY started_at DESC LIMIT 10`,
		Description: "List sessions for a given room",
		Params:      []string{"room_name"},
	},
	"table_row_count": {
		SQL:         `SELECT relname AS table_name, n_live_tup AS row_count FROM pg_stat_user_tables WHERE relname = $1`,
		Description: "Approximate row count for a table",
		Params:      []string{"table_name"},
	},
}

// QueryNames returns the allow-listed query names.
func QueryNames() []string {
	names := make([]string, 0, len(queryRegistry))
	for name := range queryRegistry {
		names = append(names, name)
	}
	return names
}

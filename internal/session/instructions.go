// internal/session/instructions.go
package session

import (
	"fmt"
	"strings"
)

const baseInstructions = `You are a helpful voice assistant. Keep answers short and conversational, they will be spoken aloud. Use the web_search tool when the user asks about current events or facts you are not sure about.`

const databaseInstructions = `You also have direct access to the project's database through the following tools: %s. Use them when the user asks about their data, tables, or records. Prefer list_tables first when you do not know the schema.`

// BuildInstructions assembles the system prompt. The database paragraph is
// only present when MCP tools were successfully registered, so the model
// never promises capabilities it does not have.
func BuildInstructions(dbToolNames []string) string {
	if len(dbToolNames) == 0 {
		return baseInstructions
	}

	return baseInstructions + "\n\n" + fmt.Sprintf(databaseInstructions, strings.Join(dbToolNames, ", "))
}

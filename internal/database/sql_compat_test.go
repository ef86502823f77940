package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvertPlaceholders(t *testing.T) {
	t.Run("SQLitePassesThrough", func(t *testing.T) {
		SetActiveDriver(DriverSQLite)
		defer SetActiveDriver(DriverSQLite)

		query := "SELECT id FROM users WHERE username = ? AND user_type = ?"
		assert.Equal(t, query, ConvertPlaceholders(query))
	})

	t.Run("MySQLPassesThrough", func(t *testing.T) {
		SetActiveDriver(DriverMySQL)
		defer SetActiveDriver(DriverSQLite)

		query := "UPDATE sessions SET last_activity = ? WHERE session_id = ?"
		assert.Equal(t, query, ConvertPlaceholders(query))
	})

	t.Run("PostgresNumbersPlaceholders", func(t *testing.T) {
		SetActiveDriver(DriverPostgres)
		defer SetActiveDriver(DriverSQLite)

		got := ConvertPlaceholders("INSERT INTO users (username, user_type) VALUES (?, ?)")
		assert.Equal(t, "INSERT INTO users (username, user_type) VALUES ($1, $2)", got)
	})

	t.Run("DollarPlaceholdersPanic", func(t *testing.T) {
		SetActiveDriver(DriverSQLite)
		assert.Panics(t, func() {
			ConvertPlaceholders("SELECT * FROM users WHERE id = $1")
		})
	})
}

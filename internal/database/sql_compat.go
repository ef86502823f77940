package database

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

var (
	driverMu     sync.RWMutex
	activeDriver = DriverSQLite
)

// SetActiveDriver records the driver the repositories are running
// against. Called by Open; exposed for tests.
func SetActiveDriver(driver string) {
	driverMu.Lock()
	defer driverMu.Unlock()
	activeDriver = driver
}

// ActiveDriver returns the driver recorded by Open.
func ActiveDriver() string {
	driverMu.RLock()
	defer driverMu.RUnlock()
	return activeDriver
}

// IsPostgres reports whether the active driver is PostgreSQL.
func IsPostgres() bool {
	return ActiveDriver() == DriverPostgres
}

var dollarPlaceholder = regexp.MustCompile(`\$\d+`)

// ConvertPlaceholders converts SQL placeholders to the format required
// by the active driver. Only ? placeholders are allowed in repository
// queries; $N placeholders panic so they cannot creep in.
//   - PostgreSQL: ? -> $1, $2, ...
//   - SQLite/MySQL: ? passed through as-is
func ConvertPlaceholders(query string) string {
	if dollarPlaceholder.MatchString(query) {
		panic(fmt.Sprintf("ConvertPlaceholders: $N placeholders are not allowed, use ?\nQuery: %s", query))
	}

	if !IsPostgres() || !strings.Contains(query, "?") {
		return query
	}

	var result strings.Builder
	paramNum := 1
	for _, c := range query {
		if c == '?' {
			fmt.Fprintf(&result, "$%d", paramNum)
			paramNum++
		} else {
			result.WriteRune(c)
		}
	}
	return result.String()
}

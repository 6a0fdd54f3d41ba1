package migrations

import (
	"github.com/Polkamarkets/particle-bundler-server/core/migrator"
)

// Migrations contains the list of database migrations to be applied.
// The name of the migration is recorded in our key-value store and sorted
// lexicographically, so we prefix it with a timestamp in YYYYMMDD-HHMMSS
// format. Not a requirement but strongly recommended.
var Migrations = []migrator.Migration{
	{
		Name:     "20260610-093000-lowercase-userop-hash",
		Function: LowercaseUserOpHash,
	},
	// Each migration should be added to this list
}

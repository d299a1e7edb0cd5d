package auth

import (
	"context"
	"database/sql"
	"errors"

	"github.com/eskrenkovic/numbers-party/internal/modules/auth/domain"
	"github.com/eskrenkovic/numbers-party/internal/modules/core"
)

// WarmScanCache prepares the row types scanned by login and the
// authentication middleware.
func WarmScanCache(ctx context.Context, db *sql.DB) error {
	return errors.Join(
		core.WarmScan[domain.User](ctx, db, `SELECT 0 AS total_wins;`),
		core.WarmScan[domain.TokenSession](ctx, db, `SELECT '' AS username;`),
	)
}

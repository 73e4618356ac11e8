package mysql

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql"

	"github.com/bryanwahyu/scanpipe/internal/infra/db"
)

// Connect opens a pooled MySQL handle. The DSN needs parseTime=true.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	return db.Open(ctx, "mysql", dsn, db.DefaultPool)
}

package migration

import (
	"database/sql"

	"github.com/pressly/goose"
)

func init() {
	goose.AddMigration(Up00002, Down00002)
}

// Up00002 indexes jobs for lookups by product and by recency
func Up00002(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE INDEX idx_jobs_order_product ON jobs (order_id, product_id);
		CREATE INDEX idx_jobs_started_at ON jobs (started_at);`)
	return err
}

// Down00002 undoes the effects of Up00002
func Down00002(tx *sql.Tx) error {
	_, err := tx.Exec(`
		DROP INDEX IF EXISTS idx_jobs_started_at;
		DROP INDEX IF EXISTS idx_jobs_order_product;`)
	return err
}

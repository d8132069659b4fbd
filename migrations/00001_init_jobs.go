package migration

import (
	"database/sql"

	"github.com/pressly/goose"
)

func init() {
	goose.AddMigration(Up00001, Down00001)
}

// Up00001 creates the job history table
func Up00001(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE jobs (
			id             VARCHAR(36) PRIMARY KEY,
			order_id       VARCHAR(255) NOT NULL,
			product_id     VARCHAR(255) NOT NULL,
			product_type   VARCHAR(64) NOT NULL,
			processing_loc VARCHAR(255) NOT NULL DEFAULT '',
			status         VARCHAR(32) NOT NULL,
			product_file   TEXT NOT NULL DEFAULT '',
			cksum_file     TEXT NOT NULL DEFAULT '',
			error_message  TEXT NOT NULL DEFAULT '',
			started_at     BIGINT NOT NULL,
			updated_at     BIGINT NOT NULL
		);`)
	return err
}

// Down00001 drops the job history table
func Down00001(tx *sql.Tx) error {
	_, err := tx.Exec(`DROP TABLE IF EXISTS jobs;`)
	return err
}

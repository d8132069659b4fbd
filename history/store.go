// Package history records what the worker did with each product request.
package history

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/djzelenak/espa-worker/model"
)

// Job statuses. Running jobs have not reported an outcome yet.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// ErrNotFound is returned when no job matches
var ErrNotFound = errors.New("job not found")

// Job is one attempt at processing a product
type Job struct {
	ID                 string    `json:"id"`
	OrderID            string    `json:"orderid"`
	ProductID          string    `json:"product_id"`
	ProductType        string    `json:"product_type"`
	ProcessingLocation string    `json:"processing_loc"`
	Status             string    `json:"status"`
	ProductFile        string    `json:"product_file,omitempty"`
	CksumFile          string    `json:"cksum_file,omitempty"`
	ErrorMessage       string    `json:"error_message,omitempty"`
	StartedAt          time.Time `json:"started_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Store reads and writes job history
type Store struct {
	db  *DB
	Now func() time.Time
}

// NewStore wraps an open, migrated database
func NewStore(db *DB) *Store {
	return &Store{db: db, Now: time.Now}
}

// rebind converts ? placeholders to $n for postgres
func (s *Store) rebind(query string) string {
	if s.db.Dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...interface{}) error {
	_, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	return errors.WithStack(err)
}

// Start records that processing began and returns the job ID
func (s *Store) Start(ctx context.Context, req model.ProductRequest, location string) (string, error) {
	id := uuid.New().String()
	now := s.Now().Unix()
	productID := req.ProductID
	if productID == "" {
		productID = req.Scene
	}
	err := s.exec(ctx, `
		INSERT INTO jobs (id, order_id, product_id, product_type, processing_loc, status, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, req.OrderID, productID, req.ProductType, location, StatusRunning, now, now)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Complete records the delivered product
func (s *Store) Complete(ctx context.Context, id string, delivery model.Delivery) error {
	return s.exec(ctx, `
		UPDATE jobs SET status = ?, product_file = ?, cksum_file = ?, updated_at = ?
		WHERE id = ?`,
		StatusComplete, delivery.ProductFile, delivery.CksumFile, s.Now().Unix(), id)
}

// Fail records the error that stopped processing
func (s *Store) Fail(ctx context.Context, id, message string) error {
	return s.exec(ctx, `
		UPDATE jobs SET status = ?, error_message = ?, updated_at = ?
		WHERE id = ?`,
		StatusFailed, message, s.Now().Unix(), id)
}

const selectJobs = `
	SELECT id, order_id, product_id, product_type, processing_loc, status,
		product_file, cksum_file, error_message, started_at, updated_at
	FROM jobs`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row scanner) (Job, error) {
	var job Job
	var started, updated int64
	err := row.Scan(&job.ID, &job.OrderID, &job.ProductID, &job.ProductType, &job.ProcessingLocation,
		&job.Status, &job.ProductFile, &job.CksumFile, &job.ErrorMessage, &started, &updated)
	if err != nil {
		return job, err
	}
	job.StartedAt = time.Unix(started, 0).UTC()
	job.UpdatedAt = time.Unix(updated, 0).UTC()
	return job, nil
}

// Get returns the latest job for a product
func (s *Store) Get(ctx context.Context, orderID, productID string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(selectJobs+`
		WHERE order_id = ? AND product_id = ?
		ORDER BY started_at DESC, updated_at DESC
		LIMIT 1`), orderID, productID)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &job, nil
}

// Recent returns up to limit jobs, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(selectJobs+`
		ORDER BY started_at DESC, updated_at DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		jobs = append(jobs, job)
	}
	return jobs, errors.WithStack(rows.Err())
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrIdempotencyConflict indicates an idempotency key reuse with a different payload.
var ErrIdempotencyConflict = errors.New("idempotency key reused with different request")

// Payment statuses tracked by the gateway.
const (
	StatusPending   = "PENDING"
	StatusConfirmed = "CONFIRMED"
	StatusFailed    = "FAILED"
)

// Payment kinds.
const (
	KindRoyalty = "royalty"
	KindFee     = "fee"
)

// SQLiteStore persists payments, idempotency records and the audit log.
type SQLiteStore struct {
	db *sql.DB
}

// PaymentRecord is a royalty or fee submission routed through the gateway.
type PaymentRecord struct {
	ID          string
	Kind        string
	ReceiverIP  string
	PayerIP     string
	Token       string
	Amount      string
	Status      string
	SubmittedBy string
	Detail      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IdempotencyRecord caches a completed response for an idempotency key.
type IdempotencyRecord struct {
	Key            string
	RequestHash    string
	ResponseStatus int
	ResponseBody   []byte
	CreatedAt      time.Time
}

// AuditEntry captures a single request/response pair.
type AuditEntry struct {
	Actor          string
	Method         string
	Path           string
	RequestBody    string
	ResponseStatus int
	ResponseBody   string
	Timestamp      time.Time
}

// NewSQLiteStore opens the database at path and ensures the schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			receiver_ip TEXT NOT NULL,
			payer_ip TEXT NOT NULL DEFAULT '',
			token TEXT NOT NULL,
			amount TEXT NOT NULL,
			status TEXT NOT NULL,
			submitted_by TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS idempotency_keys (
			key TEXT PRIMARY KEY,
			request_hash TEXT NOT NULL,
			response_status INTEGER NOT NULL,
			response_body BLOB NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			occurred_at TIMESTAMP NOT NULL,
			actor TEXT NOT NULL DEFAULT '',
			method TEXT NOT NULL,
			path TEXT NOT NULL,
			request_body TEXT NOT NULL,
			response_status INTEGER NOT NULL,
			response_body TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InsertPayment stores a new payment record.
func (s *SQLiteStore) InsertPayment(ctx context.Context, rec PaymentRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO payments
		(id, kind, receiver_ip, payer_ip, token, amount, status, submitted_by, detail, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Kind, rec.ReceiverIP, rec.PayerIP, rec.Token, rec.Amount,
		rec.Status, rec.SubmittedBy, rec.Detail, rec.CreatedAt.UTC(), rec.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// UpdatePaymentStatus transitions a payment and records an optional detail message.
func (s *SQLiteStore) UpdatePaymentStatus(ctx context.Context, id, status, detail string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE payments SET status = ?, detail = ?, updated_at = ? WHERE id = ?`,
		status, detail, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("payment %s not found", id)
	}
	return nil
}

// GetPayment returns the payment with the given id, or nil when absent.
func (s *SQLiteStore) GetPayment(ctx context.Context, id string) (*PaymentRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, kind, receiver_ip, payer_ip, token, amount,
		status, submitted_by, detail, created_at, updated_at FROM payments WHERE id = ?`, id)
	rec, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return rec, nil
}

// ListPayments returns payments created inside [start, end) ordered by creation time.
func (s *SQLiteStore) ListPayments(ctx context.Context, start, end time.Time) ([]PaymentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, kind, receiver_ip, payer_ip, token, amount,
		status, submitted_by, detail, created_at, updated_at FROM payments
		WHERE created_at >= ? AND created_at < ? ORDER BY created_at ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()
	var out []PaymentRecord
	for rows.Next() {
		rec, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("list payments: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*PaymentRecord, error) {
	var rec PaymentRecord
	if err := row.Scan(&rec.ID, &rec.Kind, &rec.ReceiverIP, &rec.PayerIP, &rec.Token,
		&rec.Amount, &rec.Status, &rec.SubmittedBy, &rec.Detail, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

// LookupIdempotency returns the cached response for key, enforcing payload equality.
func (s *SQLiteStore) LookupIdempotency(ctx context.Context, key, requestHash string) (*IdempotencyRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT key, request_hash, response_status, response_body, created_at
		FROM idempotency_keys WHERE key = ?`, key)
	var rec IdempotencyRecord
	err := row.Scan(&rec.Key, &rec.RequestHash, &rec.ResponseStatus, &rec.ResponseBody, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup idempotency: %w", err)
	}
	if rec.RequestHash != requestHash {
		return nil, ErrIdempotencyConflict
	}
	return &rec, nil
}

// SaveIdempotency records the response served for an idempotency key.
func (s *SQLiteStore) SaveIdempotency(ctx context.Context, rec IdempotencyRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO idempotency_keys
		(key, request_hash, response_status, response_body, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.Key, rec.RequestHash, rec.ResponseStatus, rec.ResponseBody, rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save idempotency: %w", err)
	}
	return nil
}

// InsertAudit appends an entry to the audit log.
func (s *SQLiteStore) InsertAudit(ctx context.Context, entry AuditEntry) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO audit_log
		(occurred_at, actor, method, path, request_body, response_status, response_body)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Timestamp.UTC(), entry.Actor, entry.Method, entry.Path,
		entry.RequestBody, entry.ResponseStatus, entry.ResponseBody)
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

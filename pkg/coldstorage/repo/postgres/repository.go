package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/blobtier/pkg/blobtier"
	"github.com/tendant/blobtier/pkg/blobtier/txn"
	"github.com/tendant/blobtier/pkg/coldstorage"
)

// Schema creates the document table.
const Schema = `
CREATE TABLE IF NOT EXISTS coldstorage_document (
	id                     UUID PRIMARY KEY,
	name                   TEXT NOT NULL DEFAULT '',
	content                JSONB,
	cold_content           JSONB,
	being_retrieved        BOOLEAN NOT NULL DEFAULT FALSE,
	retrieval_requested_at TIMESTAMPTZ,
	retrieval_days         INTEGER NOT NULL DEFAULT 0,
	available_until        TIMESTAMPTZ,
	created_at             TIMESTAMPTZ NOT NULL,
	updated_at             TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS coldstorage_document_being_retrieved_idx
	ON coldstorage_document (id) WHERE being_retrieved;
`

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Beginner is a DBTX that can start database transactions, such as
// *pgxpool.Pool.
type Beginner interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository implements coldstorage.Repository using PostgreSQL. Inside a
// txn transaction every statement runs in one database transaction that is
// committed or rolled back with it.
type Repository struct {
	db Beginner
	id string
}

var _ coldstorage.Repository = (*Repository)(nil)

// New creates a new PostgreSQL repository
func New(db Beginner) *Repository {
	return &Repository{db: db, id: uuid.NewString()}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return New(pool)
}

// EnsureSchema creates the document table if it does not exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return r.handlePostgresError("ensure schema", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (p *pgTx) Commit(ctx context.Context) error   { return p.tx.Commit(ctx) }
func (p *pgTx) Rollback(ctx context.Context) error { return p.tx.Rollback(ctx) }

// conn returns the database transaction of the txn transaction in ctx,
// starting it on first use, or the pool outside a transaction. The database
// transaction commits in the record phase.
func (r *Repository) conn(ctx context.Context) (DBTX, error) {
	tx, ok := txn.FromContext(ctx)
	if !ok {
		return r.db, nil
	}
	res, err := txn.EnlistPhase(tx, txn.PhaseRecord, "coldstorage.postgres/"+r.id, func() (*pgTx, error) {
		dbtx, err := r.db.Begin(ctx)
		if err != nil {
			return nil, r.handlePostgresError("begin", err)
		}
		return &pgTx{tx: dbtx}, nil
	})
	if err != nil {
		return nil, err
	}
	return res.tx, nil
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("document already exists")
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return coldstorage.ErrDocumentNotFound
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

func refParam(ref *blobtier.BlobRef) (any, error) {
	if ref == nil {
		return nil, nil
	}
	b, err := json.Marshal(ref)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanRef(raw []byte) (*blobtier.BlobRef, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var ref blobtier.BlobRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, err
	}
	return &ref, nil
}

const selectColumns = `
	SELECT id, name, content, cold_content, being_retrieved,
	       retrieval_requested_at, retrieval_days, available_until,
	       created_at, updated_at
	FROM coldstorage_document`

func scanDocument(row pgx.Row) (*coldstorage.Document, error) {
	var doc coldstorage.Document
	var content, cold []byte
	if err := row.Scan(
		&doc.ID, &doc.Name, &content, &cold, &doc.BeingRetrieved,
		&doc.RetrievalRequestedAt, &doc.RetrievalDays, &doc.AvailableUntil,
		&doc.CreatedAt, &doc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	var err error
	if doc.Content, err = scanRef(content); err != nil {
		return nil, fmt.Errorf("decode content of %s: %w", doc.ID, err)
	}
	if doc.ColdContent, err = scanRef(cold); err != nil {
		return nil, fmt.Errorf("decode cold content of %s: %w", doc.ID, err)
	}
	return &doc, nil
}

func (r *Repository) Create(ctx context.Context, doc *coldstorage.Document) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	content, err := refParam(doc.Content)
	if err != nil {
		return err
	}
	cold, err := refParam(doc.ColdContent)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO coldstorage_document (
			id, name, content, cold_content, being_retrieved,
			retrieval_requested_at, retrieval_days, available_until,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = db.Exec(ctx, query,
		doc.ID, doc.Name, content, cold, doc.BeingRetrieved,
		doc.RetrievalRequestedAt, doc.RetrievalDays, doc.AvailableUntil,
		doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create document", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*coldstorage.Document, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := scanDocument(db.QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", coldstorage.ErrDocumentNotFound, id)
		}
		return nil, r.handlePostgresError("get document", err)
	}
	return doc, nil
}

func (r *Repository) Update(ctx context.Context, doc *coldstorage.Document) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	content, err := refParam(doc.Content)
	if err != nil {
		return err
	}
	cold, err := refParam(doc.ColdContent)
	if err != nil {
		return err
	}

	query := `
		UPDATE coldstorage_document SET
			name = $2, content = $3, cold_content = $4, being_retrieved = $5,
			retrieval_requested_at = $6, retrieval_days = $7,
			available_until = $8, updated_at = $9
		WHERE id = $1`

	tag, err := db.Exec(ctx, query,
		doc.ID, doc.Name, content, cold, doc.BeingRetrieved,
		doc.RetrievalRequestedAt, doc.RetrievalDays, doc.AvailableUntil,
		doc.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("update document", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", coldstorage.ErrDocumentNotFound, doc.ID)
	}
	return nil
}

func (r *Repository) ListBeingRetrieved(ctx context.Context) ([]*coldstorage.Document, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, selectColumns+` WHERE being_retrieved ORDER BY id`)
	if err != nil {
		return nil, r.handlePostgresError("list being retrieved", err)
	}
	defer rows.Close()

	var docs []*coldstorage.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, r.handlePostgresError("scan document", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list being retrieved", err)
	}
	return docs, nil
}

// MarkAvailable is a single conditional update, so concurrent sweeps cannot
// both transition the same document.
func (r *Repository) MarkAvailable(ctx context.Context, id uuid.UUID, until time.Time) (bool, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return false, err
	}
	query := `
		UPDATE coldstorage_document SET
			being_retrieved = FALSE, available_until = $2, updated_at = NOW()
		WHERE id = $1 AND being_retrieved`

	tag, err := db.Exec(ctx, query, id, until)
	if err != nil {
		return false, r.handlePostgresError("mark available", err)
	}
	return tag.RowsAffected() == 1, nil
}

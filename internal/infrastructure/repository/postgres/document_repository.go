package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/paperwork-pipeline/internal/core/domain"
)

type DocumentRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS categories (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_categories_workspace_name ON categories(workspace_id, lower(name));

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	title TEXT NOT NULL,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_key TEXT NOT NULL DEFAULT '',
	issuer TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	ai_status TEXT NOT NULL,
	category_id TEXT REFERENCES categories(id) ON DELETE SET NULL,
	category_label TEXT,
	raw_text TEXT NOT NULL DEFAULT '',
	ocr_pages JSONB NOT NULL DEFAULT '[]'::jsonb,
	extract_data JSONB,
	sensitive_detected BOOLEAN NOT NULL DEFAULT false,
	processing_error TEXT,
	processed_at TIMESTAMPTZ,
	ai_confidence DOUBLE PRECISION,
	ai_meta JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_workspace ON documents(workspace_id);
CREATE INDEX IF NOT EXISTS idx_documents_ai_status ON documents(ai_status, created_at);

CREATE TABLE IF NOT EXISTS extracted_fields (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	key TEXT NOT NULL,
	value_text TEXT,
	value_number DOUBLE PRECISION,
	value_date DATE,
	confidence DOUBLE PRECISION,
	source_snippet TEXT,
	source_page INTEGER,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_extracted_fields_document ON extracted_fields(document_id);
`

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101701)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	pages, err := marshalPages(doc.OCRPages)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, workspace_id, title, filename, mime_type, storage_key, issuer, status, ai_status, ocr_pages, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
		doc.ID, doc.WorkspaceID, doc.Title, doc.Filename, doc.MimeType, doc.StorageKey, doc.Issuer,
		string(doc.Status), string(doc.AIStatus), pages, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

const documentColumns = `id, workspace_id, title, filename, mime_type, storage_key, issuer, status, ai_status,
	category_id, category_label, raw_text, ocr_pages, extract_data, sensitive_detected,
	processing_error, processed_at, ai_confidence, ai_meta, created_at, updated_at`

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id = $1
`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) MarkProcessing(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, ai_status = $3, processing_error = NULL, updated_at = $4
WHERE id = $1
`, id, string(domain.StatusProcessing), string(domain.AIStatusPending), r.now())
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	return requireRow(result, "mark processing", id)
}

// SaveProcessingResult applies the extractor-verbatim label policy: the label
// is stored as given and category_id is cleared.
func (r *DocumentRepository) SaveProcessingResult(ctx context.Context, id string, res domain.ProcessingResult) error {
	pages, err := marshalPages(res.OCRPages)
	if err != nil {
		return err
	}
	extraction, err := json.Marshal(res.ExtractData)
	if err != nil {
		return fmt.Errorf("marshal extract data: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, ai_status = $3, title = $4, category_id = NULL, category_label = $5,
	raw_text = $6, ocr_pages = $7, extract_data = $8, sensitive_detected = $9,
	processed_at = $10, processing_error = NULL, updated_at = $11
WHERE id = $1
`,
		id, string(domain.StatusReady), string(domain.AIStatusReady), res.Title, res.CategoryLabel,
		res.RawText, pages, extraction, res.SensitiveDetected, res.ProcessedAt, r.now(),
	)
	if err != nil {
		return fmt.Errorf("save processing result: %w", err)
	}
	return requireRow(result, "save processing result", id)
}

func (r *DocumentRepository) MarkProcessingFailed(ctx context.Context, id string, errMessage string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, ai_status = $3, processing_error = $4, processed_at = $5, updated_at = $6
WHERE id = $1
`, id, string(domain.StatusFailed), string(domain.AIStatusFailed), errMessage, at, r.now())
	if err != nil {
		return fmt.Errorf("mark processing failed: %w", err)
	}
	return requireRow(result, "mark processing failed", id)
}

func (r *DocumentRepository) MarkCategorizing(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET ai_status = $2, updated_at = $3
WHERE id = $1
`, id, string(domain.AIStatusCategorizing), r.now())
	if err != nil {
		return fmt.Errorf("mark categorizing: %w", err)
	}
	return requireRow(result, "mark categorizing", id)
}

func (r *DocumentRepository) SaveCategorization(ctx context.Context, id string, update domain.CategorizationUpdate) error {
	meta, err := json.Marshal(update.Meta)
	if err != nil {
		return fmt.Errorf("marshal ai meta: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET category_id = $2, category_label = $3, ai_status = $4, ai_confidence = $5, ai_meta = $6, updated_at = $7
WHERE id = $1
`, id, update.CategoryID, update.CategoryLabel, string(domain.AIStatusReady), update.Confidence, meta, r.now())
	if err != nil {
		return fmt.Errorf("save categorization: %w", err)
	}
	return requireRow(result, "save categorization", id)
}

func (r *DocumentRepository) MarkCategorizationFailed(ctx context.Context, id string, meta domain.AIMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal ai meta: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET ai_status = $2, ai_meta = $3, updated_at = $4
WHERE id = $1
`, id, string(domain.AIStatusFailed), raw, r.now())
	if err != nil {
		return fmt.Errorf("mark categorization failed: %w", err)
	}
	return requireRow(result, "mark categorization failed", id)
}

// ListPendingCategorization skips documents that are mid-processing; their
// ai_status is reset to pending until the run finishes.
func (r *DocumentRepository) ListPendingCategorization(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id
FROM documents
WHERE ai_status = $1 AND status <> $2
ORDER BY created_at ASC
LIMIT $3
`, string(domain.AIStatusPending), string(domain.StatusProcessing), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending categorization: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending ids: %w", err)
	}
	return ids, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var status, aiStatus string
	var categoryID, categoryLabel, processingError sql.NullString
	var processedAt sql.NullTime
	var aiConfidence sql.NullFloat64
	var pagesRaw, extractRaw, metaRaw []byte

	err := row.Scan(
		&doc.ID, &doc.WorkspaceID, &doc.Title, &doc.Filename, &doc.MimeType, &doc.StorageKey, &doc.Issuer,
		&status, &aiStatus, &categoryID, &categoryLabel, &doc.RawText, &pagesRaw, &extractRaw,
		&doc.SensitiveDetected, &processingError, &processedAt, &aiConfidence, &metaRaw,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.Status = domain.DocumentStatus(status)
	doc.AIStatus = domain.AIStatus(aiStatus)
	doc.CategoryID = nullString(categoryID)
	doc.CategoryLabel = nullString(categoryLabel)
	doc.ProcessingError = nullString(processingError)
	if processedAt.Valid {
		t := processedAt.Time
		doc.ProcessedAt = &t
	}
	if aiConfidence.Valid {
		v := aiConfidence.Float64
		doc.AIConfidence = &v
	}

	doc.OCRPages = []string{}
	if len(pagesRaw) > 0 {
		if err := json.Unmarshal(pagesRaw, &doc.OCRPages); err != nil {
			return nil, fmt.Errorf("unmarshal ocr pages: %w", err)
		}
	}
	if len(extractRaw) > 0 {
		var extraction domain.Extraction
		if err := json.Unmarshal(extractRaw, &extraction); err != nil {
			return nil, fmt.Errorf("unmarshal extract data: %w", err)
		}
		doc.ExtractData = &extraction
	}
	if len(metaRaw) > 0 {
		doc.AIMeta = json.RawMessage(metaRaw)
	}
	return &doc, nil
}

func marshalPages(pages []string) ([]byte, error) {
	if pages == nil {
		pages = []string{}
	}
	raw, err := json.Marshal(pages)
	if err != nil {
		return nil, fmt.Errorf("marshal ocr pages: %w", err)
	}
	return raw, nil
}

func requireRow(result sql.Result, operation, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("id=%s", id))
	}
	return nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/paperwork-pipeline/internal/core/domain"
)

type FieldRepository struct {
	db *sql.DB
}

func NewFieldRepository(db *sql.DB) *FieldRepository {
	return &FieldRepository{db: db}
}

// ReplaceFields deletes every field of the document and inserts the new set
// in one transaction.
func (r *FieldRepository) ReplaceFields(ctx context.Context, documentID string, fields []domain.ExtractedField) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace fields tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM extracted_fields WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete extracted fields: %w", err)
	}

	if len(fields) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
INSERT INTO extracted_fields (
	id, document_id, key, value_text, value_number, value_date, confidence, source_snippet, source_page, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`)
		if err != nil {
			return fmt.Errorf("prepare insert extracted field: %w", err)
		}
		defer stmt.Close()

		for _, f := range fields {
			if _, err := stmt.ExecContext(ctx,
				f.ID, documentID, f.Key, f.ValueText, f.ValueNumber, f.ValueDate,
				f.Confidence, f.SourceSnippet, f.SourcePage, f.CreatedAt,
			); err != nil {
				return fmt.Errorf("insert extracted field %q: %w", f.Key, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace fields tx: %w", err)
	}
	return nil
}

func (r *FieldRepository) ListByDocument(ctx context.Context, documentID string) ([]domain.ExtractedField, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, document_id, key, value_text, value_number, value_date, confidence, source_snippet, source_page, created_at
FROM extracted_fields
WHERE document_id = $1
ORDER BY created_at ASC, key ASC
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list extracted fields: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ExtractedField, 0)
	for rows.Next() {
		var f domain.ExtractedField
		var valueText, snippet sql.NullString
		var valueNumber, confidence sql.NullFloat64
		var valueDate sql.NullTime
		var page sql.NullInt32
		if err := rows.Scan(
			&f.ID, &f.DocumentID, &f.Key, &valueText, &valueNumber, &valueDate,
			&confidence, &snippet, &page, &f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan extracted field: %w", err)
		}
		f.ValueText = nullString(valueText)
		f.SourceSnippet = nullString(snippet)
		if valueNumber.Valid {
			v := valueNumber.Float64
			f.ValueNumber = &v
		}
		if confidence.Valid {
			v := confidence.Float64
			f.Confidence = &v
		}
		if valueDate.Valid {
			v := valueDate.Time
			f.ValueDate = &v
		}
		if page.Valid {
			v := int(page.Int32)
			f.SourcePage = &v
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate extracted fields: %w", err)
	}
	return out, nil
}

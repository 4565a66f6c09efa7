package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/paperwork-pipeline/internal/core/domain"
)

// CategoryRepository reads workspace categories. Categories are created
// elsewhere; this pipeline only matches against them.
type CategoryRepository struct {
	db *sql.DB
}

func NewCategoryRepository(db *sql.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

func (r *CategoryRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]domain.Category, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, workspace_id, name, created_at
FROM categories
WHERE workspace_id = $1
ORDER BY name ASC
`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Category, 0)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.WorkspaceID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return out, nil
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/paperwork-pipeline/internal/core/domain"
	"github.com/kirillkom/paperwork-pipeline/internal/core/ports"
)

type DocumentQueryUseCase struct {
	repo   ports.DocumentRepository
	fields ports.FieldRepository
}

func NewDocumentQueryUseCase(repo ports.DocumentRepository, fields ports.FieldRepository) *DocumentQueryUseCase {
	return &DocumentQueryUseCase{repo: repo, fields: fields}
}

func (uc *DocumentQueryUseCase) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get document", errors.New("document id is required"))
	}
	return uc.repo.GetByID(ctx, id)
}

func (uc *DocumentQueryUseCase) ListFields(ctx context.Context, documentID string) ([]domain.ExtractedField, error) {
	fields, err := uc.fields.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list extracted fields: %w", err)
	}
	if fields == nil {
		fields = []domain.ExtractedField{}
	}
	return fields, nil
}

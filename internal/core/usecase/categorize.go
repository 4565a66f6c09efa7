package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/paperwork-pipeline/internal/core/domain"
	"github.com/kirillkom/paperwork-pipeline/internal/core/ports"
)

type CategorizeDocumentUseCase struct {
	repo        ports.DocumentRepository
	categories  ports.CategoryRepository
	categorizer ports.Categorizer
	inflight    *InFlightGuard
	vocabulary  []string

	now func() time.Time
}

func NewCategorizeDocumentUseCase(
	repo ports.DocumentRepository,
	categories ports.CategoryRepository,
	categorizer ports.Categorizer,
	inflight *InFlightGuard,
	vocabulary []string,
) *CategorizeDocumentUseCase {
	if inflight == nil {
		inflight = NewInFlightGuard()
	}
	if len(vocabulary) == 0 {
		vocabulary = domain.SuggestedCategories
	}
	return &CategorizeDocumentUseCase{
		repo:        repo,
		categories:  categories,
		categorizer: categorizer,
		inflight:    inflight,
		vocabulary:  vocabulary,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (uc *CategorizeDocumentUseCase) RunCategorization(ctx context.Context, documentID string) (outcome domain.CategorizationOutcome) {
	release, err := uc.inflight.Acquire(documentID)
	if err != nil {
		slog.Warn("categorize_rejected", "document_id", documentID, "error", err)
		return categorizationFailure(err)
	}
	defer release()

	started := false
	defer func() {
		if recovered := recover(); recovered != nil {
			outcome = uc.fail(ctx, documentID, started, panicError("categorize document", documentID, recovered))
		}
	}()

	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return categorizationFailure(fmt.Errorf("fetch document by id: %w", err))
	}

	if err := uc.repo.MarkCategorizing(ctx, documentID); err != nil {
		return categorizationFailure(fmt.Errorf("set ai_status=categorizing: %w", err))
	}
	started = true

	update, err := uc.categorize(ctx, doc)
	if err != nil {
		return uc.fail(ctx, documentID, started, err)
	}

	applyCategorization(doc, update, uc.now())
	slog.Info("categorized",
		"document_id", documentID,
		"category_label", derefString(update.CategoryLabel),
		"matched_existing", update.CategoryID != nil,
		"confidence", update.Confidence,
	)
	return domain.CategorizationOutcome{OK: true, Document: doc}
}

// fail persists ai_status=failed once the run has moved the record to
// CATEGORIZING.
func (uc *CategorizeDocumentUseCase) fail(ctx context.Context, documentID string, started bool, err error) domain.CategorizationOutcome {
	if started {
		writeCtx, cancel := terminalContext(ctx)
		defer cancel()
		if failErr := uc.repo.MarkCategorizationFailed(writeCtx, documentID, domain.AIMeta{Error: err.Error()}); failErr != nil {
			err = fmt.Errorf("%w; mark categorization failed: %v", err, failErr)
		}
	}
	slog.Error("categorize_failed", "document_id", documentID, "error", err)
	return categorizationFailure(err)
}

func (uc *CategorizeDocumentUseCase) categorize(ctx context.Context, doc *domain.Document) (domain.CategorizationUpdate, error) {
	existing, err := uc.categories.ListByWorkspace(ctx, doc.WorkspaceID)
	if err != nil {
		return domain.CategorizationUpdate{}, fmt.Errorf("list workspace categories: %w", err)
	}

	result, err := uc.categorizer.Categorize(ctx, domain.CategorizationInput{
		Filename:           doc.Filename,
		Note:               doc.Title,
		Issuer:             doc.Issuer,
		Snippet:            domain.Truncate(doc.SourceText(), domain.MaxCategorySnippet),
		ExistingCategories: domain.CategoryNames(existing),
		SuggestedVocab:     uc.vocabulary,
	})
	if err != nil {
		return domain.CategorizationUpdate{}, fmt.Errorf("categorize document: %w", err)
	}

	update := workspaceMatchedUpdate(result, existing)
	if err := uc.repo.SaveCategorization(ctx, doc.ID, update); err != nil {
		return domain.CategorizationUpdate{}, fmt.Errorf("save categorization: %w", err)
	}
	return update, nil
}

// workspaceMatchedUpdate implements domain.LabelPolicyWorkspaceMatch.
func workspaceMatchedUpdate(result domain.CategorizationResult, existing []domain.Category) domain.CategorizationUpdate {
	update := domain.CategorizationUpdate{
		Confidence: domain.ClampConfidence(result.Confidence),
		Meta: domain.AIMeta{
			Rationale:     result.Rationale,
			ReuseExisting: result.ReuseExisting,
			RawResponse:   result.RawResponse,
			Model:         result.Model,
			LabelPolicy:   domain.LabelPolicyWorkspaceMatch,
		},
	}
	name := domain.NormalizeCategoryName(result.CategoryName)
	if name == "" {
		return update
	}
	update.CategoryLabel = &name
	if match, ok := domain.MatchCategory(name, existing); ok {
		id := match.ID
		update.CategoryID = &id
	}
	return update
}

func applyCategorization(doc *domain.Document, update domain.CategorizationUpdate, now time.Time) {
	confidence := update.Confidence
	doc.CategoryID = update.CategoryID
	doc.CategoryLabel = update.CategoryLabel
	doc.AIStatus = domain.AIStatusReady
	doc.AIConfidence = &confidence
	if raw, err := json.Marshal(update.Meta); err == nil {
		doc.AIMeta = raw
	}
	doc.UpdatedAt = now
}

func categorizationFailure(err error) domain.CategorizationOutcome {
	return domain.CategorizationOutcome{OK: false, Error: err.Error()}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package repositories

import (
	"context"

	"github.com/satriahrh/buddy/domain"
	"github.com/satriahrh/buddy/domain/entities"
)

// SearchService answers questions from the resource corpus
type SearchService interface {
	// Search returns the summarized answer and the supporting resources for query
	Search(ctx context.Context, query string) (*domain.SearchAnswer, error)
}

// ResourceService adds resources to the corpus the search service answers from
type ResourceService interface {
	SubmitLink(ctx context.Context, submission entities.ResourceSubmission) (*entities.Resource, error)
	UploadFile(ctx context.Context, submission entities.ResourceSubmission) (*entities.Resource, error)
}

package domain

import "github.com/satriahrh/buddy/domain/entities"

// SearchQuery is the request body of the search endpoint
type SearchQuery struct {
	Query string `json:"query"`
}

// SearchAnswer is the response body of the search endpoint. Results may be
// absent, which is the same as an empty list.
type SearchAnswer struct {
	Summary string                  `json:"summary"`
	Results []entities.SearchResult `json:"results,omitempty"`
}

// ResourcePayload is the request body of a link based resource submission
type ResourcePayload struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	MediaType   entities.MediaType `json:"media_type"`
	MediaLink   string             `json:"media_link"`
	Course      string             `json:"course"`
	Summary     string             `json:"summary"`
}

// NewResourcePayload builds the link submission body of s
func NewResourcePayload(s entities.ResourceSubmission) ResourcePayload {
	return ResourcePayload{
		Title:       s.Title,
		Description: s.Description,
		MediaType:   s.MediaType,
		MediaLink:   s.MediaLink,
		Course:      s.Course,
		Summary:     s.Summary,
	}
}

package entities

// MediaType is the kind of resource a search result points to
type MediaType string

const (
	MediaTypeDocument MediaType = "document"
	MediaTypeImage    MediaType = "image"
	MediaTypeVideo    MediaType = "video"
	MediaTypeArticle  MediaType = "article"
)

// IsValid reports whether m is one of the known media types
func (m MediaType) IsValid() bool {
	switch m {
	case MediaTypeDocument, MediaTypeImage, MediaTypeVideo, MediaTypeArticle:
		return true
	}
	return false
}

// RequiresLink reports whether a submission of this type is made by link
func (m MediaType) RequiresLink() bool {
	return m == MediaTypeArticle || m == MediaTypeVideo
}

// RequiresFile reports whether a submission of this type is made by upload
func (m MediaType) RequiresFile() bool {
	return m == MediaTypeDocument || m == MediaTypeImage
}

// SearchResult is a resource returned by the search service for a query
type SearchResult struct {
	ID        string    `json:"_id" bson:"_id"`
	Title     string    `json:"title" bson:"title"`
	Summary   string    `json:"summary,omitempty" bson:"summary,omitempty"`
	MediaType MediaType `json:"media_type" bson:"media_type"`
	MediaLink string    `json:"media_link" bson:"media_link"`
	Course    string    `json:"course,omitempty" bson:"course,omitempty"`
	Score     float64   `json:"score,omitempty" bson:"score,omitempty"`
}

// FindResult looks up a result by ID
func FindResult(results []SearchResult, id string) (SearchResult, bool) {
	for _, r := range results {
		if r.ID == id {
			return r, true
		}
	}
	return SearchResult{}, false
}

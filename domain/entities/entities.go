package entities

import (
	"errors"
	"io"
	"strings"
	"time"
)

// ValidationError is a submission error whose message is shown to the submitter as is
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

var (
	ErrMissingFields = &ValidationError{Message: "Please fill out all fields."}
	ErrMissingLink   = &ValidationError{Message: "Please provide a link."}
	ErrMissingFile   = &ValidationError{Message: "Please upload a file."}
)

// Client represents an application allowed to open conversation sessions
type Client struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// ResourceSubmission is a learning resource offered to the search corpus.
// Articles and videos are submitted by link, documents and images by file.
type ResourceSubmission struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	MediaType   MediaType `json:"media_type"`
	MediaLink   string    `json:"media_link,omitempty"`
	Course      string    `json:"course"`
	Summary     string    `json:"summary"`

	FileName string    `json:"-"`
	File     io.Reader `json:"-"`
}

// Resource is a resource stored by the search service
type Resource struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	MediaType   MediaType `json:"media_type"`
	MediaLink   string    `json:"media_link"`
	Course      string    `json:"course"`
	Summary     string    `json:"summary,omitempty"`
}

// Validate validates the submission with the same rules as the submission form
func (r *ResourceSubmission) Validate() error {
	if !r.MediaType.IsValid() ||
		strings.TrimSpace(r.Description) == "" ||
		strings.TrimSpace(r.Course) == "" ||
		strings.TrimSpace(r.Title) == "" {
		return ErrMissingFields
	}
	if r.MediaType.RequiresLink() && strings.TrimSpace(r.MediaLink) == "" {
		return ErrMissingLink
	}
	if r.MediaType.RequiresFile() && (r.File == nil || r.FileName == "") {
		return ErrMissingFile
	}
	return nil
}

// Normalize fills the summary from the description when it is not given
func (r *ResourceSubmission) Normalize() {
	if strings.TrimSpace(r.Summary) == "" {
		r.Summary = r.Description
	}
}

func (c *Client) Validate() error {
	if c.ID == "" {
		return errors.New("client id is required")
	}
	return nil
}

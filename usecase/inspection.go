package usecase

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/satriahrh/buddy/domain/entities"
)

// ErrResultNotFound is returned when selecting a result that is not in the current result set
var ErrResultNotFound = errors.New("result not found")

// PreviewMode is how a result is rendered when inspected
type PreviewMode string

const (
	PreviewDocumentViewer PreviewMode = "document_viewer"
	PreviewImage          PreviewMode = "image"
	PreviewEmbeddedPlayer PreviewMode = "embedded_player"
	PreviewNativeVideo    PreviewMode = "native_video"
	PreviewExternalLink   PreviewMode = "external_link"
)

const (
	documentViewerURL = "https://docs.google.com/gview?url=%s&embedded=true"
	youtubeEmbedURL   = "https://www.youtube.com/embed/%s"

	announcementSummaryLimit = 100
)

// Preview describes how to render an inspected result
type Preview struct {
	Mode PreviewMode `json:"mode"`
	// URL is the address to render for the mode
	URL string `json:"url"`
	// VideoID is set for embedded players
	VideoID string `json:"video_id,omitempty"`
	// ExternalURL is the original resource link, always offered for opening
	ExternalURL string `json:"external_url"`
}

// PreviewStrategy maps a result to its preview. Every result yields a
// preview; unknown media types degrade to an external link.
func PreviewStrategy(result entities.SearchResult) Preview {
	link := result.MediaLink
	preview := Preview{Mode: PreviewExternalLink, URL: link, ExternalURL: link}

	switch result.MediaType {
	case entities.MediaTypeDocument:
		preview.Mode = PreviewDocumentViewer
		preview.URL = fmt.Sprintf(documentViewerURL, url.QueryEscape(link))
	case entities.MediaTypeImage:
		preview.Mode = PreviewImage
	case entities.MediaTypeVideo:
		if !isYouTubeLink(link) {
			preview.Mode = PreviewNativeVideo
			break
		}
		if id := youTubeVideoID(link); id != "" {
			preview.Mode = PreviewEmbeddedPlayer
			preview.VideoID = id
			preview.URL = fmt.Sprintf(youtubeEmbedURL, id)
		}
	}

	return preview
}

func isYouTubeLink(link string) bool {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return strings.Contains(link, "youtube.com")
	}
	host := strings.ToLower(u.Hostname())
	return host == "youtu.be" || host == "youtube.com" || strings.HasSuffix(host, ".youtube.com")
}

func youTubeVideoID(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	if v := u.Query().Get("v"); v != "" {
		return v
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if strings.EqualFold(u.Hostname(), "youtu.be") {
		return segments[0]
	}
	if len(segments) == 2 {
		switch segments[0] {
		case "embed", "shorts", "live", "v":
			return segments[1]
		}
	}
	return ""
}

// SelectionAnnouncement is the short description of a selected result
func SelectionAnnouncement(result entities.SearchResult) string {
	announcement := fmt.Sprintf("You selected: %s. ", result.Title)
	if result.Summary != "" {
		summary := []rune(result.Summary)
		if len(summary) > announcementSummaryLimit {
			summary = summary[:announcementSummaryLimit]
		}
		announcement += string(summary) + "..."
	}
	return strings.TrimSpace(announcement)
}

// ResultInspector holds the result currently being inspected
type ResultInspector struct {
	mu       sync.Mutex
	selected *entities.SearchResult
}

// NewResultInspector creates an inspector with nothing selected
func NewResultInspector() *ResultInspector {
	return &ResultInspector{}
}

// Select inspects result
func (i *ResultInspector) Select(result entities.SearchResult) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.selected = &result
}

// Dismiss clears the inspected result
func (i *ResultInspector) Dismiss() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.selected = nil
}

// Inspected returns the inspected result
func (i *ResultInspector) Inspected() (entities.SearchResult, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.selected == nil {
		return entities.SearchResult{}, false
	}
	return *i.selected, true
}

// Reconcile clears the inspected result when it is not part of results and
// reports whether it did
func (i *ResultInspector) Reconcile(results []entities.SearchResult) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.selected == nil {
		return false
	}
	if _, ok := entities.FindResult(results, i.selected.ID); ok {
		return false
	}
	i.selected = nil
	return true
}

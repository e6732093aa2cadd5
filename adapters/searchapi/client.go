package searchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/buddy/domain"
	"github.com/satriahrh/buddy/domain/entities"
	"github.com/satriahrh/buddy/domain/repositories"
)

const (
	defaultBaseURL = "http://localhost:8000"
	defaultTimeout = 30 * time.Second
)

// SearchAPIConfig holds configuration for the search service client
type SearchAPIConfig struct {
	BaseURL    string        // Optional: base URL of the search service
	Timeout    time.Duration // Optional: per request timeout
	HTTPClient *http.Client
}

// StatusError is returned when the search service answers with a non 2xx status
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("search service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("search service returned %d: %s", e.StatusCode, e.Detail)
}

// Client talks to the search service that answers questions and stores resources
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

var (
	_ repositories.SearchService   = (*Client)(nil)
	_ repositories.ResourceService = (*Client)(nil)
)

// ValidateSearchAPIConfig validates the SearchAPIConfig
func ValidateSearchAPIConfig(config SearchAPIConfig) error {
	if config.BaseURL != "" {
		u, err := url.Parse(config.BaseURL)
		if err != nil {
			return fmt.Errorf("invalid search API base URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("search API base URL must be http or https, got %q", config.BaseURL)
		}
	}
	if config.Timeout < 0 {
		return fmt.Errorf("timeout must be positive, got %v", config.Timeout)
	}
	return nil
}

// NewClient creates a search service client, logging every default it applies
func NewClient(config SearchAPIConfig, logger *zap.Logger) (*Client, error) {
	if err := ValidateSearchAPIConfig(config); err != nil {
		return nil, err
	}

	c := &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		client:  config.HTTPClient,
		logger:  logger,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
		logger.Info("Using default search API base URL", zap.String("baseURL", c.baseURL))
	}
	if c.client == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
			logger.Info("Using default search API timeout", zap.Duration("timeout", timeout))
		}
		c.client = &http.Client{Timeout: timeout}
	}
	return c, nil
}

// Search implements repositories.SearchService
func (c *Client) Search(ctx context.Context, query string) (*domain.SearchAnswer, error) {
	body, err := json.Marshal(domain.SearchQuery{Query: query})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var answer domain.SearchAnswer
	if err := c.do(ctx, "/search", "application/json", bytes.NewReader(body), &answer); err != nil {
		return nil, err
	}
	if answer.Results == nil {
		answer.Results = []entities.SearchResult{}
	}

	c.logger.Debug("Search answered",
		zap.Int("queryLength", len(query)),
		zap.Int("results", len(answer.Results)))
	return &answer, nil
}

// SubmitLink implements repositories.ResourceService for article and video links
func (c *Client) SubmitLink(ctx context.Context, submission entities.ResourceSubmission) (*entities.Resource, error) {
	if err := submission.Validate(); err != nil {
		return nil, err
	}
	submission.Normalize()

	body, err := json.Marshal(domain.NewResourcePayload(submission))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var resource entities.Resource
	if err := c.do(ctx, "/resources", "application/json", bytes.NewReader(body), &resource); err != nil {
		return nil, err
	}
	c.logger.Info("Resource submitted",
		zap.String("resourceID", resource.ID),
		zap.String("mediaType", string(resource.MediaType)))
	return &resource, nil
}

// UploadFile implements repositories.ResourceService for document and image files
func (c *Client) UploadFile(ctx context.Context, submission entities.ResourceSubmission) (*entities.Resource, error) {
	if err := submission.Validate(); err != nil {
		return nil, err
	}
	if submission.File == nil {
		return nil, entities.ErrMissingFile
	}
	submission.Normalize()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", submission.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, submission.File); err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	fields := [][2]string{
		{"title", submission.Title},
		{"description", submission.Description},
		{"course", submission.Course},
		{"summary", submission.Summary},
	}
	for _, field := range fields {
		if err := form.WriteField(field[0], field[1]); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", field[0], err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form: %w", err)
	}

	var resource entities.Resource
	if err := c.do(ctx, "/upload", form.FormDataContentType(), &buf, &resource); err != nil {
		return nil, err
	}
	c.logger.Info("Resource uploaded",
		zap.String("resourceID", resource.ID),
		zap.String("fileName", submission.FileName))
	return &resource, nil
}

func (c *Client) do(ctx context.Context, path, contentType string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Detail: errorDetail(errorBody)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// errorDetail extracts the "detail" of an error body, falling back to the raw text
func errorDetail(body []byte) string {
	var payload struct {
		Detail interface{} `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if detail, ok := payload.Detail.(string); ok {
			return detail
		}
	}
	return strings.TrimSpace(string(body))
}

// NewSearchAPIConfigFromEnv reads SearchAPIConfig from SEARCH_API_* variables
func NewSearchAPIConfigFromEnv() SearchAPIConfig {
	config := SearchAPIConfig{
		BaseURL: os.Getenv("SEARCH_API_BASE_URL"),
	}
	if timeoutStr := os.Getenv("SEARCH_API_TIMEOUT"); timeoutStr != "" {
		if timeout, err := time.ParseDuration(timeoutStr); err == nil && timeout > 0 {
			config.Timeout = timeout
		}
	}
	return config
}

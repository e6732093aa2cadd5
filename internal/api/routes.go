package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/buddy/adapters/searchapi"
	"github.com/satriahrh/buddy/domain/entities"
	"github.com/satriahrh/buddy/domain/repositories"
	"github.com/satriahrh/buddy/internal/auth"
	"github.com/satriahrh/buddy/internal/websocket"
)

const (
	clientIDKey         = "clientID"
	defaultSessionLimit = 20
	maxSessionLimit     = 100
	maxUploadSize       = 32 << 20
)

// Dependencies are the services the routes are served by
type Dependencies struct {
	Hub       *websocket.Hub
	Clients   repositories.ClientRepository
	Tokens    *auth.TokenManager
	Resources repositories.ResourceService
	// Sessions is nil when conversations are not archived
	Sessions repositories.SessionRepository
	Logger   *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Dependencies) {
	logger := deps.Logger

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":      "ok",
			"service":     "buddy-server",
			"connections": deps.Hub.ClientCount(),
		})
	})

	// API v1 routes
	v1 := e.Group("/api/v1")

	v1.POST("/client/auth", func(c echo.Context) error {
		return clientAuth(c, deps.Clients, deps.Tokens, logger)
	})

	authed := v1.Group("", requireClient(deps.Tokens, logger))
	authed.POST("/resources", func(c echo.Context) error {
		return submitLink(c, deps.Resources, logger)
	})
	authed.POST("/resources/upload", func(c echo.Context) error {
		return uploadFile(c, deps.Resources, logger)
	})
	authed.GET("/sessions", func(c echo.Context) error {
		return listSessions(c, deps.Sessions, logger)
	})

	// WebSocket endpoint with JWT validation
	e.GET("/ws", func(c echo.Context) error {
		return websocketWithAuth(deps.Hub, deps.Tokens, c, logger)
	})
}

func clientAuth(c echo.Context, clients repositories.ClientRepository, tokens *auth.TokenManager, logger *zap.Logger) error {
	var req ClientAuthRequest

	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind client auth request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if req.ClientID == "" || req.Secret == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Client ID and secret are required",
		})
	}

	client, err := clients.ValidateClient(req.ClientID, req.Secret)
	if err != nil {
		logger.Warn("Client authentication failed",
			zap.String("clientID", req.ClientID),
			zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid client credentials",
		})
	}

	token, expiresAt, err := tokens.GenerateClientToken(client.ID)
	if err != nil {
		logger.Error("Failed to generate client token",
			zap.String("clientID", client.ID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	logger.Info("Client authenticated successfully", zap.String("clientID", client.ID))

	return c.JSON(http.StatusOK, ClientAuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		ClientID:  client.ID,
	})
}

// bearerToken extracts the token of the Authorization header, falling back to
// the access_token query parameter browsers use for WebSocket upgrades
func bearerToken(c echo.Context) string {
	authHeader := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(authHeader[len("Bearer "):])
	}
	return c.QueryParam("access_token")
}

// authenticate validates the bearer token of the request and returns the client ID
func authenticate(c echo.Context, tokens *auth.TokenManager, logger *zap.Logger) (string, error) {
	token := bearerToken(c)
	if token == "" {
		logger.Warn("Request rejected: missing token", zap.String("path", c.Path()))
		return "", c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required in Authorization header",
		})
	}

	claims, err := tokens.ValidateToken(token)
	if err != nil {
		logger.Warn("Request rejected: invalid token", zap.Error(err))
		return "", c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}

	if claims.Role != auth.RoleClient {
		logger.Warn("Request rejected: invalid role", zap.String("role", claims.Role))
		return "", c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "invalid_role",
			Message: "Only client tokens are allowed",
		})
	}

	if claims.ClientID == "" {
		logger.Error("Request rejected: missing client ID in token")
		return "", c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_token_claims",
			Message: "Client ID not found in token",
		})
	}
	return claims.ClientID, nil
}

func requireClient(tokens *auth.TokenManager, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			clientID, err := authenticate(c, tokens, logger)
			if clientID == "" {
				return err
			}
			c.Set(clientIDKey, clientID)
			return next(c)
		}
	}
}

func submitLink(c echo.Context, resources repositories.ResourceService, logger *zap.Logger) error {
	var req ResourceRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	resource, err := resources.SubmitLink(c.Request().Context(), entities.ResourceSubmission{
		Title:       req.Title,
		Description: req.Description,
		MediaType:   req.MediaType,
		MediaLink:   req.MediaLink,
		Course:      req.Course,
		Summary:     req.Summary,
	})
	if err != nil {
		return submissionError(c, err, logger)
	}
	return c.JSON(http.StatusCreated, resource)
}

func uploadFile(c echo.Context, resources repositories.ResourceService, logger *zap.Logger) error {
	c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, maxUploadSize)

	submission := entities.ResourceSubmission{
		Title:       c.FormValue("title"),
		Description: c.FormValue("description"),
		MediaType:   entities.MediaType(c.FormValue("media_type")),
		Course:      c.FormValue("course"),
		Summary:     c.FormValue("summary"),
	}
	if submission.MediaType == "" {
		submission.MediaType = entities.MediaTypeDocument
	}

	if header, err := c.FormFile("file"); err == nil {
		file, err := header.Open()
		if err != nil {
			logger.Error("Failed to open uploaded file", zap.Error(err))
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_upload",
				Message: "Failed to read the uploaded file",
			})
		}
		defer file.Close()
		submission.File = file
		submission.FileName = header.Filename
	}

	resource, err := resources.UploadFile(c.Request().Context(), submission)
	if err != nil {
		return submissionError(c, err, logger)
	}
	return c.JSON(http.StatusCreated, resource)
}

func submissionError(c echo.Context, err error, logger *zap.Logger) error {
	var validationErr *entities.ValidationError
	if errors.As(err, &validationErr) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_failed",
			Message: validationErr.Message,
		})
	}

	logger.Error("Resource submission failed",
		zap.String("clientID", clientIDFrom(c)),
		zap.Error(err))

	var statusErr *searchapi.StatusError
	if errors.As(err, &statusErr) {
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "search_service_error",
			Message: statusErr.Detail,
		})
	}
	return c.JSON(http.StatusBadGateway, ErrorResponse{
		Error:   "search_service_unavailable",
		Message: "Failed to reach the search service",
	})
}

func listSessions(c echo.Context, sessions repositories.SessionRepository, logger *zap.Logger) error {
	if sessions == nil {
		return c.JSON(http.StatusOK, SessionListResponse{Sessions: []*entities.Session{}})
	}

	limit := defaultSessionLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_limit",
				Message: "limit must be a positive number",
			})
		}
		limit = parsed
	}
	if limit > maxSessionLimit {
		limit = maxSessionLimit
	}

	clientID := clientIDFrom(c)
	list, err := sessions.GetByClientID(c.Request().Context(), clientID, limit)
	if err != nil {
		logger.Error("Failed to list sessions", zap.String("clientID", clientID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to list sessions",
		})
	}
	return c.JSON(http.StatusOK, SessionListResponse{Sessions: list})
}

func clientIDFrom(c echo.Context) string {
	clientID, _ := c.Get(clientIDKey).(string)
	return clientID
}

// websocketWithAuth handles WebSocket connections with JWT authentication
func websocketWithAuth(hub *websocket.Hub, tokens *auth.TokenManager, c echo.Context, logger *zap.Logger) error {
	clientID, err := authenticate(c, tokens, logger)
	if clientID == "" {
		return err
	}

	logger.Info("WebSocket connection authenticated", zap.String("clientID", clientID))

	return websocket.HandleWebSocketWithAuth(hub, c, clientID, logger)
}

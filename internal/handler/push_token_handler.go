package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/kursadbilgin/push-broadcast/internal/domain"
	"github.com/kursadbilgin/push-broadcast/internal/observability"
	"github.com/kursadbilgin/push-broadcast/internal/queue"
	"github.com/kursadbilgin/push-broadcast/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultPage = 1

	msgTokenRequired       = "Token is required"
	msgInvalidPlatform     = `Platform must be "android" or "ios"`
	msgTokenRegistered     = "Token registered"
	msgTokenUpdated        = "Token updated"
	msgTokenDeleted        = "Token deleted"
	msgTokenNotFound       = "Token not found"
	msgTitleBodyRequired   = "Title and body are required"
	msgTokensRequired      = "Tokens must be a non-empty array"
	msgRegisterFailed      = "Failed to register token"
	msgFetchFailed         = "Failed to fetch tokens"
	msgDeleteFailed        = "Failed to delete token"
	msgSendFailed          = "Failed to send notification"
	msgEnqueueFailed       = "Failed to enqueue notification"
	msgNotificationSentFmt = "Notification sent to %d devices"
)

type TokenService interface {
	Register(ctx context.Context, token string, platform string, timestamp string) (*domain.PushToken, bool, error)
	List(ctx context.Context, params repository.ListParams) ([]domain.PushToken, int64, error)
	Delete(ctx context.Context, id string) error
}

type Broadcaster interface {
	SendToAll(ctx context.Context, payload domain.Payload) (*domain.BroadcastResult, error)
	SendToTokens(ctx context.Context, tokens []string, payload domain.Payload) (*domain.BroadcastResult, error)
}

type PushTokenHandler struct {
	tokens      TokenService
	broadcaster Broadcaster
	publisher   queue.Publisher
	logger      *zap.Logger
	newJobID    func() string
}

// NewPushTokenHandler builds the push token API. publisher may be nil, in
// which case the async send route is not registered.
func NewPushTokenHandler(
	tokens TokenService,
	broadcaster Broadcaster,
	publisher queue.Publisher,
	logger *zap.Logger,
) (*PushTokenHandler, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token service is required")
	}
	if broadcaster == nil {
		return nil, fmt.Errorf("broadcaster is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PushTokenHandler{
		tokens:      tokens,
		broadcaster: broadcaster,
		publisher:   publisher,
		logger:      logger,
		newJobID:    uuid.NewString,
	}, nil
}

// RegisterPushTokenRoutes mounts the push token routes. admin guards every
// route except device registration.
func RegisterPushTokenRoutes(router fiber.Router, h *PushTokenHandler, admin fiber.Handler) {
	if admin == nil {
		admin = func(c *fiber.Ctx) error { return c.Next() }
	}

	router.Post("/api/push-token", h.Register)
	router.Get("/api/push-token", admin, h.List)
	router.Post("/api/push-token/send", admin, h.SendToAll)
	router.Post("/api/push-token/send-to-tokens", admin, h.SendToTokens)
	if h.publisher != nil {
		router.Post("/api/push-token/send/async", admin, h.SendAsync)
	}
	router.Delete("/api/push-token/:id", admin, h.Delete)
}

type registerRequest struct {
	Token     string `json:"token"`
	Platform  string `json:"platform"`
	Timestamp string `json:"timestamp"`
}

type sendRequest struct {
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	Data     map[string]any `json:"data"`
	ImageURL string         `json:"imageUrl"`
	Tokens   []string       `json:"tokens"`
}

func (r sendRequest) payload() domain.Payload {
	return domain.Payload{
		Title:    r.Title,
		Body:     r.Body,
		Data:     r.Data,
		ImageURL: r.ImageURL,
	}
}

type pushTokenResponse struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	Platform  string    `json:"platform"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type listTokensResponse struct {
	Success bool                `json:"success"`
	Data    []pushTokenResponse `json:"data"`
	Count   int                 `json:"count"`
	Meta    listMeta            `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

type sendResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Sent    int              `json:"sent"`
	Failed  int              `json:"failed"`
	Total   int              `json:"total"`
	Tickets []domain.Receipt `json:"tickets"`
}

func (h *PushTokenHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if strings.TrimSpace(req.Token) == "" {
		return fiber.NewError(fiber.StatusBadRequest, msgTokenRequired)
	}
	if !domain.Platform(req.Platform).IsValid() {
		return fiber.NewError(fiber.StatusBadRequest, msgInvalidPlatform)
	}

	ctx := requestContext(c)
	token, created, err := h.tokens.Register(ctx, req.Token, req.Platform, req.Timestamp)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return toHTTPError(err)
		}
		return h.internalError(ctx, msgRegisterFailed, err)
	}

	message := msgTokenUpdated
	if created {
		message = msgTokenRegistered
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": message,
		"id":      token.ID,
	})
}

func (h *PushTokenHandler) List(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	ctx := requestContext(c)
	tokens, total, err := h.tokens.List(ctx, params)
	if err != nil {
		return h.internalError(ctx, msgFetchFailed, err)
	}

	data := toPushTokenResponses(tokens)
	return c.Status(fiber.StatusOK).JSON(listTokensResponse{
		Success: true,
		Data:    data,
		Count:   len(data),
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *PushTokenHandler) Delete(c *fiber.Ctx) error {
	ctx := requestContext(c)
	if err := h.tokens.Delete(ctx, c.Params("id")); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return fiber.NewError(fiber.StatusNotFound, msgTokenNotFound)
		case errors.Is(err, domain.ErrValidation):
			return toHTTPError(err)
		default:
			return h.internalError(ctx, msgDeleteFailed, err)
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": msgTokenDeleted,
	})
}

func (h *PushTokenHandler) SendToAll(c *fiber.Ctx) error {
	req, err := parseSendRequest(c)
	if err != nil {
		return err
	}

	ctx := requestContext(c)
	result, err := h.broadcaster.SendToAll(ctx, req.payload())
	if err != nil {
		return h.sendError(ctx, err)
	}

	return c.Status(fiber.StatusOK).JSON(toSendResponse(result))
}

func (h *PushTokenHandler) SendToTokens(c *fiber.Ctx) error {
	req, err := parseSendRequest(c)
	if err != nil {
		return err
	}
	if len(req.Tokens) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, msgTokensRequired)
	}

	ctx := requestContext(c)
	result, err := h.broadcaster.SendToTokens(ctx, req.Tokens, req.payload())
	if err != nil {
		return h.sendError(ctx, err)
	}

	return c.Status(fiber.StatusOK).JSON(toSendResponse(result))
}

// SendAsync hands the broadcast to the worker through the broker.
func (h *PushTokenHandler) SendAsync(c *fiber.Ctx) error {
	req, err := parseSendRequest(c)
	if err != nil {
		return err
	}

	ctx := requestContext(c)
	correlationID, _ := observability.CorrelationIDFromContext(ctx)
	msg := queue.BroadcastMessage{
		JobID:         h.newJobID(),
		CorrelationID: correlationID,
		Title:         req.Title,
		Body:          req.Body,
		Data:          req.Data,
		ImageURL:      req.ImageURL,
		Tokens:        req.Tokens,
	}

	if err := h.publisher.Publish(ctx, queue.BroadcastQueue, msg); err != nil {
		return h.internalError(ctx, msgEnqueueFailed, err)
	}

	observability.WithContextLogger(h.logger, ctx).Info("broadcast job enqueued",
		zap.String("jobId", msg.JobID),
		zap.String("mode", msg.Mode()),
	)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success": true,
		"jobId":   msg.JobID,
	})
}

func (h *PushTokenHandler) sendError(ctx context.Context, err error) error {
	if errors.Is(err, domain.ErrValidation) {
		return toHTTPError(err)
	}
	return h.internalError(ctx, msgSendFailed, err)
}

func (h *PushTokenHandler) internalError(ctx context.Context, message string, err error) error {
	observability.WithContextLogger(h.logger, ctx).Error(message, zap.Error(err))
	return fiber.NewError(fiber.StatusInternalServerError, message)
}

func parseSendRequest(c *fiber.Ctx) (sendRequest, error) {
	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return sendRequest{}, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := req.payload().Validate(); err != nil {
		return sendRequest{}, fiber.NewError(fiber.StatusBadRequest, msgTitleBodyRequired)
	}
	return req, nil
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", repository.DefaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > repository.MaxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, repository.MaxPageSize)
	}

	if rawPlatform := strings.TrimSpace(c.Query("platform")); rawPlatform != "" {
		platform, err := domain.ParsePlatformFromString(rawPlatform)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Platform = &platform
	}

	return params, nil
}

// requestContext carries the request id into the service layer as the
// correlation id.
func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if correlationID := requestCorrelationID(c); correlationID != "" {
		ctx = observability.WithCorrelationID(ctx, correlationID)
	}
	return ctx
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value, ok := c.Locals("requestid").(string); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(c.Get(fiber.HeaderXRequestID))
}

func toPushTokenResponses(tokens []domain.PushToken) []pushTokenResponse {
	responses := make([]pushTokenResponse, 0, len(tokens))
	for _, token := range tokens {
		responses = append(responses, pushTokenResponse{
			ID:        token.ID,
			Token:     token.Token,
			Platform:  token.Platform.String(),
			CreatedAt: token.CreatedAt,
			UpdatedAt: token.UpdatedAt,
		})
	}
	return responses
}

func toSendResponse(result *domain.BroadcastResult) sendResponse {
	if result == nil {
		result = &domain.BroadcastResult{Success: true}
	}

	tickets := result.Tickets
	if tickets == nil {
		tickets = []domain.Receipt{}
	}

	// A short-circuited broadcast explains itself ("No tokens registered").
	message := result.Message
	if message == "" {
		message = fmt.Sprintf(msgNotificationSentFmt, result.Sent)
	}

	return sendResponse{
		Success: result.Success,
		Message: message,
		Sent:    result.Sent,
		Failed:  result.Failed,
		Total:   result.Total,
		Tickets: tickets,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/push-broadcast/internal/domain"
)

const (
	DefaultExpoPushURL = "https://exp.host/--/api/v2/push/send"

	// ExpoMaxBatchSize is the Expo push API limit of messages per request.
	ExpoMaxBatchSize = 100

	defaultExpoTimeout = 15 * time.Second
)

var expoUUIDToken = regexp.MustCompile(`(?i)^[a-z\d]{8}-[a-z\d]{4}-[a-z\d]{4}-[a-z\d]{4}-[a-z\d]{12}$`)

var _ Provider = (*ExpoProvider)(nil)

type expoSendResponse struct {
	Data   []domain.Receipt    `json:"data"`
	Errors []expoRequestError `json:"errors"`
}

type expoRequestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ExpoProvider sends push messages through the Expo push service.
type ExpoProvider struct {
	client   *resty.Client
	endpoint string
}

func NewExpoProvider(endpoint string, accessToken string) (*ExpoProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultExpoTimeout)
	client.SetRetryCount(0)
	if token := strings.TrimSpace(accessToken); token != "" {
		client.SetAuthToken(token)
	}

	return NewExpoProviderWithClient(endpoint, client)
}

func NewExpoProviderWithClient(endpoint string, client *resty.Client) (*ExpoProvider, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		trimmedEndpoint = DefaultExpoPushURL
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid expo push endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultExpoTimeout)
	}
	client.SetRetryCount(0)

	return &ExpoProvider{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

// IsExpoPushToken reports whether token looks like an Expo push token.
func IsExpoPushToken(token string) bool {
	if (strings.HasPrefix(token, "ExponentPushToken[") || strings.HasPrefix(token, "ExpoPushToken[")) &&
		strings.HasSuffix(token, "]") {
		return true
	}
	return expoUUIDToken.MatchString(token)
}

func (p *ExpoProvider) IsValidAddress(addr string) bool {
	return IsExpoPushToken(addr)
}

func (p *ExpoProvider) MaxBatchSize() int {
	return ExpoMaxBatchSize
}

func (p *ExpoProvider) SendBatch(ctx context.Context, messages []domain.Message) ([]domain.Receipt, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}
	if len(messages) == 0 {
		return nil, nil
	}
	if len(messages) > ExpoMaxBatchSize {
		return nil, &ProviderError{
			Message: fmt.Sprintf("batch of %d exceeds limit of %d", len(messages), ExpoMaxBatchSize),
		}
	}

	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetBody(messages).
		Post(p.endpoint)
	if err != nil {
		return nil, &ProviderError{
			Message:   "push request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &ProviderError{
			Message:   "push provider returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	var decoded expoSendResponse
	decodeErr := json.Unmarshal(response.Body(), &decoded)

	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		providerErr := &ProviderError{
			StatusCode: statusCode,
			Message:    fmt.Sprintf("push provider returned status %d", statusCode),
			Transient:  isTransientHTTPStatus(statusCode),
		}
		if decodeErr == nil && len(decoded.Errors) > 0 {
			providerErr.Code = decoded.Errors[0].Code
			providerErr.Message = decoded.Errors[0].Message
		}
		return nil, providerErr
	}

	if decodeErr != nil {
		return nil, &ProviderError{
			StatusCode: statusCode,
			Message:    "failed to decode push response",
			Cause:      decodeErr,
		}
	}
	if len(decoded.Errors) > 0 {
		return nil, &ProviderError{
			StatusCode: statusCode,
			Code:       decoded.Errors[0].Code,
			Message:    decoded.Errors[0].Message,
		}
	}
	if len(decoded.Data) != len(messages) {
		return nil, &ProviderError{
			StatusCode: statusCode,
			Message:    fmt.Sprintf("expected %d push tickets, got %d", len(messages), len(decoded.Data)),
		}
	}

	return decoded.Data, nil
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

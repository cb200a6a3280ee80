package queue

import (
	"fmt"
	"strings"

	"github.com/kursadbilgin/push-broadcast/internal/domain"
)

// BroadcastMessage is the broker payload of an asynchronous broadcast job.
// An empty Tokens list targets every registered device.
type BroadcastMessage struct {
	JobID         string         `json:"jobId"`
	CorrelationID string         `json:"correlationId,omitempty"`
	Title         string         `json:"title"`
	Body          string         `json:"body"`
	Data          map[string]any `json:"data,omitempty"`
	ImageURL      string         `json:"imageUrl,omitempty"`
	Tokens        []string       `json:"tokens,omitempty"`
}

func (m BroadcastMessage) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return fmt.Errorf("jobId is required")
	}
	if err := m.Payload().Validate(); err != nil {
		return err
	}
	return nil
}

func (m BroadcastMessage) Payload() domain.Payload {
	return domain.Payload{
		Title:    m.Title,
		Body:     m.Body,
		Data:     m.Data,
		ImageURL: m.ImageURL,
	}
}

// Mode reports which dispatcher entry point the job targets.
func (m BroadcastMessage) Mode() string {
	if len(m.Tokens) > 0 {
		return "tokens"
	}
	return "all"
}

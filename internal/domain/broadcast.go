package domain

const (
	ReceiptStatusOK    = "ok"
	ReceiptStatusError = "error"

	MessageNoTokensRegistered = "No tokens registered"
	MessageNoValidTokens      = "No valid tokens"
)

// Receipt is the provider's acknowledgment of one submitted message.
type Receipt struct {
	Status  string         `json:"status"`
	ID      string         `json:"id,omitempty"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func (r Receipt) OK() bool { return r.Status == ReceiptStatusOK }

// ErrorCode returns details.error when the provider supplied one.
func (r Receipt) ErrorCode() string {
	if r.Details == nil {
		return ""
	}
	code, _ := r.Details["error"].(string)
	return code
}

// BroadcastResult is the aggregate outcome of a broadcast.
type BroadcastResult struct {
	Success  bool      `json:"success"`
	Sent     int       `json:"sent"`
	Failed   int       `json:"failed"`
	Total    int       `json:"total"`
	Tickets  []Receipt `json:"tickets"`
	Message  string    `json:"message,omitempty"`
	Canceled bool      `json:"canceled,omitempty"`
}

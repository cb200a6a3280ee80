package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const (
	DefaultSound     = "default"
	DefaultChannelID = "default"
	PriorityHigh     = "high"

	imageURLKey = "imageUrl"
)

// Payload is the notification content shared read-only by every message of a broadcast.
type Payload struct {
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	Data     map[string]any `json:"data,omitempty"`
	ImageURL string         `json:"imageUrl,omitempty"`
}

func (p Payload) Validate() error {
	if strings.TrimSpace(p.Title) == "" || strings.TrimSpace(p.Body) == "" {
		return fmt.Errorf("%w: title and body are required", ErrValidation)
	}
	return nil
}

// DataField is a single key/value entry of MessageData.
type DataField struct {
	Key   string
	Value any
}

// MessageData is an insertion-ordered string to any mapping.
type MessageData struct {
	fields []DataField
}

// Set stores value under key, replacing an existing entry in place.
func (d *MessageData) Set(key string, value any) {
	for i := range d.fields {
		if d.fields[i].Key == key {
			d.fields[i].Value = value
			return
		}
	}
	d.fields = append(d.fields, DataField{Key: key, Value: value})
}

func (d MessageData) Get(key string) (any, bool) {
	for _, f := range d.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

func (d MessageData) Len() int { return len(d.fields) }

func (d MessageData) Fields() []DataField {
	out := make([]DataField, len(d.fields))
	copy(out, d.fields)
	return out
}

func (d MessageData) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range d.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal data field %q: %w", f.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Attachment is an iOS rich notification image.
type Attachment struct {
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

// Message is the per-recipient push message submitted to the provider.
type Message struct {
	To          string       `json:"to"`
	Sound       string       `json:"sound"`
	Title       string       `json:"title"`
	Body        string       `json:"body"`
	Data        MessageData  `json:"data"`
	Priority    string       `json:"priority"`
	ChannelID   string       `json:"channelId"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// BuildMessage derives the message for one address. Payload data keys are
// applied in sorted order, then imageUrl overrides.
func BuildMessage(payload Payload, to string) Message {
	keys := make([]string, 0, len(payload.Data))
	for k := range payload.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var data MessageData
	for _, k := range keys {
		data.Set(k, payload.Data[k])
	}

	msg := Message{
		To:        to,
		Sound:     DefaultSound,
		Title:     payload.Title,
		Body:      payload.Body,
		Priority:  PriorityHigh,
		ChannelID: DefaultChannelID,
	}

	if payload.ImageURL != "" {
		data.Set(imageURLKey, payload.ImageURL)
		msg.Attachments = []Attachment{{
			URL:          payload.ImageURL,
			ThumbnailURL: payload.ImageURL,
		}}
	}
	msg.Data = data

	return msg
}

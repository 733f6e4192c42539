package models

import (
	"time"

	"github.com/google/uuid"
)

// QRCode generation record statuses.
const (
	QRStatusPending = "PENDING"
	QRStatusReady   = "READY"
	QRStatusFailed  = "FAILED"
)

// QRCode is one generation request and its outcome. Content holds the raw
// input (base64 image data, URL, or text depending on Kind); ImageURL is set
// once the external image host has accepted the render.
type QRCode struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	Cost      int       `json:"cost"`
	Status    string    `json:"status"`
	ImageURL  *string   `json:"image_url,omitempty"`
	Failure   *string   `json:"failure,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

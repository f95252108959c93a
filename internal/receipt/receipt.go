package receipt

import (
	"time"

	"github.com/zombor/receipt-scanner/internal/scanning"
)

// Record is a processed receipt kept in the history database
type Record struct {
	ID               string           `json:"id"`
	OriginalFilename string           `json:"original_filename"`
	ContentType      string           `json:"content_type"`
	Filename         string           `json:"filename"` // stored file path
	Data             scanning.Receipt `json:"data"`
	Fallback         bool             `json:"fallback,omitempty"`
	ProcessedAt      time.Time        `json:"processed_at"`
	CreatedAt        time.Time        `json:"created_at"`
}

package domain

import "time"

// ReferenceImage is one uploaded asset the model should animate.
type ReferenceImage struct {
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// FormData is the validated request submitted from a studio surface.
// SampleCount stays a string because that is how the form submits it.
type FormData struct {
	Images      []ReferenceImage `json:"images"`
	AspectRatio string           `json:"aspect_ratio"`
	Resolution  string           `json:"resolution"`
	SampleCount string           `json:"sample_count"`
	Background  string           `json:"background"`
	Spotlight   string           `json:"spotlight"`
}

// AppContext identifies who generates and where outputs are written.
type AppContext struct {
	GCSURI string
	UserID string
}

// RequestContext is the immutable snapshot threaded through every poll so
// outputs can be enriched without re-deriving the request.
type RequestContext struct {
	Prompt       string
	AspectRatio  string
	Resolution   string
	SampleCount  string
	UserID       string
	ModelVersion string
}

// OutputRecord is a generated video ready for display.
type OutputRecord struct {
	Key             string    `json:"key"`
	GCSURI          string    `json:"gcs_uri"`
	Format          string    `json:"format"`
	Prompt          string    `json:"prompt"`
	AspectRatio     string    `json:"aspect_ratio"`
	Resolution      string    `json:"resolution"`
	DurationSeconds int       `json:"duration_seconds"`
	Width           int       `json:"width"`
	Height          int       `json:"height"`
	Author          string    `json:"author"`
	ModelVersion    string    `json:"model_version"`
	Mode            string    `json:"mode"`
	CreatedAt       time.Time `json:"created_at"`
}

// GenerationStatus enumerates the persisted lifecycle of a generation.
type GenerationStatus string

const (
	GenerationStatusPolling   GenerationStatus = "polling"
	GenerationStatusSucceeded GenerationStatus = "succeeded"
	GenerationStatusFailed    GenerationStatus = "failed"
	GenerationStatusExhausted GenerationStatus = "exhausted"
	GenerationStatusCancelled GenerationStatus = "cancelled"
)

// Terminal reports whether no further updates are expected.
func (s GenerationStatus) Terminal() bool {
	return s != GenerationStatusPolling
}

// Generation is one initiated job as stored for later display.
type Generation struct {
	ID           string
	SurfaceID    string
	UserID       string
	Operation    OperationHandle
	Prompt       string
	AspectRatio  string
	Resolution   string
	SampleCount  int
	Status       GenerationStatus
	Attempts     int
	Outputs      []OutputRecord
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

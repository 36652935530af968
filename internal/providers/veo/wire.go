package veo

import "orbitstudio/internal/domain"

// Wire shapes of the Vertex AI predictLongRunning / fetchPredictOperation
// endpoints. They are exported so the local emulator speaks the same JSON.

type PredictRequest struct {
	Instances  []Instance `json:"instances"`
	Parameters Parameters `json:"parameters"`
}

type Instance struct {
	Prompt          string           `json:"prompt"`
	ReferenceImages []ReferenceImage `json:"referenceImages,omitempty"`
}

type ReferenceImage struct {
	Image         InlineImage `json:"image"`
	ReferenceType string      `json:"referenceType"`
}

type InlineImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType"`
}

// Parameters carries no omitempty tags: false and zero values such as
// addWatermark=false must reach the backend.
type Parameters struct {
	SampleCount      int    `json:"sampleCount"`
	AspectRatio      string `json:"aspectRatio"`
	DurationSeconds  int    `json:"durationSeconds"`
	StorageURI       string `json:"storageUri"`
	PersonGeneration string `json:"personGeneration"`
	AddWatermark     bool   `json:"addWatermark"`
	Resolution       string `json:"resolution"`
	EnhancePrompt    bool   `json:"enhancePrompt"`
}

type PredictResponse struct {
	Name string `json:"name"`
}

type FetchRequest struct {
	OperationName string `json:"operationName"`
}

type OperationResponse struct {
	Name     string                 `json:"name"`
	Done     bool                   `json:"done,omitempty"`
	Response *OperationResult       `json:"response,omitempty"`
	Error    *domain.OperationError `json:"error,omitempty"`
}

type OperationResult struct {
	Type                  string                  `json:"@type,omitempty"`
	RAIMediaFilteredCount int                     `json:"raiMediaFilteredCount,omitempty"`
	Videos                []domain.GeneratedVideo `json:"videos,omitempty"`
}

// ErrorResponse is the google.rpc.Status envelope returned with 4xx/5xx.
type ErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status,omitempty"`
	} `json:"error"`
}

const (
	ReferenceTypeAsset   = "asset"
	PersonGenerationDeny = "dont_allow"
)

package veo

import (
	"fmt"
	"strings"

	"orbitstudio/internal/domain"
)

// HandleParts is the routing information embedded in an operation name of
// the form projects/{p}/locations/{l}/publishers/google/models/{m}/operations/{id}.
type HandleParts struct {
	Project   string
	Location  string
	Model     string
	Operation string
}

// ParseHandle extracts the sub-resources needed to route a status query.
// Everything else about the handle stays opaque.
func ParseHandle(h domain.OperationHandle) (HandleParts, error) {
	parts := strings.Split(string(h), "/")
	if len(parts) < 8 {
		return HandleParts{}, fmt.Errorf("veo: operation name %q has %d segments, want at least 8", h, len(parts))
	}
	hp := HandleParts{
		Project:  parts[1],
		Location: parts[3],
		Model:    parts[7],
	}
	if len(parts) >= 10 {
		hp.Operation = parts[9]
	}
	if hp.Project == "" || hp.Location == "" || hp.Model == "" {
		return HandleParts{}, fmt.Errorf("veo: operation name %q has empty routing segments", h)
	}
	return hp, nil
}

// FormatHandle builds an operation name; used by the emulator.
func FormatHandle(p HandleParts) domain.OperationHandle {
	return domain.OperationHandle(fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s/operations/%s",
		p.Project, p.Location, p.Model, p.Operation))
}

// Package enrich turns raw operation outputs into display-ready records.
package enrich

import (
	"time"

	"github.com/google/uuid"

	"orbitstudio/internal/domain"
)

// ModeGenerated marks records produced by a fresh generation.
const ModeGenerated = "Generated"

// Dimensions is the pixel size of a rendered aspect ratio.
type Dimensions struct {
	Ratio  string
	Width  int
	Height int
}

// RatioToPixel lists the aspect ratios the backend renders.
var RatioToPixel = []Dimensions{
	{Ratio: "16:9", Width: 1280, Height: 720},
	{Ratio: "9:16", Width: 720, Height: 1280},
}

var fallbackDimensions = Dimensions{Width: 1280, Height: 720}

// DimensionsFor returns the pixel size for ratio, defaulting to 1280x720.
func DimensionsFor(ratio string) Dimensions {
	for _, d := range RatioToPixel {
		if d.Ratio == ratio {
			return d
		}
	}
	return fallbackDimensions
}

// Enricher maps raw outputs. Now is injectable for tests.
type Enricher struct {
	DurationSeconds int
	Now             func() time.Time
}

// New returns an Enricher stamping records with the wall clock.
func New(durationSeconds int) *Enricher {
	return &Enricher{DurationSeconds: durationSeconds, Now: time.Now}
}

// Videos maps every raw video to an OutputRecord carrying the request context.
func (e *Enricher) Videos(raw []domain.GeneratedVideo, rc domain.RequestContext) []domain.OutputRecord {
	dims := DimensionsFor(rc.AspectRatio)
	now := e.Now().UTC()
	out := make([]domain.OutputRecord, 0, len(raw))
	for _, v := range raw {
		out = append(out, domain.OutputRecord{
			Key:             uuid.NewString(),
			GCSURI:          v.GCSURI,
			Format:          v.MimeType,
			Prompt:          rc.Prompt,
			AspectRatio:     rc.AspectRatio,
			Resolution:      rc.Resolution,
			DurationSeconds: e.DurationSeconds,
			Width:           dims.Width,
			Height:          dims.Height,
			Author:          rc.UserID,
			ModelVersion:    rc.ModelVersion,
			Mode:            ModeGenerated,
			CreatedAt:       now,
		})
	}
	return out
}

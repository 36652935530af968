package enrich

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orbitstudio/internal/domain"
)

func TestVideosCarriesRequestContext(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	e := &Enricher{DurationSeconds: 8, Now: func() time.Time { return fixed }}
	rc := domain.RequestContext{
		Prompt:       "A slow, 360-degree orbit shot of this object, White background",
		AspectRatio:  "9:16",
		Resolution:   "720p",
		UserID:       "user-1",
		ModelVersion: "veo-2.0-generate-exp",
	}

	out := e.Videos([]domain.GeneratedVideo{
		{GCSURI: "gs://bucket/a.mp4", MimeType: "video/mp4"},
		{GCSURI: "gs://bucket/b.mp4", MimeType: "video/mp4"},
	}, rc)

	require.Len(t, out, 2)
	assert.NotEqual(t, out[0].Key, out[1].Key)
	rec := out[1]
	assert.Equal(t, "gs://bucket/b.mp4", rec.GCSURI)
	assert.Equal(t, "video/mp4", rec.Format)
	assert.Equal(t, rc.Prompt, rec.Prompt)
	assert.Equal(t, 720, rec.Width)
	assert.Equal(t, 1280, rec.Height)
	assert.Equal(t, 8, rec.DurationSeconds)
	assert.Equal(t, "user-1", rec.Author)
	assert.Equal(t, ModeGenerated, rec.Mode)
	assert.Equal(t, fixed, rec.CreatedAt)
}

func TestDimensionsForUnknownRatioFallsBack(t *testing.T) {
	d := DimensionsFor("4:3")
	assert.Equal(t, 1280, d.Width)
	assert.Equal(t, 720, d.Height)
}

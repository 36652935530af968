package generation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orbitstudio/internal/domain"
	"orbitstudio/internal/providers/veo"
)

type fakePredictor struct {
	calls  []veo.Generation
	handle domain.OperationHandle
	err    error
}

func (f *fakePredictor) PredictLongRunning(_ context.Context, gen veo.Generation) (domain.OperationHandle, error) {
	f.calls = append(f.calls, gen)
	return f.handle, f.err
}

func (f *fakePredictor) Model() string { return veo.DefaultModel }

func validForm() domain.FormData {
	f := Defaults()
	f.SampleCount = "2"
	f.Images = []domain.ReferenceImage{
		{FileName: "front.png", MimeType: "image/png", Data: []byte{1, 2, 3}},
		{FileName: "side.jpg", MimeType: "image/jpeg", Data: []byte{4, 5, 6}},
	}
	return f
}

func TestInitiateRequiresAppContext(t *testing.T) {
	tests := []struct {
		name string
		app  *domain.AppContext
	}{
		{"nil", nil},
		{"missing storage", &domain.AppContext{UserID: "u-1"}},
		{"missing user", &domain.AppContext{GCSURI: "gs://bucket"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePredictor{handle: "h"}
			_, err := NewInitiator(p, nil).Initiate(context.Background(), validForm(), tt.app)
			assert.ErrorIs(t, err, domain.ErrConfiguration)
			assert.Equal(t, domain.MissingContextMessage, domain.UserMessage(err, ""))
			assert.Empty(t, p.calls, "nothing is sent without context")
		})
	}
}

func TestInitiateSendsOneRequest(t *testing.T) {
	p := &fakePredictor{handle: "projects/p/locations/l/publishers/google/models/m/operations/1"}
	app := &domain.AppContext{GCSURI: "gs://bucket/", UserID: "u-1"}

	got, err := NewInitiator(p, nil).Initiate(context.Background(), validForm(), app)
	require.NoError(t, err)
	require.Len(t, p.calls, 1)

	call := p.calls[0]
	assert.Equal(t, "A slow, 360-degree orbit shot of this object, White background", call.Prompt)
	assert.Len(t, call.ReferenceImages, 2)
	assert.Equal(t, veo.Parameters{
		SampleCount:      2,
		AspectRatio:      "16:9",
		DurationSeconds:  8,
		StorageURI:       "gs://bucket/u-1/generated-videos",
		PersonGeneration: "dont_allow",
		AddWatermark:     false,
		Resolution:       "720p",
		EnhancePrompt:    true,
	}, call.Parameters)

	assert.Equal(t, p.handle, got.Handle)
	assert.Equal(t, call.Prompt, got.Request.Prompt)
	assert.Equal(t, "16:9", got.Request.AspectRatio)
	assert.Equal(t, "720p", got.Request.Resolution)
	assert.Equal(t, "u-1", got.Request.UserID)
	assert.Equal(t, veo.DefaultModel, got.Request.ModelVersion)
}

func TestInitiatePassesBackendErrorThrough(t *testing.T) {
	backendErr := domain.NewError(domain.ErrRateLimit, domain.RateLimitMessage, nil)
	p := &fakePredictor{err: backendErr}

	_, err := NewInitiator(p, nil).Initiate(context.Background(), validForm(), &domain.AppContext{GCSURI: "gs://b", UserID: "u"})
	assert.ErrorIs(t, err, domain.ErrRateLimit)
	assert.Len(t, p.calls, 1)
}

func TestInitiateRejectsInvalidForm(t *testing.T) {
	p := &fakePredictor{}
	form := validForm()
	form.Images = nil

	_, err := NewInitiator(p, nil).Initiate(context.Background(), form, &domain.AppContext{GCSURI: "gs://b", UserID: "u"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, p.calls)
}

func TestBuildPrompt(t *testing.T) {
	tests := []struct {
		name       string
		background string
		spotlight  string
		want       string
	}{
		{"base only", "", "", BasePrompt},
		{"background", "Black", "", BasePrompt + ", Black background"},
		{"both in field order", "Space starry sky", "top-left", BasePrompt + ", Space starry sky background, top-left spotlight"},
		{"spotlight only", "", "bottom-right", BasePrompt + ", bottom-right spotlight"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := domain.FormData{Background: tt.background, Spotlight: tt.spotlight}
			assert.Equal(t, tt.want, BuildPrompt(f))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.FormData)
		ok     bool
	}{
		{"valid", func(*domain.FormData) {}, true},
		{"too many images", func(f *domain.FormData) {
			f.Images = append(f.Images, f.Images[0], f.Images[0])
		}, false},
		{"unsupported type", func(f *domain.FormData) { f.Images[0].MimeType = "image/gif" }, false},
		{"empty image", func(f *domain.FormData) { f.Images[0].Data = nil }, false},
		{"unknown background", func(f *domain.FormData) { f.Background = "Purple" }, false},
		{"missing background", func(f *domain.FormData) { f.Background = "" }, false},
		{"blank spotlight", func(f *domain.FormData) { f.Spotlight = "" }, true},
		{"sample count out of range", func(f *domain.FormData) { f.SampleCount = "5" }, false},
		{"sample count not numeric", func(f *domain.FormData) { f.SampleCount = "two" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validForm()
			tt.mutate(&f)
			err := Validate(f)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestDefaultsAndReset(t *testing.T) {
	d := Defaults()
	assert.Equal(t, "16:9", d.AspectRatio)
	assert.Equal(t, "720p", d.Resolution)
	assert.Equal(t, "4", d.SampleCount)
	assert.Equal(t, "White", d.Background)
	assert.Empty(t, d.Spotlight)

	f := validForm()
	f.Background = "Black"
	f.Spotlight = "top-right"
	r := Reset(f)
	assert.Nil(t, r.Images)
	assert.Equal(t, "White", r.Background)
	assert.Empty(t, r.Spotlight)
	assert.Equal(t, "2", r.SampleCount, "non-resettable settings are kept")

	filled := ApplyDefaults(domain.FormData{Spotlight: ""})
	assert.Equal(t, "White", filled.Background)
	assert.Equal(t, "4", filled.SampleCount)
	assert.Empty(t, filled.Spotlight)
}

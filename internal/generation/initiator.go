package generation

import (
	"context"
	"fmt"
	"strings"

	"orbitstudio/internal/domain"
	"orbitstudio/internal/infra"
	"orbitstudio/internal/providers/veo"
)

// DurationSeconds is the fixed clip length requested from the backend.
const DurationSeconds = 8

// Predictor submits a long-running generation. *veo.Client implements it.
type Predictor interface {
	PredictLongRunning(ctx context.Context, gen veo.Generation) (domain.OperationHandle, error)
	Model() string
}

// Initiation is the successful outcome of Initiate.
type Initiation struct {
	Handle  domain.OperationHandle
	Prompt  string
	Request domain.RequestContext
}

// Initiator turns a validated form into exactly one predictLongRunning call.
type Initiator struct {
	predictor Predictor
	logger    *infra.Logger
}

// NewInitiator wires an Initiator to its backend.
func NewInitiator(predictor Predictor, logger *infra.Logger) *Initiator {
	return &Initiator{predictor: predictor, logger: infra.LoggerOrDiscard(logger)}
}

// Initiate submits the generation. Missing storage location or identity fails
// with domain.ErrConfiguration before anything is sent. Every failure is a
// *domain.Error.
func (i *Initiator) Initiate(ctx context.Context, form domain.FormData, app *domain.AppContext) (Initiation, error) {
	if app == nil || strings.TrimSpace(app.GCSURI) == "" || strings.TrimSpace(app.UserID) == "" {
		i.logger.Error().Msg("generation: app context is missing gcs uri or user id")
		return Initiation{}, domain.NewError(domain.ErrConfiguration, domain.MissingContextMessage, nil)
	}
	if err := Validate(form); err != nil {
		return Initiation{}, err
	}
	sampleCount, err := SampleCount(form)
	if err != nil {
		return Initiation{}, err
	}

	prompt := BuildPrompt(form)
	params := veo.Parameters{
		SampleCount:      sampleCount,
		AspectRatio:      form.AspectRatio,
		DurationSeconds:  DurationSeconds,
		StorageURI:       StorageURI(*app),
		PersonGeneration: veo.PersonGenerationDeny,
		AddWatermark:     false,
		Resolution:       form.Resolution,
		EnhancePrompt:    true,
	}

	i.logger.Info().
		Str("user_id", app.UserID).
		Int("reference_images", len(form.Images)).
		Str("prompt", prompt).
		Msg("generation: initiating")

	handle, err := i.predictor.PredictLongRunning(ctx, veo.Generation{
		Prompt:          prompt,
		ReferenceImages: form.Images,
		Parameters:      params,
	})
	if err != nil {
		return Initiation{}, err
	}

	return Initiation{
		Handle: handle,
		Prompt: prompt,
		Request: domain.RequestContext{
			Prompt:       prompt,
			AspectRatio:  form.AspectRatio,
			Resolution:   form.Resolution,
			SampleCount:  form.SampleCount,
			UserID:       app.UserID,
			ModelVersion: i.predictor.Model(),
		},
	}, nil
}

// StorageURI is where the backend writes a user's generated videos.
func StorageURI(app domain.AppContext) string {
	return fmt.Sprintf("%s/%s/generated-videos", strings.TrimRight(app.GCSURI, "/"), app.UserID)
}

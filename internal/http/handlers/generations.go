package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"orbitstudio/internal/domain"
	"orbitstudio/internal/generation"
	"orbitstudio/internal/middleware"
	"orbitstudio/internal/studio"
)

// maxGenerationBody bounds the JSON body: three base64 images plus settings.
const maxGenerationBody = 32 << 20

type generationRequest struct {
	Images      []domain.ReferenceImage `json:"images"`
	AspectRatio string                  `json:"aspect_ratio"`
	Resolution  string                  `json:"resolution"`
	SampleCount json.Number             `json:"sample_count"`
	Background  string                  `json:"background"`
	Spotlight   string                  `json:"spotlight"`
}

func (req generationRequest) form() domain.FormData {
	return domain.FormData{
		Images:      req.Images,
		AspectRatio: req.AspectRatio,
		Resolution:  req.Resolution,
		SampleCount: req.SampleCount.String(),
		Background:  req.Background,
		Spotlight:   req.Spotlight,
	}
}

type generationResponse struct {
	ID            string                `json:"id"`
	SurfaceID     string                `json:"surface_id"`
	OperationName string                `json:"operation_name"`
	Prompt        string                `json:"prompt"`
	AspectRatio   string                `json:"aspect_ratio"`
	Resolution    string                `json:"resolution"`
	SampleCount   int                   `json:"sample_count"`
	Status        string                `json:"status"`
	Done          bool                  `json:"done"`
	Attempts      int                   `json:"attempts"`
	Outputs       []domain.OutputRecord `json:"outputs"`
	Error         *errorDetail          `json:"error,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

func (a *App) toResponse(r *http.Request, gen *domain.Generation) generationResponse {
	resp := generationResponse{
		ID:            gen.ID,
		SurfaceID:     gen.SurfaceID,
		OperationName: string(gen.Operation),
		Prompt:        gen.Prompt,
		AspectRatio:   gen.AspectRatio,
		Resolution:    gen.Resolution,
		SampleCount:   gen.SampleCount,
		Status:        string(gen.Status),
		Done:          gen.Status.Terminal(),
		Attempts:      gen.Attempts,
		Outputs:       gen.Outputs,
		CreatedAt:     gen.CreatedAt,
		UpdatedAt:     gen.UpdatedAt,
	}
	if resp.Outputs == nil {
		resp.Outputs = []domain.OutputRecord{}
	}
	if gen.ErrorMessage != "" {
		resp.Error = &errorDetail{
			Code:    string(gen.Status),
			Message: translate(r, gen.ErrorMessage),
		}
	}
	return resp
}

// CreateGeneration starts a job on a surface, replacing whatever ran there.
func (a *App) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	surfaceID := chi.URLParam(r, "surface_id")
	var req generationRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxGenerationBody))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		a.error(w, r, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	app := &domain.AppContext{GCSURI: a.GCSURI, UserID: middleware.UserIDFromContext(r.Context())}
	gen, err := a.Generations.Generate(r.Context(), surfaceID, req.form(), app)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, a.toResponse(r, gen))
}

// GetGeneration returns a stored generation owned by the caller.
func (a *App) GetGeneration(w http.ResponseWriter, r *http.Request) {
	gen, err := a.Generations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, r, http.StatusNotFound, "not_found", "generation not found")
			return
		}
		a.domainError(w, r, err)
		return
	}
	if gen.UserID != middleware.UserIDFromContext(r.Context()) {
		a.error(w, r, http.StatusNotFound, "not_found", "generation not found")
		return
	}
	a.json(w, http.StatusOK, a.toResponse(r, gen))
}

// CancelGeneration stops the job running on a surface.
func (a *App) CancelGeneration(w http.ResponseWriter, r *http.Request) {
	if err := a.Generations.Cancel(middleware.UserIDFromContext(r.Context()), chi.URLParam(r, "surface_id")); err != nil {
		if errors.Is(err, studio.ErrNoActiveJob) {
			a.error(w, r, http.StatusNotFound, "not_found", "no active job on surface")
			return
		}
		a.domainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type formField struct {
	Name       string   `json:"name"`
	Label      string   `json:"label"`
	Default    string   `json:"default,omitempty"`
	Options    []string `json:"options"`
	Required   bool     `json:"required"`
	Resettable bool     `json:"resettable"`
}

type formResponse struct {
	Fields             []formField `json:"fields"`
	MaxReferenceImages int         `json:"max_reference_images"`
	AcceptedImageTypes []string    `json:"accepted_image_types"`
}

// Form describes the settings a surface can submit.
func (a *App) Form(w http.ResponseWriter, r *http.Request) {
	fields := make([]formField, 0, len(generation.Fields))
	for _, f := range generation.Fields {
		fields = append(fields, formField{
			Name:       f.Name,
			Label:      f.Label,
			Default:    f.Default,
			Options:    f.Options,
			Required:   f.Required || !f.Descriptive,
			Resettable: f.Resettable,
		})
	}
	a.json(w, http.StatusOK, formResponse{
		Fields:             fields,
		MaxReferenceImages: generation.MaxReferenceImages,
		AcceptedImageTypes: generation.AcceptedImageTypes,
	})
}

// ResetForm returns the submitted settings with the images dropped and the
// resettable fields back at their defaults.
func (a *App) ResetForm(w http.ResponseWriter, r *http.Request) {
	var req generationRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxGenerationBody))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		a.error(w, r, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	reset := generation.Reset(req.form())
	reset.Images = []domain.ReferenceImage{}
	a.json(w, http.StatusOK, reset)
}

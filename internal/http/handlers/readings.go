package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"palmreader/internal/domain"
	"palmreader/internal/middleware"
	"palmreader/internal/service"
)

type numerologyRequest struct {
	FullName    string   `json:"full_name" validate:"required,max=200"`
	BirthDate   string   `json:"birth_date" validate:"required,birthdate"`
	Gender      string   `json:"gender" validate:"omitempty,max=32"`
	Preferences []string `json:"preferences" validate:"max=10,dive,max=64"`
	Consent     bool     `json:"consent"`
}

type astrologyRequest struct {
	FullName    string   `json:"full_name" validate:"omitempty,max=200"`
	BirthDate   string   `json:"birth_date" validate:"required,birthdate"`
	BirthTime   string   `json:"birth_time" validate:"omitempty,birthtime"`
	BirthPlace  string   `json:"birth_place" validate:"omitempty,max=200"`
	Gender      string   `json:"gender" validate:"omitempty,max=32"`
	Preferences []string `json:"preferences" validate:"max=10,dive,max=64"`
	Consent     bool     `json:"consent"`
}

type jobResponse struct {
	JobID       string     `json:"job_id"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ExpiresAt   time.Time  `json:"expires_at"`
}

func newJobResponse(job *domain.Job) jobResponse {
	return jobResponse{
		JobID:       job.ID,
		Kind:        string(job.Kind),
		Status:      string(job.Status),
		Error:       job.ErrorMessage,
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
		ExpiresAt:   job.ExpiresAt,
	}
}

// maxJSONBody bounds numerology and astrology payloads.
const maxJSONBody = 64 << 10

func (a *App) CreatePalmReading(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.MaxUpload+1<<20)
	if err := r.ParseMultipartForm(a.MaxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			a.error(w, http.StatusRequestEntityTooLarge, "too_large", "image exceeds the upload limit")
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", "expected a multipart form with an image field")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("image")
	if err != nil {
		a.error(w, http.StatusBadRequest, "invalid_input", "image is required")
		return
	}
	defer file.Close()
	if header.Size > a.MaxUpload {
		a.error(w, http.StatusRequestEntityTooLarge, "too_large", "image exceeds the upload limit")
		return
	}
	image, err := io.ReadAll(io.LimitReader(file, a.MaxUpload+1))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "could not read image")
		return
	}
	if int64(len(image)) > a.MaxUpload {
		a.error(w, http.StatusRequestEntityTooLarge, "too_large", "image exceeds the upload limit")
		return
	}

	consent, _ := strconv.ParseBool(strings.TrimSpace(r.FormValue("consent")))
	a.submit(w, r, service.SubmitRequest{
		Kind:           domain.KindPalm,
		Image:          image,
		ConsentToStore: consent,
	})
}

func (a *App) CreateNumerologyReading(w http.ResponseWriter, r *http.Request) {
	var req numerologyRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.submit(w, r, service.SubmitRequest{
		Kind: domain.KindNumerology,
		Input: domain.InputAttributes{
			FullName:    req.FullName,
			BirthDate:   req.BirthDate,
			Gender:      req.Gender,
			Preferences: req.Preferences,
		},
		ConsentToStore: req.Consent,
	})
}

func (a *App) CreateAstrologyReading(w http.ResponseWriter, r *http.Request) {
	var req astrologyRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.submit(w, r, service.SubmitRequest{
		Kind: domain.KindAstrology,
		Input: domain.InputAttributes{
			FullName:    req.FullName,
			BirthDate:   req.BirthDate,
			BirthTime:   req.BirthTime,
			BirthPlace:  req.BirthPlace,
			Gender:      req.Gender,
			Preferences: req.Preferences,
		},
		ConsentToStore: req.Consent,
	})
}

func (a *App) ReadingStatus(w http.ResponseWriter, r *http.Request) {
	job, err := a.Readings.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, newJobResponse(job))
}

// ReadingResult answers 200 with the result, 202 while the job is in flight
// and 422 when it failed.
func (a *App) ReadingResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := a.Readings.Result(r.Context(), id)
	if errors.Is(err, domain.ErrNotReady) {
		job, serr := a.Readings.Status(r.Context(), id)
		if serr != nil {
			a.serviceError(w, r, serr)
			return
		}
		a.json(w, http.StatusAccepted, newJobResponse(job))
		return
	}
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, res)
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	if err := a.validate.Struct(v); err != nil {
		a.error(w, http.StatusBadRequest, "invalid_input", validationMessage(err))
		return false
	}
	return true
}

func (a *App) submit(w http.ResponseWriter, r *http.Request, req service.SubmitRequest) {
	req.ClientKey = middleware.APIKeyFromContext(r.Context())
	req.OriginCountry = middleware.CountryFromContext(r.Context())
	job, err := a.Readings.Submit(r.Context(), req)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, newJobResponse(job))
}

func (a *App) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	var failure *domain.Failure
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		msg := strings.TrimPrefix(err.Error(), domain.ErrInvalidInput.Error()+": ")
		a.error(w, http.StatusBadRequest, "invalid_input", msg)
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "reading not found")
	case errors.Is(err, domain.ErrJobFailed) && errors.As(err, &failure):
		a.error(w, http.StatusUnprocessableEntity, "reading_failed", domain.UserMessage(failure))
	default:
		a.logger.Error().Err(err).Str("request_id", middleware.RequestIDFromContext(r.Context())).Msg("http: readings")
		a.error(w, http.StatusInternalServerError, "internal", "the reading could not be processed")
	}
}

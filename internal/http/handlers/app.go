package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"palmreader/internal/infra"
	"palmreader/internal/service"
)

// DefaultMaxUpload bounds palm uploads when no limit is configured.
const DefaultMaxUpload = 10 << 20

type App struct {
	Readings  *service.Readings
	MaxUpload int64

	validate *validator.Validate
	logger   zerolog.Logger
}

func NewApp(readings *service.Readings, maxUpload int64, logger *infra.Logger) *App {
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUpload
	}
	a := &App{
		Readings:  readings,
		MaxUpload: maxUpload,
		validate:  newValidator(),
		logger:    zerolog.Nop(),
	}
	if logger != nil {
		a.logger = *logger
	}
	return a
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorResponse{Error: errCode, Message: message})
}

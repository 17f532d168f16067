package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/postocalmo/backend/internal/api/middleware"
	"github.com/postocalmo/backend/internal/application/services"
	"github.com/postocalmo/backend/internal/domain/entities"
	apperrors "github.com/postocalmo/backend/pkg/errors"
	"github.com/postocalmo/backend/pkg/utils"
)

// PostoService defines the application operations the handler exposes
// over HTTP. Implemented by services.PostoService.
type PostoService interface {
	Search(ctx context.Context, input services.SearchInput) ([]*entities.Posto, error)
	GetByID(ctx context.Context, id string) (*entities.Posto, error)
	Create(ctx context.Context, identity *entities.Identity, input services.CreatePostoInput) (*entities.Posto, error)
	Update(ctx context.Context, identity *entities.Identity, id string, input services.UpdatePostoInput) (*entities.Posto, error)
	Delete(ctx context.Context, identity *entities.Identity, id string) error
	UpdateServiceStatus(ctx context.Context, identity *entities.Identity, id string, input services.UpdateServiceStatusInput) (*entities.Posto, error)
	AddReview(ctx context.Context, identity *entities.Identity, id string, input services.AddReviewInput) (*entities.Posto, error)
}

// PostoHandler handles posto-related HTTP requests
type PostoHandler struct {
	service PostoService
}

// NewPostoHandler creates a new posto handler
func NewPostoHandler(service PostoService) *PostoHandler {
	return &PostoHandler{service: service}
}

// SearchPostos handles GET /api/postos
func (h *PostoHandler) SearchPostos(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	input := services.SearchInput{
		Specialty: query.Get("specialty"),
	}

	if raw := query.Get("serviceType"); raw != "" {
		if canonical, ok := utils.NormalizeServiceType(raw); ok {
			input.ServiceType = canonical
		} else {
			input.ServiceType = raw
		}
	}

	var parseErr error
	input.Latitude = parseFloatParam(query.Get("lat"), "lat", &parseErr)
	input.Longitude = parseFloatParam(query.Get("lng"), "lng", &parseErr)
	input.RadiusMeters = parseFloatParam(query.Get("radius"), "radius", &parseErr)
	if parseErr != nil {
		respondWithError(w, http.StatusBadRequest, parseErr.Error())
		return
	}

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			respondWithError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		input.Limit = limit
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			respondWithError(w, http.StatusBadRequest, "invalid offset parameter")
			return
		}
		input.Offset = offset
	}

	postos, err := h.service.Search(r.Context(), input)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"postos": postos,
		"count":  len(postos),
	})
}

// GetPosto handles GET /api/postos/{id}
func (h *PostoHandler) GetPosto(w http.ResponseWriter, r *http.Request) {
	postoID := r.PathValue("id")
	if postoID == "" {
		respondWithError(w, http.StatusBadRequest, "posto ID is required")
		return
	}

	posto, err := h.service.GetByID(r.Context(), postoID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, posto)
}

// CreatePosto handles POST /api/postos
func (h *PostoHandler) CreatePosto(w http.ResponseWriter, r *http.Request) {
	var input services.CreatePostoInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	posto, err := h.service.Create(r.Context(), middleware.IdentityFromContext(r.Context()), input)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, posto)
}

// UpdatePosto handles PATCH /api/postos/{id}
func (h *PostoHandler) UpdatePosto(w http.ResponseWriter, r *http.Request) {
	postoID := r.PathValue("id")
	if postoID == "" {
		respondWithError(w, http.StatusBadRequest, "posto ID is required")
		return
	}

	var input services.UpdatePostoInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	posto, err := h.service.Update(r.Context(), middleware.IdentityFromContext(r.Context()), postoID, input)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, posto)
}

// DeletePosto handles DELETE /api/postos/{id}
func (h *PostoHandler) DeletePosto(w http.ResponseWriter, r *http.Request) {
	postoID := r.PathValue("id")
	if postoID == "" {
		respondWithError(w, http.StatusBadRequest, "posto ID is required")
		return
	}

	if err := h.service.Delete(r.Context(), middleware.IdentityFromContext(r.Context()), postoID); err != nil {
		respondWithServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdateServiceStatus handles PATCH /api/postos/{id}/services
func (h *PostoHandler) UpdateServiceStatus(w http.ResponseWriter, r *http.Request) {
	postoID := r.PathValue("id")
	if postoID == "" {
		respondWithError(w, http.StatusBadRequest, "posto ID is required")
		return
	}

	var input services.UpdateServiceStatusInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if canonical, ok := utils.NormalizeServiceType(input.ServiceType); ok {
		input.ServiceType = canonical
	}

	posto, err := h.service.UpdateServiceStatus(r.Context(), middleware.IdentityFromContext(r.Context()), postoID, input)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, posto)
}

// AddReview handles POST /api/postos/{id}/reviews
func (h *PostoHandler) AddReview(w http.ResponseWriter, r *http.Request) {
	postoID := r.PathValue("id")
	if postoID == "" {
		respondWithError(w, http.StatusBadRequest, "posto ID is required")
		return
	}

	var input services.AddReviewInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	posto, err := h.service.AddReview(r.Context(), middleware.IdentityFromContext(r.Context()), postoID, input)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, posto)
}

// parseFloatParam parses an optional float query parameter, recording the
// first failure in parseErr.
func parseFloatParam(raw, name string, parseErr *error) *float64 {
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		if *parseErr == nil {
			*parseErr = fmt.Errorf("invalid %s parameter", name)
		}
		return nil
	}
	return &value
}

// respondWithServiceError maps application errors onto HTTP status codes.
func respondWithServiceError(w http.ResponseWriter, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		respondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	switch appErr.Type {
	case apperrors.ErrorTypeValidation:
		respondWithError(w, http.StatusBadRequest, appErr.Message)
	case apperrors.ErrorTypeUnauthorized:
		respondWithError(w, http.StatusUnauthorized, appErr.Message)
	case apperrors.ErrorTypeForbidden:
		respondWithError(w, http.StatusForbidden, appErr.Message)
	case apperrors.ErrorTypeNotFound:
		respondWithError(w, http.StatusNotFound, appErr.Message)
	case apperrors.ErrorTypeConflict:
		respondWithError(w, http.StatusConflict, appErr.Message)
	case apperrors.ErrorTypeUnavailable:
		respondWithError(w, http.StatusServiceUnavailable, appErr.Message)
	default:
		respondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}

// Helper functions
func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

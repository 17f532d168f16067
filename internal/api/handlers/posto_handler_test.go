package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/postocalmo/backend/internal/api/handlers"
	"github.com/postocalmo/backend/internal/api/middleware"
	"github.com/postocalmo/backend/internal/application/services"
	"github.com/postocalmo/backend/internal/domain/entities"
	apperrors "github.com/postocalmo/backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockPostoService struct {
	mock.Mock
}

func (m *MockPostoService) Search(ctx context.Context, input services.SearchInput) ([]*entities.Posto, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Posto), args.Error(1)
}

func (m *MockPostoService) GetByID(ctx context.Context, id string) (*entities.Posto, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Posto), args.Error(1)
}

func (m *MockPostoService) Create(ctx context.Context, identity *entities.Identity, input services.CreatePostoInput) (*entities.Posto, error) {
	args := m.Called(ctx, identity, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Posto), args.Error(1)
}

func (m *MockPostoService) Update(ctx context.Context, identity *entities.Identity, id string, input services.UpdatePostoInput) (*entities.Posto, error) {
	args := m.Called(ctx, identity, id, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Posto), args.Error(1)
}

func (m *MockPostoService) Delete(ctx context.Context, identity *entities.Identity, id string) error {
	args := m.Called(ctx, identity, id)
	return args.Error(0)
}

func (m *MockPostoService) UpdateServiceStatus(ctx context.Context, identity *entities.Identity, id string, input services.UpdateServiceStatusInput) (*entities.Posto, error) {
	args := m.Called(ctx, identity, id, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Posto), args.Error(1)
}

func (m *MockPostoService) AddReview(ctx context.Context, identity *entities.Identity, id string, input services.AddReviewInput) (*entities.Posto, error) {
	args := m.Called(ctx, identity, id, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Posto), args.Error(1)
}

type searchPostosResponse struct {
	Postos []*entities.Posto `json:"postos"`
	Count  int               `json:"count"`
}

func waiting(minutes int) *int {
	return &minutes
}

func samplePosto() *entities.Posto {
	return &entities.Posto{
		ID:       "posto-1",
		Name:     "Posto Central",
		Address:  "Av. Paulista, 1000",
		Location: entities.NewGeoPoint(-23.5614, -46.6558),
		Services: []entities.Service{
			{Type: entities.ServiceTypeVaccines, Available: true, WaitingTime: waiting(40)},
		},
		Specialties: []string{string(entities.SpecialtyGeneralPractice)},
		Occupancy:   entities.OccupancyMedium,
		IsActive:    true,
	}
}

func TestPostoHandler_SearchPostos(t *testing.T) {
	mockService := new(MockPostoService)
	handler := handlers.NewPostoHandler(mockService)

	expected := []*entities.Posto{samplePosto()}
	mockService.On("Search", mock.Anything, mock.MatchedBy(func(in services.SearchInput) bool {
		return in.Latitude != nil && *in.Latitude == -23.5614 &&
			in.Longitude != nil && *in.Longitude == -46.6558 &&
			in.RadiusMeters != nil && *in.RadiusMeters == 2000 &&
			in.Specialty == "pediatria" &&
			in.ServiceType == "vacinas" &&
			in.Limit == 10 && in.Offset == 20
	})).Return(expected, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/postos?lat=-23.5614&lng=-46.6558&radius=2000&specialty=pediatria&serviceType=vacinas&limit=10&offset=20", nil)
	rec := httptest.NewRecorder()

	handler.SearchPostos(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp searchPostosResponse
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "posto-1", resp.Postos[0].ID)
	assert.Equal(t, entities.OccupancyMedium, resp.Postos[0].Occupancy)
	mockService.AssertExpectations(t)
}

func TestPostoHandler_SearchPostos_NormalizesServiceTypeAlias(t *testing.T) {
	mockService := new(MockPostoService)
	handler := handlers.NewPostoHandler(mockService)

	mockService.On("Search", mock.Anything, mock.MatchedBy(func(in services.SearchInput) bool {
		return in.ServiceType == string(entities.ServiceTypeVaccines)
	})).Return([]*entities.Posto{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/postos?serviceType=vaccines", nil)
	rec := httptest.NewRecorder()

	handler.SearchPostos(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	mockService.AssertExpectations(t)
}

func TestPostoHandler_SearchPostos_InvalidLatitudeParam(t *testing.T) {
	mockService := new(MockPostoService)
	handler := handlers.NewPostoHandler(mockService)

	req := httptest.NewRequest(http.MethodGet, "/api/postos?lat=abc&lng=-46.6", nil)
	rec := httptest.NewRecorder()

	handler.SearchPostos(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	mockService.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}

func TestPostoHandler_SearchPostos_ValidationErrorMapsTo400(t *testing.T) {
	mockService := new(MockPostoService)
	handler := handlers.NewPostoHandler(mockService)

	mockService.On("Search", mock.Anything, mock.Anything).
		Return(nil, apperrors.NewValidationError("latitude and longitude must be supplied together"))

	req := httptest.NewRequest(http.MethodGet, "/api/postos?lat=-23.5", nil)
	rec := httptest.NewRecorder()

	handler.SearchPostos(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostoHandler_GetPosto_NotFound(t *testing.T) {
	mockService := new(MockPostoService)
	handler := handlers.NewPostoHandler(mockService)

	mockService.On("GetByID", mock.Anything, "missing").
		Return(nil, apperrors.NewNotFoundError("posto not found"))

	req := httptest.NewRequest(http.MethodGet, "/api/postos/missing", nil)
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()

	handler.GetPosto(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostoHandler_AddReview_PassesCallerIdentity(t *testing.T) {
	mockService := new(MockPostoService)
	handler := handlers.NewPostoHandler(mockService)

	mockService.On("AddReview", mock.Anything, mock.MatchedBy(func(id *entities.Identity) bool {
		return id != nil && id.UserID == "user-7" && id.Role == entities.RoleUser
	}), "posto-1", services.AddReviewInput{Rating: 5, Comment: "otimo atendimento"}).
		Return(samplePosto(), nil)

	body := bytes.NewBufferString(`{"rating": 5, "comment": "otimo atendimento"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/postos/posto-1/reviews", body)
	req.Header.Set("X-User-Id", "user-7")
	req.SetPathValue("id", "posto-1")
	rec := httptest.NewRecorder()

	middleware.IdentityMiddleware(http.HandlerFunc(handler.AddReview)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	mockService.AssertExpectations(t)
}

func TestPostoHandler_AddReview_AnonymousMapsTo401(t *testing.T) {
	mockService := new(MockPostoService)
	handler := handlers.NewPostoHandler(mockService)

	mockService.On("AddReview", mock.Anything, (*entities.Identity)(nil), "posto-1", mock.Anything).
		Return(nil, apperrors.NewUnauthorizedError("authentication required"))

	body := bytes.NewBufferString(`{"rating": 4}`)
	req := httptest.NewRequest(http.MethodPost, "/api/postos/posto-1/reviews", body)
	req.SetPathValue("id", "posto-1")
	rec := httptest.NewRecorder()

	handler.AddReview(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPostoHandler_UpdateServiceStatus_ForbiddenMapsTo403(t *testing.T) {
	mockService := new(MockPostoService)
	handler := handlers.NewPostoHandler(mockService)

	mockService.On("UpdateServiceStatus", mock.Anything, mock.Anything, "posto-1", mock.Anything).
		Return(nil, apperrors.NewForbiddenError("admin role required"))

	body := bytes.NewBufferString(`{"service_type": "vacinas", "available": false}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/postos/posto-1/services", body)
	req.Header.Set("X-User-Id", "user-7")
	req.SetPathValue("id", "posto-1")
	rec := httptest.NewRecorder()

	middleware.IdentityMiddleware(http.HandlerFunc(handler.UpdateServiceStatus)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPostoHandler_UpdateServiceStatus_UnavailableMapsTo503(t *testing.T) {
	mockService := new(MockPostoService)
	handler := handlers.NewPostoHandler(mockService)

	mockService.On("UpdateServiceStatus", mock.Anything, mock.Anything, "posto-1", mock.Anything).
		Return(nil, apperrors.NewUnavailableError("datastore temporarily unavailable, try again", nil))

	body := bytes.NewBufferString(`{"service_type": "vacinas", "available": true}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/postos/posto-1/services", body)
	req.SetPathValue("id", "posto-1")
	rec := httptest.NewRecorder()

	handler.UpdateServiceStatus(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPostoHandler_CreatePosto_InvalidBody(t *testing.T) {
	mockService := new(MockPostoService)
	handler := handlers.NewPostoHandler(mockService)

	req := httptest.NewRequest(http.MethodPost, "/api/postos", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()

	handler.CreatePosto(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	mockService.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestPostoHandler_DeletePosto(t *testing.T) {
	mockService := new(MockPostoService)
	handler := handlers.NewPostoHandler(mockService)

	mockService.On("Delete", mock.Anything, mock.MatchedBy(func(id *entities.Identity) bool {
		return id != nil && id.Role == entities.RoleAdmin
	}), "posto-1").Return(nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/postos/posto-1", nil)
	req.Header.Set("X-User-Id", "admin-1")
	req.Header.Set("X-User-Role", "admin")
	req.SetPathValue("id", "posto-1")
	rec := httptest.NewRecorder()

	middleware.IdentityMiddleware(http.HandlerFunc(handler.DeletePosto)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	mockService.AssertExpectations(t)
}

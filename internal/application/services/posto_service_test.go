package services_test

import (
	"context"
	"testing"

	"github.com/postocalmo/backend/internal/application/services"
	"github.com/postocalmo/backend/internal/domain/entities"
	"github.com/postocalmo/backend/internal/domain/providers"
	"github.com/postocalmo/backend/internal/domain/repositories"
	apperrors "github.com/postocalmo/backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// Mocks

type MockPostoRepository struct {
	mock.Mock
}

func (m *MockPostoRepository) Create(ctx context.Context, posto *entities.Posto) error {
	args := m.Called(ctx, posto)
	return args.Error(0)
}

func (m *MockPostoRepository) GetByID(ctx context.Context, id string) (*entities.Posto, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Posto), args.Error(1)
}

func (m *MockPostoRepository) GetByIDs(ctx context.Context, ids []string) ([]*entities.Posto, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Posto), args.Error(1)
}

func (m *MockPostoRepository) Update(ctx context.Context, id string, update repositories.PostoUpdate) (*entities.Posto, error) {
	args := m.Called(ctx, id, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Posto), args.Error(1)
}

func (m *MockPostoRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockPostoRepository) List(ctx context.Context, filter repositories.PostoFilter) ([]*entities.Posto, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Posto), args.Error(1)
}

func (m *MockPostoRepository) SearchNearby(ctx context.Context, params repositories.NearbyParams) ([]*entities.Posto, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Posto), args.Error(1)
}

func (m *MockPostoRepository) UpdateServiceStatus(ctx context.Context, id string, serviceType entities.ServiceType, available bool, waitingTime *int) (*entities.Posto, error) {
	args := m.Called(ctx, id, serviceType, available, waitingTime)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Posto), args.Error(1)
}

func (m *MockPostoRepository) AddReview(ctx context.Context, id string, review entities.Review) (*entities.Posto, error) {
	args := m.Called(ctx, id, review)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Posto), args.Error(1)
}

type MockPostoSearchRepository struct {
	mock.Mock
}

func (m *MockPostoSearchRepository) SearchNearby(ctx context.Context, params repositories.NearbyParams) ([]string, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockPostoSearchRepository) Index(ctx context.Context, posto *entities.Posto) error {
	args := m.Called(ctx, posto)
	return args.Error(0)
}

func (m *MockPostoSearchRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockEventBus struct {
	mock.Mock
}

func (m *MockEventBus) Publish(ctx context.Context, channel string, event *entities.PostoEvent) error {
	args := m.Called(ctx, channel, event)
	return args.Error(0)
}

func (m *MockEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.PostoEvent, error) {
	args := m.Called(ctx, channel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(<-chan *entities.PostoEvent), args.Error(1)
}

func (m *MockEventBus) Unsubscribe(ctx context.Context, channel string) error {
	args := m.Called(ctx, channel)
	return args.Error(0)
}

func (m *MockEventBus) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Fixtures

var (
	admin  = &entities.Identity{UserID: "admin-1", Role: entities.RoleAdmin}
	viewer = &entities.Identity{UserID: "user-1", Role: entities.RoleUser}
)

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func examsPosto(rating float64, reviewCount int) *entities.Posto {
	return &entities.Posto{
		ID:       "posto-1",
		Name:     "UBS Vila Mariana",
		Location: entities.NewGeoPoint(-23.55, -46.63),
		Services: []entities.Service{
			{Type: entities.ServiceTypeExams, Available: true, WaitingTime: intPtr(40)},
		},
		Rating:      rating,
		ReviewCount: reviewCount,
		IsActive:    true,
	}
}

// Tests

func TestPostoService_AddReview(t *testing.T) {
	t.Run("appends review and returns recomputed rating", func(t *testing.T) {
		repo := new(MockPostoRepository)
		service := services.NewPostoService(repo, nil, nil)

		// Posto had one review {rating: 4}; adding {rating: 2} must
		// land on a mean of exactly 3.0 with the tier still medium.
		updated := examsPosto(3.0, 2)
		repo.On("AddReview", mock.Anything, "posto-1", mock.MatchedBy(func(r entities.Review) bool {
			return r.UserID == "user-1" && r.Rating == 2 && r.ID != "" && !r.CreatedAt.IsZero()
		})).Return(updated, nil)

		posto, err := service.AddReview(context.Background(), viewer, "posto-1", services.AddReviewInput{Rating: 2})

		assert.NoError(t, err)
		assert.Equal(t, 3.0, posto.Rating)
		assert.Equal(t, 2, posto.ReviewCount)
		assert.Equal(t, entities.OccupancyMedium, posto.Occupancy)
		repo.AssertExpectations(t)
	})

	t.Run("rejects out-of-range rating before touching storage", func(t *testing.T) {
		repo := new(MockPostoRepository)
		service := services.NewPostoService(repo, nil, nil)

		for _, rating := range []int{0, 6, -1} {
			_, err := service.AddReview(context.Background(), viewer, "posto-1", services.AddReviewInput{Rating: rating})
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
		}
		repo.AssertNotCalled(t, "AddReview", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("requires an authenticated identity", func(t *testing.T) {
		repo := new(MockPostoRepository)
		service := services.NewPostoService(repo, nil, nil)

		_, err := service.AddReview(context.Background(), nil, "posto-1", services.AddReviewInput{Rating: 4})

		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnauthorized))
		repo.AssertNotCalled(t, "AddReview", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("propagates not found", func(t *testing.T) {
		repo := new(MockPostoRepository)
		service := services.NewPostoService(repo, nil, nil)

		repo.On("AddReview", mock.Anything, "missing", mock.Anything).
			Return(nil, apperrors.NewNotFoundError("posto not found"))

		_, err := service.AddReview(context.Background(), viewer, "missing", services.AddReviewInput{Rating: 4})

		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
	})
}

func TestPostoService_UpdateServiceStatus(t *testing.T) {
	t.Run("forbidden for non-admin, storage untouched", func(t *testing.T) {
		repo := new(MockPostoRepository)
		service := services.NewPostoService(repo, nil, nil)

		_, err := service.UpdateServiceStatus(context.Background(), viewer, "posto-1", services.UpdateServiceStatusInput{
			ServiceType: "exames",
			Available:   false,
		})

		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeForbidden))
		repo.AssertNotCalled(t, "UpdateServiceStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects unknown service type", func(t *testing.T) {
		repo := new(MockPostoRepository)
		service := services.NewPostoService(repo, nil, nil)

		_, err := service.UpdateServiceStatus(context.Background(), admin, "posto-1", services.UpdateServiceStatusInput{
			ServiceType: "acupuntura",
			Available:   true,
		})

		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	})

	t.Run("omitted waiting time is passed through as nil", func(t *testing.T) {
		repo := new(MockPostoRepository)
		service := services.NewPostoService(repo, nil, nil)

		repo.On("UpdateServiceStatus", mock.Anything, "posto-1", entities.ServiceTypeExams, false, (*int)(nil)).
			Return(examsPosto(0, 0), nil)

		_, err := service.UpdateServiceStatus(context.Background(), admin, "posto-1", services.UpdateServiceStatusInput{
			ServiceType: "exames",
			Available:   false,
		})

		assert.NoError(t, err)
		repo.AssertExpectations(t)
	})
}

func TestPostoService_Search(t *testing.T) {
	t.Run("rejects a partially supplied origin", func(t *testing.T) {
		repo := new(MockPostoRepository)
		service := services.NewPostoService(repo, nil, nil)

		_, err := service.Search(context.Background(), services.SearchInput{Latitude: floatPtr(-23.55)})

		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	})

	t.Run("defaults the radius to 5000 meters", func(t *testing.T) {
		repo := new(MockPostoRepository)
		service := services.NewPostoService(repo, nil, nil)

		repo.On("SearchNearby", mock.Anything, mock.MatchedBy(func(p repositories.NearbyParams) bool {
			return p.RadiusMeters == 5000 && p.Latitude == -23.55 && p.Longitude == -46.63
		})).Return([]*entities.Posto{}, nil)

		postos, err := service.Search(context.Background(), services.SearchInput{
			Latitude:  floatPtr(-23.55),
			Longitude: floatPtr(-46.63),
		})

		assert.NoError(t, err)
		assert.Empty(t, postos)
		repo.AssertExpectations(t)
	})

	t.Run("no origin runs global listing mode without a radius", func(t *testing.T) {
		repo := new(MockPostoRepository)
		service := services.NewPostoService(repo, nil, nil)

		repo.On("List", mock.Anything, mock.MatchedBy(func(f repositories.PostoFilter) bool {
			return f.Specialty == "pediatria" && f.IsActive != nil && *f.IsActive
		})).Return([]*entities.Posto{examsPosto(4.0, 1)}, nil)

		postos, err := service.Search(context.Background(), services.SearchInput{Specialty: "pediatria"})

		assert.NoError(t, err)
		assert.Len(t, postos, 1)
		assert.Equal(t, entities.OccupancyMedium, postos[0].Occupancy)
		repo.AssertNotCalled(t, "SearchNearby", mock.Anything, mock.Anything)
	})

	t.Run("rejects unknown filter values", func(t *testing.T) {
		repo := new(MockPostoRepository)
		service := services.NewPostoService(repo, nil, nil)

		_, err := service.Search(context.Background(), services.SearchInput{Specialty: "fisioterapia"})
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

		_, err = service.Search(context.Background(), services.SearchInput{ServiceType: "acupuntura"})
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	})

	t.Run("prefers the geosearch index and keeps its ordering", func(t *testing.T) {
		repo := new(MockPostoRepository)
		searchRepo := new(MockPostoSearchRepository)
		service := services.NewPostoService(repo, searchRepo, nil)

		searchRepo.On("SearchNearby", mock.Anything, mock.Anything).
			Return([]string{"posto-2", "posto-1"}, nil)

		far := examsPosto(0, 0)
		near := examsPosto(0, 0)
		near.ID = "posto-2"
		repo.On("GetByIDs", mock.Anything, []string{"posto-2", "posto-1"}).
			Return([]*entities.Posto{far, near}, nil)

		postos, err := service.Search(context.Background(), services.SearchInput{
			Latitude:  floatPtr(-23.55),
			Longitude: floatPtr(-46.63),
		})

		assert.NoError(t, err)
		assert.Len(t, postos, 2)
		assert.Equal(t, "posto-2", postos[0].ID)
		assert.Equal(t, "posto-1", postos[1].ID)
	})

	t.Run("falls back to the database when the index fails", func(t *testing.T) {
		repo := new(MockPostoRepository)
		searchRepo := new(MockPostoSearchRepository)
		service := services.NewPostoService(repo, searchRepo, nil)

		searchRepo.On("SearchNearby", mock.Anything, mock.Anything).
			Return(nil, assert.AnError)
		repo.On("SearchNearby", mock.Anything, mock.Anything).
			Return([]*entities.Posto{examsPosto(0, 0)}, nil)

		postos, err := service.Search(context.Background(), services.SearchInput{
			Latitude:  floatPtr(-23.55),
			Longitude: floatPtr(-46.63),
		})

		assert.NoError(t, err)
		assert.Len(t, postos, 1)
	})
}

func TestPostoService_Create(t *testing.T) {
	validInput := services.CreatePostoInput{
		Name:      "UBS Jardim Paulista",
		Address:   "Rua Estados Unidos, 100",
		Latitude:  -23.566,
		Longitude: -46.662,
		Services: []services.ServiceInput{
			{Type: "vacinas", Available: true},
		},
		Specialties: []string{"clinico_geral"},
		Contact:     entities.Contact{Phone: "+55 11 5555-0100"},
	}

	t.Run("forbidden for non-admin", func(t *testing.T) {
		repo := new(MockPostoRepository)
		service := services.NewPostoService(repo, nil, nil)

		_, err := service.Create(context.Background(), viewer, validInput)

		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeForbidden))
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("admin creates an active posto with fresh identity", func(t *testing.T) {
		repo := new(MockPostoRepository)
		searchRepo := new(MockPostoSearchRepository)
		service := services.NewPostoService(repo, searchRepo, nil)

		repo.On("Create", mock.Anything, mock.MatchedBy(func(p *entities.Posto) bool {
			return p.ID != "" && p.IsActive && p.Rating == 0 && p.ReviewCount == 0 &&
				p.Location.Latitude() == -23.566 && p.Location.Longitude() == -46.662
		})).Return(nil)
		searchRepo.On("Index", mock.Anything, mock.Anything).Return(nil)

		posto, err := service.Create(context.Background(), admin, validInput)

		assert.NoError(t, err)
		assert.Equal(t, entities.OccupancyLow, posto.Occupancy)
		repo.AssertExpectations(t)
		searchRepo.AssertExpectations(t)
	})

	t.Run("rejects unknown enum values", func(t *testing.T) {
		repo := new(MockPostoRepository)
		service := services.NewPostoService(repo, nil, nil)

		bad := validInput
		bad.Services = []services.ServiceInput{{Type: "acupuntura", Available: true}}
		_, err := service.Create(context.Background(), admin, bad)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

		bad = validInput
		bad.Specialties = []string{"fisioterapia"}
		_, err = service.Create(context.Background(), admin, bad)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	})
}

func TestPostoService_Delete(t *testing.T) {
	t.Run("admin delete also drops the index entry", func(t *testing.T) {
		repo := new(MockPostoRepository)
		searchRepo := new(MockPostoSearchRepository)
		service := services.NewPostoService(repo, searchRepo, nil)

		repo.On("Delete", mock.Anything, "posto-1").Return(nil)
		searchRepo.On("Delete", mock.Anything, "posto-1").Return(nil)

		err := service.Delete(context.Background(), admin, "posto-1")

		assert.NoError(t, err)
		repo.AssertExpectations(t)
		searchRepo.AssertExpectations(t)
	})

	t.Run("forbidden for non-admin", func(t *testing.T) {
		repo := new(MockPostoRepository)
		service := services.NewPostoService(repo, nil, nil)

		err := service.Delete(context.Background(), viewer, "posto-1")

		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeForbidden))
		repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})
}

func TestPostoService_GetByID(t *testing.T) {
	repo := new(MockPostoRepository)
	service := services.NewPostoService(repo, nil, nil)

	repo.On("GetByID", mock.Anything, "posto-1").Return(examsPosto(4.0, 1), nil)

	posto, err := service.GetByID(context.Background(), "posto-1")

	assert.NoError(t, err)
	assert.Equal(t, entities.OccupancyMedium, posto.Occupancy)
}

func TestPostoService_EventFanOut(t *testing.T) {
	t.Run("mutation publishes to the global and per-posto channels", func(t *testing.T) {
		repo := new(MockPostoRepository)
		eventBus := new(MockEventBus)
		service := services.NewPostoService(repo, nil, eventBus)

		repo.On("AddReview", mock.Anything, "posto-1", mock.Anything).Return(examsPosto(4.0, 1), nil)
		eventBus.On("Publish", mock.Anything, providers.EventChannelPostoUpdates, mock.MatchedBy(func(e *entities.PostoEvent) bool {
			return e.PostoID == "posto-1" && e.EventType == entities.PostoEventTypeReviewAdded
		})).Return(nil)
		eventBus.On("Publish", mock.Anything, providers.GetPostoChannel("posto-1"), mock.MatchedBy(func(e *entities.PostoEvent) bool {
			return e.PostoID == "posto-1" && e.EventType == entities.PostoEventTypeReviewAdded
		})).Return(nil)

		_, err := service.AddReview(context.Background(), viewer, "posto-1", services.AddReviewInput{Rating: 4})

		assert.NoError(t, err)
		eventBus.AssertExpectations(t)
	})

	t.Run("delete publishes to both channels", func(t *testing.T) {
		repo := new(MockPostoRepository)
		eventBus := new(MockEventBus)
		service := services.NewPostoService(repo, nil, eventBus)

		repo.On("Delete", mock.Anything, "posto-1").Return(nil)
		eventBus.On("Publish", mock.Anything, providers.EventChannelPostoUpdates, mock.Anything).Return(nil)
		eventBus.On("Publish", mock.Anything, providers.GetPostoChannel("posto-1"), mock.Anything).Return(nil)

		assert.NoError(t, service.Delete(context.Background(), admin, "posto-1"))
		eventBus.AssertExpectations(t)
	})
}

package repositories

import (
	"context"

	"github.com/postocalmo/backend/internal/domain/entities"
)

// PostoRepository defines the interface for posto data operations.
// Mutations touching the embedded services or reviews arrays must be
// atomic at the single-posto granularity: two concurrent updates to the
// same posto never interleave partially.
type PostoRepository interface {
	// Create creates a new posto
	Create(ctx context.Context, posto *entities.Posto) error

	// GetByID retrieves a posto by ID
	GetByID(ctx context.Context, id string) (*entities.Posto, error)

	// GetByIDs retrieves multiple postos by their IDs
	GetByIDs(ctx context.Context, ids []string) ([]*entities.Posto, error)

	// Update applies a partial update to a posto's core fields
	Update(ctx context.Context, id string, update PostoUpdate) (*entities.Posto, error)

	// Delete removes a posto from the catalog (soft delete)
	Delete(ctx context.Context, id string) error

	// List retrieves postos with filters, without any geo predicate
	List(ctx context.Context, filter PostoFilter) ([]*entities.Posto, error)

	// SearchNearby retrieves active postos within the radius of the
	// origin, ordered nearest first by the datastore
	SearchNearby(ctx context.Context, params NearbyParams) ([]*entities.Posto, error)

	// UpdateServiceStatus sets the availability, and optionally the
	// waiting time, of one service entry of a posto
	UpdateServiceStatus(ctx context.Context, id string, serviceType entities.ServiceType, available bool, waitingTime *int) (*entities.Posto, error)

	// AddReview appends a review and recomputes the mean rating in the
	// same transaction, returning the updated posto
	AddReview(ctx context.Context, id string, review entities.Review) (*entities.Posto, error)
}

// PostoSearchRepository defines the interface for the external geosearch
// index (e.g. Typesense)
type PostoSearchRepository interface {
	// SearchNearby returns the ids of matching postos ordered nearest first
	SearchNearby(ctx context.Context, params NearbyParams) ([]string, error)

	// Index indexes a posto
	Index(ctx context.Context, posto *entities.Posto) error

	// Delete removes a posto from the index
	Delete(ctx context.Context, id string) error
}

// PostoFilter defines filters for the global listing mode
type PostoFilter struct {
	Specialty   string
	ServiceType string
	IsActive    *bool
	Limit       int
	Offset      int
}

// NearbyParams defines parameters for a distance-bounded posto search.
// Filters compose conjunctively.
type NearbyParams struct {
	Latitude     float64
	Longitude    float64
	RadiusMeters float64
	Specialty    string
	ServiceType  string
	Limit        int
	Offset       int
}

// PostoUpdate carries the core fields an admin may patch; nil fields are
// left untouched.
type PostoUpdate struct {
	Name         *string
	Address      *string
	Location     *entities.GeoPoint
	Specialties  []string
	Services     []entities.Service
	OpeningHours []entities.OpeningHours
	Contact      *entities.Contact
}

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/postocalmo/backend/internal/application/policy"
	"github.com/postocalmo/backend/internal/domain/entities"
	"github.com/postocalmo/backend/internal/domain/providers"
	"github.com/postocalmo/backend/internal/domain/repositories"
	apperrors "github.com/postocalmo/backend/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultRadiusMeters is applied when a nearby search omits the radius.
const DefaultRadiusMeters = 5000

const defaultSearchLimit = 30

// PostoService orchestrates posto discovery and mutation. Every mutating
// operation runs the access policy gate first; search prefers the
// geosearch index when one is configured and falls back to the database.
type PostoService struct {
	repo       repositories.PostoRepository
	searchRepo repositories.PostoSearchRepository
	eventBus   providers.EventBus
}

// NewPostoService creates a new posto service. searchRepo and eventBus
// may be nil; the service degrades to database-only search and no event
// publishing.
func NewPostoService(repo repositories.PostoRepository, searchRepo repositories.PostoSearchRepository, eventBus providers.EventBus) *PostoService {
	return &PostoService{
		repo:       repo,
		searchRepo: searchRepo,
		eventBus:   eventBus,
	}
}

// SearchInput carries the parameters of a posto search. Latitude and
// Longitude must be supplied together; with neither present the search
// runs in global listing mode with no radius predicate.
type SearchInput struct {
	Latitude     *float64
	Longitude    *float64
	RadiusMeters *float64
	Specialty    string
	ServiceType  string
	Limit        int
	Offset       int
}

// ServiceInput is one service entry of a create or update request.
type ServiceInput struct {
	Type        string `json:"type"`
	Available   bool   `json:"available"`
	WaitingTime *int   `json:"waiting_time,omitempty"`
}

// CreatePostoInput carries the fields of a posto creation request.
type CreatePostoInput struct {
	Name         string                  `json:"name"`
	Address      string                  `json:"address"`
	Latitude     float64                 `json:"latitude"`
	Longitude    float64                 `json:"longitude"`
	Services     []ServiceInput          `json:"services"`
	Specialties  []string                `json:"specialties"`
	OpeningHours []entities.OpeningHours `json:"opening_hours"`
	Contact      entities.Contact        `json:"contact"`
}

// UpdatePostoInput carries a partial posto update; nil fields keep their
// prior value.
type UpdatePostoInput struct {
	Name         *string                 `json:"name,omitempty"`
	Address      *string                 `json:"address,omitempty"`
	Latitude     *float64                `json:"latitude,omitempty"`
	Longitude    *float64                `json:"longitude,omitempty"`
	Services     []ServiceInput          `json:"services,omitempty"`
	Specialties  []string                `json:"specialties,omitempty"`
	OpeningHours []entities.OpeningHours `json:"opening_hours,omitempty"`
	Contact      *entities.Contact       `json:"contact,omitempty"`
}

// UpdateServiceStatusInput carries a service status mutation. An omitted
// waiting time leaves the prior value untouched.
type UpdateServiceStatusInput struct {
	ServiceType string `json:"service_type"`
	Available   bool   `json:"available"`
	WaitingTime *int   `json:"waiting_time,omitempty"`
}

// AddReviewInput carries a review submission. The reviewer is always the
// authenticated caller.
type AddReviewInput struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

// Search finds postos near an origin, or lists the catalog when no
// origin is supplied. Results are ordered nearest first in geo mode.
func (s *PostoService) Search(ctx context.Context, input SearchInput) ([]*entities.Posto, error) {
	hasLat := input.Latitude != nil
	hasLng := input.Longitude != nil
	if hasLat != hasLng {
		return nil, apperrors.NewValidationError("latitude and longitude must be supplied together")
	}

	if input.Specialty != "" && !entities.Specialty(input.Specialty).Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown specialty: %s", input.Specialty))
	}
	if input.ServiceType != "" && !entities.ServiceType(input.ServiceType).Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown service type: %s", input.ServiceType))
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	// Global listing mode: no origin, no radius predicate.
	if !hasLat {
		active := true
		postos, err := s.repo.List(ctx, repositories.PostoFilter{
			Specialty:   input.Specialty,
			ServiceType: input.ServiceType,
			IsActive:    &active,
			Limit:       limit,
			Offset:      input.Offset,
		})
		if err != nil {
			return nil, err
		}
		attachOccupancy(postos)
		return postos, nil
	}

	if err := validateCoordinates(*input.Latitude, *input.Longitude); err != nil {
		return nil, err
	}

	radius := float64(DefaultRadiusMeters)
	if input.RadiusMeters != nil {
		if *input.RadiusMeters <= 0 {
			return nil, apperrors.NewValidationError("radius must be positive")
		}
		radius = *input.RadiusMeters
	}

	params := repositories.NearbyParams{
		Latitude:     *input.Latitude,
		Longitude:    *input.Longitude,
		RadiusMeters: radius,
		Specialty:    input.Specialty,
		ServiceType:  input.ServiceType,
		Limit:        limit,
		Offset:       input.Offset,
	}

	postos, err := s.searchNearby(ctx, params)
	if err != nil {
		return nil, err
	}
	attachOccupancy(postos)
	return postos, nil
}

// searchNearby prefers the geosearch index, falling back to the database
// when the index is absent or failing.
func (s *PostoService) searchNearby(ctx context.Context, params repositories.NearbyParams) ([]*entities.Posto, error) {
	if s.searchRepo == nil {
		return s.repo.SearchNearby(ctx, params)
	}

	ids, err := s.searchRepo.SearchNearby(ctx, params)
	if err != nil {
		log.Warn().Err(err).Msg("geosearch index query failed, falling back to database")
		return s.repo.SearchNearby(ctx, params)
	}
	if len(ids) == 0 {
		return []*entities.Posto{}, nil
	}

	postos, err := s.repo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	// Preserve the index's nearest-first ordering.
	byID := make(map[string]*entities.Posto, len(postos))
	for _, p := range postos {
		byID[p.ID] = p
	}
	ordered := make([]*entities.Posto, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			ordered = append(ordered, p)
		}
	}
	return ordered, nil
}

// GetByID retrieves a posto with its derived occupancy tier.
func (s *PostoService) GetByID(ctx context.Context, id string) (*entities.Posto, error) {
	posto, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	posto.Occupancy = entities.ClassifyOccupancy(posto.Services)
	return posto, nil
}

// Create creates a new posto. Admin only.
func (s *PostoService) Create(ctx context.Context, identity *entities.Identity, input CreatePostoInput) (*entities.Posto, error) {
	if err := s.authorize(identity, policy.ActionCreatePosto); err != nil {
		return nil, err
	}
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	posto := &entities.Posto{
		ID:           uuid.New().String(),
		Name:         input.Name,
		Address:      input.Address,
		Location:     entities.NewGeoPoint(input.Latitude, input.Longitude),
		Services:     toServices(input.Services),
		Specialties:  input.Specialties,
		OpeningHours: input.OpeningHours,
		Contact:      input.Contact,
		Reviews:      []entities.Review{},
		Rating:       0,
		ReviewCount:  0,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, posto); err != nil {
		return nil, err
	}

	s.indexPosto(ctx, posto)
	s.publishEvent(ctx, posto, entities.PostoEventTypeCreated, nil)

	posto.Occupancy = entities.ClassifyOccupancy(posto.Services)
	return posto, nil
}

// Update applies a partial update to a posto's core fields. Admin only.
func (s *PostoService) Update(ctx context.Context, identity *entities.Identity, id string, input UpdatePostoInput) (*entities.Posto, error) {
	if err := s.authorize(identity, policy.ActionUpdatePosto); err != nil {
		return nil, err
	}
	update, err := toPostoUpdate(input)
	if err != nil {
		return nil, err
	}

	posto, err := s.repo.Update(ctx, id, update)
	if err != nil {
		return nil, err
	}

	s.indexPosto(ctx, posto)
	s.publishEvent(ctx, posto, entities.PostoEventTypeUpdated, nil)

	posto.Occupancy = entities.ClassifyOccupancy(posto.Services)
	return posto, nil
}

// Delete removes a posto from the catalog. Admin only.
func (s *PostoService) Delete(ctx context.Context, identity *entities.Identity, id string) error {
	if err := s.authorize(identity, policy.ActionDeletePosto); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	if s.searchRepo != nil {
		if err := s.searchRepo.Delete(ctx, id); err != nil {
			log.Warn().Err(err).Str("posto_id", id).Msg("failed to remove posto from geosearch index")
		}
	}
	if s.eventBus != nil {
		event := entities.NewPostoEvent(id, entities.PostoEventTypeDeleted, entities.GeoPoint{}, nil)
		s.publishToChannels(ctx, event)
	}
	return nil
}

// UpdateServiceStatus sets availability and optionally the waiting time
// of one service entry. Admin only. An omitted waiting time keeps the
// prior value.
func (s *PostoService) UpdateServiceStatus(ctx context.Context, identity *entities.Identity, id string, input UpdateServiceStatusInput) (*entities.Posto, error) {
	if err := s.authorize(identity, policy.ActionUpdateServiceStatus); err != nil {
		return nil, err
	}

	serviceType := entities.ServiceType(input.ServiceType)
	if !serviceType.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown service type: %s", input.ServiceType))
	}
	if input.WaitingTime != nil && *input.WaitingTime < 0 {
		return nil, apperrors.NewValidationError("waiting time must not be negative")
	}

	posto, err := s.repo.UpdateServiceStatus(ctx, id, serviceType, input.Available, input.WaitingTime)
	if err != nil {
		return nil, err
	}

	s.indexPosto(ctx, posto)
	s.publishEvent(ctx, posto, entities.PostoEventTypeServiceStatusUpdated, map[string]interface{}{
		"service_type": input.ServiceType,
		"available":    input.Available,
	})

	posto.Occupancy = entities.ClassifyOccupancy(posto.Services)
	return posto, nil
}

// AddReview appends a review on behalf of the authenticated caller and
// returns the posto with its recomputed rating.
func (s *PostoService) AddReview(ctx context.Context, identity *entities.Identity, id string, input AddReviewInput) (*entities.Posto, error) {
	if err := s.authorize(identity, policy.ActionAddReview); err != nil {
		return nil, err
	}
	if input.Rating < 1 || input.Rating > 5 {
		return nil, apperrors.NewValidationError("rating must be between 1 and 5")
	}

	review := entities.Review{
		ID:        uuid.New().String(),
		UserID:    identity.UserID,
		Rating:    input.Rating,
		Comment:   input.Comment,
		CreatedAt: time.Now().UTC(),
	}

	posto, err := s.repo.AddReview(ctx, id, review)
	if err != nil {
		return nil, err
	}

	s.indexPosto(ctx, posto)
	s.publishEvent(ctx, posto, entities.PostoEventTypeReviewAdded, map[string]interface{}{
		"rating":       posto.Rating,
		"review_count": posto.ReviewCount,
	})

	posto.Occupancy = entities.ClassifyOccupancy(posto.Services)
	return posto, nil
}

func (s *PostoService) authorize(identity *entities.Identity, action policy.Action) error {
	decision := policy.Authorize(identity, action)
	if decision.Allowed {
		return nil
	}
	if !decision.Authenticated {
		return apperrors.NewUnauthorizedError(decision.Reason)
	}
	return apperrors.NewForbiddenError(decision.Reason)
}

// indexPosto keeps the geosearch index in sync, best-effort.
func (s *PostoService) indexPosto(ctx context.Context, posto *entities.Posto) {
	if s.searchRepo == nil {
		return
	}
	if err := s.searchRepo.Index(ctx, posto); err != nil {
		log.Warn().Err(err).Str("posto_id", posto.ID).Msg("failed to index posto")
	}
}

// publishEvent notifies subscribers of a persisted mutation, best-effort.
func (s *PostoService) publishEvent(ctx context.Context, posto *entities.Posto, eventType entities.PostoEventType, changed map[string]interface{}) {
	if s.eventBus == nil {
		return
	}
	event := entities.NewPostoEvent(posto.ID, eventType, posto.Location, changed)
	s.publishToChannels(ctx, event)
}

// publishToChannels fans an event out to the global updates channel and
// the posto's own channel, so subscribers can follow one posto without
// filtering the full stream.
func (s *PostoService) publishToChannels(ctx context.Context, event *entities.PostoEvent) {
	for _, channel := range []string{
		providers.EventChannelPostoUpdates,
		providers.GetPostoChannel(event.PostoID),
	} {
		if err := s.eventBus.Publish(ctx, channel, event); err != nil {
			log.Warn().Err(err).Str("posto_id", event.PostoID).Str("channel", channel).Msg("failed to publish posto event")
		}
	}
}

func attachOccupancy(postos []*entities.Posto) {
	for _, p := range postos {
		p.Occupancy = entities.ClassifyOccupancy(p.Services)
	}
}

func toServices(inputs []ServiceInput) []entities.Service {
	services := make([]entities.Service, 0, len(inputs))
	for _, in := range inputs {
		services = append(services, entities.Service{
			Type:        entities.ServiceType(in.Type),
			Available:   in.Available,
			WaitingTime: in.WaitingTime,
		})
	}
	return services
}

func validateCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return apperrors.NewValidationError("latitude must be between -90 and 90")
	}
	if lng < -180 || lng > 180 {
		return apperrors.NewValidationError("longitude must be between -180 and 180")
	}
	return nil
}

func validateServices(inputs []ServiceInput) error {
	for _, svc := range inputs {
		if !entities.ServiceType(svc.Type).Valid() {
			return apperrors.NewValidationError(fmt.Sprintf("unknown service type: %s", svc.Type))
		}
		if svc.WaitingTime != nil && *svc.WaitingTime < 0 {
			return apperrors.NewValidationError("waiting time must not be negative")
		}
	}
	return nil
}

func validateSpecialties(tags []string) error {
	for _, tag := range tags {
		if !entities.Specialty(tag).Valid() {
			return apperrors.NewValidationError(fmt.Sprintf("unknown specialty: %s", tag))
		}
	}
	return nil
}

func validateOpeningHours(hours []entities.OpeningHours) error {
	for _, h := range hours {
		if !entities.ValidWeekDay(h.Day) {
			return apperrors.NewValidationError(fmt.Sprintf("unknown weekday: %s", h.Day))
		}
		if h.Open == "" || h.Close == "" {
			return apperrors.NewValidationError("opening hours require open and close times")
		}
	}
	return nil
}

func validateCreateInput(input CreatePostoInput) error {
	if input.Name == "" {
		return apperrors.NewValidationError("name is required")
	}
	if input.Address == "" {
		return apperrors.NewValidationError("address is required")
	}
	if input.Contact.Phone == "" {
		return apperrors.NewValidationError("contact phone is required")
	}
	if err := validateCoordinates(input.Latitude, input.Longitude); err != nil {
		return err
	}
	if err := validateServices(input.Services); err != nil {
		return err
	}
	if err := validateSpecialties(input.Specialties); err != nil {
		return err
	}
	return validateOpeningHours(input.OpeningHours)
}

func toPostoUpdate(input UpdatePostoInput) (repositories.PostoUpdate, error) {
	update := repositories.PostoUpdate{
		Name:         input.Name,
		Address:      input.Address,
		Specialties:  input.Specialties,
		OpeningHours: input.OpeningHours,
		Contact:      input.Contact,
	}

	if input.Name != nil && *input.Name == "" {
		return update, apperrors.NewValidationError("name must not be empty")
	}
	if input.Address != nil && *input.Address == "" {
		return update, apperrors.NewValidationError("address must not be empty")
	}

	hasLat := input.Latitude != nil
	hasLng := input.Longitude != nil
	if hasLat != hasLng {
		return update, apperrors.NewValidationError("latitude and longitude must be supplied together")
	}
	if hasLat {
		if err := validateCoordinates(*input.Latitude, *input.Longitude); err != nil {
			return update, err
		}
		point := entities.NewGeoPoint(*input.Latitude, *input.Longitude)
		update.Location = &point
	}

	if input.Services != nil {
		if err := validateServices(input.Services); err != nil {
			return update, err
		}
		update.Services = toServices(input.Services)
	}
	if input.Specialties != nil {
		if err := validateSpecialties(input.Specialties); err != nil {
			return update, err
		}
	}
	if input.OpeningHours != nil {
		if err := validateOpeningHours(input.OpeningHours); err != nil {
			return update, err
		}
	}

	return update, nil
}

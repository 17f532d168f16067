package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/postocalmo/backend/internal/domain/entities"
	"github.com/postocalmo/backend/internal/domain/repositories"
	tsclient "github.com/postocalmo/backend/internal/infrastructure/clients/typesense"
	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"
)

const collectionName = "postos"

// TypesenseAdapter implements posto geosearch using Typesense. The index
// holds only the fields the search predicate needs; hits are returned as
// ordered ids and hydrated from the primary datastore by the caller.
type TypesenseAdapter struct {
	client *tsclient.Client
}

// Ensure TypesenseAdapter implements PostoSearchRepository
var _ repositories.PostoSearchRepository = (*TypesenseAdapter)(nil)

// NewTypesenseAdapter creates a new Typesense adapter
func NewTypesenseAdapter(client *tsclient.Client) *TypesenseAdapter {
	return &TypesenseAdapter{client: client}
}

// InitSchema ensures the collection exists
func (a *TypesenseAdapter) InitSchema(ctx context.Context) error {
	_, err := a.client.Client().Collection(collectionName).Retrieve(ctx)
	if err == nil {
		return nil // Collection exists
	}

	schema := &api.CollectionSchema{
		Name: collectionName,
		Fields: []api.Field{
			{Name: "id", Type: "string"},
			{Name: "name", Type: "string"},
			{Name: "specialties", Type: "string[]", Facet: pointer.True()},
			{Name: "service_types", Type: "string[]", Facet: pointer.True()},
			{Name: "is_active", Type: "bool"},
			{Name: "location", Type: "geopoint"},
			{Name: "rating", Type: "float"},
			{Name: "review_count", Type: "int32"},
			{Name: "created_at", Type: "int64"},
		},
		DefaultSortingField: pointer.String("created_at"),
	}

	_, err = a.client.Client().Collections().Create(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to create typesense collection: %w", err)
	}

	return nil
}

// Index upserts a posto document. Only services currently marked available
// contribute to service_types, so the availability filter resolves inside
// the index.
func (a *TypesenseAdapter) Index(ctx context.Context, posto *entities.Posto) error {
	availableTypes := []string{}
	for _, svc := range posto.Services {
		if svc.Available {
			availableTypes = append(availableTypes, string(svc.Type))
		}
	}

	document := map[string]interface{}{
		"id":            posto.ID,
		"name":          posto.Name,
		"specialties":   posto.Specialties,
		"service_types": availableTypes,
		"is_active":     posto.IsActive,
		"location":      []float64{posto.Location.Latitude(), posto.Location.Longitude()},
		"rating":        posto.Rating,
		"review_count":  posto.ReviewCount,
		"created_at":    posto.CreatedAt.Unix(),
	}

	_, err := a.client.Client().Collection(collectionName).Documents().Upsert(ctx, document)
	if err != nil {
		return fmt.Errorf("failed to index posto: %w", err)
	}

	return nil
}

// Delete removes a posto from the index
func (a *TypesenseAdapter) Delete(ctx context.Context, id string) error {
	_, err := a.client.Client().Collection(collectionName).Document(id).Delete(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete posto from index: %w", err)
	}
	return nil
}

// SearchNearby returns the ids of active postos within the radius of the
// origin, nearest first. Specialty and service type filters compose
// conjunctively when present.
func (a *TypesenseAdapter) SearchNearby(ctx context.Context, params repositories.NearbyParams) ([]string, error) {
	filters := []string{
		"is_active:=true",
		fmt.Sprintf("location:(%f, %f, %f km)", params.Latitude, params.Longitude, params.RadiusMeters/1000.0),
	}
	if params.Specialty != "" {
		filters = append(filters, fmt.Sprintf("specialties:=%s", params.Specialty))
	}
	if params.ServiceType != "" {
		filters = append(filters, fmt.Sprintf("service_types:=%s", params.ServiceType))
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 30
	}

	// limit/offset instead of page/per_page: offsets are not required to be
	// a multiple of the limit.
	searchParams := &api.SearchCollectionParams{
		Q:        pointer.String("*"),
		QueryBy:  pointer.String("name"),
		FilterBy: pointer.String(strings.Join(filters, " && ")),
		SortBy:   pointer.String(fmt.Sprintf("location(%f, %f):asc", params.Latitude, params.Longitude)),
		Limit:    pointer.Int(limit),
	}
	if params.Offset > 0 {
		searchParams.Offset = pointer.Int(params.Offset)
	}

	result, err := a.client.Client().Collection(collectionName).Documents().Search(ctx, searchParams)
	if err != nil {
		return nil, fmt.Errorf("failed to search postos: %w", err)
	}

	ids := []string{}
	if result.Hits == nil {
		return ids, nil
	}
	for _, hit := range *result.Hits {
		if hit.Document == nil {
			continue
		}
		doc := *hit.Document
		if id, ok := doc["id"].(string); ok {
			ids = append(ids, id)
		}
	}

	return ids, nil
}

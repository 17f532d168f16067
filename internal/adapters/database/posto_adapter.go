package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/lib/pq"
	"github.com/postocalmo/backend/internal/domain/entities"
	"github.com/postocalmo/backend/internal/domain/repositories"
	"github.com/postocalmo/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/postocalmo/backend/pkg/errors"
)

// postoColumns is the canonical select list; scanPosto must stay in sync.
const postoColumns = `id, name, address, latitude, longitude, phone, email,
	specialties, services, reviews, opening_hours,
	rating, review_count, is_active, created_at, updated_at`

// PostoAdapter implements the PostoRepository interface on Postgres.
// A posto is one row: services, reviews and opening hours live in JSONB
// columns, so single-row locking gives single-document atomicity.
type PostoAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewPostoAdapter creates a new posto adapter
func NewPostoAdapter(client *postgres.Client) repositories.PostoRepository {
	return &PostoAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Create creates a new posto
func (a *PostoAdapter) Create(ctx context.Context, posto *entities.Posto) error {
	services, reviews, hours, err := marshalEmbedded(posto)
	if err != nil {
		return err
	}

	record := goqu.Record{
		"id":            posto.ID,
		"name":          posto.Name,
		"address":       posto.Address,
		"latitude":      posto.Location.Latitude(),
		"longitude":     posto.Location.Longitude(),
		"phone":         posto.Contact.Phone,
		"email":         sql.NullString{String: posto.Contact.Email, Valid: posto.Contact.Email != ""},
		"specialties":   pq.Array(posto.Specialties),
		"services":      services,
		"reviews":       reviews,
		"opening_hours": hours,
		"rating":        posto.Rating,
		"review_count":  posto.ReviewCount,
		"is_active":     posto.IsActive,
		"created_at":    posto.CreatedAt,
		"updated_at":    posto.UpdatedAt,
	}

	query, args, err := a.db.Insert("postos").Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build posto insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return classifyDBError(err, "failed to create posto")
	}

	return nil
}

// GetByID retrieves a posto by ID
func (a *PostoAdapter) GetByID(ctx context.Context, id string) (*entities.Posto, error) {
	query := fmt.Sprintf(`SELECT %s FROM postos WHERE id = $1 AND is_active = true`, postoColumns)

	posto, err := scanPosto(a.client.DB().QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("posto with id %s not found", id))
	}
	if err != nil {
		return nil, classifyDBError(err, "failed to get posto")
	}

	return posto, nil
}

// GetByIDs retrieves multiple postos by their IDs
func (a *PostoAdapter) GetByIDs(ctx context.Context, ids []string) ([]*entities.Posto, error) {
	if len(ids) == 0 {
		return []*entities.Posto{}, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM postos WHERE id = ANY($1) AND is_active = true`, postoColumns)

	rows, err := a.client.DB().QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, classifyDBError(err, "failed to get postos")
	}
	defer rows.Close()

	return collectPostos(rows)
}

// Update applies a partial update to a posto's core fields
func (a *PostoAdapter) Update(ctx context.Context, id string, update repositories.PostoUpdate) (*entities.Posto, error) {
	record := goqu.Record{"updated_at": time.Now().UTC()}

	if update.Name != nil {
		record["name"] = *update.Name
	}
	if update.Address != nil {
		record["address"] = *update.Address
	}
	if update.Location != nil {
		record["latitude"] = update.Location.Latitude()
		record["longitude"] = update.Location.Longitude()
	}
	if update.Specialties != nil {
		record["specialties"] = pq.Array(update.Specialties)
	}
	if update.Services != nil {
		data, err := json.Marshal(update.Services)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to marshal services", err)
		}
		record["services"] = string(data)
	}
	if update.OpeningHours != nil {
		data, err := json.Marshal(update.OpeningHours)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to marshal opening hours", err)
		}
		record["opening_hours"] = string(data)
	}
	if update.Contact != nil {
		record["phone"] = update.Contact.Phone
		record["email"] = sql.NullString{String: update.Contact.Email, Valid: update.Contact.Email != ""}
	}

	query, args, err := a.db.Update("postos").
		Set(record).
		Where(goqu.Ex{"id": id, "is_active": true}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build posto update query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return nil, classifyDBError(err, "failed to update posto")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("posto with id %s not found", id))
	}

	return a.GetByID(ctx, id)
}

// Delete removes a posto from the catalog (soft delete)
func (a *PostoAdapter) Delete(ctx context.Context, id string) error {
	query := `UPDATE postos SET is_active = false, updated_at = $2 WHERE id = $1 AND is_active = true`

	result, err := a.client.DB().ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return classifyDBError(err, "failed to delete posto")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("posto with id %s not found", id))
	}

	return nil
}

// List retrieves postos with filters, without any geo predicate
func (a *PostoAdapter) List(ctx context.Context, filter repositories.PostoFilter) ([]*entities.Posto, error) {
	ds := a.db.Select(goqu.L(postoColumns)).From("postos")

	if filter.IsActive != nil {
		ds = ds.Where(goqu.Ex{"is_active": *filter.IsActive})
	}
	if filter.Specialty != "" {
		ds = ds.Where(goqu.L("? = ANY(specialties)", filter.Specialty))
	}
	if filter.ServiceType != "" {
		predicate, err := availableServicePredicate(filter.ServiceType)
		if err != nil {
			return nil, err
		}
		ds = ds.Where(predicate)
	}

	ds = ds.Order(goqu.I("created_at").Desc())
	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}
	if filter.Offset > 0 {
		ds = ds.Offset(uint(filter.Offset))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build posto list query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyDBError(err, "failed to list postos")
	}
	defer rows.Close()

	return collectPostos(rows)
}

// SearchNearby retrieves active postos within the radius of the origin,
// ordered nearest first. Distance is a haversine expression evaluated in
// the database; results are never re-sorted here.
func (a *PostoAdapter) SearchNearby(ctx context.Context, params repositories.NearbyParams) ([]*entities.Posto, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM (
			SELECT %s,
				(6371000 * acos(least(1.0,
					cos(radians($1)) * cos(radians(latitude)) *
					cos(radians(longitude) - radians($2)) +
					sin(radians($1)) * sin(radians(latitude))))) AS distance
			FROM postos
			WHERE is_active = true
		) p
		WHERE distance <= $3
	`, postoColumns, postoColumns)

	args := []interface{}{params.Latitude, params.Longitude, params.RadiusMeters}
	argCount := 4

	if params.Specialty != "" {
		query += fmt.Sprintf(" AND $%d = ANY(specialties)", argCount)
		args = append(args, params.Specialty)
		argCount++
	}
	if params.ServiceType != "" {
		filterJSON, err := availableServiceJSON(params.ServiceType)
		if err != nil {
			return nil, err
		}
		query += fmt.Sprintf(" AND services @> $%d::jsonb", argCount)
		args = append(args, filterJSON)
		argCount++
	}

	query += " ORDER BY distance"

	if params.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, params.Limit)
		argCount++
	}
	if params.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, params.Offset)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyDBError(err, "failed to search postos")
	}
	defer rows.Close()

	return collectPostos(rows)
}

// UpdateServiceStatus sets the availability, and optionally the waiting
// time, of one service entry. The posto row is locked for the duration
// so concurrent mutations serialize.
func (a *PostoAdapter) UpdateServiceStatus(ctx context.Context, id string, serviceType entities.ServiceType, available bool, waitingTime *int) (*entities.Posto, error) {
	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return nil, classifyDBError(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	posto, err := getForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	index := -1
	for i, svc := range posto.Services {
		if svc.Type == serviceType {
			index = i
			break
		}
	}
	if index == -1 {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("service %s not found on posto %s", serviceType, id))
	}

	posto.Services[index].Available = available
	if waitingTime != nil {
		posto.Services[index].WaitingTime = waitingTime
	}

	services, err := json.Marshal(posto.Services)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to marshal services", err)
	}

	posto.UpdatedAt = time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`UPDATE postos SET services = $2, updated_at = $3 WHERE id = $1`,
		id, string(services), posto.UpdatedAt,
	)
	if err != nil {
		return nil, classifyDBError(err, "failed to update service status")
	}

	if err := tx.Commit(); err != nil {
		return nil, classifyDBError(err, "failed to commit service status update")
	}

	return posto, nil
}

// AddReview appends a review and recomputes the mean rating in the same
// transaction. Either both land or neither does.
func (a *PostoAdapter) AddReview(ctx context.Context, id string, review entities.Review) (*entities.Posto, error) {
	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return nil, classifyDBError(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	posto, err := getForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	posto.Reviews = append(posto.Reviews, review)
	posto.Rating = entities.MeanRating(posto.Reviews)
	posto.ReviewCount = len(posto.Reviews)
	posto.UpdatedAt = time.Now().UTC()

	reviews, err := json.Marshal(posto.Reviews)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to marshal reviews", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE postos SET reviews = $2, rating = $3, review_count = $4, updated_at = $5 WHERE id = $1`,
		id, string(reviews), posto.Rating, posto.ReviewCount, posto.UpdatedAt,
	)
	if err != nil {
		return nil, classifyDBError(err, "failed to add review")
	}

	if err := tx.Commit(); err != nil {
		return nil, classifyDBError(err, "failed to commit review")
	}

	return posto, nil
}

// getForUpdate loads a posto inside tx with a row lock.
func getForUpdate(ctx context.Context, tx *sql.Tx, id string) (*entities.Posto, error) {
	query := fmt.Sprintf(`SELECT %s FROM postos WHERE id = $1 AND is_active = true FOR UPDATE`, postoColumns)

	posto, err := scanPosto(tx.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("posto with id %s not found", id))
	}
	if err != nil {
		return nil, classifyDBError(err, "failed to lock posto")
	}

	return posto, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanPosto reads one row in postoColumns order.
func scanPosto(row rowScanner) (*entities.Posto, error) {
	posto := &entities.Posto{}
	var lat, lng float64
	var email sql.NullString
	var specialties pq.StringArray
	var servicesJSON, reviewsJSON, hoursJSON []byte

	err := row.Scan(
		&posto.ID,
		&posto.Name,
		&posto.Address,
		&lat,
		&lng,
		&posto.Contact.Phone,
		&email,
		&specialties,
		&servicesJSON,
		&reviewsJSON,
		&hoursJSON,
		&posto.Rating,
		&posto.ReviewCount,
		&posto.IsActive,
		&posto.CreatedAt,
		&posto.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	posto.Location = entities.NewGeoPoint(lat, lng)
	posto.Contact.Email = email.String
	posto.Specialties = specialties

	if len(servicesJSON) > 0 {
		if err := json.Unmarshal(servicesJSON, &posto.Services); err != nil {
			return nil, apperrors.NewInternalError("failed to unmarshal services", err)
		}
	}
	if len(reviewsJSON) > 0 {
		if err := json.Unmarshal(reviewsJSON, &posto.Reviews); err != nil {
			return nil, apperrors.NewInternalError("failed to unmarshal reviews", err)
		}
	}
	if len(hoursJSON) > 0 {
		if err := json.Unmarshal(hoursJSON, &posto.OpeningHours); err != nil {
			return nil, apperrors.NewInternalError("failed to unmarshal opening hours", err)
		}
	}

	return posto, nil
}

func collectPostos(rows *sql.Rows) ([]*entities.Posto, error) {
	postos := []*entities.Posto{}
	for rows.Next() {
		posto, err := scanPosto(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan posto", err)
		}
		postos = append(postos, posto)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyDBError(err, "error iterating postos")
	}
	return postos, nil
}

func marshalEmbedded(posto *entities.Posto) (services, reviews, hours string, err error) {
	servicesData, err := json.Marshal(posto.Services)
	if err != nil {
		return "", "", "", apperrors.NewInternalError("failed to marshal services", err)
	}
	reviewsData, err := json.Marshal(posto.Reviews)
	if err != nil {
		return "", "", "", apperrors.NewInternalError("failed to marshal reviews", err)
	}
	hoursData, err := json.Marshal(posto.OpeningHours)
	if err != nil {
		return "", "", "", apperrors.NewInternalError("failed to marshal opening hours", err)
	}
	return string(servicesData), string(reviewsData), string(hoursData), nil
}

// availableServiceJSON builds the containment document matching postos
// that offer the service type with available = true.
func availableServiceJSON(serviceType string) (string, error) {
	doc, err := json.Marshal([]map[string]interface{}{
		{"type": serviceType, "available": true},
	})
	if err != nil {
		return "", apperrors.NewInternalError("failed to marshal service filter", err)
	}
	return string(doc), nil
}

func availableServicePredicate(serviceType string) (goqu.Expression, error) {
	doc, err := availableServiceJSON(serviceType)
	if err != nil {
		return nil, err
	}
	return goqu.L("services @> ?::jsonb", doc), nil
}

// classifyDBError maps timeouts and cancellations to a retryable
// Unavailable error; everything else stays Internal.
func classifyDBError(err error, message string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.NewUnavailableError("datastore temporarily unavailable, try again", err)
	}
	return apperrors.NewInternalError(message, err)
}

package entities

import (
	"time"
)

// Posto represents a public health post in the catalog. Services and
// reviews are embedded in the posto record; rating is always the
// arithmetic mean of the review ratings and is recomputed in the same
// transaction as every review insert.
type Posto struct {
	ID           string         `json:"id" db:"id"`
	Name         string         `json:"name" db:"name"`
	Address      string         `json:"address" db:"address"`
	Location     GeoPoint       `json:"location" db:"-"`
	Services     []Service      `json:"services" db:"-"`
	Specialties  []string       `json:"specialties" db:"-"`
	Rating       float64        `json:"rating" db:"rating"`
	ReviewCount  int            `json:"review_count" db:"review_count"`
	Reviews      []Review       `json:"reviews" db:"-"`
	OpeningHours []OpeningHours `json:"opening_hours" db:"-"`
	Contact      Contact        `json:"contact" db:"-"`
	Occupancy    OccupancyTier  `json:"occupancy_tier,omitempty" db:"-"`
	IsActive     bool           `json:"is_active" db:"is_active"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

// GeoPoint is a GeoJSON point. Coordinates are longitude first.
type GeoPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// NewGeoPoint builds a GeoPoint from latitude and longitude.
func NewGeoPoint(lat, lng float64) GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: [2]float64{lng, lat}}
}

// Longitude returns the point's longitude.
func (p GeoPoint) Longitude() float64 {
	return p.Coordinates[0]
}

// Latitude returns the point's latitude.
func (p GeoPoint) Latitude() float64 {
	return p.Coordinates[1]
}

// ServiceType is a care offering tag from the fixed enumeration.
type ServiceType string

const (
	ServiceTypeMedicalCare    ServiceType = "atendimento_medico"
	ServiceTypeVaccines       ServiceType = "vacinas"
	ServiceTypeExams          ServiceType = "exames"
	ServiceTypeMedication     ServiceType = "medicamentos"
	ServiceTypeWoundCare      ServiceType = "curativos"
	ServiceTypeUrgentCare     ServiceType = "pronto_atendimento"
	ServiceTypeScheduledVisit ServiceType = "consultas_agendadas"
)

// ServiceTypes lists every valid service type.
var ServiceTypes = []ServiceType{
	ServiceTypeMedicalCare,
	ServiceTypeVaccines,
	ServiceTypeExams,
	ServiceTypeMedication,
	ServiceTypeWoundCare,
	ServiceTypeUrgentCare,
	ServiceTypeScheduledVisit,
}

// Valid reports whether the service type is part of the enumeration.
func (t ServiceType) Valid() bool {
	for _, known := range ServiceTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Service is a care offering at a posto. WaitingTime is in minutes and
// is the sole signal feeding the occupancy classifier; nil means the
// posto has not reported one for this service.
type Service struct {
	Type        ServiceType `json:"type"`
	Available   bool        `json:"available"`
	WaitingTime *int        `json:"waiting_time,omitempty"`
}

// Specialty is a medical specialty tag from the fixed enumeration.
type Specialty string

const (
	SpecialtyGeneralPractice Specialty = "clinico_geral"
	SpecialtyPediatrics      Specialty = "pediatria"
	SpecialtyGynecology      Specialty = "ginecologia"
	SpecialtyCardiology      Specialty = "cardiologia"
	SpecialtyDermatology     Specialty = "dermatologia"
	SpecialtyOphthalmology   Specialty = "oftalmologia"
	SpecialtyOrthopedics     Specialty = "ortopedia"
	SpecialtyNeurology       Specialty = "neurologia"
)

// Specialties lists every valid specialty tag.
var Specialties = []Specialty{
	SpecialtyGeneralPractice,
	SpecialtyPediatrics,
	SpecialtyGynecology,
	SpecialtyCardiology,
	SpecialtyDermatology,
	SpecialtyOphthalmology,
	SpecialtyOrthopedics,
	SpecialtyNeurology,
}

// Valid reports whether the specialty is part of the enumeration.
func (s Specialty) Valid() bool {
	for _, known := range Specialties {
		if s == known {
			return true
		}
	}
	return false
}

// Review is an append-only user review of a posto. UserID is always the
// authenticated caller's identity, never caller-supplied.
type Review struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// OpeningHours is one weekday entry of a posto's schedule.
type OpeningHours struct {
	Day   string `json:"day"`
	Open  string `json:"open"`
	Close string `json:"close"`
}

// WeekDays lists the valid opening-hours day values.
var WeekDays = []string{"domingo", "segunda", "terca", "quarta", "quinta", "sexta", "sabado"}

// ValidWeekDay reports whether day is a known weekday value.
func ValidWeekDay(day string) bool {
	for _, d := range WeekDays {
		if d == day {
			return true
		}
	}
	return false
}

// Contact holds a posto's contact info.
type Contact struct {
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

// MeanRating returns the arithmetic mean of the review ratings in
// IEEE double precision, or 0 when there are no reviews.
func MeanRating(reviews []Review) float64 {
	if len(reviews) == 0 {
		return 0
	}
	total := 0
	for _, r := range reviews {
		total += r.Rating
	}
	return float64(total) / float64(len(reviews))
}

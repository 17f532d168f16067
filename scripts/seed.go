package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/postocalmo/backend/internal/adapters/database"
	"github.com/postocalmo/backend/internal/adapters/search"
	"github.com/postocalmo/backend/internal/domain/entities"
	"github.com/postocalmo/backend/internal/infrastructure/clients/postgres"
	"github.com/postocalmo/backend/internal/infrastructure/clients/typesense"
	"github.com/postocalmo/backend/pkg/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS postos (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	address       TEXT NOT NULL,
	latitude      DOUBLE PRECISION NOT NULL,
	longitude     DOUBLE PRECISION NOT NULL,
	phone         TEXT NOT NULL DEFAULT '',
	email         TEXT,
	specialties   TEXT[] NOT NULL DEFAULT '{}',
	services      JSONB NOT NULL DEFAULT '[]',
	reviews       JSONB NOT NULL DEFAULT '[]',
	opening_hours JSONB NOT NULL DEFAULT '[]',
	rating        DOUBLE PRECISION NOT NULL DEFAULT 0,
	review_count  INTEGER NOT NULL DEFAULT 0,
	is_active     BOOLEAN NOT NULL DEFAULT true,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_postos_active ON postos (is_active);
CREATE INDEX IF NOT EXISTS idx_postos_coords ON postos (latitude, longitude);
`

func waiting(minutes int) *int {
	return &minutes
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pgClient.Close()

	ctx := context.Background()

	if _, err := pgClient.DB().ExecContext(ctx, schema); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	if os.Getenv("RESET_DB") == "true" {
		log.Println("RESET_DB=true detected, truncating postos before seeding")
		if _, err := pgClient.DB().ExecContext(ctx, `TRUNCATE TABLE postos`); err != nil {
			log.Fatalf("Failed to reset postos: %v", err)
		}
	}

	var searchRepo *search.TypesenseAdapter
	if cfg.Typesense.URL != "" {
		tsClient, err := typesense.NewClient(&cfg.Typesense)
		if err == nil {
			searchRepo = search.NewTypesenseAdapter(tsClient)
			if err := searchRepo.InitSchema(ctx); err != nil {
				log.Printf("Failed to init search schema: %v", err)
			}
		}
	}

	postoRepo := database.NewPostoAdapter(pgClient)

	now := time.Now().UTC()
	postos := []*entities.Posto{
		{
			ID:       uuid.New().String(),
			Name:     "Posto de Saude Central",
			Address:  "Av. Paulista, 1000 - Bela Vista, Sao Paulo",
			Location: entities.NewGeoPoint(-23.5614, -46.6558),
			Services: []entities.Service{
				{Type: entities.ServiceTypeMedicalCare, Available: true, WaitingTime: waiting(45)},
				{Type: entities.ServiceTypeVaccines, Available: true, WaitingTime: waiting(15)},
				{Type: entities.ServiceTypeMedication, Available: true},
			},
			Specialties: []string{
				string(entities.SpecialtyGeneralPractice),
				string(entities.SpecialtyPediatrics),
			},
			OpeningHours: []entities.OpeningHours{
				{Day: "segunda", Open: "07:00", Close: "19:00"},
				{Day: "terca", Open: "07:00", Close: "19:00"},
				{Day: "quarta", Open: "07:00", Close: "19:00"},
				{Day: "quinta", Open: "07:00", Close: "19:00"},
				{Day: "sexta", Open: "07:00", Close: "17:00"},
			},
			Contact:   entities.Contact{Phone: "+55 11 3000-0001", Email: "central@postocalmo.example"},
			Reviews:   []entities.Review{},
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:       uuid.New().String(),
			Name:     "Posto Vila Mariana",
			Address:  "Rua Domingos de Morais, 250 - Vila Mariana, Sao Paulo",
			Location: entities.NewGeoPoint(-23.5890, -46.6346),
			Services: []entities.Service{
				{Type: entities.ServiceTypeExams, Available: true, WaitingTime: waiting(70)},
				{Type: entities.ServiceTypeUrgentCare, Available: true, WaitingTime: waiting(110)},
			},
			Specialties: []string{
				string(entities.SpecialtyCardiology),
				string(entities.SpecialtyGeneralPractice),
			},
			Contact:   entities.Contact{Phone: "+55 11 3000-0002"},
			Reviews:   []entities.Review{},
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:       uuid.New().String(),
			Name:     "Posto Pinheiros",
			Address:  "Rua dos Pinheiros, 500 - Pinheiros, Sao Paulo",
			Location: entities.NewGeoPoint(-23.5665, -46.6820),
			Services: []entities.Service{
				{Type: entities.ServiceTypeVaccines, Available: true, WaitingTime: waiting(10)},
				{Type: entities.ServiceTypeScheduledVisit, Available: true, WaitingTime: waiting(25)},
				{Type: entities.ServiceTypeWoundCare, Available: false},
			},
			Specialties: []string{
				string(entities.SpecialtyDermatology),
				string(entities.SpecialtyOphthalmology),
			},
			Contact:   entities.Contact{Phone: "+55 11 3000-0003"},
			Reviews:   []entities.Review{},
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}

	for _, p := range postos {
		if err := postoRepo.Create(ctx, p); err != nil {
			log.Printf("Failed to create posto %s: %v", p.Name, err)
			continue
		}
		if searchRepo != nil {
			if err := searchRepo.Index(ctx, p); err != nil {
				log.Printf("Failed to index posto %s: %v", p.Name, err)
			}
		}
		log.Printf("Seeded posto %s (%s)", p.Name, p.ID)
	}

	log.Println("Seeding complete")
}

package config

import (
	"log"

	"tontiflex/internal/adapters/persistence/models"
	"tontiflex/internal/core/domain"
	"tontiflex/internal/pkg/password"

	"gorm.io/gorm"
)

// Seeder handles database seeding
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{db: db}
}

// Run executes all seeders. Seeding is for development only; it is skipped
// entirely when data already exists.
func (s *Seeder) Run() error {
	log.Println("Running database seeders...")

	inst, err := s.seedInstitution()
	if err != nil {
		return err
	}
	if inst == nil {
		log.Println("Seed data already present, skipping")
		return nil
	}

	if err := s.seedTontines(inst.ID); err != nil {
		return err
	}
	if err := s.seedUsers(inst.ID); err != nil {
		return err
	}

	log.Println("Database seeding completed")
	return nil
}

// seedInstitution creates the demo SFD. Returns nil when one already exists.
func (s *Seeder) seedInstitution() (*models.Institution, error) {
	var count int64
	s.db.Model(&models.Institution{}).Count(&count)
	if count > 0 {
		return nil, nil
	}

	inst := &models.Institution{
		Name:           "SFD Cotonou Centre",
		LicenceNo:      "SFD-2019-0042",
		AvailableFunds: 5_000_000,
	}
	if err := s.db.Create(inst).Error; err != nil {
		return nil, err
	}
	return inst, nil
}

func (s *Seeder) seedTontines(institutionID uint) error {
	tontines := []models.Tontine{
		{
			InstitutionID: institutionID,
			Name:          "Tontine Marché Dantokpa",
			MinStake:      500,
			MaxStake:      5000,
			MembershipFee: 1000,
			Status:        domain.TontineActive,
		},
		{
			InstitutionID: institutionID,
			Name:          "Tontine Artisans",
			MinStake:      1000,
			MaxStake:      10000,
			MembershipFee: 1500,
			Status:        domain.TontineActive,
		},
	}
	return s.db.Create(&tontines).Error
}

// seedUsers creates one demo user per role plus a savings account for the
// client. Dev credentials only.
func (s *Seeder) seedUsers(institutionID uint) error {
	hashed, err := password.Hash("tontiflex123")
	if err != nil {
		return err
	}

	users := []models.User{
		{Phone: "+22990000001", FullName: "Afi Ahouansou", Email: "client@tontiflex.local", Password: hashed, Role: string(domain.RoleClient)},
		{Phone: "+22990000002", FullName: "Koffi Agossou", Email: "agent@tontiflex.local", Password: hashed, Role: string(domain.RoleAgent), InstitutionID: &institutionID},
		{Phone: "+22990000003", FullName: "Reine Dossou", Email: "supervisor@tontiflex.local", Password: hashed, Role: string(domain.RoleSupervisor), InstitutionID: &institutionID},
		{Phone: "+22990000004", FullName: "Sena Hounkpatin", Email: "admin@tontiflex.local", Password: hashed, Role: string(domain.RoleAdmin), InstitutionID: &institutionID},
	}
	if err := s.db.Create(&users).Error; err != nil {
		return err
	}

	account := &models.Account{
		ClientID:      users[0].ID,
		InstitutionID: institutionID,
		Balance:       25_000,
	}
	if err := s.db.Create(account).Error; err != nil {
		return err
	}

	return nil
}

// SeedDemoData seeds demo data in dev mode
func SeedDemoData(db *gorm.DB) error {
	return NewSeeder(db).Run()
}

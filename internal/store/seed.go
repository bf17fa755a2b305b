package store

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"pharmapos/backend/internal/domain"
)

const SeedOwnerEmail = "owner@pharmacy.local"

// SeedMedicines is the demo catalog used by the memory store and by
// SeedIfEmpty on a fresh database.
func SeedMedicines(now time.Time) []domain.Medicine {
	expiry := time.Date(now.Year()+2, time.January, 31, 0, 0, 0, 0, time.UTC)
	medicine := func(id, name, generic, category, maker, price, cost string, stock, minStock int, batch string) domain.Medicine {
		exp := expiry
		return domain.Medicine{
			ID:            id,
			Name:          name,
			GenericName:   generic,
			Category:      category,
			Manufacturer:  maker,
			Price:         decimal.RequireFromString(price),
			CostPrice:     decimal.RequireFromString(cost),
			StockQuantity: stock,
			MinStockLevel: minStock,
			ExpiryDate:    &exp,
			BatchNumber:   batch,
			Active:        true,
			CreatedAt:     now,
		}
	}

	return []domain.Medicine{
		medicine("med-paracetamol-500", "Paracetamol 500mg", "Paracetamol", "analgesic", "Cipla", "2.50", "1.60", 200, 20, "PCM-2401"),
		medicine("med-ibuprofen-400", "Ibuprofen 400mg", "Ibuprofen", "analgesic", "Abbott", "4.20", "2.90", 150, 15, "IBU-2402"),
		medicine("med-amoxicillin-250", "Amoxicillin 250mg", "Amoxicillin", "antibiotic", "GSK", "8.75", "6.10", 80, 10, "AMX-2403"),
		medicine("med-azithromycin-500", "Azithromycin 500mg", "Azithromycin", "antibiotic", "Pfizer", "15.00", "10.40", 40, 10, "AZM-2404"),
		medicine("med-cetirizine-10", "Cetirizine 10mg", "Cetirizine", "antihistamine", "Sun Pharma", "3.10", "1.90", 120, 15, "CTZ-2405"),
		medicine("med-omeprazole-20", "Omeprazole 20mg", "Omeprazole", "antacid", "Dr. Reddy's", "5.60", "3.70", 90, 10, "OMP-2406"),
		medicine("med-metformin-500", "Metformin 500mg", "Metformin", "antidiabetic", "Lupin", "6.40", "4.20", 110, 20, "MTF-2407"),
		medicine("med-ors-sachet", "ORS Sachet", "Oral Rehydration Salts", "electrolyte", "FDC", "1.20", "0.70", 8, 10, "ORS-2408"),
	}
}

// SeedUsers builds the initial owner account. The password is read from
// SEED_OWNER_PASSWORD; when unset a dev default is used and a warning logged.
func SeedUsers(now time.Time) ([]domain.UserAccount, error) {
	password := os.Getenv("SEED_OWNER_PASSWORD")
	if password == "" {
		password = "owner12345"
		log.Println("[store] WARNING: using default dev owner credentials. Set SEED_OWNER_PASSWORD to override.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash seed password: %w", err)
	}

	return []domain.UserAccount{{
		Email:        SeedOwnerEmail,
		Name:         "Pharmacy Owner",
		PasswordHash: string(hash),
		Role:         domain.RoleOwner,
		Active:       true,
		CreatedAt:    now,
	}}, nil
}

// SeedIfEmpty loads the demo catalog and owner account into a repository
// that has no users yet.
func SeedIfEmpty(ctx context.Context, repo Repository, now time.Time) error {
	users, err := repo.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}

	seedUsers, err := SeedUsers(now)
	if err != nil {
		return err
	}
	for _, user := range seedUsers {
		if err := repo.CreateUser(ctx, user); err != nil {
			return fmt.Errorf("seed user %s: %w", user.Email, err)
		}
	}

	medicines, err := repo.ListMedicines(ctx)
	if err != nil {
		return err
	}
	if len(medicines) > 0 {
		return nil
	}
	for _, medicine := range SeedMedicines(now) {
		if err := repo.SaveMedicine(ctx, medicine); err != nil {
			return fmt.Errorf("seed medicine %s: %w", medicine.ID, err)
		}
	}
	return nil
}

package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/xid"
)

const (
	defaultMinStockLevel = 10
	expiryDateLayout     = "2006-01-02"
)

// ListMedicines returns active medicines. query matches name or generic
// name; category must match exactly, ignoring case.
func (s *Service) ListMedicines(ctx context.Context, query string, category string) ([]domain.Medicine, error) {
	medicines, err := s.repo.ListMedicines(ctx)
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))
	category = strings.TrimSpace(category)

	active := make([]domain.Medicine, 0, len(medicines))
	for _, m := range medicines {
		if !m.Active {
			continue
		}
		if category != "" && !strings.EqualFold(m.Category, category) {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(m.Name), query) &&
			!strings.Contains(strings.ToLower(m.GenericName), query) {
			continue
		}
		active = append(active, m)
	}
	return active, nil
}

func (s *Service) GetMedicine(ctx context.Context, id string) (domain.Medicine, error) {
	medicine, err := s.repo.FindMedicineByID(ctx, id)
	if err != nil {
		return domain.Medicine{}, err
	}
	return *medicine, nil
}

func (s *Service) LowStockMedicines(ctx context.Context) ([]domain.Medicine, error) {
	medicines, err := s.repo.ListMedicines(ctx)
	if err != nil {
		return nil, err
	}
	low := make([]domain.Medicine, 0)
	for _, m := range medicines {
		if m.LowStock() {
			low = append(low, m)
		}
	}
	return low, nil
}

func (s *Service) CreateMedicine(ctx context.Context, req domain.MedicineCreateRequest) (domain.Medicine, error) {
	if err := requireOwner(ctx); err != nil {
		return domain.Medicine{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Medicine{}, fmt.Errorf("%w: name is required", store.ErrInvalidRequest)
	}
	if req.Price.IsNegative() || req.CostPrice.IsNegative() || req.StockQuantity < 0 {
		return domain.Medicine{}, fmt.Errorf("%w: price and stock must not be negative", store.ErrInvalidRequest)
	}
	minStock := defaultMinStockLevel
	if req.MinStockLevel != nil {
		minStock = *req.MinStockLevel
	}
	if minStock < 0 {
		return domain.Medicine{}, fmt.Errorf("%w: min_stock_level must not be negative", store.ErrInvalidRequest)
	}
	expiry, err := parseExpiry(req.ExpiryDate)
	if err != nil {
		return domain.Medicine{}, err
	}

	medicine := domain.Medicine{
		ID:            xid.New("med"),
		Name:          req.Name,
		GenericName:   strings.TrimSpace(req.GenericName),
		Category:      strings.TrimSpace(req.Category),
		Manufacturer:  strings.TrimSpace(req.Manufacturer),
		Price:         req.Price,
		CostPrice:     req.CostPrice,
		StockQuantity: req.StockQuantity,
		MinStockLevel: minStock,
		ExpiryDate:    expiry,
		BatchNumber:   strings.TrimSpace(req.BatchNumber),
		Active:        true,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.repo.SaveMedicine(ctx, medicine); err != nil {
		return domain.Medicine{}, err
	}

	s.logAudit(ctx, "medicine_create", "medicine", medicine.ID, fmt.Sprintf("name=%s price=%s stock=%d", medicine.Name, medicine.Price, medicine.StockQuantity))
	return medicine, nil
}

// UpdateMedicine applies the non-nil fields. It runs in a unit of work
// because it may rewrite stock.
func (s *Service) UpdateMedicine(ctx context.Context, id string, req domain.MedicineUpdateRequest) (domain.Medicine, error) {
	if err := requireOwner(ctx); err != nil {
		return domain.Medicine{}, err
	}

	var updated domain.Medicine
	err := s.repo.WithinTx(ctx, func(uow store.UnitOfWork) error {
		m, err := uow.FindMedicineByID(ctx, id)
		if err != nil {
			return err
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return fmt.Errorf("%w: name must not be empty", store.ErrInvalidRequest)
			}
			m.Name = name
		}
		if req.GenericName != nil {
			m.GenericName = strings.TrimSpace(*req.GenericName)
		}
		if req.Category != nil {
			m.Category = strings.TrimSpace(*req.Category)
		}
		if req.Manufacturer != nil {
			m.Manufacturer = strings.TrimSpace(*req.Manufacturer)
		}
		if req.Price != nil {
			if req.Price.IsNegative() {
				return fmt.Errorf("%w: price must not be negative", store.ErrInvalidRequest)
			}
			m.Price = *req.Price
		}
		if req.CostPrice != nil {
			if req.CostPrice.IsNegative() {
				return fmt.Errorf("%w: cost_price must not be negative", store.ErrInvalidRequest)
			}
			m.CostPrice = *req.CostPrice
		}
		if req.StockQuantity != nil {
			if *req.StockQuantity < 0 {
				return fmt.Errorf("%w: stock_quantity must not be negative", store.ErrInvalidRequest)
			}
			m.StockQuantity = *req.StockQuantity
		}
		if req.MinStockLevel != nil {
			if *req.MinStockLevel < 0 {
				return fmt.Errorf("%w: min_stock_level must not be negative", store.ErrInvalidRequest)
			}
			m.MinStockLevel = *req.MinStockLevel
		}
		if req.ExpiryDate != nil {
			expiry, err := parseExpiry(*req.ExpiryDate)
			if err != nil {
				return err
			}
			m.ExpiryDate = expiry
		}
		if req.BatchNumber != nil {
			m.BatchNumber = strings.TrimSpace(*req.BatchNumber)
		}
		if req.Active != nil {
			m.Active = *req.Active
		}

		updated = *m
		return uow.SaveMedicine(ctx, updated)
	})
	if err != nil {
		return domain.Medicine{}, err
	}

	s.logAudit(ctx, "medicine_update", "medicine", updated.ID, fmt.Sprintf("price=%s stock=%d active=%t", updated.Price, updated.StockQuantity, updated.Active))
	return updated, nil
}

// DeleteMedicine flips the active flag; sale items keep referencing the row.
func (s *Service) DeleteMedicine(ctx context.Context, id string) error {
	if err := requireOwner(ctx); err != nil {
		return err
	}

	err := s.repo.WithinTx(ctx, func(uow store.UnitOfWork) error {
		m, err := uow.FindMedicineByID(ctx, id)
		if err != nil {
			return err
		}
		m.Active = false
		return uow.SaveMedicine(ctx, *m)
	})
	if err != nil {
		return err
	}

	s.logAudit(ctx, "medicine_delete", "medicine", id, "soft")
	return nil
}

func parseExpiry(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(expiryDateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: expiry_date must be YYYY-MM-DD", store.ErrInvalidRequest)
	}
	return &parsed, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/xid"
)

// resolveCustomer picks the sale's customer: by id, else by phone, else a
// new record with walk-in defaults. A phone match never creates a duplicate.
func (s *Service) resolveCustomer(ctx context.Context, uow store.Customers, req domain.SaleRequest) (*domain.Customer, error) {
	if id := strings.TrimSpace(req.CustomerID); id != "" {
		customer, err := uow.FindCustomerByID(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, id)
			}
			return nil, err
		}
		return customer, nil
	}

	name := strings.TrimSpace(req.CustomerName)
	phone := strings.TrimSpace(req.CustomerPhone)
	email := strings.TrimSpace(req.CustomerEmail)

	if phone != "" {
		customer, err := uow.FindCustomerByPhone(ctx, phone)
		if err == nil {
			// Last writer wins on email.
			if email != "" && customer.Email != email {
				customer.Email = email
				if err := uow.SaveCustomer(ctx, *customer); err != nil {
					return nil, err
				}
			}
			return customer, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	if name == "" {
		name = domain.WalkInCustomerName
	}
	if phone == "" {
		phone = domain.WalkInCustomerPhone
	}
	customer := domain.Customer{
		ID:        xid.New("cust"),
		Name:      name,
		Phone:     phone,
		Email:     email,
		CreatedAt: s.now().UTC(),
	}
	if err := uow.SaveCustomer(ctx, customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

// ListCustomers returns all customers, filtered by a case-insensitive name
// fragment when query is set.
func (s *Service) ListCustomers(ctx context.Context, query string) ([]domain.Customer, error) {
	customers, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return customers, nil
	}

	matched := make([]domain.Customer, 0, len(customers))
	for _, c := range customers {
		if strings.Contains(strings.ToLower(c.Name), query) {
			matched = append(matched, c)
		}
	}
	return matched, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.repo.FindCustomerByID(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) FindCustomerByPhone(ctx context.Context, phone string) (domain.Customer, error) {
	customer, err := s.repo.FindCustomerByPhone(ctx, strings.TrimSpace(phone))
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerRequest) (domain.Customer, error) {
	req = normalizeCustomerRequest(req)
	if req.Name == "" || req.Phone == "" {
		return domain.Customer{}, fmt.Errorf("%w: name and phone are required", store.ErrInvalidRequest)
	}

	customer := domain.Customer{
		ID:        xid.New("cust"),
		Name:      req.Name,
		Phone:     req.Phone,
		Email:     req.Email,
		Address:   req.Address,
		CreatedAt: s.now().UTC(),
	}
	err := s.repo.WithinTx(ctx, func(uow store.UnitOfWork) error {
		if _, err := uow.FindCustomerByPhone(ctx, customer.Phone); err == nil {
			return fmt.Errorf("%w: phone %s already registered", store.ErrConflict, customer.Phone)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return uow.SaveCustomer(ctx, customer)
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return customer, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerRequest) (domain.Customer, error) {
	req = normalizeCustomerRequest(req)

	var updated domain.Customer
	err := s.repo.WithinTx(ctx, func(uow store.UnitOfWork) error {
		existing, err := uow.FindCustomerByID(ctx, id)
		if err != nil {
			return err
		}
		if req.Phone != "" && req.Phone != existing.Phone {
			if other, err := uow.FindCustomerByPhone(ctx, req.Phone); err == nil && other.ID != existing.ID {
				return fmt.Errorf("%w: phone %s already registered", store.ErrConflict, req.Phone)
			} else if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			existing.Phone = req.Phone
		}
		if req.Name != "" {
			existing.Name = req.Name
		}
		if req.Email != "" {
			existing.Email = req.Email
		}
		if req.Address != "" {
			existing.Address = req.Address
		}
		updated = *existing
		return uow.SaveCustomer(ctx, updated)
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return updated, nil
}

func normalizeCustomerRequest(req domain.CustomerRequest) domain.CustomerRequest {
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Email = strings.TrimSpace(req.Email)
	req.Address = strings.TrimSpace(req.Address)
	return req
}

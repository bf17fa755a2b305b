package service

import (
	"context"
	"fmt"
	"strings"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/xid"
)

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) GetSupplier(ctx context.Context, id string) (domain.Supplier, error) {
	supplier, err := s.repo.FindSupplierByID(ctx, id)
	if err != nil {
		return domain.Supplier{}, err
	}
	return *supplier, nil
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierRequest) (domain.Supplier, error) {
	if err := requireOwner(ctx); err != nil {
		return domain.Supplier{}, err
	}
	req = normalizeSupplierRequest(req)
	if req.Name == "" {
		return domain.Supplier{}, fmt.Errorf("%w: name is required", store.ErrInvalidRequest)
	}

	supplier := domain.Supplier{
		ID:        xid.New("sup"),
		Name:      req.Name,
		Company:   req.Company,
		Email:     req.Email,
		Phone:     req.Phone,
		Address:   req.Address,
		Notes:     req.Notes,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.SaveSupplier(ctx, supplier); err != nil {
		return domain.Supplier{}, err
	}

	s.logAudit(ctx, "supplier_create", "supplier", supplier.ID, "name="+supplier.Name)
	return supplier, nil
}

func (s *Service) UpdateSupplier(ctx context.Context, id string, req domain.SupplierRequest) (domain.Supplier, error) {
	if err := requireOwner(ctx); err != nil {
		return domain.Supplier{}, err
	}
	req = normalizeSupplierRequest(req)

	supplier, err := s.repo.FindSupplierByID(ctx, id)
	if err != nil {
		return domain.Supplier{}, err
	}
	if req.Name != "" {
		supplier.Name = req.Name
	}
	if req.Company != "" {
		supplier.Company = req.Company
	}
	if req.Email != "" {
		supplier.Email = req.Email
	}
	if req.Phone != "" {
		supplier.Phone = req.Phone
	}
	if req.Address != "" {
		supplier.Address = req.Address
	}
	if req.Notes != "" {
		supplier.Notes = req.Notes
	}

	if err := s.repo.SaveSupplier(ctx, *supplier); err != nil {
		return domain.Supplier{}, err
	}
	s.logAudit(ctx, "supplier_update", "supplier", supplier.ID, "name="+supplier.Name)
	return *supplier, nil
}

func (s *Service) DeleteSupplier(ctx context.Context, id string) error {
	if err := requireOwner(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteSupplier(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "supplier_delete", "supplier", id, "")
	return nil
}

func normalizeSupplierRequest(req domain.SupplierRequest) domain.SupplierRequest {
	req.Name = strings.TrimSpace(req.Name)
	req.Company = strings.TrimSpace(req.Company)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)
	req.Address = strings.TrimSpace(req.Address)
	req.Notes = strings.TrimSpace(req.Notes)
	return req
}

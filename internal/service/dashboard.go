package service

import (
	"context"

	"pharmapos/backend/internal/domain"
)

func (s *Service) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	medicines, err := s.repo.ListMedicines(ctx)
	if err != nil {
		return domain.DashboardStats{}, err
	}

	stats := domain.DashboardStats{}
	for _, m := range medicines {
		if !m.Active {
			continue
		}
		stats.TotalMedicines++
		if m.LowStock() {
			stats.LowStockCount++
		}
	}

	from, to := s.todayRange()
	today, err := s.repo.ListSalesBetween(ctx, from, to)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	stats.TodaySalesCount = len(today)
	stats.TodayRevenue = sumTotals(today)

	all, err := s.repo.ListSales(ctx)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	stats.TotalRevenue = sumTotals(all)

	return stats, nil
}

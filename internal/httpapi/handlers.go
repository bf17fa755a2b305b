package httpapi

import (
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"pharmapos/backend/internal/domain"
)

func (a *API) handleListMedicines(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	medicines, err := a.service.ListMedicines(r.Context(), query.Get("q"), query.Get("category"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"medicines": medicines})
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request) {
	medicines, err := a.service.LowStockMedicines(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"medicines": medicines})
}

func (a *API) handleGetMedicine(w http.ResponseWriter, r *http.Request) {
	medicine, err := a.service.GetMedicine(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"medicine": medicine})
}

func (a *API) handleCreateMedicine(w http.ResponseWriter, r *http.Request) {
	var req domain.MedicineCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	medicine, err := a.service.CreateMedicine(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"medicine": medicine})
}

func (a *API) handleUpdateMedicine(w http.ResponseWriter, r *http.Request) {
	var req domain.MedicineUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	medicine, err := a.service.UpdateMedicine(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"medicine": medicine})
}

func (a *API) handleDeleteMedicine(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteMedicine(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if phone := strings.TrimSpace(query.Get("phone")); phone != "" {
		customer, err := a.service.FindCustomerByPhone(r.Context(), phone)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
		return
	}

	customers, err := a.service.ListCustomers(r.Context(), query.Get("q"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
}

func (a *API) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := a.service.GetCustomer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
}

func (a *API) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	customer, err := a.service.CreateCustomer(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"customer": customer})
}

func (a *API) handleUpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	customer, err := a.service.UpdateCustomer(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
}

func (a *API) handleListSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := a.service.ListSuppliers(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suppliers": suppliers})
}

func (a *API) handleGetSupplier(w http.ResponseWriter, r *http.Request) {
	supplier, err := a.service.GetSupplier(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"supplier": supplier})
}

func (a *API) handleCreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req domain.SupplierRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	supplier, err := a.service.CreateSupplier(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"supplier": supplier})
}

func (a *API) handleUpdateSupplier(w http.ResponseWriter, r *http.Request) {
	var req domain.SupplierRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	supplier, err := a.service.UpdateSupplier(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"supplier": supplier})
}

func (a *API) handleDeleteSupplier(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteSupplier(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	sales, err := a.service.ListSales(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleTodaySales(w http.ResponseWriter, r *http.Request) {
	sales, err := a.service.TodaySales(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleTodayTotal(w http.ResponseWriter, r *http.Request) {
	total, err := a.service.TodayTotal(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, total)
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.GetSale(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sale, err := a.service.CreateSale(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sale": sale})
}

func (a *API) handleDeleteSale(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteSale(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteSaleItem answers with the updated sale, or sale_deleted when the
// last item was removed.
func (a *API) handleDeleteSaleItem(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.DeleteSaleItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if sale == nil {
		writeJSON(w, http.StatusOK, map[string]any{"sale_deleted": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale, "sale_deleted": false})
}

func (a *API) handleSendReceipt(w http.ResponseWriter, r *http.Request) {
	var req domain.SendReceiptRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	if err := a.service.SendReceipt(r.Context(), chi.URLParam(r, "id"), req.Email); err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			log.Printf("[http] WARN: receipt for sale %s failed: %v", chi.URLParam(r, "id"), err)
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": "receipt delivery failed"})
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sent": true})
}

func (a *API) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.service.DashboardStats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

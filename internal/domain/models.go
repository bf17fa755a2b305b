package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Medicine struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	GenericName   string          `json:"generic_name,omitempty"`
	Category      string          `json:"category"`
	Manufacturer  string          `json:"manufacturer,omitempty"`
	Price         decimal.Decimal `json:"price"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	StockQuantity int             `json:"stock_quantity"`
	MinStockLevel int             `json:"min_stock_level"`
	ExpiryDate    *time.Time      `json:"expiry_date,omitempty"`
	BatchNumber   string          `json:"batch_number,omitempty"`
	Active        bool            `json:"active"`
	CreatedAt     time.Time       `json:"created_at"`
}

// LowStock reports whether the medicine is at or below its reorder threshold.
func (m Medicine) LowStock() bool {
	return m.Active && m.StockQuantity <= m.MinStockLevel
}

type MedicineCreateRequest struct {
	Name          string          `json:"name"`
	GenericName   string          `json:"generic_name"`
	Category      string          `json:"category"`
	Manufacturer  string          `json:"manufacturer"`
	Price         decimal.Decimal `json:"price"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	StockQuantity int             `json:"stock_quantity"`
	MinStockLevel *int            `json:"min_stock_level,omitempty"`
	ExpiryDate    string          `json:"expiry_date,omitempty"`
	BatchNumber   string          `json:"batch_number"`
}

type MedicineUpdateRequest struct {
	Name          *string          `json:"name,omitempty"`
	GenericName   *string          `json:"generic_name,omitempty"`
	Category      *string          `json:"category,omitempty"`
	Manufacturer  *string          `json:"manufacturer,omitempty"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	CostPrice     *decimal.Decimal `json:"cost_price,omitempty"`
	StockQuantity *int             `json:"stock_quantity,omitempty"`
	MinStockLevel *int             `json:"min_stock_level,omitempty"`
	ExpiryDate    *string          `json:"expiry_date,omitempty"`
	BatchNumber   *string          `json:"batch_number,omitempty"`
	Active        *bool            `json:"active,omitempty"`
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type CustomerRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Company   string    `json:"company,omitempty"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type SupplierRequest struct {
	Name    string `json:"name"`
	Company string `json:"company"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Notes   string `json:"notes"`
}

type SaleLine struct {
	MedicineID string `json:"medicine_id"`
	Quantity   int    `json:"quantity"`
}

type SaleRequest struct {
	CustomerID    string     `json:"customer_id,omitempty"`
	CustomerName  string     `json:"customer_name,omitempty"`
	CustomerPhone string     `json:"customer_phone,omitempty"`
	CustomerEmail string     `json:"customer_email,omitempty"`
	PaymentMethod string     `json:"payment_method"`
	SendReceipt   bool       `json:"send_receipt,omitempty"`
	Items         []SaleLine `json:"items"`
}

type SendReceiptRequest struct {
	Email string `json:"email"`
}

type TodayTotalResponse struct {
	Date  string          `json:"date"`
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

type DashboardStats struct {
	TotalMedicines  int             `json:"total_medicines"`
	LowStockCount   int             `json:"low_stock_count"`
	TodaySalesCount int             `json:"today_sales_count"`
	TodayRevenue    decimal.Decimal `json:"today_revenue"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	OTPSessionID string `json:"otp_session_id"`
	ExpiresAt    string `json:"expires_at"`
	Message      string `json:"message"`
}

type VerifyOTPRequest struct {
	OTPSessionID string `json:"otp_session_id"`
	OTP          string `json:"otp"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
	User        User   `json:"user"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	Role     string `json:"role"`
}

type Actor struct {
	Email string
	Role  string
}

// User is the public view of an account.
type User struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Email        string
	Name         string
	Phone        string
	Address      string
	PasswordHash string
	Role         string
	Active       bool
	CreatedAt    time.Time
}

func (u UserAccount) Public() User {
	return User{
		Email:     u.Email,
		Name:      u.Name,
		Phone:     u.Phone,
		Address:   u.Address,
		Role:      u.Role,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
	}
}

const (
	RoleOwner    = "owner"
	RoleEmployee = "employee"
)

const (
	WalkInCustomerName  = "Walk-in Customer"
	WalkInCustomerPhone = "0000000000"
)

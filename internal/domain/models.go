package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

type CategoryCreateRequest struct {
	Name string `json:"name"`
	Code string `json:"code,omitempty"`
}

type CategoryUpdateRequest struct {
	Name *string `json:"name,omitempty"`
}

type Product struct {
	SKU               string          `json:"sku"`
	Name              string          `json:"name"`
	CategoryID        string          `json:"category_id,omitempty"`
	CategoryName      string          `json:"category_name,omitempty"`
	Description       string          `json:"description,omitempty"`
	Season            string          `json:"season"`
	Gender            string          `json:"gender"`
	Color             string          `json:"color"`
	Size              string          `json:"size"`
	Price             decimal.Decimal `json:"price"`
	CostPrice         decimal.Decimal `json:"cost_price"`
	Quantity          int             `json:"quantity"`
	LowStockThreshold int             `json:"low_stock_threshold"`
	Active            bool            `json:"active"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// StockStatus classifies the product against its low stock threshold.
func (p Product) StockStatus() string {
	switch {
	case p.Quantity <= 0:
		return StockStatusOut
	case p.Quantity <= p.LowStockThreshold:
		return StockStatusLow
	default:
		return StockStatusIn
	}
}

type ProductCreateRequest struct {
	Name              string          `json:"name"`
	CategoryID        string          `json:"category_id,omitempty"`
	Description       string          `json:"description,omitempty"`
	Season            string          `json:"season,omitempty"`
	Gender            string          `json:"gender,omitempty"`
	Color             string          `json:"color,omitempty"`
	Size              string          `json:"size,omitempty"`
	Price             decimal.Decimal `json:"price"`
	CostPrice         decimal.Decimal `json:"cost_price"`
	InitialStock      int             `json:"initial_stock"`
	LowStockThreshold int             `json:"low_stock_threshold"`
}

type ProductUpdateRequest struct {
	Name              *string          `json:"name,omitempty"`
	CategoryID        *string          `json:"category_id,omitempty"`
	Description       *string          `json:"description,omitempty"`
	Price             *decimal.Decimal `json:"price,omitempty"`
	CostPrice         *decimal.Decimal `json:"cost_price,omitempty"`
	LowStockThreshold *int             `json:"low_stock_threshold,omitempty"`
	Active            *bool            `json:"active,omitempty"`
}

type ProductFilter struct {
	Search      string
	CategoryID  string
	StockStatus string
	Limit       int
}

type StockAdjustRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

type StockAdjustResponse struct {
	SKU         string `json:"sku"`
	Quantity    int    `json:"quantity"`
	StockStatus string `json:"stock_status"`
}

type StockMovement struct {
	ID        string    `json:"id"`
	SKU       string    `json:"sku"`
	Delta     int       `json:"delta"`
	Reason    string    `json:"reason"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}

// Customer. TotalPaid aggregates payments across the customer's invoices
// and is computed on read, never stored.
type Customer struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Email     string          `json:"email,omitempty"`
	Phone     string          `json:"phone,omitempty"`
	Address   string          `json:"address,omitempty"`
	TotalPaid decimal.Decimal `json:"total_paid"`
	CreatedAt time.Time       `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

type CustomerUpdateRequest struct {
	Name    *string `json:"name,omitempty"`
	Email   *string `json:"email,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Address *string `json:"address,omitempty"`
}

// InvoiceItem snapshots product name and price at sale time. ProductSKU is
// empty once the product has been deleted; the snapshot fields stay valid.
type InvoiceItem struct {
	ProductSKU  string          `json:"product_sku,omitempty"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`

	// UnitPriceOverride is input-only. When set, the line is priced at it
	// instead of the product's current price.
	UnitPriceOverride *decimal.Decimal `json:"-"`
}

// Invoice header. CustomerID is empty for walk-in sales; CustomerName and
// CustomerPhone are snapshots taken at creation either way.
type Invoice struct {
	Number        string          `json:"number"`
	CustomerID    string          `json:"customer_id,omitempty"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone,omitempty"`
	PaymentMethod string          `json:"payment_method"`
	Status        string          `json:"status"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	BalanceDue    decimal.Decimal `json:"balance_due"`
	Notes         string          `json:"notes,omitempty"`
	CreatedBy     string          `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Items         []InvoiceItem   `json:"items"`
}

// InvoiceLineRequest prices a line at the product's current price unless
// UnitPrice overrides it.
type InvoiceLineRequest struct {
	SKU       string           `json:"sku"`
	Quantity  int              `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

// InvoiceCreateRequest takes either a customer reference or a free-text
// walk-in name (with optional phone), never both.
type InvoiceCreateRequest struct {
	CustomerID    string               `json:"customer_id,omitempty"`
	CustomerName  string               `json:"customer_name,omitempty"`
	CustomerPhone string               `json:"customer_phone,omitempty"`
	PaymentMethod string               `json:"payment_method,omitempty"`
	Discount      decimal.Decimal      `json:"discount"`
	TaxAmount     decimal.Decimal      `json:"tax_amount"`
	Notes         string               `json:"notes,omitempty"`
	Items         []InvoiceLineRequest `json:"items"`
}

type InvoiceFilter struct {
	Search string
	Status string
	Limit  int
}

// PaymentRequest. Method, when set, replaces the invoice's payment method.
type PaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// Capabilities are the per-account permission flags. Admin accounts pass
// every check regardless of flags.
type Capabilities struct {
	ViewInventory    bool `json:"can_view_inventory"`
	AddProduct       bool `json:"can_add_product"`
	EditProduct      bool `json:"can_edit_product"`
	DeleteProduct    bool `json:"can_delete_product"`
	ManageCategories bool `json:"can_manage_categories"`
	AdjustStock      bool `json:"can_adjust_stock"`
	ViewBilling      bool `json:"can_view_billing"`
	CreateInvoice    bool `json:"can_create_invoice"`
	CancelInvoice    bool `json:"can_cancel_invoice"`
	ManageCustomers  bool `json:"can_manage_customers"`
	ManageUsers      bool `json:"can_manage_users"`
}

type UserAccount struct {
	Username     string
	Password     string
	Role         string
	Capabilities Capabilities
	Active       bool
	CreatedAt    time.Time
}

type UserView struct {
	Username     string       `json:"username"`
	Role         string       `json:"role"`
	Capabilities Capabilities `json:"capabilities"`
	Active       bool         `json:"active"`
	CreatedAt    time.Time    `json:"created_at"`
}

type UserCreateRequest struct {
	Username     string       `json:"username"`
	Password     string       `json:"password"`
	Role         string       `json:"role"`
	Capabilities Capabilities `json:"capabilities"`
}

type UserUpdateRequest struct {
	Password     *string       `json:"password,omitempty"`
	Role         *string       `json:"role,omitempty"`
	Capabilities *Capabilities `json:"capabilities,omitempty"`
	Active       *bool         `json:"active,omitempty"`
}

type DailySales struct {
	Date  string          `json:"date"`
	Total decimal.Decimal `json:"total"`
}

type ProductSales struct {
	SKU      string          `json:"sku"`
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Revenue  decimal.Decimal `json:"revenue"`
}

type DashboardSummary struct {
	TodaySales     decimal.Decimal `json:"today_sales"`
	MonthSales     decimal.Decimal `json:"month_sales"`
	PendingBalance decimal.Decimal `json:"pending_balance"`
	ProductCount   int             `json:"product_count"`
	CustomerCount  int             `json:"customer_count"`
	InvoiceCount   int             `json:"invoice_count"`
	LowStock       []Product       `json:"low_stock"`
	OutOfStock     []Product       `json:"out_of_stock"`
	DailySales     []DailySales    `json:"daily_sales"`
	TopProducts    []ProductSales  `json:"top_products"`
	RecentInvoices []Invoice       `json:"recent_invoices"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

type SalesReportRow struct {
	Number       string          `json:"number"`
	CustomerName string          `json:"customer_name"`
	Status       string          `json:"status"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	AmountPaid   decimal.Decimal `json:"amount_paid"`
	BalanceDue   decimal.Decimal `json:"balance_due"`
	CreatedAt    time.Time       `json:"created_at"`
}

type SalesReport struct {
	From  time.Time        `json:"from"`
	To    time.Time        `json:"to"`
	Rows  []SalesReportRow `json:"rows"`
	Total decimal.Decimal  `json:"total"`
}

const (
	InvoiceStatusPending   = "pending"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusCancelled = "cancelled"
)

const (
	PaymentMethodCash     = "cash"
	PaymentMethodCard     = "card"
	PaymentMethodTransfer = "transfer"
)

const (
	StockStatusOut = "out_of_stock"
	StockStatusLow = "low_stock"
	StockStatusIn  = "in_stock"
)

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

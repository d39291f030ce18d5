package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"grinkrawear/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrAlreadyCancelled  = errors.New("invoice already cancelled")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
	ErrForbidden         = errors.New("forbidden")
)

type Repository interface {
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	GetCategoryByID(ctx context.Context, id string) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, sku string) error
	// NextSKUSerial hands out the next serial for a SKU prefix, seeding the
	// counter from existing SKUs on first use.
	NextSKUSerial(ctx context.Context, prefix string) (int, error)
	// AdjustStock applies a signed delta, failing with ErrInsufficientStock
	// when the result would go negative, and records the movement.
	AdjustStock(ctx context.Context, sku string, delta int, reason string, actor string) (*domain.Product, error)
	ListStockMovements(ctx context.Context, sku string, limit int) ([]domain.StockMovement, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, search string, limit int) ([]domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error

	// CreateInvoice allocates the invoice number, deducts stock per line and
	// persists the invoice in one atomic step.
	CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error)
	GetInvoiceByNumber(ctx context.Context, number string) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, filter domain.InvoiceFilter) ([]domain.Invoice, error)
	// RecordPayment adds amount to the invoice's running total and, when
	// method is non-empty, replaces its payment method.
	RecordPayment(ctx context.Context, number string, amount decimal.Decimal, method string) (*domain.Invoice, error)
	// CancelInvoice restores stock for lines whose product still exists and
	// marks the invoice cancelled, atomically.
	CancelInvoice(ctx context.Context, number string, actor string) (*domain.Invoice, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	DeleteUser(ctx context.Context, username string) error

	GetDashboardSummary(ctx context.Context, now time.Time) (*domain.DashboardSummary, error)
	GetSalesReport(ctx context.Context, from time.Time, to time.Time) (*domain.SalesReport, error)
}

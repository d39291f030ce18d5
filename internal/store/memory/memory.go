package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"grinkrawear/backend/internal/domain"
	"grinkrawear/backend/internal/sku"
	"grinkrawear/backend/internal/store"
	"grinkrawear/backend/internal/xid"
)

type Store struct {
	mu            sync.RWMutex
	categories    map[string]domain.Category
	products      map[string]domain.Product
	customers     map[string]domain.Customer
	invoices      map[string]domain.Invoice
	movements     []domain.StockMovement
	skuSerials    map[string]int
	invoiceSerial int
	users         map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD. If
// unset, hardcoded dev defaults are used with a warning printed to stdout.
// These credentials are never used in production (the backend uses
// PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
		caps     domain.Capabilities
	}{
		{"admin", adminPwd, domain.RoleAdmin, domain.Capabilities{}},
		{"staff", staffPwd, domain.RoleStaff, domain.Capabilities{
			ViewInventory: true,
			AdjustStock:   true,
			ViewBilling:   true,
			CreateInvoice: true,
		}},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:     u.username,
			Password:     string(hash),
			Role:         u.role,
			Capabilities: u.caps,
			Active:       true,
			CreatedAt:    now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		categories: make(map[string]domain.Category),
		products:   make(map[string]domain.Product),
		customers:  make(map[string]domain.Customer),
		invoices:   make(map[string]domain.Invoice),
		movements:  make([]domain.StockMovement, 0, 128),
		skuSerials: make(map[string]int),
		users:      seedUsers(),
	}
}

func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	categories := []domain.Category{
		{ID: "cat-tshirt", Name: "T-Shirt", Code: "TS", CreatedAt: now},
		{ID: "cat-hoodie", Name: "Hoodie", Code: "HD", CreatedAt: now},
		{ID: "cat-jacket", Name: "Jacket", Code: "JK", CreatedAt: now},
	}
	for _, c := range categories {
		s.categories[c.ID] = c
	}

	products := []domain.Product{
		{SKU: "GRK-SU-TS-M-RD-M-001", Name: "Summer Graphic Tee", CategoryID: "cat-tshirt", CategoryName: "T-Shirt", Season: "SU", Gender: "M", Color: "RD", Size: "M", Price: decimal.NewFromInt(35), CostPrice: decimal.NewFromInt(14), Quantity: 40, LowStockThreshold: 10},
		{SKU: "GRK-SU-TS-W-WH-S-001", Name: "Summer Crop Tee", CategoryID: "cat-tshirt", CategoryName: "T-Shirt", Season: "SU", Gender: "W", Color: "WH", Size: "S", Price: decimal.NewFromInt(32), CostPrice: decimal.NewFromInt(13), Quantity: 25, LowStockThreshold: 10},
		{SKU: "GRK-WI-HD-U-BK-L-001", Name: "Winter Fleece Hoodie", CategoryID: "cat-hoodie", CategoryName: "Hoodie", Season: "WI", Gender: "U", Color: "BK", Size: "L", Price: decimal.NewFromInt(78), CostPrice: decimal.NewFromInt(34), Quantity: 18, LowStockThreshold: 5},
		{SKU: "GRK-FA-JK-M-NV-XL-001", Name: "Fall Bomber Jacket", CategoryID: "cat-jacket", CategoryName: "Jacket", Season: "FA", Gender: "M", Color: "NV", Size: "XL", Price: decimal.NewFromInt(120), CostPrice: decimal.NewFromInt(55), Quantity: 8, LowStockThreshold: 5},
		{SKU: "GRK-AY-TS-U-BK-M-001", Name: "Classic Logo Tee", CategoryID: "cat-tshirt", CategoryName: "T-Shirt", Season: "AY", Gender: "U", Color: "BK", Size: "M", Price: decimal.NewFromInt(28), CostPrice: decimal.NewFromInt(11), Quantity: 60, LowStockThreshold: 15},
	}
	for _, p := range products {
		p.Active = true
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.SKU] = p
	}

	customers := []domain.Customer{
		{ID: "cust-andi", Name: "Andi Wirawan", Email: "andi@example.com", Phone: "0811-555-0101", CreatedAt: now},
		{ID: "cust-sari", Name: "Sari Dewi", Email: "sari@example.com", Phone: "0811-555-0102", CreatedAt: now},
	}
	for _, c := range customers {
		s.customers[c.ID] = c
	}

	return s
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if category.ID == "" || category.Name == "" || category.Code == "" {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.categories {
		if strings.EqualFold(existing.Name, category.Name) {
			return nil, fmt.Errorf("%w: category %s exists", store.ErrConflict, existing.Name)
		}
	}

	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	s.categories[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) GetCategoryByID(_ context.Context, id string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category, exists := s.categories[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyCategory := category
	return &copyCategory, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		categories = append(categories, c)
	}
	slices.SortFunc(categories, func(a, b domain.Category) int {
		return cmpString(a.Name, b.Name)
	})
	return categories, nil
}

func (s *Store) UpdateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.categories[category.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	for id, other := range s.categories {
		if id != category.ID && strings.EqualFold(other.Name, category.Name) {
			return nil, fmt.Errorf("%w: category %s exists", store.ErrConflict, other.Name)
		}
	}

	// The code is fixed at creation so existing SKUs stay meaningful.
	category.Code = existing.Code
	category.CreatedAt = existing.CreatedAt
	s.categories[category.ID] = category

	for skuCode, p := range s.products {
		if p.CategoryID == category.ID {
			p.CategoryName = category.Name
			s.products[skuCode] = p
		}
	}

	updated := category
	return &updated, nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[id]; !exists {
		return store.ErrNotFound
	}
	for _, p := range s.products {
		if p.CategoryID == id {
			return fmt.Errorf("%w: category has products", store.ErrConflict)
		}
	}
	delete(s.categories, id)
	return nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.SKU == "" || product.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if product.Quantity < 0 || product.LowStockThreshold < 0 || product.Price.IsNegative() || product.CostPrice.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.products[product.SKU]; exists {
		return nil, fmt.Errorf("%w: sku %s exists", store.ErrConflict, product.SKU)
	}

	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	s.products[product.SKU] = product

	if product.Quantity > 0 {
		s.movements = append(s.movements, domain.StockMovement{
			ID:        xid.New("mov"),
			SKU:       product.SKU,
			Delta:     product.Quantity,
			Reason:    "initial stock",
			CreatedAt: now,
		})
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductBySKU(_ context.Context, skuCode string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[skuCode]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if filter.CategoryID != "" && p.CategoryID != filter.CategoryID {
			continue
		}
		if filter.StockStatus != "" && p.StockStatus() != filter.StockStatus {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.SKU), search) {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpString(a.Name, b.Name)
	})
	if filter.Limit > 0 && len(products) > filter.Limit {
		products = products[:filter.Limit]
	}
	return products, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.SKU]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.Name == "" || product.Price.IsNegative() || product.LowStockThreshold < 0 {
		return nil, store.ErrInvalidInput
	}

	// Stock only moves through AdjustStock and the invoice operations.
	product.Quantity = existing.Quantity
	product.Season = existing.Season
	product.Gender = existing.Gender
	product.Color = existing.Color
	product.Size = existing.Size
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.SKU] = product

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, skuCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[skuCode]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, skuCode)

	// Invoice lines keep their snapshots; only the back-reference is cleared.
	for number, inv := range s.invoices {
		changed := false
		for i := range inv.Items {
			if inv.Items[i].ProductSKU == skuCode {
				inv.Items[i].ProductSKU = ""
				changed = true
			}
		}
		if changed {
			s.invoices[number] = inv
		}
	}
	return nil
}

func (s *Store) NextSKUSerial(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextSKUSerialLocked(prefix), nil
}

func (s *Store) nextSKUSerialLocked(prefix string) int {
	if _, seeded := s.skuSerials[prefix]; !seeded {
		max := 0
		for code := range s.products {
			if n, ok := sku.ParseSerial(prefix, code); ok && n > max {
				max = n
			}
		}
		s.skuSerials[prefix] = max
	}
	s.skuSerials[prefix]++
	return s.skuSerials[prefix]
}

func (s *Store) AdjustStock(_ context.Context, skuCode string, delta int, reason string, actor string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[skuCode]
	if !exists {
		return nil, store.ErrNotFound
	}
	if delta == 0 {
		return nil, fmt.Errorf("%w: zero delta", store.ErrInvalidInput)
	}
	if product.Quantity+delta < 0 {
		return nil, fmt.Errorf("%w: %s has %d", store.ErrInsufficientStock, product.Name, product.Quantity)
	}

	now := time.Now().UTC()
	product.Quantity += delta
	product.UpdatedAt = now
	s.products[skuCode] = product
	s.movements = append(s.movements, domain.StockMovement{
		ID:        xid.New("mov"),
		SKU:       skuCode,
		Delta:     delta,
		Reason:    reason,
		Actor:     actor,
		CreatedAt: now,
	})

	adjusted := product
	return &adjusted, nil
}

func (s *Store) ListStockMovements(_ context.Context, skuCode string, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	movements := make([]domain.StockMovement, 0, limit)
	for i := len(s.movements) - 1; i >= 0; i-- {
		m := s.movements[i]
		if skuCode != "" && m.SKU != skuCode {
			continue
		}
		movements = append(movements, m)
		if limit > 0 && len(movements) >= limit {
			break
		}
	}
	return movements, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" || customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customers[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customers[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyCustomer := customer
	copyCustomer.TotalPaid = s.totalPaidLocked(id)
	return &copyCustomer, nil
}

// totalPaidLocked sums payments across a customer's invoices, excluding
// cancelled ones. Callers must hold at least a read lock.
func (s *Store) totalPaidLocked(customerID string) decimal.Decimal {
	total := decimal.Zero
	for _, inv := range s.invoices {
		if inv.CustomerID != customerID || inv.Status == domain.InvoiceStatusCancelled {
			continue
		}
		total = total.Add(inv.AmountPaid)
	}
	return total
}

func (s *Store) ListCustomers(_ context.Context, search string, limit int) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search = strings.ToLower(strings.TrimSpace(search))
	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		if search != "" &&
			!strings.Contains(strings.ToLower(c.Name), search) &&
			!strings.Contains(strings.ToLower(c.Phone), search) {
			continue
		}
		c.TotalPaid = s.totalPaidLocked(c.ID)
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return cmpString(a.Name, b.Name)
	})
	if limit > 0 && len(customers) > limit {
		customers = customers[:limit]
	}
	return customers, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.customers[customer.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	customer.CreatedAt = existing.CreatedAt
	s.customers[customer.ID] = customer

	for number, inv := range s.invoices {
		if inv.CustomerID == customer.ID {
			inv.CustomerName = customer.Name
			s.invoices[number] = inv
		}
	}

	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customers[id]; !exists {
		return store.ErrNotFound
	}
	for _, inv := range s.invoices {
		if inv.CustomerID == id {
			return fmt.Errorf("%w: customer has invoices", store.ErrConflict)
		}
	}
	delete(s.customers, id)
	return nil
}

func (s *Store) CreateInvoice(_ context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(invoice.Items) == 0 {
		return nil, fmt.Errorf("%w: no items", store.ErrInvalidInput)
	}
	if invoice.CustomerID != "" {
		customer, exists := s.customers[invoice.CustomerID]
		if !exists {
			return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, invoice.CustomerID)
		}
		invoice.CustomerName = customer.Name
		invoice.CustomerPhone = customer.Phone
	} else if invoice.CustomerName == "" {
		return nil, fmt.Errorf("%w: walk-in name required", store.ErrInvalidInput)
	}
	if invoice.Discount.IsNegative() || invoice.TaxAmount.IsNegative() {
		return nil, fmt.Errorf("%w: negative discount or tax", store.ErrInvalidInput)
	}

	// Validate every line before touching stock so a failure leaves nothing
	// behind.
	subtotal := decimal.Zero
	lines := make([]domain.InvoiceItem, 0, len(invoice.Items))
	for _, item := range invoice.Items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity below 1", store.ErrInvalidInput)
		}
		product, ok := s.products[item.ProductSKU]
		if !ok {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductSKU)
		}
		if !product.Active {
			return nil, fmt.Errorf("%w: product %s is inactive", store.ErrInvalidInput, product.SKU)
		}
		if product.Quantity < item.Quantity {
			return nil, fmt.Errorf("%w: %s has %d", store.ErrInsufficientStock, product.Name, product.Quantity)
		}
		price := product.Price
		if item.UnitPriceOverride != nil {
			if item.UnitPriceOverride.IsNegative() {
				return nil, fmt.Errorf("%w: negative unit price", store.ErrInvalidInput)
			}
			price = *item.UnitPriceOverride
		}
		lineTotal := price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		lines = append(lines, domain.InvoiceItem{
			ProductSKU:  product.SKU,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   price,
			Total:       lineTotal,
		})
		subtotal = subtotal.Add(lineTotal)
	}

	if invoice.Discount.GreaterThan(subtotal) {
		return nil, fmt.Errorf("%w: discount exceeds subtotal", store.ErrInvalidInput)
	}

	now := time.Now().UTC()
	s.invoiceSerial = s.nextInvoiceSerialLocked()
	number := fmt.Sprintf("INV-%06d", s.invoiceSerial)

	for _, line := range lines {
		product := s.products[line.ProductSKU]
		product.Quantity -= line.Quantity
		product.UpdatedAt = now
		s.products[line.ProductSKU] = product
		s.movements = append(s.movements, domain.StockMovement{
			ID:        xid.New("mov"),
			SKU:       line.ProductSKU,
			Delta:     -line.Quantity,
			Reason:    fmt.Sprintf("invoice %s", number),
			Actor:     invoice.CreatedBy,
			CreatedAt: now,
		})
	}

	total := subtotal.Sub(invoice.Discount).Add(invoice.TaxAmount)
	invoice.Number = number
	invoice.Status = domain.InvoiceStatusPending
	invoice.Subtotal = subtotal
	invoice.TotalAmount = total
	invoice.AmountPaid = decimal.Zero
	invoice.BalanceDue = total
	invoice.Items = lines
	invoice.CreatedAt = now
	invoice.UpdatedAt = now
	s.invoices[number] = invoice

	created := cloneInvoice(invoice)
	return &created, nil
}

// nextInvoiceSerialLocked seeds the counter from existing numbers on first
// use and increments from there.
func (s *Store) nextInvoiceSerialLocked() int {
	if s.invoiceSerial == 0 {
		for number := range s.invoices {
			var n int
			if _, err := fmt.Sscanf(number, "INV-%d", &n); err == nil && n > s.invoiceSerial {
				s.invoiceSerial = n
			}
		}
	}
	return s.invoiceSerial + 1
}

func (s *Store) GetInvoiceByNumber(_ context.Context, number string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoice, exists := s.invoices[number]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyInvoice := cloneInvoice(invoice)
	return &copyInvoice, nil
}

func (s *Store) ListInvoices(_ context.Context, filter domain.InvoiceFilter) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	invoices := make([]domain.Invoice, 0, len(s.invoices))
	for _, inv := range s.invoices {
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(inv.Number), search) &&
			!strings.Contains(strings.ToLower(inv.CustomerName), search) {
			continue
		}
		invoices = append(invoices, cloneInvoice(inv))
	}
	slices.SortFunc(invoices, func(a, b domain.Invoice) int {
		return cmpString(b.Number, a.Number)
	})
	if filter.Limit > 0 && len(invoices) > filter.Limit {
		invoices = invoices[:filter.Limit]
	}
	return invoices, nil
}

func (s *Store) RecordPayment(_ context.Context, number string, amount decimal.Decimal, method string) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	invoice, exists := s.invoices[number]
	if !exists {
		return nil, store.ErrNotFound
	}
	if invoice.Status == domain.InvoiceStatusCancelled {
		return nil, store.ErrAlreadyCancelled
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment must be positive", store.ErrInvalidInput)
	}

	if method != "" {
		invoice.PaymentMethod = method
	}
	invoice.AmountPaid = invoice.AmountPaid.Add(amount)
	invoice.BalanceDue = invoice.TotalAmount.Sub(invoice.AmountPaid)
	if invoice.AmountPaid.GreaterThanOrEqual(invoice.TotalAmount) {
		invoice.Status = domain.InvoiceStatusPaid
	}
	invoice.UpdatedAt = time.Now().UTC()
	s.invoices[number] = invoice

	updated := cloneInvoice(invoice)
	return &updated, nil
}

func (s *Store) CancelInvoice(_ context.Context, number string, actor string) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	invoice, exists := s.invoices[number]
	if !exists {
		return nil, store.ErrNotFound
	}
	if invoice.Status == domain.InvoiceStatusCancelled {
		return nil, store.ErrAlreadyCancelled
	}

	now := time.Now().UTC()
	for _, item := range invoice.Items {
		if item.ProductSKU == "" {
			continue
		}
		product, ok := s.products[item.ProductSKU]
		if !ok {
			continue
		}
		product.Quantity += item.Quantity
		product.UpdatedAt = now
		s.products[item.ProductSKU] = product
		s.movements = append(s.movements, domain.StockMovement{
			ID:        xid.New("mov"),
			SKU:       item.ProductSKU,
			Delta:     item.Quantity,
			Reason:    fmt.Sprintf("invoice %s cancelled", number),
			Actor:     actor,
			CreatedAt: now,
		})
	}

	invoice.Status = domain.InvoiceStatusCancelled
	invoice.UpdatedAt = now
	s.invoices[number] = invoice

	cancelled := cloneInvoice(invoice)
	return &cancelled, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.users[user.Username]; exists {
		return fmt.Errorf("%w: user %s exists", store.ErrConflict, user.Username)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[user.Username] = user
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[username]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyUser := user
	return &copyUser, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.users[user.Username]
	if !exists {
		return nil, store.ErrNotFound
	}
	user.CreatedAt = existing.CreatedAt
	s.users[user.Username] = user

	updated := user
	return &updated, nil
}

func (s *Store) DeleteUser(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; !exists {
		return store.ErrNotFound
	}
	delete(s.users, username)
	return nil
}

func (s *Store) GetDashboardSummary(_ context.Context, now time.Time) (*domain.DashboardSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	last30 := now.AddDate(0, 0, -30)

	summary := domain.DashboardSummary{
		TodaySales:     decimal.Zero,
		MonthSales:     decimal.Zero,
		PendingBalance: decimal.Zero,
		ProductCount:   len(s.products),
		CustomerCount:  len(s.customers),
		InvoiceCount:   len(s.invoices),
		GeneratedAt:    now,
	}

	dailyTotals := make(map[string]decimal.Decimal, 7)
	for i := 6; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		dailyTotals[day.Format("2006-01-02")] = decimal.Zero
	}

	productQty := make(map[string]int)
	productRevenue := make(map[string]decimal.Decimal)
	productNames := make(map[string]string)

	recent := make([]domain.Invoice, 0, len(s.invoices))
	for _, inv := range s.invoices {
		recent = append(recent, cloneInvoice(inv))
		if inv.Status == domain.InvoiceStatusCancelled {
			continue
		}
		if !inv.CreatedAt.Before(today) {
			summary.TodaySales = summary.TodaySales.Add(inv.TotalAmount)
		}
		if !inv.CreatedAt.Before(monthStart) {
			summary.MonthSales = summary.MonthSales.Add(inv.TotalAmount)
		}
		if inv.Status == domain.InvoiceStatusPending {
			summary.PendingBalance = summary.PendingBalance.Add(inv.BalanceDue)
		}
		day := inv.CreatedAt.UTC().Format("2006-01-02")
		if existing, ok := dailyTotals[day]; ok {
			dailyTotals[day] = existing.Add(inv.TotalAmount)
		}
		if !inv.CreatedAt.Before(last30) {
			for _, item := range inv.Items {
				key := item.ProductSKU
				if key == "" {
					key = item.ProductName
				}
				productQty[key] += item.Quantity
				productRevenue[key] = productRevenue[key].Add(item.Total)
				productNames[key] = item.ProductName
			}
		}
	}

	for i := 6; i >= 0; i-- {
		day := today.AddDate(0, 0, -i).Format("2006-01-02")
		summary.DailySales = append(summary.DailySales, domain.DailySales{Date: day, Total: dailyTotals[day]})
	}

	top := make([]domain.ProductSales, 0, len(productQty))
	for key, qty := range productQty {
		top = append(top, domain.ProductSales{
			SKU:      key,
			Name:     productNames[key],
			Quantity: qty,
			Revenue:  productRevenue[key],
		})
	}
	slices.SortFunc(top, func(a, b domain.ProductSales) int {
		if a.Quantity != b.Quantity {
			return b.Quantity - a.Quantity
		}
		return cmpString(a.Name, b.Name)
	})
	if len(top) > 5 {
		top = top[:5]
	}
	summary.TopProducts = top

	for _, p := range s.products {
		switch p.StockStatus() {
		case domain.StockStatusOut:
			summary.OutOfStock = append(summary.OutOfStock, p)
		case domain.StockStatusLow:
			summary.LowStock = append(summary.LowStock, p)
		}
	}
	slices.SortFunc(summary.LowStock, func(a, b domain.Product) int { return a.Quantity - b.Quantity })
	slices.SortFunc(summary.OutOfStock, func(a, b domain.Product) int { return cmpString(a.Name, b.Name) })

	slices.SortFunc(recent, func(a, b domain.Invoice) int {
		return cmpString(b.Number, a.Number)
	})
	if len(recent) > 5 {
		recent = recent[:5]
	}
	summary.RecentInvoices = recent

	return &summary, nil
}

func (s *Store) GetSalesReport(_ context.Context, from time.Time, to time.Time) (*domain.SalesReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.SalesReport{From: from, To: to, Total: decimal.Zero}
	for _, inv := range s.invoices {
		if inv.Status == domain.InvoiceStatusCancelled {
			continue
		}
		if inv.CreatedAt.Before(from) || inv.CreatedAt.After(to) {
			continue
		}
		report.Rows = append(report.Rows, domain.SalesReportRow{
			Number:       inv.Number,
			CustomerName: inv.CustomerName,
			Status:       inv.Status,
			TotalAmount:  inv.TotalAmount,
			AmountPaid:   inv.AmountPaid,
			BalanceDue:   inv.BalanceDue,
			CreatedAt:    inv.CreatedAt,
		})
		report.Total = report.Total.Add(inv.TotalAmount)
	}
	slices.SortFunc(report.Rows, func(a, b domain.SalesReportRow) int {
		return cmpString(a.Number, b.Number)
	})
	return &report, nil
}

func cmpString(a string, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cloneInvoice(src domain.Invoice) domain.Invoice {
	out := src
	out.Items = slices.Clone(src.Items)
	return out
}

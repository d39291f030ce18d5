package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"grinkrawear/backend/internal/domain"
	"grinkrawear/backend/internal/store"
	"grinkrawear/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.ID == "" || category.Name == "" || category.Code == "" {
		return nil, store.ErrInvalidInput
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, code, created_at)
		VALUES ($1,$2,$3,$4)
	`, category.ID, category.Name, category.Code, category.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: category %s exists", store.ErrConflict, category.Name)
		}
		return nil, err
	}
	created := category
	return &created, nil
}

func (s *Store) GetCategoryByID(ctx context.Context, id string) (*domain.Category, error) {
	var category domain.Category
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, code, created_at
		FROM categories
		WHERE id = $1
	`, id).Scan(&category.ID, &category.Name, &category.Code, &category.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	category.CreatedAt = category.CreatedAt.UTC()
	return &category, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, code, created_at
		FROM categories
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 32)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Code, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	// The code is fixed at creation so existing SKUs stay meaningful.
	err := s.db.QueryRowContext(ctx, `
		UPDATE categories
		SET name = $2
		WHERE id = $1
		RETURNING code, created_at
	`, category.ID, category.Name).Scan(&category.Code, &category.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: category %s exists", store.ErrConflict, category.Name)
		}
		return nil, err
	}
	updated := category
	return &updated, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var inUse bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM products WHERE category_id = $1)
	`, id).Scan(&inUse)
	if err != nil {
		return err
	}
	if inUse {
		return fmt.Errorf("%w: category has products", store.ErrConflict)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return tx.Commit()
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if product.Quantity < 0 || product.LowStockThreshold < 0 || product.Price.IsNegative() || product.CostPrice.IsNegative() {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (sku, name, category_id, description, season, gender, color, size, price, cost_price, quantity, low_stock_threshold, active, created_at, updated_at)
		VALUES ($1,$2,NULLIF($3,''),$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14)
	`, product.SKU, product.Name, product.CategoryID, product.Description,
		product.Season, product.Gender, product.Color, product.Size,
		product.Price, product.CostPrice, product.Quantity, product.LowStockThreshold, product.Active, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: sku %s exists", store.ErrConflict, product.SKU)
		}
		return nil, err
	}

	if product.Quantity > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock_movements (id, sku, delta, reason, actor, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, xid.New("mov"), product.SKU, product.Quantity, "initial stock", "", now)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := product
	return &created, nil
}

const productColumns = `
	p.sku, p.name, COALESCE(p.category_id, ''), COALESCE(c.name, ''), p.description,
	p.season, p.gender, p.color, p.size, p.price, p.cost_price, p.quantity,
	p.low_stock_threshold, p.active, p.created_at, p.updated_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.SKU, &p.Name, &p.CategoryID, &p.CategoryName, &p.Description,
		&p.Season, &p.Gender, &p.Color, &p.Size, &p.Price, &p.CostPrice, &p.Quantity,
		&p.LowStockThreshold, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE p.sku = $1
	`, sku)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	conditions := []string{"true"}
	args := []any{}
	if filter.CategoryID != "" {
		args = append(args, filter.CategoryID)
		conditions = append(conditions, fmt.Sprintf("p.category_id = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		conditions = append(conditions, fmt.Sprintf("(p.name ILIKE $%d OR p.sku ILIKE $%d)", len(args), len(args)))
	}
	switch filter.StockStatus {
	case domain.StockStatusOut:
		conditions = append(conditions, "p.quantity <= 0")
	case domain.StockStatusLow:
		conditions = append(conditions, "p.quantity > 0 AND p.quantity <= p.low_stock_threshold")
	case domain.StockStatusIn:
		conditions = append(conditions, "p.quantity > p.low_stock_threshold")
	}

	limit := filter.Limit
	if limit < 1 {
		limit = 200
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE `+strings.Join(conditions, " AND ")+`
		ORDER BY p.name
		LIMIT $`+fmt.Sprint(len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Price.IsNegative() || product.CostPrice.IsNegative() || product.LowStockThreshold < 0 {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category_id = NULLIF($3,''), description = $4, price = $5, cost_price = $6, low_stock_threshold = $7, active = $8, updated_at = now()
		WHERE sku = $1
	`, product.SKU, product.Name, product.CategoryID, product.Description, product.Price, product.CostPrice, product.LowStockThreshold, product.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProductBySKU(ctx, product.SKU)
}

func (s *Store) DeleteProduct(ctx context.Context, sku string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Invoice lines keep their snapshots; only the back-reference is cleared.
	if _, err := tx.ExecContext(ctx, `
		UPDATE invoice_items SET product_sku = NULL WHERE product_sku = $1
	`, sku); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM products WHERE sku = $1`, sku)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return tx.Commit()
}

// NextSKUSerial allocates from a per-prefix counter row. On first use the
// counter is seeded from the highest serial already present among SKUs with
// that prefix, so imported catalogs keep their sequence.
func (s *Store) NextSKUSerial(ctx context.Context, prefix string) (int, error) {
	var serial int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO sku_counters (prefix, serial)
		VALUES ($1, COALESCE((
			SELECT MAX(CAST(substring(sku FROM char_length($1) + 1) AS INTEGER))
			FROM products
			WHERE sku LIKE $1 || '%' AND substring(sku FROM char_length($1) + 1) ~ '^[0-9]+$'
		), 0) + 1)
		ON CONFLICT (prefix) DO UPDATE SET serial = sku_counters.serial + 1
		RETURNING serial
	`, prefix).Scan(&serial)
	if err != nil {
		return 0, err
	}
	return serial, nil
}

func (s *Store) AdjustStock(ctx context.Context, sku string, delta int, reason string, actor string) (*domain.Product, error) {
	if delta == 0 {
		return nil, fmt.Errorf("%w: zero delta", store.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var name string
	var quantity int
	err = tx.QueryRowContext(ctx, `
		SELECT name, quantity
		FROM products
		WHERE sku = $1
		FOR UPDATE
	`, sku).Scan(&name, &quantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if quantity+delta < 0 {
		return nil, fmt.Errorf("%w: %s has %d", store.ErrInsufficientStock, name, quantity)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE products SET quantity = quantity + $2, updated_at = $3 WHERE sku = $1
	`, sku, delta, now); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO stock_movements (id, sku, delta, reason, actor, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, xid.New("mov"), sku, delta, reason, actor, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.GetProductBySKU(ctx, sku)
}

func (s *Store) ListStockMovements(ctx context.Context, sku string, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, delta, reason, actor, created_at
		FROM stock_movements
		WHERE $1 = '' OR sku = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, sku, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, limit)
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.SKU, &m.Delta, &m.Reason, &m.Actor, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" || customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, email, phone, address, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, customer.ID, customer.Name, customer.Email, customer.Phone, customer.Address, customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: customer exists", store.ErrConflict)
		}
		return nil, err
	}
	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.name, c.email, c.phone, c.address, c.created_at,
			COALESCE((SELECT SUM(i.amount_paid) FROM invoices i WHERE i.customer_id = c.id AND i.status <> 'cancelled'), 0)
		FROM customers c
		WHERE c.id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.CreatedAt, &c.TotalPaid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (s *Store) ListCustomers(ctx context.Context, search string, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.email, c.phone, c.address, c.created_at,
			COALESCE((SELECT SUM(i.amount_paid) FROM invoices i WHERE i.customer_id = c.id AND i.status <> 'cancelled'), 0)
		FROM customers c
		WHERE $1 = '' OR c.name ILIKE '%' || $1 || '%' OR c.phone ILIKE '%' || $1 || '%'
		ORDER BY c.name
		LIMIT $2
	`, strings.TrimSpace(search), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, limit)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.CreatedAt, &c.TotalPaid); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	err := s.db.QueryRowContext(ctx, `
		UPDATE customers
		SET name = $2, email = $3, phone = $4, address = $5
		WHERE id = $1
		RETURNING created_at
	`, customer.ID, customer.Name, customer.Email, customer.Phone, customer.Address).Scan(&customer.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	customer.CreatedAt = customer.CreatedAt.UTC()
	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var hasInvoices bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM invoices WHERE customer_id = $1)
	`, id).Scan(&hasInvoices)
	if err != nil {
		return err
	}
	if hasInvoices {
		return fmt.Errorf("%w: customer has invoices", store.ErrConflict)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return tx.Commit()
}

// CreateInvoice runs the whole sale in one serializable transaction: number
// allocation, stock deduction in line order and invoice persistence. Any
// failure rolls the lot back.
func (s *Store) CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	if len(invoice.Items) == 0 {
		return nil, fmt.Errorf("%w: no items", store.ErrInvalidInput)
	}
	if invoice.Discount.IsNegative() || invoice.TaxAmount.IsNegative() {
		return nil, fmt.Errorf("%w: negative discount or tax", store.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Registered customers are snapshotted into the header; walk-ins arrive
	// with the name already set.
	if invoice.CustomerID != "" {
		err = tx.QueryRowContext(ctx, `
			SELECT name, phone FROM customers WHERE id = $1
		`, invoice.CustomerID).Scan(&invoice.CustomerName, &invoice.CustomerPhone)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, invoice.CustomerID)
			}
			return nil, err
		}
	} else if invoice.CustomerName == "" {
		return nil, fmt.Errorf("%w: walk-in name required", store.ErrInvalidInput)
	}

	now := time.Now().UTC()
	subtotal := decimal.Zero
	lines := make([]domain.InvoiceItem, 0, len(invoice.Items))
	for _, item := range invoice.Items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity below 1", store.ErrInvalidInput)
		}
		var name string
		var price decimal.Decimal
		var quantity int
		var active bool
		err = tx.QueryRowContext(ctx, `
			SELECT name, price, quantity, active
			FROM products
			WHERE sku = $1
			FOR UPDATE
		`, item.ProductSKU).Scan(&name, &price, &quantity, &active)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductSKU)
			}
			return nil, err
		}
		if !active {
			return nil, fmt.Errorf("%w: product %s is inactive", store.ErrInvalidInput, item.ProductSKU)
		}
		if quantity < item.Quantity {
			return nil, fmt.Errorf("%w: %s has %d", store.ErrInsufficientStock, name, quantity)
		}
		if item.UnitPriceOverride != nil {
			if item.UnitPriceOverride.IsNegative() {
				return nil, fmt.Errorf("%w: negative unit price", store.ErrInvalidInput)
			}
			price = *item.UnitPriceOverride
		}
		lineTotal := price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		lines = append(lines, domain.InvoiceItem{
			ProductSKU:  item.ProductSKU,
			ProductName: name,
			Quantity:    item.Quantity,
			UnitPrice:   price,
			Total:       lineTotal,
		})
		subtotal = subtotal.Add(lineTotal)
	}
	if invoice.Discount.GreaterThan(subtotal) {
		return nil, fmt.Errorf("%w: discount exceeds subtotal", store.ErrInvalidInput)
	}

	// The counter seeds itself from existing numbers on first use, same
	// pattern as the SKU serials.
	var serial int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO invoice_counter (id, serial)
		VALUES (true, COALESCE((
			SELECT MAX(CAST(substring(number FROM 5) AS INTEGER)) FROM invoices
		), 0) + 1)
		ON CONFLICT (id) DO UPDATE SET serial = invoice_counter.serial + 1
		RETURNING serial
	`).Scan(&serial)
	if err != nil {
		return nil, err
	}
	number := fmt.Sprintf("INV-%06d", serial)

	for _, line := range lines {
		if _, err := tx.ExecContext(ctx, `
			UPDATE products SET quantity = quantity - $2, updated_at = $3 WHERE sku = $1
		`, line.ProductSKU, line.Quantity, now); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stock_movements (id, sku, delta, reason, actor, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, xid.New("mov"), line.ProductSKU, -line.Quantity, fmt.Sprintf("invoice %s", number), invoice.CreatedBy, now); err != nil {
			return nil, err
		}
	}

	total := subtotal.Sub(invoice.Discount).Add(invoice.TaxAmount)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO invoices (number, customer_id, customer_name, customer_phone, payment_method, status, subtotal, discount, tax_amount, total_amount, amount_paid, notes, created_by, created_at, updated_at)
		VALUES ($1,NULLIF($2,''),$3,$4,$5,$6,$7,$8,$9,$10,0,$11,$12,$13,$13)
	`, number, invoice.CustomerID, invoice.CustomerName, invoice.CustomerPhone, invoice.PaymentMethod,
		domain.InvoiceStatusPending, subtotal, invoice.Discount,
		invoice.TaxAmount, total, invoice.Notes, invoice.CreatedBy, now); err != nil {
		return nil, err
	}
	for _, line := range lines {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO invoice_items (invoice_number, product_sku, product_name, quantity, unit_price, total)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, number, line.ProductSKU, line.ProductName, line.Quantity, line.UnitPrice, line.Total); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	invoice.Number = number
	invoice.Status = domain.InvoiceStatusPending
	invoice.Subtotal = subtotal
	invoice.TotalAmount = total
	invoice.AmountPaid = decimal.Zero
	invoice.BalanceDue = total
	invoice.Items = lines
	invoice.CreatedAt = now
	invoice.UpdatedAt = now
	return &invoice, nil
}

const invoiceColumns = `
	i.number, COALESCE(i.customer_id, ''), i.customer_name, i.customer_phone, i.payment_method,
	i.status, i.subtotal, i.discount, i.tax_amount, i.total_amount, i.amount_paid,
	i.notes, i.created_by, i.created_at, i.updated_at`

func scanInvoice(row interface{ Scan(...any) error }) (domain.Invoice, error) {
	var inv domain.Invoice
	err := row.Scan(&inv.Number, &inv.CustomerID, &inv.CustomerName, &inv.CustomerPhone, &inv.PaymentMethod,
		&inv.Status, &inv.Subtotal, &inv.Discount, &inv.TaxAmount, &inv.TotalAmount, &inv.AmountPaid,
		&inv.Notes, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return domain.Invoice{}, err
	}
	inv.BalanceDue = inv.TotalAmount.Sub(inv.AmountPaid)
	inv.CreatedAt = inv.CreatedAt.UTC()
	inv.UpdatedAt = inv.UpdatedAt.UTC()
	return inv, nil
}

func (s *Store) loadInvoiceItems(ctx context.Context, numbers []string) (map[string][]domain.InvoiceItem, error) {
	items := make(map[string][]domain.InvoiceItem, len(numbers))
	if len(numbers) == 0 {
		return items, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT invoice_number, COALESCE(product_sku, ''), product_name, quantity, unit_price, total
		FROM invoice_items
		WHERE invoice_number = ANY($1)
		ORDER BY invoice_number, product_name
	`, numbers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var number string
		var item domain.InvoiceItem
		if err := rows.Scan(&number, &item.ProductSKU, &item.ProductName, &item.Quantity, &item.UnitPrice, &item.Total); err != nil {
			return nil, err
		}
		items[number] = append(items[number], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetInvoiceByNumber(ctx context.Context, number string) (*domain.Invoice, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices i
		WHERE i.number = $1
	`, number)
	invoice, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items, err := s.loadInvoiceItems(ctx, []string{number})
	if err != nil {
		return nil, err
	}
	invoice.Items = items[number]
	return &invoice, nil
}

func (s *Store) ListInvoices(ctx context.Context, filter domain.InvoiceFilter) ([]domain.Invoice, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices i
		WHERE ($1 = '' OR i.status = $1)
		  AND ($2 = '' OR i.number ILIKE '%' || $2 || '%' OR i.customer_name ILIKE '%' || $2 || '%')
		ORDER BY i.number DESC
		LIMIT $3
	`, filter.Status, strings.TrimSpace(filter.Search), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]domain.Invoice, 0, limit)
	numbers := make([]string, 0, limit)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
		numbers = append(numbers, inv.Number)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := s.loadInvoiceItems(ctx, numbers)
	if err != nil {
		return nil, err
	}
	for i := range invoices {
		invoices[i].Items = items[invoices[i].Number]
	}
	return invoices, nil
}

func (s *Store) RecordPayment(ctx context.Context, number string, amount decimal.Decimal, method string) (*domain.Invoice, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment must be positive", store.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	var total, paid decimal.Decimal
	err = tx.QueryRowContext(ctx, `
		SELECT status, total_amount, amount_paid
		FROM invoices
		WHERE number = $1
		FOR UPDATE
	`, number).Scan(&status, &total, &paid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status == domain.InvoiceStatusCancelled {
		return nil, store.ErrAlreadyCancelled
	}

	paid = paid.Add(amount)
	if paid.GreaterThanOrEqual(total) {
		status = domain.InvoiceStatusPaid
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE invoices
		SET amount_paid = $2, status = $3,
			payment_method = COALESCE(NULLIF($4, ''), payment_method),
			updated_at = now()
		WHERE number = $1
	`, number, paid, status, method); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.GetInvoiceByNumber(ctx, number)
}

func (s *Store) CancelInvoice(ctx context.Context, number string, actor string) (*domain.Invoice, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM invoices WHERE number = $1 FOR UPDATE
	`, number).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status == domain.InvoiceStatusCancelled {
		return nil, store.ErrAlreadyCancelled
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT COALESCE(product_sku, ''), quantity
		FROM invoice_items
		WHERE invoice_number = $1
	`, number)
	if err != nil {
		return nil, err
	}
	type restoreLine struct {
		sku string
		qty int
	}
	restores := make([]restoreLine, 0, 8)
	for rows.Next() {
		var line restoreLine
		if err := rows.Scan(&line.sku, &line.qty); err != nil {
			rows.Close()
			return nil, err
		}
		if line.sku != "" {
			restores = append(restores, line)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	now := time.Now().UTC()
	for _, line := range restores {
		// Products deleted since the sale simply keep their snapshot line.
		res, err := tx.ExecContext(ctx, `
			UPDATE products SET quantity = quantity + $2, updated_at = $3 WHERE sku = $1
		`, line.sku, line.qty, now)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stock_movements (id, sku, delta, reason, actor, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, xid.New("mov"), line.sku, line.qty, fmt.Sprintf("invoice %s cancelled", number), actor, now); err != nil {
			return nil, err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE invoices SET status = $2, updated_at = $3 WHERE number = $1
	`, number, domain.InvoiceStatusCancelled, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.GetInvoiceByNumber(ctx, number)
}

const userColumns = `
	username, password, role, active, created_at,
	can_view_inventory, can_add_product, can_edit_product, can_delete_product,
	can_manage_categories, can_adjust_stock, can_view_billing, can_create_invoice,
	can_cancel_invoice, can_manage_customers, can_manage_users`

func scanUser(row interface{ Scan(...any) error }) (domain.UserAccount, error) {
	var u domain.UserAccount
	c := &u.Capabilities
	err := row.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt,
		&c.ViewInventory, &c.AddProduct, &c.EditProduct, &c.DeleteProduct,
		&c.ManageCategories, &c.AdjustStock, &c.ViewBilling, &c.CreateInvoice,
		&c.CancelInvoice, &c.ManageCustomers, &c.ManageUsers)
	if err != nil {
		return domain.UserAccount{}, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	c := user.Capabilities
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt,
		c.ViewInventory, c.AddProduct, c.EditProduct, c.DeleteProduct,
		c.ManageCategories, c.AdjustStock, c.ViewBilling, c.CreateInvoice,
		c.CancelInvoice, c.ManageCustomers, c.ManageUsers)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: user %s exists", store.ErrConflict, user.Username)
		}
		return err
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE username = $1
	`, username)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	c := user.Capabilities
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password = $2, role = $3, active = $4,
			can_view_inventory = $5, can_add_product = $6, can_edit_product = $7,
			can_delete_product = $8, can_manage_categories = $9, can_adjust_stock = $10,
			can_view_billing = $11, can_create_invoice = $12, can_cancel_invoice = $13,
			can_manage_customers = $14, can_manage_users = $15
		WHERE username = $1
	`, user.Username, user.Password, user.Role, user.Active,
		c.ViewInventory, c.AddProduct, c.EditProduct, c.DeleteProduct,
		c.ManageCategories, c.AdjustStock, c.ViewBilling, c.CreateInvoice,
		c.CancelInvoice, c.ManageCustomers, c.ManageUsers)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetUserByUsername(ctx, user.Username)
}

func (s *Store) DeleteUser(ctx context.Context, username string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE username = $1`, username)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetDashboardSummary(ctx context.Context, now time.Time) (*domain.DashboardSummary, error) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	last30 := now.AddDate(0, 0, -30)
	weekStart := today.AddDate(0, 0, -6)

	summary := domain.DashboardSummary{
		TodaySales:     decimal.Zero,
		MonthSales:     decimal.Zero,
		PendingBalance: decimal.Zero,
		GeneratedAt:    now,
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(total_amount) FILTER (WHERE created_at >= $1 AND status <> $4), 0),
			COALESCE(SUM(total_amount) FILTER (WHERE created_at >= $2 AND status <> $4), 0),
			COALESCE(SUM(total_amount - amount_paid) FILTER (WHERE status = $3), 0),
			COUNT(*)
		FROM invoices
	`, today, monthStart, domain.InvoiceStatusPending, domain.InvoiceStatusCancelled).
		Scan(&summary.TodaySales, &summary.MonthSales, &summary.PendingBalance, &summary.InvoiceCount)
	if err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&summary.ProductCount); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers`).Scan(&summary.CustomerCount); err != nil {
		return nil, err
	}

	dayRows, err := s.db.QueryContext(ctx, `
		SELECT d.day::date, COALESCE(SUM(i.total_amount), 0)
		FROM generate_series($1::timestamptz, $2::timestamptz, interval '1 day') AS d(day)
		LEFT JOIN invoices i
			ON i.created_at >= d.day AND i.created_at < d.day + interval '1 day'
			AND i.status <> $3
		GROUP BY d.day
		ORDER BY d.day
	`, weekStart, today, domain.InvoiceStatusCancelled)
	if err != nil {
		return nil, err
	}
	defer dayRows.Close()
	for dayRows.Next() {
		var day time.Time
		var total decimal.Decimal
		if err := dayRows.Scan(&day, &total); err != nil {
			return nil, err
		}
		summary.DailySales = append(summary.DailySales, domain.DailySales{
			Date:  day.UTC().Format("2006-01-02"),
			Total: total,
		})
	}
	if err := dayRows.Err(); err != nil {
		return nil, err
	}

	topRows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(it.product_sku, ''), it.product_name, SUM(it.quantity), SUM(it.total)
		FROM invoice_items it
		JOIN invoices i ON i.number = it.invoice_number
		WHERE i.created_at >= $1 AND i.status <> $2
		GROUP BY it.product_sku, it.product_name
		ORDER BY SUM(it.quantity) DESC, it.product_name
		LIMIT 5
	`, last30, domain.InvoiceStatusCancelled)
	if err != nil {
		return nil, err
	}
	defer topRows.Close()
	for topRows.Next() {
		var ps domain.ProductSales
		if err := topRows.Scan(&ps.SKU, &ps.Name, &ps.Quantity, &ps.Revenue); err != nil {
			return nil, err
		}
		summary.TopProducts = append(summary.TopProducts, ps)
	}
	if err := topRows.Err(); err != nil {
		return nil, err
	}

	low, err := s.ListProducts(ctx, domain.ProductFilter{StockStatus: domain.StockStatusLow, Limit: 20})
	if err != nil {
		return nil, err
	}
	summary.LowStock = low
	out, err := s.ListProducts(ctx, domain.ProductFilter{StockStatus: domain.StockStatusOut, Limit: 20})
	if err != nil {
		return nil, err
	}
	summary.OutOfStock = out

	recent, err := s.ListInvoices(ctx, domain.InvoiceFilter{Limit: 5})
	if err != nil {
		return nil, err
	}
	summary.RecentInvoices = recent

	return &summary, nil
}

func (s *Store) GetSalesReport(ctx context.Context, from time.Time, to time.Time) (*domain.SalesReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices i
		WHERE i.created_at >= $1 AND i.created_at <= $2 AND i.status <> $3
		ORDER BY i.number
	`, from, to, domain.InvoiceStatusCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	report := domain.SalesReport{From: from, To: to, Total: decimal.Zero}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
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
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &report, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"grinkrawear/backend/internal/authz"
	"grinkrawear/backend/internal/cache"
	"grinkrawear/backend/internal/domain"
	"grinkrawear/backend/internal/sku"
	"grinkrawear/backend/internal/store"
	"grinkrawear/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// skuGenerateAttempts bounds how often SKU creation retries after a
// uniqueness conflict before the error is surfaced.
const skuGenerateAttempts = 3

const summaryCacheKey = "dashboard:summary"

type Service struct {
	repo       store.Repository
	summaries  cache.SummaryCache
	summaryTTL time.Duration
}

func New(repo store.Repository, summaries cache.SummaryCache, summaryTTL time.Duration) *Service {
	if summaries == nil {
		summaries = cache.NoopSummaryCache{}
	}
	if summaryTTL <= 0 {
		summaryTTL = time.Minute
	}
	return &Service{
		repo:       repo,
		summaries:  summaries,
		summaryTTL: summaryTTL,
	}
}

// requireCapability loads the acting account and checks the capability
// through authz. Every gated entry point goes through here so permission
// logic lives in one place.
func (s *Service) requireCapability(ctx context.Context, cap authz.Capability) (domain.UserAccount, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.UserAccount{}, fmt.Errorf("%w: authentication required", store.ErrForbidden)
	}
	account, err := s.repo.GetUserByUsername(ctx, actor.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.UserAccount{}, fmt.Errorf("%w: unknown account %s", store.ErrForbidden, actor.Username)
		}
		return domain.UserAccount{}, err
	}
	if !authz.Allowed(*account, cap) {
		return domain.UserAccount{}, fmt.Errorf("%w: %s lacks %s", store.ErrForbidden, actor.Username, cap)
	}
	return *account, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	if _, err := s.requireCapability(ctx, authz.ViewInventory); err != nil {
		return nil, err
	}
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (domain.Category, error) {
	account, err := s.requireCapability(ctx, authz.ManageCategories)
	if err != nil {
		return domain.Category{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Category{}, fmt.Errorf("%w: category name required", store.ErrInvalidInput)
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		code = sku.CategoryCode(name)
	}
	if len(code) != 2 {
		return domain.Category{}, fmt.Errorf("%w: category code must be 2 letters", store.ErrInvalidInput)
	}

	created, err := s.repo.CreateCategory(ctx, domain.Category{
		ID:   xid.New("cat"),
		Name: name,
		Code: code,
	})
	if err != nil {
		return domain.Category{}, err
	}
	s.logAction(account.Username, "category_create", created.ID, fmt.Sprintf("name=%s code=%s", created.Name, created.Code))
	return *created, nil
}

func (s *Service) UpdateCategory(ctx context.Context, id string, req domain.CategoryUpdateRequest) (domain.Category, error) {
	account, err := s.requireCapability(ctx, authz.ManageCategories)
	if err != nil {
		return domain.Category{}, err
	}

	existing, err := s.repo.GetCategoryByID(ctx, id)
	if err != nil {
		return domain.Category{}, err
	}
	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Category{}, fmt.Errorf("%w: category name required", store.ErrInvalidInput)
		}
		updated.Name = name
	}

	saved, err := s.repo.UpdateCategory(ctx, updated)
	if err != nil {
		return domain.Category{}, err
	}
	s.logAction(account.Username, "category_update", saved.ID, fmt.Sprintf("name=%s", saved.Name))
	return *saved, nil
}

func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	account, err := s.requireCapability(ctx, authz.ManageCategories)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.logAction(account.Username, "category_delete", id, "")
	return nil
}

func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	if _, err := s.requireCapability(ctx, authz.ViewInventory); err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx, filter)
}

func (s *Service) GetProduct(ctx context.Context, skuCode string) (domain.Product, error) {
	if _, err := s.requireCapability(ctx, authz.ViewInventory); err != nil {
		return domain.Product{}, err
	}
	skuCode = strings.ToUpper(strings.TrimSpace(skuCode))
	if skuCode == "" {
		return domain.Product{}, fmt.Errorf("%w: sku required", store.ErrInvalidInput)
	}
	product, err := s.repo.GetProductBySKU(ctx, skuCode)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

// CreateProduct generates the SKU from the attribute codes and a serial
// allocated per prefix. A uniqueness collision regenerates the identifier a
// bounded number of times before giving up.
func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	account, err := s.requireCapability(ctx, authz.AddProduct)
	if err != nil {
		return domain.Product{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Product{}, fmt.Errorf("%w: product name required", store.ErrInvalidInput)
	}
	if req.Price.IsNegative() || req.CostPrice.IsNegative() {
		return domain.Product{}, fmt.Errorf("%w: negative price", store.ErrInvalidInput)
	}
	if req.InitialStock < 0 || req.LowStockThreshold < 0 {
		return domain.Product{}, fmt.Errorf("%w: negative stock values", store.ErrInvalidInput)
	}

	season, err := normalizeCode(req.Season, sku.DefaultSeason, sku.ValidSeason, "season")
	if err != nil {
		return domain.Product{}, err
	}
	gender, err := normalizeCode(req.Gender, sku.DefaultGender, sku.ValidGender, "gender")
	if err != nil {
		return domain.Product{}, err
	}
	color, err := normalizeCode(req.Color, sku.DefaultColor, sku.ValidColor, "color")
	if err != nil {
		return domain.Product{}, err
	}
	size, err := normalizeCode(req.Size, sku.DefaultSize, sku.ValidSize, "size")
	if err != nil {
		return domain.Product{}, err
	}

	categoryCode := "XX"
	categoryName := ""
	if req.CategoryID != "" {
		category, err := s.repo.GetCategoryByID(ctx, req.CategoryID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Product{}, fmt.Errorf("%w: category %s", store.ErrInvalidInput, req.CategoryID)
			}
			return domain.Product{}, err
		}
		categoryCode = category.Code
		categoryName = category.Name
	}

	prefix := sku.Prefix(season, categoryCode, gender, color, size)
	product := domain.Product{
		Name:              name,
		CategoryID:        req.CategoryID,
		CategoryName:      categoryName,
		Description:       strings.TrimSpace(req.Description),
		Season:            season,
		Gender:            gender,
		Color:             color,
		Size:              size,
		Price:             req.Price,
		CostPrice:         req.CostPrice,
		Quantity:          req.InitialStock,
		LowStockThreshold: req.LowStockThreshold,
		Active:            true,
	}

	var created *domain.Product
	for attempt := 0; attempt < skuGenerateAttempts; attempt++ {
		serial, err := s.repo.NextSKUSerial(ctx, prefix)
		if err != nil {
			return domain.Product{}, err
		}
		product.SKU = sku.Format(prefix, serial)
		created, err = s.repo.CreateProduct(ctx, product)
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrConflict) {
			log.Printf("[service] WARN: sku collision on %s, retrying", product.SKU)
			continue
		}
		return domain.Product{}, err
	}
	if created == nil {
		return domain.Product{}, fmt.Errorf("%w: could not allocate a unique sku for prefix %s", store.ErrConflict, prefix)
	}

	s.invalidateSummary(ctx)
	s.logAction(account.Username, "product_create", created.SKU, fmt.Sprintf("name=%s stock=%d", created.Name, created.Quantity))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, skuCode string, req domain.ProductUpdateRequest) (domain.Product, error) {
	account, err := s.requireCapability(ctx, authz.EditProduct)
	if err != nil {
		return domain.Product{}, err
	}

	skuCode = strings.ToUpper(strings.TrimSpace(skuCode))
	existing, err := s.repo.GetProductBySKU(ctx, skuCode)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, fmt.Errorf("%w: product name required", store.ErrInvalidInput)
		}
		updated.Name = name
	}
	if req.CategoryID != nil {
		// The SKU keeps the category code it was born with.
		if *req.CategoryID != "" {
			category, err := s.repo.GetCategoryByID(ctx, *req.CategoryID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return domain.Product{}, fmt.Errorf("%w: category %s", store.ErrInvalidInput, *req.CategoryID)
				}
				return domain.Product{}, err
			}
			updated.CategoryName = category.Name
		} else {
			updated.CategoryName = ""
		}
		updated.CategoryID = *req.CategoryID
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return domain.Product{}, fmt.Errorf("%w: negative price", store.ErrInvalidInput)
		}
		updated.Price = *req.Price
	}
	if req.CostPrice != nil {
		if req.CostPrice.IsNegative() {
			return domain.Product{}, fmt.Errorf("%w: negative cost price", store.ErrInvalidInput)
		}
		updated.CostPrice = *req.CostPrice
	}
	if req.LowStockThreshold != nil {
		if *req.LowStockThreshold < 0 {
			return domain.Product{}, fmt.Errorf("%w: negative threshold", store.ErrInvalidInput)
		}
		updated.LowStockThreshold = *req.LowStockThreshold
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAction(account.Username, "product_update", saved.SKU, fmt.Sprintf("name=%s price=%s", saved.Name, saved.Price))
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, skuCode string) error {
	account, err := s.requireCapability(ctx, authz.DeleteProduct)
	if err != nil {
		return err
	}
	skuCode = strings.ToUpper(strings.TrimSpace(skuCode))
	if err := s.repo.DeleteProduct(ctx, skuCode); err != nil {
		return err
	}
	s.invalidateSummary(ctx)
	s.logAction(account.Username, "product_delete", skuCode, "")
	return nil
}

func (s *Service) AdjustStock(ctx context.Context, skuCode string, req domain.StockAdjustRequest) (domain.Product, error) {
	account, err := s.requireCapability(ctx, authz.AdjustStock)
	if err != nil {
		return domain.Product{}, err
	}

	skuCode = strings.ToUpper(strings.TrimSpace(skuCode))
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return domain.Product{}, fmt.Errorf("%w: adjustment reason required", store.ErrInvalidInput)
	}
	if req.Delta == 0 {
		return domain.Product{}, fmt.Errorf("%w: zero delta", store.ErrInvalidInput)
	}

	product, err := s.repo.AdjustStock(ctx, skuCode, req.Delta, reason, account.Username)
	if err != nil {
		return domain.Product{}, err
	}
	s.invalidateSummary(ctx)
	s.logAction(account.Username, "stock_adjust", skuCode, fmt.Sprintf("delta=%d reason=%s", req.Delta, reason))
	return *product, nil
}

func (s *Service) ListStockMovements(ctx context.Context, skuCode string, limit int) ([]domain.StockMovement, error) {
	if _, err := s.requireCapability(ctx, authz.ViewInventory); err != nil {
		return nil, err
	}
	return s.repo.ListStockMovements(ctx, strings.ToUpper(strings.TrimSpace(skuCode)), limit)
}

func (s *Service) ListCustomers(ctx context.Context, search string, limit int) ([]domain.Customer, error) {
	if _, err := s.requireCapability(ctx, authz.ManageCustomers); err != nil {
		return nil, err
	}
	return s.repo.ListCustomers(ctx, search, limit)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	account, err := s.requireCapability(ctx, authz.ManageCustomers)
	if err != nil {
		return domain.Customer{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Customer{}, fmt.Errorf("%w: customer name required", store.ErrInvalidInput)
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		ID:      xid.New("cust"),
		Name:    name,
		Email:   strings.TrimSpace(req.Email),
		Phone:   strings.TrimSpace(req.Phone),
		Address: strings.TrimSpace(req.Address),
	})
	if err != nil {
		return domain.Customer{}, err
	}
	s.invalidateSummary(ctx)
	s.logAction(account.Username, "customer_create", created.ID, fmt.Sprintf("name=%s", created.Name))
	return *created, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	account, err := s.requireCapability(ctx, authz.ManageCustomers)
	if err != nil {
		return domain.Customer{}, err
	}

	existing, err := s.repo.GetCustomerByID(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Customer{}, fmt.Errorf("%w: customer name required", store.ErrInvalidInput)
		}
		updated.Name = name
	}
	if req.Email != nil {
		updated.Email = strings.TrimSpace(*req.Email)
	}
	if req.Phone != nil {
		updated.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Address != nil {
		updated.Address = strings.TrimSpace(*req.Address)
	}

	saved, err := s.repo.UpdateCustomer(ctx, updated)
	if err != nil {
		return domain.Customer{}, err
	}
	s.logAction(account.Username, "customer_update", saved.ID, fmt.Sprintf("name=%s", saved.Name))
	return *saved, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	account, err := s.requireCapability(ctx, authz.ManageCustomers)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteCustomer(ctx, id); err != nil {
		return err
	}
	s.invalidateSummary(ctx)
	s.logAction(account.Username, "customer_delete", id, "")
	return nil
}

func (s *Service) ListInvoices(ctx context.Context, filter domain.InvoiceFilter) ([]domain.Invoice, error) {
	if _, err := s.requireCapability(ctx, authz.ViewBilling); err != nil {
		return nil, err
	}
	return s.repo.ListInvoices(ctx, filter)
}

func (s *Service) GetInvoice(ctx context.Context, number string) (domain.Invoice, error) {
	if _, err := s.requireCapability(ctx, authz.ViewBilling); err != nil {
		return domain.Invoice{}, err
	}
	invoice, err := s.repo.GetInvoiceByNumber(ctx, strings.ToUpper(strings.TrimSpace(number)))
	if err != nil {
		return domain.Invoice{}, err
	}
	return *invoice, nil
}

func (s *Service) CreateInvoice(ctx context.Context, req domain.InvoiceCreateRequest) (domain.Invoice, error) {
	account, err := s.requireCapability(ctx, authz.CreateInvoice)
	if err != nil {
		return domain.Invoice{}, err
	}

	// Walk-in sales carry a free-text name instead of a customer reference.
	walkInName := strings.TrimSpace(req.CustomerName)
	if req.CustomerID == "" && walkInName == "" {
		return domain.Invoice{}, fmt.Errorf("%w: customer or walk-in name required", store.ErrInvalidInput)
	}
	if req.CustomerID != "" && walkInName != "" {
		return domain.Invoice{}, fmt.Errorf("%w: customer reference and walk-in name are mutually exclusive", store.ErrInvalidInput)
	}
	method := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	switch method {
	case "":
		method = domain.PaymentMethodCash
	case domain.PaymentMethodCash, domain.PaymentMethodCard, domain.PaymentMethodTransfer:
	default:
		return domain.Invoice{}, fmt.Errorf("%w: unknown payment method %s", store.ErrInvalidInput, method)
	}
	if len(req.Items) == 0 {
		return domain.Invoice{}, fmt.Errorf("%w: at least one line item required", store.ErrInvalidInput)
	}

	items := make([]domain.InvoiceItem, 0, len(req.Items))
	for _, line := range req.Items {
		skuCode := strings.ToUpper(strings.TrimSpace(line.SKU))
		if skuCode == "" {
			return domain.Invoice{}, fmt.Errorf("%w: line item sku required", store.ErrInvalidInput)
		}
		if line.Quantity < 1 {
			return domain.Invoice{}, fmt.Errorf("%w: line quantity below 1", store.ErrInvalidInput)
		}
		if line.UnitPrice != nil && line.UnitPrice.IsNegative() {
			return domain.Invoice{}, fmt.Errorf("%w: negative unit price for %s", store.ErrInvalidInput, skuCode)
		}
		items = append(items, domain.InvoiceItem{ProductSKU: skuCode, Quantity: line.Quantity, UnitPriceOverride: line.UnitPrice})
	}

	created, err := s.repo.CreateInvoice(ctx, domain.Invoice{
		CustomerID:    req.CustomerID,
		CustomerName:  walkInName,
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		PaymentMethod: method,
		Discount:      req.Discount,
		TaxAmount:     req.TaxAmount,
		Notes:         strings.TrimSpace(req.Notes),
		CreatedBy:     account.Username,
		Items:         items,
	})
	if err != nil {
		return domain.Invoice{}, err
	}
	s.invalidateSummary(ctx)
	s.logAction(account.Username, "invoice_create", created.Number, fmt.Sprintf("customer=%s total=%s", created.CustomerID, created.TotalAmount))
	return *created, nil
}

func (s *Service) RecordPayment(ctx context.Context, number string, req domain.PaymentRequest) (domain.Invoice, error) {
	account, err := s.requireCapability(ctx, authz.CreateInvoice)
	if err != nil {
		return domain.Invoice{}, err
	}

	// An empty method keeps the invoice's current one.
	method := strings.ToLower(strings.TrimSpace(req.Method))
	switch method {
	case "", domain.PaymentMethodCash, domain.PaymentMethodCard, domain.PaymentMethodTransfer:
	default:
		return domain.Invoice{}, fmt.Errorf("%w: unknown payment method %s", store.ErrInvalidInput, method)
	}

	updated, err := s.repo.RecordPayment(ctx, strings.ToUpper(strings.TrimSpace(number)), req.Amount, method)
	if err != nil {
		return domain.Invoice{}, err
	}
	s.invalidateSummary(ctx)
	s.logAction(account.Username, "invoice_payment", updated.Number, fmt.Sprintf("amount=%s status=%s", req.Amount, updated.Status))
	return *updated, nil
}

func (s *Service) CancelInvoice(ctx context.Context, number string) (domain.Invoice, error) {
	account, err := s.requireCapability(ctx, authz.CancelInvoice)
	if err != nil {
		return domain.Invoice{}, err
	}

	cancelled, err := s.repo.CancelInvoice(ctx, strings.ToUpper(strings.TrimSpace(number)), account.Username)
	if err != nil {
		return domain.Invoice{}, err
	}
	s.invalidateSummary(ctx)
	s.logAction(account.Username, "invoice_cancel", cancelled.Number, "")
	return *cancelled, nil
}

// CurrentUser returns the authenticated account's own view, including the
// resolved capability set the frontend uses to hide controls.
func (s *Service) CurrentUser(ctx context.Context) (domain.UserView, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.UserView{}, fmt.Errorf("%w: no authenticated actor", store.ErrForbidden)
	}
	account, err := s.repo.GetUserByUsername(ctx, actor.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.UserView{}, fmt.Errorf("%w: unknown account %s", store.ErrForbidden, actor.Username)
		}
		return domain.UserView{}, err
	}
	return userView(*account), nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.UserView, error) {
	if _, err := s.requireCapability(ctx, authz.ManageUsers); err != nil {
		return nil, err
	}
	accounts, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]domain.UserView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, userView(a))
	}
	return views, nil
}

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.UserView, error) {
	account, err := s.requireCapability(ctx, authz.ManageUsers)
	if err != nil {
		return domain.UserView{}, err
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" || len(req.Password) < 8 {
		return domain.UserView{}, fmt.Errorf("%w: username and a password of 8+ chars required", store.ErrInvalidInput)
	}
	role := req.Role
	if role == "" {
		role = domain.RoleStaff
	}
	if role != domain.RoleAdmin && role != domain.RoleStaff {
		return domain.UserView{}, fmt.Errorf("%w: unknown role %s", store.ErrInvalidInput, role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.UserView{}, err
	}

	user := domain.UserAccount{
		Username:     username,
		Password:     string(hash),
		Role:         role,
		Capabilities: req.Capabilities,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return domain.UserView{}, err
	}
	s.logAction(account.Username, "user_create", username, fmt.Sprintf("role=%s", role))
	return userView(user), nil
}

func (s *Service) UpdateUser(ctx context.Context, username string, req domain.UserUpdateRequest) (domain.UserView, error) {
	account, err := s.requireCapability(ctx, authz.ManageUsers)
	if err != nil {
		return domain.UserView{}, err
	}

	username = strings.ToLower(strings.TrimSpace(username))
	existing, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return domain.UserView{}, err
	}

	updated := *existing
	if req.Password != nil {
		if len(*req.Password) < 8 {
			return domain.UserView{}, fmt.Errorf("%w: password of 8+ chars required", store.ErrInvalidInput)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return domain.UserView{}, err
		}
		updated.Password = string(hash)
	}
	if req.Role != nil {
		if *req.Role != domain.RoleAdmin && *req.Role != domain.RoleStaff {
			return domain.UserView{}, fmt.Errorf("%w: unknown role %s", store.ErrInvalidInput, *req.Role)
		}
		updated.Role = *req.Role
	}
	if req.Capabilities != nil {
		updated.Capabilities = *req.Capabilities
	}
	if req.Active != nil {
		if !*req.Active && username == account.Username {
			return domain.UserView{}, fmt.Errorf("%w: cannot deactivate yourself", store.ErrInvalidInput)
		}
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateUser(ctx, updated)
	if err != nil {
		return domain.UserView{}, err
	}
	s.logAction(account.Username, "user_update", username, fmt.Sprintf("role=%s active=%t", saved.Role, saved.Active))
	return userView(*saved), nil
}

func (s *Service) DeleteUser(ctx context.Context, username string) error {
	account, err := s.requireCapability(ctx, authz.ManageUsers)
	if err != nil {
		return err
	}
	username = strings.ToLower(strings.TrimSpace(username))
	if username == account.Username {
		return fmt.Errorf("%w: cannot delete yourself", store.ErrInvalidInput)
	}
	if err := s.repo.DeleteUser(ctx, username); err != nil {
		return err
	}
	s.logAction(account.Username, "user_delete", username, "")
	return nil
}

// DashboardSummary serves the aggregate view through the summary cache;
// mutations to stock, customers and invoices invalidate it.
func (s *Service) DashboardSummary(ctx context.Context) (domain.DashboardSummary, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return domain.DashboardSummary{}, fmt.Errorf("%w: authentication required", store.ErrForbidden)
	}

	if cached, hit, err := s.summaries.Get(ctx, summaryCacheKey); err == nil && hit {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: summary cache read failed: %v", err)
	}

	summary, err := s.repo.GetDashboardSummary(ctx, time.Now().UTC())
	if err != nil {
		return domain.DashboardSummary{}, err
	}
	if err := s.summaries.Set(ctx, summaryCacheKey, summary, s.summaryTTL); err != nil {
		log.Printf("[service] WARN: summary cache write failed: %v", err)
	}
	return *summary, nil
}

func (s *Service) SalesReport(ctx context.Context, from time.Time, to time.Time) (domain.SalesReport, error) {
	if _, err := s.requireCapability(ctx, authz.ViewBilling); err != nil {
		return domain.SalesReport{}, err
	}
	if to.Before(from) {
		return domain.SalesReport{}, fmt.Errorf("%w: report range reversed", store.ErrInvalidInput)
	}
	report, err := s.repo.GetSalesReport(ctx, from, to)
	if err != nil {
		return domain.SalesReport{}, err
	}
	return *report, nil
}

func (s *Service) invalidateSummary(ctx context.Context) {
	if err := s.summaries.Invalidate(ctx, summaryCacheKey); err != nil {
		log.Printf("[service] WARN: summary cache invalidation failed: %v", err)
	}
}

func (s *Service) logAction(actor string, action string, entityID string, detail string) {
	if detail != "" {
		log.Printf("[service] audit actor=%s action=%s entity=%s %s", actor, action, entityID, detail)
		return
	}
	log.Printf("[service] audit actor=%s action=%s entity=%s", actor, action, entityID)
}

func normalizeCode(value string, fallback string, valid func(string) bool, field string) (string, error) {
	value = strings.ToUpper(strings.TrimSpace(value))
	if value == "" {
		return fallback, nil
	}
	if !valid(value) {
		return "", fmt.Errorf("%w: unknown %s code %s", store.ErrInvalidInput, field, value)
	}
	return value, nil
}

func userView(account domain.UserAccount) domain.UserView {
	return domain.UserView{
		Username:     account.Username,
		Role:         account.Role,
		Capabilities: authz.Resolve(account),
		Active:       account.Active,
		CreatedAt:    account.CreatedAt,
	}
}

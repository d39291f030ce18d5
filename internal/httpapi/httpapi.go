package httpapi

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xuri/excelize/v2"

	"grinkrawear/backend/internal/domain"
	"grinkrawear/backend/internal/service"
	"grinkrawear/backend/internal/store"
)

const maxBodyBytes = 1 << 20

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grinkrawear",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Requests served, by method, route pattern and status code.",
	}, []string{"method", "route", "status"})
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "grinkrawear",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Request latency, by method and route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
	}
}

func (api *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(securityHeaders)
	r.Use(instrumentRequests)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{api.allowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: api.allowedOrigin != "*",
		MaxAge:           300,
	}))
	r.Use(httprate.LimitByIP(300, time.Minute))

	r.Get("/healthz", api.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			// Tighter limit on login keeps credential stuffing slow
			// without touching the rest of the API.
			r.Use(httprate.LimitByIP(10, time.Minute))
			r.Post("/auth/login", api.handleLogin)
		})

		r.Group(func(r chi.Router) {
			r.Use(api.requireAuth)

			r.Get("/auth/me", api.handleCurrentUser)

			r.Route("/categories", func(r chi.Router) {
				r.Get("/", api.handleListCategories)
				r.Post("/", api.handleCreateCategory)
				r.Put("/{id}", api.handleUpdateCategory)
				r.Delete("/{id}", api.handleDeleteCategory)
			})

			r.Route("/products", func(r chi.Router) {
				r.Get("/", api.handleListProducts)
				r.Post("/", api.handleCreateProduct)
				r.Get("/{sku}", api.handleGetProduct)
				r.Put("/{sku}", api.handleUpdateProduct)
				r.Delete("/{sku}", api.handleDeleteProduct)
				r.Post("/{sku}/stock", api.handleAdjustStock)
				r.Get("/{sku}/movements", api.handleListStockMovements)
			})

			r.Route("/customers", func(r chi.Router) {
				r.Get("/", api.handleListCustomers)
				r.Post("/", api.handleCreateCustomer)
				r.Put("/{id}", api.handleUpdateCustomer)
				r.Delete("/{id}", api.handleDeleteCustomer)
			})

			r.Route("/invoices", func(r chi.Router) {
				r.Get("/", api.handleListInvoices)
				r.Post("/", api.handleCreateInvoice)
				r.Get("/{number}", api.handleGetInvoice)
				r.Post("/{number}/payments", api.handleRecordPayment)
				r.Post("/{number}/cancel", api.handleCancelInvoice)
			})

			r.Route("/users", func(r chi.Router) {
				r.Get("/", api.handleListUsers)
				r.Post("/", api.handleCreateUser)
				r.Put("/{username}", api.handleUpdateUser)
				r.Delete("/{username}", api.handleDeleteUser)
			})

			r.Get("/stock-movements", api.handleStockLedger)
			r.Get("/dashboard/summary", api.handleDashboardSummary)
			r.Get("/reports/sales", api.handleSalesReport)
		})
	})

	return r
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func instrumentRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// requireAuth validates the bearer token and stashes the actor in the
// request context for the service layer's capability checks.
func (api *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get("Authorization"))
		scheme, token, found := strings.Cut(raw, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		actor, err := api.auth.ParseToken(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
	})
}

func (api *API) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (api *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := api.auth.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		log.Printf("[httpapi] ERROR: login failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (api *API) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	view, err := api.service.CurrentUser(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (api *API) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := api.service.ListCategories(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (api *API) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req domain.CategoryCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	category, err := api.service.CreateCategory(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func (api *API) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req domain.CategoryUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	category, err := api.service.UpdateCategory(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, category)
}

func (api *API) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := api.service.DeleteCategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.ProductFilter{
		Search:      strings.TrimSpace(q.Get("search")),
		CategoryID:  strings.TrimSpace(q.Get("category_id")),
		StockStatus: strings.TrimSpace(q.Get("stock_status")),
		Limit:       parsePositiveLimit(q.Get("limit"), 100, 500),
	}
	products, err := api.service.ListProducts(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (api *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	product, err := api.service.CreateProduct(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (api *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := api.service.GetProduct(r.Context(), chi.URLParam(r, "sku"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (api *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	product, err := api.service.UpdateProduct(r.Context(), chi.URLParam(r, "sku"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (api *API) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := api.service.DeleteProduct(r.Context(), chi.URLParam(r, "sku")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *API) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	var req domain.StockAdjustRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	product, err := api.service.AdjustStock(r.Context(), chi.URLParam(r, "sku"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.StockAdjustResponse{
		SKU:         product.SKU,
		Quantity:    product.Quantity,
		StockStatus: product.StockStatus(),
	})
}

func (api *API) handleListStockMovements(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200)
	movements, err := api.service.ListStockMovements(r.Context(), chi.URLParam(r, "sku"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, movements)
}

// handleStockLedger lists movements across all products; a sku query
// narrows it to one.
func (api *API) handleStockLedger(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	movements, err := api.service.ListStockMovements(r.Context(), strings.TrimSpace(q.Get("sku")), parsePositiveLimit(q.Get("limit"), 100, 500))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, movements)
}

func (api *API) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	customers, err := api.service.ListCustomers(r.Context(), strings.TrimSpace(q.Get("search")), parsePositiveLimit(q.Get("limit"), 100, 500))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, customers)
}

func (api *API) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	customer, err := api.service.CreateCustomer(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, customer)
}

func (api *API) handleUpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	customer, err := api.service.UpdateCustomer(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (api *API) handleDeleteCustomer(w http.ResponseWriter, r *http.Request) {
	if err := api.service.DeleteCustomer(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *API) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.InvoiceFilter{
		Search: strings.TrimSpace(q.Get("search")),
		Status: strings.TrimSpace(q.Get("status")),
		Limit:  parsePositiveLimit(q.Get("limit"), 50, 200),
	}
	invoices, err := api.service.ListInvoices(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoices)
}

func (api *API) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req domain.InvoiceCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	invoice, err := api.service.CreateInvoice(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, invoice)
}

func (api *API) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	invoice, err := api.service.GetInvoice(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

func (api *API) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	invoice, err := api.service.RecordPayment(r.Context(), chi.URLParam(r, "number"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

func (api *API) handleCancelInvoice(w http.ResponseWriter, r *http.Request) {
	invoice, err := api.service.CancelInvoice(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

func (api *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := api.service.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (api *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UserCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := api.service.CreateUser(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (api *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UserUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := api.service.UpdateUser(r.Context(), chi.URLParam(r, "username"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (api *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := api.service.DeleteUser(r.Context(), chi.URLParam(r, "username")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *API) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := api.service.DashboardSummary(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (api *API) handleSalesReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := time.Now().UTC()

	to := now
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "to must be a YYYY-MM-DD date")
			return
		}
		// The to date is inclusive.
		to = parsed.Add(24*time.Hour - time.Second)
	}
	from := to.AddDate(0, 0, -30)
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be a YYYY-MM-DD date")
			return
		}
		from = parsed
	}

	report, err := api.service.SalesReport(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	switch format := strings.ToLower(strings.TrimSpace(q.Get("format"))); format {
	case "", "json":
		writeJSON(w, http.StatusOK, report)
	case "csv":
		writeSalesReportCSV(w, report)
	case "xlsx":
		writeSalesReportXLSX(w, report)
	default:
		writeError(w, http.StatusBadRequest, "format must be json, csv or xlsx")
	}
}

func salesReportFilename(report domain.SalesReport, ext string) string {
	return fmt.Sprintf("sales-%s-%s.%s", report.From.Format("20060102"), report.To.Format("20060102"), ext)
}

var salesReportHeader = []string{"Number", "Customer", "Status", "Total", "Paid", "Balance Due", "Created At"}

func salesReportRow(row domain.SalesReportRow) []string {
	return []string{
		row.Number,
		row.CustomerName,
		row.Status,
		row.TotalAmount.StringFixed(2),
		row.AmountPaid.StringFixed(2),
		row.BalanceDue.StringFixed(2),
		row.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func writeSalesReportCSV(w http.ResponseWriter, report domain.SalesReport) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", salesReportFilename(report, "csv")))
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write(salesReportHeader)
	for _, row := range report.Rows {
		_ = cw.Write(salesReportRow(row))
	}
	_ = cw.Write([]string{"TOTAL", "", "", report.Total.StringFixed(2), "", "", ""})
	cw.Flush()
	if err := cw.Error(); err != nil {
		log.Printf("[httpapi] WARN: writing csv report: %v", err)
	}
}

func writeSalesReportXLSX(w http.ResponseWriter, report domain.SalesReport) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const sheet = "Sales"
	if _, err := f.NewSheet(sheet); err != nil {
		log.Printf("[httpapi] ERROR: creating report sheet: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	_ = f.DeleteSheet("Sheet1")

	setRow := func(rowIdx int, values []string) {
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, rowIdx)
			if err != nil {
				continue
			}
			_ = f.SetCellValue(sheet, cell, value)
		}
	}
	setRow(1, salesReportHeader)
	for i, row := range report.Rows {
		setRow(i+2, salesReportRow(row))
	}
	setRow(len(report.Rows)+2, []string{"TOTAL", "", "", report.Total.StringFixed(2)})

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", salesReportFilename(report, "xlsx")))
	w.WriteHeader(http.StatusOK)
	if err := f.Write(w); err != nil {
		log.Printf("[httpapi] WARN: writing xlsx report: %v", err)
	}
}

// decodeJSON reads a bounded JSON body into dst and writes the 400 itself
// when the payload is malformed, so handlers can bail with a bare return.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func parsePositiveLimit(raw string, def int, max int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// writeServiceError maps the store sentinels onto HTTP statuses. Anything
// unrecognized is logged and reported as a generic 500 so internal details
// never leak to clients.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrAlreadyCancelled),
		errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("[httpapi] ERROR: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[httpapi] WARN: encoding response: %v", err)
	}
}

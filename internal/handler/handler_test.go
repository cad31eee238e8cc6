package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/inflight-sales/internal/cart"
	"github.com/mmeshcher/inflight-sales/internal/checkout"
	"github.com/mmeshcher/inflight-sales/internal/handoff"
	"github.com/mmeshcher/inflight-sales/internal/middleware"
	"github.com/mmeshcher/inflight-sales/internal/model"
	"github.com/mmeshcher/inflight-sales/internal/repository"
	"github.com/mmeshcher/inflight-sales/internal/service"
	"github.com/mmeshcher/inflight-sales/internal/validation"
)

type stubService struct {
	products []model.Product
	listErr  error
	syncErr  error

	catalog service.CatalogView
	receipt service.ReceiptView
	token   string
	err     error

	lastSessionID string
	lastCurrency  model.Currency
	lastProductID model.ProductID
	lastInput     service.PaymentInput
}

func (s *stubService) Products(ctx context.Context) ([]model.Product, error) {
	return s.products, s.listErr
}

func (s *stubService) Sync(ctx context.Context) error { return s.syncErr }

func (s *stubService) OpenCatalog(ctx context.Context) (service.CatalogView, error) {
	return s.catalog, s.err
}

func (s *stubService) CatalogState(id string) (service.CatalogView, error) {
	s.lastSessionID = id
	return s.catalog, s.err
}

func (s *stubService) SelectFilter(id string, f model.Filter) (service.CatalogView, error) {
	return s.catalog, s.err
}

func (s *stubService) SelectCurrency(id string, c model.Currency) (service.CatalogView, error) {
	s.lastCurrency = c
	return s.catalog, s.err
}

func (s *stubService) SelectCustomerType(id string, t model.CustomerType) (service.CatalogView, error) {
	return s.catalog, s.err
}

func (s *stubService) AddItem(id string, productID model.ProductID) (service.CatalogView, error) {
	s.lastProductID = productID
	return s.catalog, s.err
}

func (s *stubService) RemoveItem(id string, productID model.ProductID) (service.CatalogView, error) {
	s.lastProductID = productID
	return s.catalog, s.err
}

func (s *stubService) Pay(ctx context.Context, id string) (string, error) {
	return s.token, s.err
}

func (s *stubService) CloseCatalog(id string) error { return s.err }

func (s *stubService) OpenReceipt(ctx context.Context, token string) (service.ReceiptView, error) {
	return s.receipt, s.err
}

func (s *stubService) ReceiptState(id string) (service.ReceiptView, error) {
	s.lastSessionID = id
	return s.receipt, s.err
}

func (s *stubService) SetSeat(id, seat string) (service.ReceiptView, error) {
	return s.receipt, s.err
}

func (s *stubService) RemoveReceiptLine(id string, productID model.ProductID) (service.ReceiptView, error) {
	return s.receipt, s.err
}

func (s *stubService) BeginPayment(id string, m checkout.Method) (service.ReceiptView, bool, error) {
	return s.receipt, s.err == nil, s.err
}

func (s *stubService) CancelPayment(id string) (service.ReceiptView, error) {
	return s.receipt, s.err
}

func (s *stubService) SubmitPayment(id string, in service.PaymentInput) (service.ReceiptView, error) {
	s.lastInput = in
	return s.receipt, s.err
}

func (s *stubService) FinishReceipt(id string) (service.ReceiptView, error) {
	return s.receipt, s.err
}

func (s *stubService) CloseReceipt(id string) error { return s.err }

func newTestHandler(t *testing.T, svc Service) (*Handler, *middleware.SessionMiddleware) {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	sessions := middleware.NewSessionMiddleware("test-secret")
	return NewHandler(svc, logger, sessions), sessions
}

func sessionCookie(sessions *middleware.SessionMiddleware, scope middleware.Scope, id string) *http.Cookie {
	w := httptest.NewRecorder()
	sessions.SetSessionCookie(w, scope, id)
	return w.Result().Cookies()[0]
}

func doRequest(t *testing.T, h http.Handler, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		r.AddCookie(c)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func testProducts() []model.Product {
	return []model.Product{
		{
			ID: 1, Name: "Coca Cola", Stock: 10,
			PriceUSD: decimal.RequireFromString("2.5"),
			PriceEUR: decimal.RequireFromString("2.3"),
			PriceGBP: decimal.RequireFromString("2"),
			ImageURL: "https://example.com/coke.jpg",
			Category: model.CategoryBeverages,
		},
		{
			ID: 2, Name: "Sandwich", Stock: 5,
			PriceUSD: decimal.RequireFromString("5"),
			PriceEUR: decimal.RequireFromString("4.5"),
			PriceGBP: decimal.RequireFromString("4"),
			Category: model.CategoryFood,
		},
	}
}

func TestGetProducts(t *testing.T) {
	h, _ := newTestHandler(t, &stubService{products: testProducts()})

	w := doRequest(t, h.SetupRouter(), http.MethodGet, "/api/products", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp []productResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp, 2)
	assert.Equal(t, productResponse{
		ID: 1, Name: "Coca Cola", Unit: 10,
		PriceUSD: "2.50", PriceEUR: "2.30", PriceGBP: "2.00",
		ImageURL: "https://example.com/coke.jpg", Category: "BEVERAGES",
	}, resp[0])
}

func TestSyncProducts(t *testing.T) {
	tests := []struct {
		name       string
		syncErr    error
		wantStatus int
	}{
		{name: "ok", wantStatus: http.StatusOK},
		{name: "not configured", syncErr: service.ErrSyncUnavailable, wantStatus: http.StatusServiceUnavailable},
		{name: "remote failure", syncErr: assert.AnError, wantStatus: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t, &stubService{products: testProducts(), syncErr: tt.syncErr})

			w := doRequest(t, h.SetupRouter(), http.MethodPost, "/api/products/sync", "")
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestOpenCatalog_SetsCookie(t *testing.T) {
	svc := &stubService{catalog: service.CatalogView{
		SessionID:    "cat-1",
		Currency:     model.CurrencyUSD,
		CustomerType: model.CustomerRetail,
		Filter:       model.FilterAll,
		Summary:      cart.Summary{Total: decimal.Zero},
	}}
	h, _ := newTestHandler(t, svc)
	router := h.SetupRouter()

	w := doRequest(t, router, http.MethodPost, "/api/catalog", "")
	require.Equal(t, http.StatusCreated, w.Code)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "pos_catalog", cookies[0].Name)

	var resp catalogResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "USD", resp.Currency)
	assert.Equal(t, "$0.00", resp.TotalFormatted)

	w = doRequest(t, router, http.MethodGet, "/api/catalog", "", cookies[0])
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cat-1", svc.lastSessionID)
}

func TestCatalogRoutes_RequireCookie(t *testing.T) {
	h, sessions := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	w := doRequest(t, router, http.MethodGet, "/api/catalog", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	receiptCookie := sessionCookie(sessions, middleware.ScopeReceipt, "r-1")
	receiptCookie.Name = middleware.ScopeCatalog.CookieName()
	w = doRequest(t, router, http.MethodGet, "/api/catalog", "", receiptCookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCatalogActions(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		err        error
		wantStatus int
	}{
		{name: "add item", method: http.MethodPost, path: "/api/catalog/items/1", wantStatus: http.StatusOK},
		{name: "add item out of stock", method: http.MethodPost, path: "/api/catalog/items/1", err: cart.ErrOutOfStock, wantStatus: http.StatusConflict},
		{name: "add unknown product", method: http.MethodPost, path: "/api/catalog/items/99", err: repository.ErrProductNotFound, wantStatus: http.StatusNotFound},
		{name: "bad product id", method: http.MethodPost, path: "/api/catalog/items/abc", wantStatus: http.StatusBadRequest},
		{name: "remove item", method: http.MethodDelete, path: "/api/catalog/items/1", wantStatus: http.StatusOK},
		{name: "currency", method: http.MethodPost, path: "/api/catalog/currency", body: `{"currency":"EUR"}`, wantStatus: http.StatusOK},
		{name: "unknown currency", method: http.MethodPost, path: "/api/catalog/currency", body: `{"currency":"JPY"}`, wantStatus: http.StatusBadRequest},
		{name: "malformed body", method: http.MethodPost, path: "/api/catalog/currency", body: `{`, wantStatus: http.StatusBadRequest},
		{name: "filter", method: http.MethodPost, path: "/api/catalog/filter", body: `{"filter":"FOOD"}`, wantStatus: http.StatusOK},
		{name: "customer type", method: http.MethodPost, path: "/api/catalog/customer-type", body: `{"customerType":"CREW"}`, wantStatus: http.StatusOK},
		{name: "unknown customer type", method: http.MethodPost, path: "/api/catalog/customer-type", body: `{"customerType":"VIP"}`, wantStatus: http.StatusBadRequest},
		{name: "session expired", method: http.MethodGet, path: "/api/catalog", err: service.ErrSessionNotFound, wantStatus: http.StatusNotFound},
		{name: "internal error", method: http.MethodGet, path: "/api/catalog", err: assert.AnError, wantStatus: http.StatusInternalServerError},
		{name: "close", method: http.MethodDelete, path: "/api/catalog", wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, sessions := newTestHandler(t, &stubService{err: tt.err})
			cookie := sessionCookie(sessions, middleware.ScopeCatalog, "cat-1")

			w := doRequest(t, h.SetupRouter(), tt.method, tt.path, tt.body, cookie)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestSelectCurrency_PassesParsedValue(t *testing.T) {
	svc := &stubService{}
	h, sessions := newTestHandler(t, svc)

	w := doRequest(t, h.SetupRouter(), http.MethodPost, "/api/catalog/currency", `{"currency":"GBP"}`,
		sessionCookie(sessions, middleware.ScopeCatalog, "cat-1"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.CurrencyGBP, svc.lastCurrency)
}

func TestPay(t *testing.T) {
	h, sessions := newTestHandler(t, &stubService{token: "tok-1"})

	w := doRequest(t, h.SetupRouter(), http.MethodPost, "/api/catalog/pay", "",
		sessionCookie(sessions, middleware.ScopeCatalog, "cat-1"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"handoff":"tok-1"}`, w.Body.String())
}

func TestPay_CartBeingPaid(t *testing.T) {
	h, sessions := newTestHandler(t, &stubService{err: checkout.ErrBusy})

	w := doRequest(t, h.SetupRouter(), http.MethodPost, "/api/catalog/pay", "",
		sessionCookie(sessions, middleware.ScopeCatalog, "cat-1"))

	require.Equal(t, http.StatusLocked, w.Code)
}

func TestOpenReceipt(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{name: "ok", body: `{"handoff":"tok-1"}`, wantStatus: http.StatusCreated},
		{name: "missing token", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "malformed", body: `nope`, wantStatus: http.StatusBadRequest},
		{name: "used token", body: `{"handoff":"tok-1"}`, err: handoff.ErrNotFound, wantStatus: http.StatusNotFound},
		{name: "corrupt handoff", body: `{"handoff":"tok-1"}`, err: cart.ErrInvalidHandoff, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{
				receipt: service.ReceiptView{SessionID: "rec-1", State: checkout.StateIdle, Currency: model.CurrencyEUR},
				err:     tt.err,
			}
			h, _ := newTestHandler(t, svc)

			w := doRequest(t, h.SetupRouter(), http.MethodPost, "/api/receipt", tt.body)
			require.Equal(t, tt.wantStatus, w.Code)

			if tt.wantStatus == http.StatusCreated {
				cookies := w.Result().Cookies()
				require.Len(t, cookies, 1)
				assert.Equal(t, "pos_receipt", cookies[0].Name)
			}
		})
	}
}

func TestSubmitPayment(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		err         error
		receipt     service.ReceiptView
		wantStatus  int
		wantMessage string
	}{
		{
			name:       "accepted",
			body:       `{"cashAmount":"20.00"}`,
			receipt:    service.ReceiptView{State: checkout.StateProcessing, Method: checkout.MethodCash},
			wantStatus: http.StatusAccepted,
		},
		{
			name: "validation failed",
			body: `{"cashAmount":"1"}`,
			err:  checkout.ErrValidation,
			receipt: service.ReceiptView{
				State: checkout.StateAwaitingInput, Method: checkout.MethodCash,
				ValidationFailed: true, Message: validation.MsgInsufficientCash,
			},
			wantStatus:  http.StatusUnprocessableEntity,
			wantMessage: validation.MsgInsufficientCash,
		},
		{
			name:       "processing",
			body:       `{"cashAmount":"20"}`,
			err:        checkout.ErrBusy,
			receipt:    service.ReceiptView{State: checkout.StateProcessing},
			wantStatus: http.StatusLocked,
		},
		{
			name:       "wrong state",
			body:       `{}`,
			err:        checkout.ErrInvalidState,
			receipt:    service.ReceiptView{State: checkout.StateIdle},
			wantStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, sessions := newTestHandler(t, &stubService{receipt: tt.receipt, err: tt.err})

			w := doRequest(t, h.SetupRouter(), http.MethodPost, "/api/receipt/submit", tt.body,
				sessionCookie(sessions, middleware.ScopeReceipt, "rec-1"))
			require.Equal(t, tt.wantStatus, w.Code)

			var resp receiptResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, string(tt.receipt.State), resp.State)
			assert.Equal(t, tt.wantMessage, resp.Message)
		})
	}
}

func TestSubmitPayment_CardBody(t *testing.T) {
	svc := &stubService{receipt: service.ReceiptView{State: checkout.StateProcessing, Method: checkout.MethodCard}}
	h, sessions := newTestHandler(t, svc)

	body := `{"card":{"number":"4111111111111111","expirationDate":"12/29","cvv":"123","holderName":"Jane Doe"}}`
	w := doRequest(t, h.SetupRouter(), http.MethodPost, "/api/receipt/submit", body,
		sessionCookie(sessions, middleware.ScopeReceipt, "rec-1"))

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, model.CardData{
		Number: "4111111111111111", ExpirationDate: "12/29", CVV: "123", HolderName: "Jane Doe",
	}, svc.lastInput.Card)
	assert.NotContains(t, w.Body.String(), `"cvv"`)
}

func TestCheckoutOverHTTP(t *testing.T) {
	repo := repository.NewMemoryRepository()
	require.NoError(t, repo.ReplaceProducts(context.Background(), testProducts()))

	svc := service.NewService(repo, nil, handoff.NewMemoryStore(), nil, zap.NewNop(), service.Options{PaymentDelay: 10 * time.Millisecond})
	h, _ := newTestHandler(t, svc)
	router := h.SetupRouter()

	w := doRequest(t, router, http.MethodPost, "/api/catalog", "")
	require.Equal(t, http.StatusCreated, w.Code)
	catalogCookie := w.Result().Cookies()[0]

	w = doRequest(t, router, http.MethodPost, "/api/catalog/customer-type", `{"customerType":"HAPPY_HOUR"}`, catalogCookie)
	require.Equal(t, http.StatusOK, w.Code)
	w = doRequest(t, router, http.MethodPost, "/api/catalog/items/2", "", catalogCookie)
	require.Equal(t, http.StatusOK, w.Code)

	var cat catalogResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&cat))
	assert.Equal(t, "4.00", cat.Total)
	assert.Equal(t, 1, cat.ItemCount)

	w = doRequest(t, router, http.MethodPost, "/api/catalog/pay", "", catalogCookie)
	require.Equal(t, http.StatusOK, w.Code)
	var pay payResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&pay))

	w = doRequest(t, router, http.MethodPost, "/api/receipt", `{"handoff":"`+pay.Handoff+`"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	receiptCookie := w.Result().Cookies()[0]

	w = doRequest(t, router, http.MethodPost, "/api/receipt/card", "", receiptCookie)
	require.Equal(t, http.StatusOK, w.Code)
	var rec receiptResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&rec))
	assert.Equal(t, "IDLE", rec.State, "payment must not start without a seat")

	w = doRequest(t, router, http.MethodPost, "/api/receipt/seat", `{"seat":"21C"}`, receiptCookie)
	require.Equal(t, http.StatusOK, w.Code)
	w = doRequest(t, router, http.MethodPost, "/api/receipt/card", "", receiptCookie)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, router, http.MethodPost, "/api/receipt/submit",
		`{"card":{"number":"4111111111111111","expirationDate":"12/29","cvv":"123","holderName":"Jane Doe"}}`, receiptCookie)
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		w := doRequest(t, router, http.MethodGet, "/api/receipt", "", receiptCookie)
		var r receiptResponse
		return w.Code == http.StatusOK && json.NewDecoder(w.Body).Decode(&r) == nil && r.State == "SUCCESS"
	}, 2*time.Second, 10*time.Millisecond)

	w = doRequest(t, router, http.MethodPost, "/api/receipt/finish", "", receiptCookie)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, router, http.MethodGet, "/api/catalog", "", catalogCookie)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&cat))
	assert.Equal(t, 0, cat.ItemCount)
	assert.Equal(t, 4, cat.Products[1].Unit)

	require.NoError(t, svc.Close())
}

// Package handler содержит HTTP-обработчики API сервиса бортовых продаж.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/inflight-sales/internal/cart"
	"github.com/mmeshcher/inflight-sales/internal/catalog"
	"github.com/mmeshcher/inflight-sales/internal/checkout"
	"github.com/mmeshcher/inflight-sales/internal/handoff"
	"github.com/mmeshcher/inflight-sales/internal/middleware"
	"github.com/mmeshcher/inflight-sales/internal/model"
	"github.com/mmeshcher/inflight-sales/internal/repository"
	"github.com/mmeshcher/inflight-sales/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Products(ctx context.Context) ([]model.Product, error)
	Sync(ctx context.Context) error

	OpenCatalog(ctx context.Context) (service.CatalogView, error)
	CatalogState(id string) (service.CatalogView, error)
	SelectFilter(id string, f model.Filter) (service.CatalogView, error)
	SelectCurrency(id string, c model.Currency) (service.CatalogView, error)
	SelectCustomerType(id string, t model.CustomerType) (service.CatalogView, error)
	AddItem(id string, productID model.ProductID) (service.CatalogView, error)
	RemoveItem(id string, productID model.ProductID) (service.CatalogView, error)
	Pay(ctx context.Context, id string) (string, error)
	CloseCatalog(id string) error

	OpenReceipt(ctx context.Context, token string) (service.ReceiptView, error)
	ReceiptState(id string) (service.ReceiptView, error)
	SetSeat(id, seat string) (service.ReceiptView, error)
	RemoveReceiptLine(id string, productID model.ProductID) (service.ReceiptView, error)
	BeginPayment(id string, m checkout.Method) (service.ReceiptView, bool, error)
	CancelPayment(id string) (service.ReceiptView, error)
	SubmitPayment(id string, in service.PaymentInput) (service.ReceiptView, error)
	FinishReceipt(id string) (service.ReceiptView, error)
	CloseReceipt(id string) error
}

// Handler реализует HTTP-обработчики API сервиса бортовых продаж.
type Handler struct {
	service  Service
	logger   *zap.Logger
	sessions *middleware.SessionMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, sessions *middleware.SessionMiddleware) *Handler {
	return &Handler{
		service:  s,
		logger:   logger,
		sessions: sessions,
	}
}

// GetProducts возвращает каталог из локального хранилища.
func (h *Handler) GetProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.Products(r.Context())
	if err != nil {
		h.logger.Error("list products error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]productResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, newProductResponse(p))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// SyncProducts принудительно синхронизирует каталог с удалённым источником.
func (h *Handler) SyncProducts(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Sync(r.Context()); err != nil {
		if errors.Is(err, service.ErrSyncUnavailable) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
		h.logger.Error("sync products error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}

	h.GetProducts(w, r)
}

// statusFor сопоставляет ошибку бизнес-логики с HTTP-статусом.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, handoff.ErrNotFound),
		errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, repository.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, cart.ErrOutOfStock),
		errors.Is(err, checkout.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, checkout.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, checkout.ErrBusy):
		return http.StatusLocked
	case errors.Is(err, cart.ErrInvalidHandoff):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respond отдаёт состояние страницы. Для ошибок, после которых у клиента
// остаётся осмысленное состояние, оно отдаётся вместе с кодом ошибки.
func (h *Handler) respond(w http.ResponseWriter, op string, view any, err error) {
	if err == nil {
		h.writeJSON(w, http.StatusOK, view)
		return
	}

	status := statusFor(err)
	switch status {
	case http.StatusConflict, http.StatusUnprocessableEntity, http.StatusLocked:
		if view == nil {
			http.Error(w, http.StatusText(status), status)
			return
		}
		h.writeJSON(w, status, view)
	case http.StatusInternalServerError:
		h.logger.Error(op+" error", zap.Error(err))
		http.Error(w, http.StatusText(status), status)
	default:
		http.Error(w, http.StatusText(status), status)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("write response error", zap.Error(err))
	}
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := middleware.GetSessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return id, ok
}

func productIDParam(w http.ResponseWriter, r *http.Request) (model.ProductID, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, false
	}
	return model.ProductID(id), true
}

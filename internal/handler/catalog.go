package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/inflight-sales/internal/middleware"
	"github.com/mmeshcher/inflight-sales/internal/model"
	"github.com/mmeshcher/inflight-sales/internal/service"
)

// OpenCatalog открывает новую сессию страницы каталога и выдаёт её cookie.
func (h *Handler) OpenCatalog(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.OpenCatalog(r.Context())
	if err != nil {
		h.logger.Error("open catalog error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.sessions.SetSessionCookie(w, middleware.ScopeCatalog, view.SessionID)
	h.writeJSON(w, http.StatusCreated, newCatalogResponse(view))
}

// GetCatalog возвращает состояние страницы каталога.
func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	view, err := h.service.CatalogState(id)
	h.respondCatalog(w, "get catalog", view, err)
}

// CloseCatalog закрывает сессию каталога.
func (h *Handler) CloseCatalog(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	if err := h.service.CloseCatalog(id); err != nil {
		h.respond(w, "close catalog", nil, err)
		return
	}
	h.sessions.ClearSessionCookie(w, middleware.ScopeCatalog)
	w.WriteHeader(http.StatusNoContent)
}

type filterRequest struct {
	Filter string `json:"filter"`
}

// SelectFilter меняет фильтр витрины.
func (h *Handler) SelectFilter(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req filterRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	f, err := model.ParseFilter(req.Filter)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	view, err := h.service.SelectFilter(id, f)
	h.respondCatalog(w, "select filter", view, err)
}

type currencyRequest struct {
	Currency string `json:"currency"`
}

// SelectCurrency меняет валюту страницы каталога.
func (h *Handler) SelectCurrency(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req currencyRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	c, err := model.ParseCurrency(req.Currency)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	view, err := h.service.SelectCurrency(id, c)
	h.respondCatalog(w, "select currency", view, err)
}

type customerTypeRequest struct {
	CustomerType string `json:"customerType"`
}

// SelectCustomerType меняет тип покупателя страницы каталога.
func (h *Handler) SelectCustomerType(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req customerTypeRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	t, err := model.ParseCustomerType(req.CustomerType)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	view, err := h.service.SelectCustomerType(id, t)
	h.respondCatalog(w, "select customer type", view, err)
}

// AddItem добавляет единицу товара в корзину.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	view, err := h.service.AddItem(id, productID)
	h.respondCatalog(w, "add item", view, err)
}

// RemoveItem убирает единицу товара из корзины.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	view, err := h.service.RemoveItem(id, productID)
	h.respondCatalog(w, "remove item", view, err)
}

type payResponse struct {
	Handoff string `json:"handoff"`
}

// Pay передаёт корзину на страницу чека и возвращает токен передачи.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	token, err := h.service.Pay(r.Context(), id)
	if err != nil {
		h.respond(w, "pay", nil, err)
		return
	}
	h.writeJSON(w, http.StatusOK, payResponse{Handoff: token})
}

func (h *Handler) respondCatalog(w http.ResponseWriter, op string, view service.CatalogView, err error) {
	h.respond(w, op, newCatalogResponse(view), err)
}

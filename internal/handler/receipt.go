package handler

import (
	"net/http"

	"github.com/mmeshcher/inflight-sales/internal/checkout"
	"github.com/mmeshcher/inflight-sales/internal/middleware"
	"github.com/mmeshcher/inflight-sales/internal/model"
	"github.com/mmeshcher/inflight-sales/internal/service"
)

type openReceiptRequest struct {
	Handoff string `json:"handoff"`
}

// OpenReceipt открывает страницу чека по токену передачи корзины и выдаёт cookie сессии.
func (h *Handler) OpenReceipt(w http.ResponseWriter, r *http.Request) {
	var req openReceiptRequest
	if err := decodeJSON(r, &req); err != nil || req.Handoff == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	view, err := h.service.OpenReceipt(r.Context(), req.Handoff)
	if err != nil {
		h.respond(w, "open receipt", nil, err)
		return
	}

	h.sessions.SetSessionCookie(w, middleware.ScopeReceipt, view.SessionID)
	h.writeJSON(w, http.StatusCreated, newReceiptResponse(view))
}

// GetReceipt возвращает состояние страницы чека.
func (h *Handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	view, err := h.service.ReceiptState(id)
	h.respondReceipt(w, "get receipt", view, err)
}

// CloseReceipt закрывает страницу чека без оплаты.
func (h *Handler) CloseReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	if err := h.service.CloseReceipt(id); err != nil {
		h.respond(w, "close receipt", nil, err)
		return
	}
	h.sessions.ClearSessionCookie(w, middleware.ScopeReceipt)
	w.WriteHeader(http.StatusNoContent)
}

type seatRequest struct {
	Seat string `json:"seat"`
}

// SetSeat задаёт номер места пассажира.
func (h *Handler) SetSeat(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req seatRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	view, err := h.service.SetSeat(id, req.Seat)
	h.respondReceipt(w, "set seat", view, err)
}

// RemoveReceiptLine убирает строку чека.
func (h *Handler) RemoveReceiptLine(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	view, err := h.service.RemoveReceiptLine(id, productID)
	h.respondReceipt(w, "remove receipt line", view, err)
}

// BeginCash открывает ввод суммы наличных.
func (h *Handler) BeginCash(w http.ResponseWriter, r *http.Request) {
	h.begin(w, r, checkout.MethodCash)
}

// BeginCard открывает ввод данных карты.
func (h *Handler) BeginCard(w http.ResponseWriter, r *http.Request) {
	h.begin(w, r, checkout.MethodCard)
}

// begin открывает ввод данных оплаты. Молча отклонённый переход возвращает
// неизменённое состояние со статусом 200.
func (h *Handler) begin(w http.ResponseWriter, r *http.Request, m checkout.Method) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	view, _, err := h.service.BeginPayment(id, m)
	h.respondReceipt(w, "begin payment", view, err)
}

// CancelPayment закрывает ввод данных оплаты.
func (h *Handler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	view, err := h.service.CancelPayment(id)
	h.respondReceipt(w, "cancel payment", view, err)
}

type submitRequest struct {
	CashAmount string          `json:"cashAmount"`
	Card       *model.CardData `json:"card"`
}

// SubmitPayment проверяет введённые данные и запускает обработку платежа.
func (h *Handler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	in := service.PaymentInput{CashAmount: req.CashAmount}
	if req.Card != nil {
		in.Card = *req.Card
	}

	view, err := h.service.SubmitPayment(id, in)
	if err == nil {
		h.writeJSON(w, http.StatusAccepted, newReceiptResponse(view))
		return
	}
	h.respondReceipt(w, "submit payment", view, err)
}

// FinishReceipt закрывает сообщение об успешной оплате и сессию чека.
func (h *Handler) FinishReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	view, err := h.service.FinishReceipt(id)
	if err == nil {
		h.sessions.ClearSessionCookie(w, middleware.ScopeReceipt)
	}
	h.respondReceipt(w, "finish receipt", view, err)
}

func (h *Handler) respondReceipt(w http.ResponseWriter, op string, view service.ReceiptView, err error) {
	h.respond(w, op, newReceiptResponse(view), err)
}

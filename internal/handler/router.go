package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/inflight-sales/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса бортовых продаж.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.GetProducts)
		r.Post("/products/sync", h.SyncProducts)

		r.Route("/catalog", func(r chi.Router) {
			r.Post("/", h.OpenCatalog)

			r.Group(func(r chi.Router) {
				r.Use(h.sessions.Require(custommiddleware.ScopeCatalog))

				r.Get("/", h.GetCatalog)
				r.Delete("/", h.CloseCatalog)
				r.Post("/filter", h.SelectFilter)
				r.Post("/currency", h.SelectCurrency)
				r.Post("/customer-type", h.SelectCustomerType)
				r.Post("/items/{id}", h.AddItem)
				r.Delete("/items/{id}", h.RemoveItem)
				r.Post("/pay", h.Pay)
			})
		})

		r.Route("/receipt", func(r chi.Router) {
			r.Post("/", h.OpenReceipt)

			r.Group(func(r chi.Router) {
				r.Use(h.sessions.Require(custommiddleware.ScopeReceipt))

				r.Get("/", h.GetReceipt)
				r.Delete("/", h.CloseReceipt)
				r.Post("/seat", h.SetSeat)
				r.Delete("/items/{id}", h.RemoveReceiptLine)
				r.Post("/cash", h.BeginCash)
				r.Post("/card", h.BeginCard)
				r.Post("/cancel", h.CancelPayment)
				r.Post("/submit", h.SubmitPayment)
				r.Post("/finish", h.FinishReceipt)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}

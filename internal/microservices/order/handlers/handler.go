package handlers

import (
	"festival-stall/internal/common/logger"
	"festival-stall/internal/microservices/order/service"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	OrderHandler *OrderHandler
}

func New(s service.OrderServiceInterface, claims KeyClaimer, lg *logger.Logger) *Handler {
	return &Handler{
		OrderHandler: NewOrderHandler(s, claims, lg),
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.OrderHandler.AddOrder)
		r.Get("/", h.OrderHandler.ListOrders)
		r.Get("/{id}", h.OrderHandler.GetOrder)
		r.Patch("/{id}/status", h.OrderHandler.UpdateStatus)
		r.Get("/{id}/timeline", h.OrderHandler.GetTimeline)
	})
}

package handlers

import (
	"net/http"
	"strconv"

	"festival-stall/internal/common/httpx"
	"festival-stall/internal/common/logger"
	"festival-stall/internal/domain"
	"festival-stall/internal/microservices/stock/service"

	"github.com/go-chi/chi/v5"
)

type StockHandler struct {
	service service.StockServiceInterface
	lg      *logger.Logger
}

func NewStockHandler(s service.StockServiceInterface, lg *logger.Logger) *StockHandler {
	return &StockHandler{service: s, lg: lg}
}

func (h *StockHandler) Routes(r chi.Router) {
	r.Patch("/stock/{product_id}", h.UpdateStock)
	r.Get("/stock/{product_id}/logs", h.GetLogs)
}

func (h *StockHandler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		httpx.WriteError(w, h.lg, "stock_update_failed", err)
		return
	}
	var req domain.StockUpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.lg, "stock_update_failed", err)
		return
	}

	ch, err := h.service.Apply(r.Context(), id, req)
	if err != nil {
		httpx.WriteError(w, h.lg, "stock_update_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, ch)
}

func (h *StockHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		httpx.WriteError(w, h.lg, "stock_logs_failed", err)
		return
	}
	logs, err := h.service.Logs(r.Context(), id, httpx.AtoiDefault(r.URL.Query().Get("limit"), 50))
	if err != nil {
		httpx.WriteError(w, h.lg, "stock_logs_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"product_id": id, "logs": logs})
}

func productID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "product_id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Invalid("product_id", "must be a positive integer")
	}
	return id, nil
}

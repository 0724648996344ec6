package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"festival-stall/internal/common/httpx"
	"festival-stall/internal/common/logger"
	"festival-stall/internal/domain"
	"festival-stall/internal/microservices/order/service"
	"festival-stall/internal/repository"

	"github.com/go-chi/chi/v5"
)

const idempotencyHeader = "Idempotency-Key"

// KeyClaimer records idempotency keys. Claim reports true the first time a key is seen.
type KeyClaimer interface {
	Claim(ctx context.Context, scope, key string) (bool, error)
	Release(ctx context.Context, scope, key string) error
}

type OrderHandler struct {
	service service.OrderServiceInterface
	claims  KeyClaimer
	lg      *logger.Logger
}

func NewOrderHandler(s service.OrderServiceInterface, claims KeyClaimer, lg *logger.Logger) *OrderHandler {
	return &OrderHandler{service: s, claims: claims, lg: lg}
}

func (oh *OrderHandler) AddOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, oh.lg, "order_create_failed", err)
		return
	}

	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if key != "" && oh.claims != nil {
		first, err := oh.claims.Claim(r.Context(), "order", key)
		if err != nil {
			// the key store is an optional guard; fall through without it
			oh.lg.Warn("idempotency_unavailable", map[string]any{"error": err.Error()})
			key = ""
		} else if !first {
			httpx.WriteError(w, oh.lg, "order_create_failed", domain.ErrDuplicateRequest)
			return
		}
	}

	order, err := oh.service.CreateOrder(r.Context(), req)
	if err != nil {
		if key != "" && oh.claims != nil {
			_ = oh.claims.Release(context.WithoutCancel(r.Context()), "order", key)
		}
		httpx.WriteError(w, oh.lg, "order_create_failed", err)
		return
	}
	w.Header().Set("Location", "/orders/"+strconv.FormatInt(order.ID, 10))
	httpx.WriteJSON(w, http.StatusCreated, order)
}

func (oh *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		httpx.WriteError(w, oh.lg, "order_status_failed", err)
		return
	}
	var req domain.UpdateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, oh.lg, "order_status_failed", err)
		return
	}

	order, err := oh.service.UpdateStatus(r.Context(), id, req)
	if err != nil {
		httpx.WriteError(w, oh.lg, "order_status_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, order)
}

func (oh *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		httpx.WriteError(w, oh.lg, "order_get_failed", err)
		return
	}
	order, err := oh.service.GetOrder(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, oh.lg, "order_get_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, order)
}

// ListOrders serves screens reconciling after a reconnect: ?status=received,cooking&limit=50
func (oh *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var f repository.OrderFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				f.Statuses = append(f.Statuses, domain.OrderStatus(s))
			}
		}
	}
	f.Limit = httpx.AtoiDefault(r.URL.Query().Get("limit"), 50)

	orders, err := oh.service.ListOrders(r.Context(), f)
	if err != nil {
		httpx.WriteError(w, oh.lg, "order_list_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (oh *OrderHandler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		httpx.WriteError(w, oh.lg, "order_timeline_failed", err)
		return
	}
	limit := httpx.AtoiDefault(r.URL.Query().Get("limit"), 50)
	offset := httpx.AtoiDefault(r.URL.Query().Get("offset"), 0)
	events, err := oh.service.Timeline(r.Context(), id, limit, offset)
	if err != nil {
		httpx.WriteError(w, oh.lg, "order_timeline_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"order_id": id, "events": events})
}

func orderID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Invalid("id", "must be a positive integer")
	}
	return id, nil
}

package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"festival-stall/internal/common/logger"
	"festival-stall/internal/domain"
)

// WriteJSON sends v with the given status.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteProblem sends a simplified RFC 7807 problem document.
func WriteProblem(w http.ResponseWriter, code int, typ, detail string, ext map[string]any) {
	resp := map[string]any{
		"type":   typ,
		"title":  http.StatusText(code),
		"status": code,
		"detail": detail,
	}
	for k, v := range ext {
		resp[k] = v
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

func StatusFor(err error) int {
	switch domain.Kind(err) {
	case "validation", "invalid_transition":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "product_unavailable", "insufficient_stock", "duplicate_request", "conflict":
		return http.StatusConflict
	case "unauthenticated":
		return http.StatusUnauthorized
	case "infrastructure":
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// WriteError maps a service error to a problem response. Infrastructure detail is logged, not returned.
func WriteError(w http.ResponseWriter, lg *logger.Logger, action string, err error) {
	code := StatusFor(err)
	kind := domain.Kind(err)
	if code >= http.StatusInternalServerError {
		lg.Error(action, err, map[string]any{"kind": kind})
		WriteProblem(w, code, kind, "the request could not be completed, retry later", nil)
		return
	}

	var ext map[string]any
	var pe *domain.ProductError
	if errors.As(err, &pe) {
		ext = map[string]any{"product_id": pe.ProductID}
		if pe.Name != "" {
			ext["product_name"] = pe.Name
		}
		if errors.Is(err, domain.ErrInsufficientStock) {
			ext["requested"] = pe.Requested
			ext["available"] = pe.Available
		}
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) && ve.Field != "" {
		ext = map[string]any{"field": ve.Field}
	}
	WriteProblem(w, code, kind, err.Error(), ext)
}

// AtoiDefault parses a query value, falling back to d.
func AtoiDefault(s string, d int) int {
	if s == "" {
		return d
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return n
}

// DecodeJSON reads a JSON body, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.Invalid("body", "invalid JSON body: %v", err)
	}
	return nil
}

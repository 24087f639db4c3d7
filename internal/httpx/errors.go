package httpx

import (
	"errors"
	"net/http"

	"github.com/gretalab/go-commerce-orders/internal/orders"
	"github.com/gretalab/go-commerce-orders/internal/stock"
)

type errorBody struct {
	Error     string `json:"error"`
	ProductID int64  `json:"product_id,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Available int    `json:"available,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// writeErr maps the domain error taxonomy onto HTTP. Insufficient stock
// and lifecycle violations are conflicts, persistence failures are
// explicitly retryable.
func writeErr(w http.ResponseWriter, err error) {
	var insufficient *stock.InsufficientStockError
	var transition *orders.InvalidTransitionError
	var persistence *orders.PersistenceError

	switch {
	case errors.Is(err, orders.ErrInvalidOrder):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, stock.ErrProductNotFound), errors.Is(err, orders.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, errorBody{
			Error:     err.Error(),
			ProductID: insufficient.ProductID,
			Requested: insufficient.Requested,
			Available: insufficient.Available,
		})
	case errors.As(err, &transition):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.As(err, &persistence):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error(), Retryable: true})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
	}
}

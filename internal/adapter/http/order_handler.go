package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/YelzhanWeb/orderflow/internal/adapter/logger"
	"github.com/YelzhanWeb/orderflow/internal/domain"
	"github.com/YelzhanWeb/orderflow/internal/interfaces"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

type OrderHandler struct {
	orders      interfaces.OrderService
	transitions interfaces.TransitionService
	logger      logger.Logger
}

func NewOrderHandler(orders interfaces.OrderService, transitions interfaces.TransitionService, logger logger.Logger) *OrderHandler {
	return &OrderHandler{
		orders:      orders,
		transitions: transitions,
		logger:      logger,
	}
}

func (h *OrderHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/orders", h.CreateOrder).Methods(http.MethodPost)
	r.HandleFunc("/orders", h.ListOrders).Methods(http.MethodGet)
	r.HandleFunc("/orders/{id}", h.GetOrder).Methods(http.MethodGet)
	r.HandleFunc("/orders/{id}", h.DeleteOrder).Methods(http.MethodDelete)
	r.HandleFunc("/orders/{id}/status", h.UpdateStatus).Methods(http.MethodPatch)
	r.HandleFunc("/orders/{id}/allowed", h.AllowedNext).Methods(http.MethodGet)
}

type CreateOrderRequest struct {
	TableID        string             `json:"tableId,omitempty"`
	ServicePointID string             `json:"servicePointId,omitempty"`
	LocationID     string             `json:"locationId,omitempty"`
	Items          []OrderItemRequest `json:"items"`
	Total          decimal.Decimal    `json:"total"`
	AssignedStaff  *string            `json:"assignedStaff,omitempty"`
}

type OrderItemRequest struct {
	ProductRef string  `json:"productRef"`
	Quantity   int     `json:"quantity"`
	Notes      *string `json:"notes,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type AllowedNextResponse struct {
	OrderID string          `json:"orderId"`
	Allowed []domain.Status `json:"allowed"`
}

func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, "Invalid request body")
		return
	}

	if validationErrors := validateCreateOrderRequest(req); len(validationErrors) > 0 {
		h.logger.Debug("validation_failed", "Order validation failed", RequestID(r.Context()), map[string]interface{}{
			"errors": validationErrors,
		})
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Errors: validationErrors})
		return
	}

	items := make([]domain.OrderItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = domain.OrderItem{
			ProductRef: strings.TrimSpace(item.ProductRef),
			Quantity:   item.Quantity,
			Notes:      item.Notes,
		}
	}
	cmd := interfaces.CreateOrderCommand{
		Location: domain.LocationRef{
			TableID:        strings.TrimSpace(req.TableID),
			ServicePointID: strings.TrimSpace(req.ServicePointID),
			LocationID:     strings.TrimSpace(req.LocationID),
		},
		Items:         items,
		Total:         req.Total,
		AssignedStaff: req.AssignedStaff,
	}

	order, err := h.orders.CreateOrder(r.Context(), cmd, Identity(r.Context()))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, order)
}

func validateCreateOrderRequest(req CreateOrderRequest) []ValidationError {
	var errors []ValidationError

	set := 0
	for _, ref := range []string{req.TableID, req.ServicePointID, req.LocationID} {
		if strings.TrimSpace(ref) != "" {
			set++
		}
	}
	if set != 1 {
		errors = append(errors, ValidationError{
			Field:   "location",
			Message: "exactly one of tableId, servicePointId, locationId is required",
		})
	}

	if req.Total.IsNegative() {
		errors = append(errors, ValidationError{
			Field:   "total",
			Message: "total must not be negative",
		})
	}

	if len(req.Items) < 1 {
		errors = append(errors, ValidationError{
			Field:   "items",
			Message: "order must contain at least 1 item",
		})
	}

	for i, item := range req.Items {
		itemPrefix := fmt.Sprintf("items[%d]", i)

		if strings.TrimSpace(item.ProductRef) == "" {
			errors = append(errors, ValidationError{
				Field:   itemPrefix + ".productRef",
				Message: "product reference is required",
			})
		}
		if item.Quantity < 1 {
			errors = append(errors, ValidationError{
				Field:   itemPrefix + ".quantity",
				Message: "item quantity must be at least 1",
			})
		}
	}

	return errors
}

func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var filter interfaces.OrderFilter
	if raw := query.Get("status"); raw != "" {
		status, err := domain.ParseStatus(raw)
		if err != nil {
			respondBadRequest(w, err.Error())
			return
		}
		filter.Status = status
	}
	filter.AssignedStaff = strings.TrimSpace(query.Get("assignedStaff"))

	snapshot, err := h.orders.ListOrders(r.Context(), filter)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, snapshot)
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.DeleteOrder(r.Context(), mux.Vars(r)["id"], Identity(r.Context())); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		respondBadRequest(w, "status is required")
		return
	}

	actor := Identity(r.Context())
	requested := domain.Status(strings.ToUpper(strings.TrimSpace(req.Status)))

	order, err := h.transitions.ApplyTransition(r.Context(), mux.Vars(r)["id"], requested, actor)
	if err != nil {
		h.logger.Debug("transition_rejected", "Status change rejected", RequestID(r.Context()), map[string]interface{}{
			"order_id": mux.Vars(r)["id"],
			"target":   requested,
			"staff_id": actor.ID,
			"code":     domain.CodeOf(err),
		})
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) AllowedNext(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	allowed, err := h.transitions.AllowedNext(r.Context(), id, Identity(r.Context()))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, AllowedNextResponse{OrderID: id, Allowed: allowed})
}

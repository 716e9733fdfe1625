package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/shopfield/api/internal/domain"
	"github.com/shopfield/api/internal/platform/auth"
	"github.com/shopfield/api/internal/platform/httpx"
	"github.com/shopfield/api/internal/platform/pagination"
	"github.com/shopfield/api/internal/services"
)

// OrderHandlers exposes the order workflow over HTTP.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	middlewares []func(http.Handler) http.Handler
}

// NewOrderHandlers constructs the /orders handlers. Bearer tokens are optional on these routes; the extra
// middlewares run after authentication so they can see the caller identity.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, mw ...func(http.Handler) http.Handler) *OrderHandlers {
	return &OrderHandlers{authn: authn, orders: orders, middlewares: mw}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.Optional())
	}
	for _, mw := range h.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.Get("/", h.listOrders)
	r.Post("/", h.createOrder)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/items", h.addItem)
	r.Put("/{orderID}/items/{itemID}", h.updateItem)
	r.Delete("/{orderID}/items/{itemID}", h.removeItem)
	r.Put("/{orderID}/status", h.setStatus)
	r.Post("/{orderID}/pay", h.pay)
}

type createOrderRequest struct {
	CustomerID string `json:"customerId" validate:"required,max=64"`
}

type addOrderItemRequest struct {
	ProductID string `json:"productId" validate:"required,max=64"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

type updateOrderItemRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0"`
}

type setOrderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=OPEN AWAITING_PAYMENT PAID CANCELED"`
}

type orderCustomerPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type orderProductPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type orderItemPayload struct {
	ID        string              `json:"id"`
	Product   orderProductPayload `json:"product"`
	Quantity  int                 `json:"quantity"`
	UnitPrice domain.Money        `json:"unitPrice"`
	LineTotal domain.Money        `json:"lineTotal"`
}

type orderPayload struct {
	ID         string               `json:"id"`
	Code       string               `json:"code"`
	Status     string               `json:"status"`
	Customer   orderCustomerPayload `json:"customer"`
	Items      []orderItemPayload   `json:"items"`
	Subtotal   domain.Money         `json:"subtotal"`
	TotalItems int                  `json:"totalItems"`
	Total      domain.Money         `json:"total"`
	PaidAt     *string              `json:"paidAt"`
	CreatedAt  string               `json:"createdAt"`
	UpdatedAt  string               `json:"updatedAt"`
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := r.URL.Query()
	filter := services.OrderListFilter{
		Search:     strings.TrimSpace(query.Get("search")),
		CustomerID: strings.TrimSpace(query.Get("customerId")),
		Pagination: page,
	}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status := domain.OrderStatus(strings.ToUpper(raw))
		if !status.Valid() {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("unknown status %q", raw), http.StatusBadRequest))
			return
		}
		filter.Status = &status
	}

	result, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	items := make([]orderPayload, 0, len(result.Items))
	for _, order := range result.Items {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, pagePayload(items, result.Total, result.Page, result.Limit))
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	order, err := h.orders.CreateOrder(r.Context(), services.CreateOrderCommand{CustomerID: strings.TrimSpace(req.CustomerID)})
	if err != nil {
		writeOrderError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildOrderPayload(order))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeOrderError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	var req addOrderItemRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	order, err := h.orders.AddItem(r.Context(), services.AddOrderItemCommand{
		OrderID:   chi.URLParam(r, "orderID"),
		ProductID: strings.TrimSpace(req.ProductID),
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeOrderError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	var req updateOrderItemRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	order, err := h.orders.UpdateItem(r.Context(), services.UpdateOrderItemCommand{
		OrderID:  chi.URLParam(r, "orderID"),
		ItemID:   chi.URLParam(r, "itemID"),
		Quantity: req.Quantity,
	})
	if err != nil {
		writeOrderError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.RemoveItem(r.Context(), services.RemoveOrderItemCommand{
		OrderID: chi.URLParam(r, "orderID"),
		ItemID:  chi.URLParam(r, "itemID"),
	})
	if err != nil {
		writeOrderError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) setStatus(w http.ResponseWriter, r *http.Request) {
	var req setOrderStatusRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	order, err := h.orders.SetStatus(r.Context(), services.SetOrderStatusCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Status:  domain.OrderStatus(req.Status),
	})
	if err != nil {
		writeOrderError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) pay(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Pay(r.Context(), services.PayOrderCommand{OrderID: chi.URLParam(r, "orderID")})
	if err != nil {
		writeOrderError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:     order.ID,
		Code:   order.Code,
		Status: string(order.Status),
		Customer: orderCustomerPayload{
			ID:    order.Customer.ID,
			Name:  order.Customer.Name,
			Email: order.Customer.Email,
		},
		Items:      make([]orderItemPayload, 0, len(order.Items)),
		Subtotal:   order.Subtotal,
		TotalItems: order.TotalItems,
		Total:      order.Total,
		CreatedAt:  formatTime(order.CreatedAt),
		UpdatedAt:  formatTime(order.UpdatedAt),
	}
	if payload.Customer.ID == "" {
		payload.Customer.ID = order.CustomerID
	}
	if order.PaidAt != nil {
		paidAt := formatTime(*order.PaidAt)
		payload.PaidAt = &paidAt
	}
	for _, item := range order.Items {
		product := orderProductPayload{ID: item.Product.ID, Name: item.Product.Name}
		if product.ID == "" {
			product.ID = item.ProductID
		}
		payload.Items = append(payload.Items, orderItemPayload{
			ID:        item.ID,
			Product:   product,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal,
		})
	}
	return payload
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	default:
		writeInfrastructureError(ctx, w, err, "order_error", "failed to process order request")
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shopfield/api/internal/platform/auth"
	"github.com/shopfield/api/internal/platform/httpx"
	"github.com/shopfield/api/internal/platform/pagination"
	"github.com/shopfield/api/internal/services"
)

// CustomerHandlers exposes customer CRUD to staff and admins.
type CustomerHandlers struct {
	authn     *auth.Authenticator
	customers services.CustomerService
}

// NewCustomerHandlers constructs customer handlers.
func NewCustomerHandlers(authn *auth.Authenticator, customers services.CustomerService) *CustomerHandlers {
	return &CustomerHandlers{authn: authn, customers: customers}
}

// Routes registers the /customers endpoints.
func (h *CustomerHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireRoles(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Get("/", h.listCustomers)
	r.Post("/", h.createCustomer)
	r.Get("/{customerID}", h.getCustomer)
	r.Put("/{customerID}", h.updateCustomer)
	r.Delete("/{customerID}", h.deleteCustomer)
}

type createCustomerRequest struct {
	Name  string `json:"name" validate:"required,max=150"`
	Email string `json:"email" validate:"required,email,max=150"`
	Phone string `json:"phone" validate:"max=20"`
}

type updateCustomerRequest struct {
	Name  *string `json:"name" validate:"omitempty,max=150"`
	Email *string `json:"email" validate:"omitempty,email,max=150"`
	Phone *string `json:"phone" validate:"omitempty,max=20"`
}

type customerPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

func (h *CustomerHandlers) listCustomers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	result, err := h.customers.ListCustomers(ctx, services.CustomerListFilter{
		Search:     strings.TrimSpace(r.URL.Query().Get("search")),
		Pagination: page,
	})
	if err != nil {
		writeCustomerError(ctx, w, err)
		return
	}
	items := make([]customerPayload, 0, len(result.Items))
	for _, customer := range result.Items {
		items = append(items, buildCustomerPayload(customer))
	}
	writeJSONResponse(w, http.StatusOK, pagePayload(items, result.Total, result.Page, result.Limit))
}

func (h *CustomerHandlers) getCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := h.customers.GetCustomer(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		writeCustomerError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCustomerPayload(customer))
}

func (h *CustomerHandlers) createCustomer(w http.ResponseWriter, r *http.Request) {
	var req createCustomerRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	customer, err := h.customers.CreateCustomer(r.Context(), services.CreateCustomerCommand{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
	})
	if err != nil {
		writeCustomerError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildCustomerPayload(customer))
}

func (h *CustomerHandlers) updateCustomer(w http.ResponseWriter, r *http.Request) {
	var req updateCustomerRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	customer, err := h.customers.UpdateCustomer(r.Context(), services.UpdateCustomerCommand{
		CustomerID: chi.URLParam(r, "customerID"),
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
	})
	if err != nil {
		writeCustomerError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCustomerPayload(customer))
}

func (h *CustomerHandlers) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	if err := h.customers.DeleteCustomer(r.Context(), chi.URLParam(r, "customerID")); err != nil {
		writeCustomerError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func buildCustomerPayload(customer services.Customer) customerPayload {
	return customerPayload{
		ID:        customer.ID,
		Name:      customer.Name,
		Email:     customer.Email,
		Phone:     customer.Phone,
		CreatedAt: formatTime(customer.CreatedAt),
		UpdatedAt: formatTime(customer.UpdatedAt),
	}
}

func writeCustomerError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCustomerInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCustomerNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("customer_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrCustomerConflict):
		httpx.WriteError(ctx, w, httpx.NewError("customer_conflict", err.Error(), http.StatusConflict))
	default:
		writeInfrastructureError(ctx, w, err, "customer_error", "failed to process customer request")
	}
}

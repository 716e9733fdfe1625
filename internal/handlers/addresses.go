package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shopfield/api/internal/platform/auth"
	"github.com/shopfield/api/internal/platform/httpx"
	"github.com/shopfield/api/internal/services"
)

// AddressHandlers exposes customer addresses to staff and admins.
type AddressHandlers struct {
	authn     *auth.Authenticator
	addresses services.AddressService
}

// NewAddressHandlers constructs address handlers.
func NewAddressHandlers(authn *auth.Authenticator, addresses services.AddressService) *AddressHandlers {
	return &AddressHandlers{authn: authn, addresses: addresses}
}

// Routes registers /customers/{customerID}/addresses and /addresses/{addressID} on an API group.
func (h *AddressHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireRoles(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Get("/customers/{customerID}/addresses", h.listAddresses)
	r.Post("/customers/{customerID}/addresses", h.createAddress)
	r.Get("/addresses/{addressID}", h.getAddress)
	r.Put("/addresses/{addressID}", h.updateAddress)
	r.Delete("/addresses/{addressID}", h.deleteAddress)
}

type createAddressRequest struct {
	Street     string `json:"street" validate:"required,max=120"`
	Number     string `json:"number" validate:"required,max=20"`
	Complement string `json:"complement" validate:"max=120"`
	District   string `json:"district" validate:"required,max=120"`
	City       string `json:"city" validate:"required,max=120"`
	State      string `json:"state" validate:"required,len=2,alpha"`
	ZipCode    string `json:"zipCode" validate:"required,max=12"`
	IsDefault  bool   `json:"isDefault"`
}

type updateAddressRequest struct {
	Street     *string `json:"street" validate:"omitempty,max=120"`
	Number     *string `json:"number" validate:"omitempty,max=20"`
	Complement *string `json:"complement" validate:"omitempty,max=120"`
	District   *string `json:"district" validate:"omitempty,max=120"`
	City       *string `json:"city" validate:"omitempty,max=120"`
	State      *string `json:"state" validate:"omitempty,len=2,alpha"`
	ZipCode    *string `json:"zipCode" validate:"omitempty,max=12"`
	IsDefault  *bool   `json:"isDefault"`
}

type addressPayload struct {
	ID         string `json:"id"`
	CustomerID string `json:"customerId"`
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district"`
	City       string `json:"city"`
	State      string `json:"state"`
	ZipCode    string `json:"zipCode"`
	IsDefault  bool   `json:"isDefault"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
}

func (h *AddressHandlers) listAddresses(w http.ResponseWriter, r *http.Request) {
	addresses, err := h.addresses.ListAddresses(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		writeAddressError(r.Context(), w, err)
		return
	}
	items := make([]addressPayload, 0, len(addresses))
	for _, address := range addresses {
		items = append(items, buildAddressPayload(address))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *AddressHandlers) getAddress(w http.ResponseWriter, r *http.Request) {
	address, err := h.addresses.GetAddress(r.Context(), chi.URLParam(r, "addressID"))
	if err != nil {
		writeAddressError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildAddressPayload(address))
}

func (h *AddressHandlers) createAddress(w http.ResponseWriter, r *http.Request) {
	var req createAddressRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	address, err := h.addresses.CreateAddress(r.Context(), services.CreateAddressCommand{
		CustomerID: chi.URLParam(r, "customerID"),
		Street:     req.Street,
		Number:     req.Number,
		Complement: req.Complement,
		District:   req.District,
		City:       req.City,
		State:      req.State,
		ZipCode:    req.ZipCode,
		IsDefault:  req.IsDefault,
	})
	if err != nil {
		writeAddressError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildAddressPayload(address))
}

func (h *AddressHandlers) updateAddress(w http.ResponseWriter, r *http.Request) {
	var req updateAddressRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	address, err := h.addresses.UpdateAddress(r.Context(), services.UpdateAddressCommand{
		AddressID:  chi.URLParam(r, "addressID"),
		Street:     req.Street,
		Number:     req.Number,
		Complement: req.Complement,
		District:   req.District,
		City:       req.City,
		State:      req.State,
		ZipCode:    req.ZipCode,
		IsDefault:  req.IsDefault,
	})
	if err != nil {
		writeAddressError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildAddressPayload(address))
}

func (h *AddressHandlers) deleteAddress(w http.ResponseWriter, r *http.Request) {
	if err := h.addresses.DeleteAddress(r.Context(), chi.URLParam(r, "addressID")); err != nil {
		writeAddressError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func buildAddressPayload(address services.Address) addressPayload {
	return addressPayload{
		ID:         address.ID,
		CustomerID: address.CustomerID,
		Street:     address.Street,
		Number:     address.Number,
		Complement: address.Complement,
		District:   address.District,
		City:       address.City,
		State:      address.State,
		ZipCode:    address.ZipCode,
		IsDefault:  address.IsDefault,
		CreatedAt:  formatTime(address.CreatedAt),
		UpdatedAt:  formatTime(address.UpdatedAt),
	}
}

func writeAddressError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrAddressInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrAddressNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("address_not_found", err.Error(), http.StatusNotFound))
	default:
		writeInfrastructureError(ctx, w, err, "address_error", "failed to process address request")
	}
}

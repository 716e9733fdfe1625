package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/shopfield/api/internal/services"
)

type stubAddressService struct {
	listFn   func(context.Context, string) ([]services.Address, error)
	createFn func(context.Context, services.CreateAddressCommand) (services.Address, error)
	updateFn func(context.Context, services.UpdateAddressCommand) (services.Address, error)
	getErr   error
	delErr   error
}

func (s *stubAddressService) ListAddresses(ctx context.Context, customerID string) ([]services.Address, error) {
	if s.listFn != nil {
		return s.listFn(ctx, customerID)
	}
	return nil, nil
}

func (s *stubAddressService) GetAddress(_ context.Context, id string) (services.Address, error) {
	if s.getErr != nil {
		return services.Address{}, s.getErr
	}
	return services.Address{ID: id, CustomerID: "cus_1", Street: "Rua A", State: "PE"}, nil
}

func (s *stubAddressService) CreateAddress(ctx context.Context, cmd services.CreateAddressCommand) (services.Address, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Address{}, errStubNotImplemented
}

func (s *stubAddressService) UpdateAddress(ctx context.Context, cmd services.UpdateAddressCommand) (services.Address, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Address{}, errStubNotImplemented
}

func (s *stubAddressService) DeleteAddress(context.Context, string) error {
	return s.delErr
}

var _ services.AddressService = (*stubAddressService)(nil)

// newAddressRouter mounts addresses next to a customers registrar, the way the API router does.
func newAddressRouter(svc services.AddressService) chi.Router {
	customers := func(r chi.Router) {
		r.Get("/{customerID}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	}
	return NewRouter(
		WithCustomerRoutes(customers),
		WithAddressRoutes(NewAddressHandlers(newTestAuthenticator(), svc).Routes),
	)
}

func TestAddressHandlersRequireStaff(t *testing.T) {
	router := newAddressRouter(&stubAddressService{})

	if rr := doJSON(router, http.MethodGet, "/api/v1/customers/cus_1/addresses", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	customer := map[string]string{"Authorization": bearerToken(t, "user-1", "customer")}
	if rr := doJSON(router, http.MethodGet, "/api/v1/addresses/adr_1", "", customer); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestAddressHandlersCRUD(t *testing.T) {
	var listedFor string
	var created services.CreateAddressCommand
	var updated services.UpdateAddressCommand
	svc := &stubAddressService{
		listFn: func(_ context.Context, customerID string) ([]services.Address, error) {
			listedFor = customerID
			return []services.Address{
				{ID: "adr_2", CustomerID: customerID, Street: "Rua B", IsDefault: true},
				{ID: "adr_1", CustomerID: customerID, Street: "Rua A"},
			}, nil
		},
		createFn: func(_ context.Context, cmd services.CreateAddressCommand) (services.Address, error) {
			created = cmd
			return services.Address{ID: "adr_3", CustomerID: cmd.CustomerID, Street: cmd.Street, IsDefault: cmd.IsDefault}, nil
		},
		updateFn: func(_ context.Context, cmd services.UpdateAddressCommand) (services.Address, error) {
			updated = cmd
			return services.Address{ID: cmd.AddressID, CustomerID: "cus_1", IsDefault: *cmd.IsDefault}, nil
		},
	}
	router := newAddressRouter(svc)
	staff := map[string]string{"Authorization": bearerToken(t, "staff-1", "staff")}

	if rr := doJSON(router, http.MethodGet, "/api/v1/customers/cus_1", "", staff); rr.Code != http.StatusNoContent {
		t.Fatalf("expected customer route to stay reachable, got %d", rr.Code)
	}

	rr := doJSON(router, http.MethodGet, "/api/v1/customers/cus_1/addresses", "", staff)
	if rr.Code != http.StatusOK || listedFor != "cus_1" {
		t.Fatalf("expected 200 for cus_1, got %d %q", rr.Code, listedFor)
	}
	items, _ := decodeBody(t, rr)["items"].([]any)
	if len(items) != 2 || items[0].(map[string]any)["isDefault"] != true {
		t.Fatalf("unexpected list body %v", items)
	}

	body := `{"street":"Rua C","number":"10","district":"Centro","city":"Recife","state":"PE","zipCode":"50000-000","isDefault":true}`
	rr = doJSON(router, http.MethodPost, "/api/v1/customers/cus_1/addresses", body, staff)
	if rr.Code != http.StatusCreated || created.CustomerID != "cus_1" || !created.IsDefault || created.Complement != "" {
		t.Fatalf("unexpected create %d %+v", rr.Code, created)
	}

	rr = doJSON(router, http.MethodPost, "/api/v1/customers/cus_1/addresses", `{"street":"Rua C","number":"10","district":"Centro","city":"Recife","state":"Pernambuco","zipCode":"50000-000"}`, staff)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for long state, got %d", rr.Code)
	}
	fields, _ := decodeBody(t, rr)["fields"].(map[string]any)
	if fields["state"] != "len=2" {
		t.Fatalf("expected state validation failure, got %v", fields)
	}

	rr = doJSON(router, http.MethodPut, "/api/v1/addresses/adr_1", `{"isDefault":true}`, staff)
	if rr.Code != http.StatusOK || updated.AddressID != "adr_1" || updated.Street != nil {
		t.Fatalf("unexpected update %d %+v", rr.Code, updated)
	}

	rr = doJSON(router, http.MethodGet, "/api/v1/addresses/adr_1", "", staff)
	if got := decodeBody(t, rr); rr.Code != http.StatusOK || got["customerId"] != "cus_1" {
		t.Fatalf("unexpected get %d %v", rr.Code, got)
	}

	if rr := doJSON(router, http.MethodDelete, "/api/v1/addresses/adr_1", "", staff); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

func TestAddressHandlersErrors(t *testing.T) {
	svc := &stubAddressService{
		listFn: func(context.Context, string) ([]services.Address, error) {
			return nil, fmt.Errorf("%w: customer cus_9", services.ErrAddressNotFound)
		},
		getErr: fmt.Errorf("%w: adr_9", services.ErrAddressNotFound),
		delErr: fmt.Errorf("%w: address id is required", services.ErrAddressInvalidInput),
	}
	router := newAddressRouter(svc)
	admin := map[string]string{"Authorization": bearerToken(t, "admin-1", "admin")}

	if rr := doJSON(router, http.MethodGet, "/api/v1/customers/cus_9/addresses", "", admin); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if rr := doJSON(router, http.MethodGet, "/api/v1/addresses/adr_9", "", admin); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if rr := doJSON(router, http.MethodDelete, "/api/v1/addresses/adr_9", "", admin); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

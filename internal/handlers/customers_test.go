package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/shopfield/api/internal/domain"
	"github.com/shopfield/api/internal/services"
)

type stubCustomerService struct {
	listFn   func(context.Context, services.CustomerListFilter) (domain.Page[services.Customer], error)
	createFn func(context.Context, services.CreateCustomerCommand) (services.Customer, error)
	updateFn func(context.Context, services.UpdateCustomerCommand) (services.Customer, error)
	getErr   error
	delErr   error
}

func (s *stubCustomerService) ListCustomers(ctx context.Context, filter services.CustomerListFilter) (domain.Page[services.Customer], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.Page[services.Customer]{}, nil
}

func (s *stubCustomerService) GetCustomer(_ context.Context, id string) (services.Customer, error) {
	if s.getErr != nil {
		return services.Customer{}, s.getErr
	}
	return services.Customer{ID: id, Name: "Ana", Email: "ana@example.com"}, nil
}

func (s *stubCustomerService) CreateCustomer(ctx context.Context, cmd services.CreateCustomerCommand) (services.Customer, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Customer{}, errStubNotImplemented
}

func (s *stubCustomerService) UpdateCustomer(ctx context.Context, cmd services.UpdateCustomerCommand) (services.Customer, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Customer{}, errStubNotImplemented
}

func (s *stubCustomerService) DeleteCustomer(context.Context, string) error {
	return s.delErr
}

var _ services.CustomerService = (*stubCustomerService)(nil)

func newCustomerRouter(svc services.CustomerService) chi.Router {
	router := chi.NewRouter()
	router.Route("/customers", NewCustomerHandlers(newTestAuthenticator(), svc).Routes)
	return router
}

func TestCustomerHandlersRequireStaff(t *testing.T) {
	router := newCustomerRouter(&stubCustomerService{})

	if rr := doJSON(router, http.MethodGet, "/customers", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	customer := map[string]string{"Authorization": bearerToken(t, "user-1", "customer")}
	if rr := doJSON(router, http.MethodGet, "/customers", "", customer); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestCustomerHandlersCRUD(t *testing.T) {
	var listed services.CustomerListFilter
	var created services.CreateCustomerCommand
	var updated services.UpdateCustomerCommand
	svc := &stubCustomerService{
		listFn: func(_ context.Context, filter services.CustomerListFilter) (domain.Page[services.Customer], error) {
			listed = filter
			return domain.Page[services.Customer]{
				Items: []services.Customer{{ID: "cus_1", Name: "Ana", Email: "ana@example.com"}},
				Total: 1,
				Page:  1,
				Limit: filter.Pagination.Limit,
			}, nil
		},
		createFn: func(_ context.Context, cmd services.CreateCustomerCommand) (services.Customer, error) {
			created = cmd
			return services.Customer{ID: "cus_2", Name: cmd.Name, Email: cmd.Email}, nil
		},
		updateFn: func(_ context.Context, cmd services.UpdateCustomerCommand) (services.Customer, error) {
			updated = cmd
			return services.Customer{ID: cmd.CustomerID, Name: "Ana", Email: "ana@example.com", Phone: *cmd.Phone}, nil
		},
	}
	router := newCustomerRouter(svc)
	staff := map[string]string{"Authorization": bearerToken(t, "staff-1", "staff")}

	rr := doJSON(router, http.MethodGet, "/customers?search=ana", "", staff)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if listed.Search != "ana" || listed.Pagination.Limit != 20 {
		t.Fatalf("unexpected filter %+v", listed)
	}
	if body := decodeBody(t, rr); body["total"] != float64(1) {
		t.Fatalf("unexpected list body %v", body)
	}

	rr = doJSON(router, http.MethodPost, "/customers", `{"name":"Bruno","email":"bruno@example.com"}`, staff)
	if rr.Code != http.StatusCreated || created.Email != "bruno@example.com" {
		t.Fatalf("expected 201, got %d %+v", rr.Code, created)
	}

	rr = doJSON(router, http.MethodPost, "/customers", `{"name":"Bruno","email":"nope"}`, staff)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for bad email, got %d", rr.Code)
	}

	rr = doJSON(router, http.MethodPut, "/customers/cus_1", `{"phone":"+55 11 90000-0000"}`, staff)
	if rr.Code != http.StatusOK || updated.CustomerID != "cus_1" || updated.Email != nil {
		t.Fatalf("unexpected update %d %+v", rr.Code, updated)
	}

	rr = doJSON(router, http.MethodGet, "/customers/cus_1", "", staff)
	if body := decodeBody(t, rr); rr.Code != http.StatusOK || body["email"] != "ana@example.com" {
		t.Fatalf("unexpected get %d %v", rr.Code, body)
	}
}

func TestCustomerHandlersErrors(t *testing.T) {
	svc := &stubCustomerService{
		getErr: fmt.Errorf("%w: cus_9", services.ErrCustomerNotFound),
		delErr: fmt.Errorf("%w: customer has orders", services.ErrCustomerConflict),
	}
	router := newCustomerRouter(svc)
	admin := map[string]string{"Authorization": bearerToken(t, "admin-1", "admin")}

	if rr := doJSON(router, http.MethodGet, "/customers/cus_9", "", admin); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if rr := doJSON(router, http.MethodDelete, "/customers/cus_1", "", admin); rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

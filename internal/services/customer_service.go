package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/shopfield/api/internal/domain"
	"github.com/shopfield/api/internal/platform/textutil"
	"github.com/shopfield/api/internal/repositories"
)

const (
	customerIDPrefix = "cus_"

	defaultCustomerPageSize = 20
	maxCustomerPageSize     = 100
)

var (
	// ErrCustomerInvalidInput indicates the customer payload failed validation.
	ErrCustomerInvalidInput = errors.New("customer: invalid input")
	// ErrCustomerNotFound indicates the customer does not exist.
	ErrCustomerNotFound = errors.New("customer: not found")
	// ErrCustomerConflict indicates the email is taken or the customer still owns orders.
	ErrCustomerConflict = errors.New("customer: conflict")
)

// CustomerServiceDeps bundles collaborators for the customer service.
type CustomerServiceDeps struct {
	Customers   repositories.CustomerRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type customerService struct {
	customers repositories.CustomerRepository
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewCustomerService constructs a CustomerService.
func NewCustomerService(deps CustomerServiceDeps) (CustomerService, error) {
	if deps.Customers == nil {
		return nil, errors.New("customer service: customer repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &customerService{
		customers: deps.Customers,
		clock:     func() time.Time { return clock().UTC() },
		newID:     idGen,
		logger:    logger,
	}, nil
}

func (s *customerService) ListCustomers(ctx context.Context, filter CustomerListFilter) (domain.Page[Customer], error) {
	filter.Search = textutil.NormalizeSearch(filter.Search)
	filter.Pagination = normalizePagination(filter.Pagination, defaultCustomerPageSize, maxCustomerPageSize)
	page, err := s.customers.List(ctx, filter)
	if err != nil {
		return domain.Page[Customer]{}, s.mapError(err)
	}
	page.Page = filter.Pagination.Page
	page.Limit = filter.Pagination.Limit
	return page, nil
}

func (s *customerService) GetCustomer(ctx context.Context, customerID string) (Customer, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return Customer{}, fmt.Errorf("%w: customer id is required", ErrCustomerInvalidInput)
	}
	customer, err := s.customers.FindByID(ctx, customerID)
	if err != nil {
		return Customer{}, s.mapError(err)
	}
	return customer, nil
}

func (s *customerService) CreateCustomer(ctx context.Context, cmd CreateCustomerCommand) (Customer, error) {
	name := textutil.NormalizeName(cmd.Name)
	if name == "" {
		return Customer{}, fmt.Errorf("%w: name is required", ErrCustomerInvalidInput)
	}
	email, err := normalizeCustomerEmail(cmd.Email)
	if err != nil {
		return Customer{}, err
	}
	if err := s.ensureEmailFree(ctx, email, ""); err != nil {
		return Customer{}, err
	}

	now := s.clock()
	customer := Customer{
		ID:        customerIDPrefix + s.newID(),
		Name:      name,
		Email:     email,
		Phone:     strings.TrimSpace(cmd.Phone),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.customers.Insert(ctx, customer); err != nil {
		return Customer{}, s.mapError(err)
	}
	s.logger(ctx, "customer.created", map[string]any{"customerId": customer.ID})
	return customer, nil
}

func (s *customerService) UpdateCustomer(ctx context.Context, cmd UpdateCustomerCommand) (Customer, error) {
	customer, err := s.GetCustomer(ctx, cmd.CustomerID)
	if err != nil {
		return Customer{}, err
	}
	if cmd.Name != nil {
		name := textutil.NormalizeName(*cmd.Name)
		if name == "" {
			return Customer{}, fmt.Errorf("%w: name is required", ErrCustomerInvalidInput)
		}
		customer.Name = name
	}
	if cmd.Email != nil {
		email, err := normalizeCustomerEmail(*cmd.Email)
		if err != nil {
			return Customer{}, err
		}
		if email != customer.Email {
			if err := s.ensureEmailFree(ctx, email, customer.ID); err != nil {
				return Customer{}, err
			}
		}
		customer.Email = email
	}
	if cmd.Phone != nil {
		customer.Phone = strings.TrimSpace(*cmd.Phone)
	}
	customer.UpdatedAt = s.clock()
	if err := s.customers.Update(ctx, customer); err != nil {
		return Customer{}, s.mapError(err)
	}
	return customer, nil
}

func (s *customerService) DeleteCustomer(ctx context.Context, customerID string) error {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return fmt.Errorf("%w: customer id is required", ErrCustomerInvalidInput)
	}
	if err := s.customers.Delete(ctx, customerID); err != nil {
		return s.mapError(err)
	}
	s.logger(ctx, "customer.deleted", map[string]any{"customerId": customerID})
	return nil
}

func (s *customerService) ensureEmailFree(ctx context.Context, email, exceptID string) error {
	existing, err := s.customers.FindByEmail(ctx, email)
	switch {
	case err == nil && existing.ID != exceptID:
		return fmt.Errorf("%w: email %s already registered", ErrCustomerConflict, email)
	case err == nil, repositories.IsNotFound(err):
		return nil
	default:
		return s.mapError(err)
	}
}

func (s *customerService) mapError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCustomerNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCustomerConflict, err)
		}
	}
	return err
}

func normalizeCustomerEmail(raw string) (string, error) {
	email := textutil.NormalizeEmail(raw)
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrCustomerInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: email %q is not valid", ErrCustomerInvalidInput, raw)
	}
	return email, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	domain "github.com/shopfield/api/internal/domain"
	"github.com/shopfield/api/internal/platform/textutil"
	"github.com/shopfield/api/internal/repositories"
)

const addressIDPrefix = "adr_"

var (
	// ErrAddressInvalidInput indicates the address payload failed validation.
	ErrAddressInvalidInput = errors.New("address: invalid input")
	// ErrAddressNotFound indicates the address or its customer does not exist.
	ErrAddressNotFound = errors.New("address: not found")
)

// AddressServiceDeps bundles collaborators for the address service.
type AddressServiceDeps struct {
	Addresses   repositories.AddressRepository
	Customers   repositories.CustomerRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type addressService struct {
	addresses  repositories.AddressRepository
	customers  repositories.CustomerRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewAddressService constructs an AddressService. Without a unit of work the default flag is switched in
// separate writes.
func NewAddressService(deps AddressServiceDeps) (AddressService, error) {
	if deps.Addresses == nil {
		return nil, errors.New("address service: address repository is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("address service: customer repository is required")
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
	return &addressService{
		addresses:  deps.Addresses,
		customers:  deps.Customers,
		unitOfWork: deps.UnitOfWork,
		clock:      func() time.Time { return clock().UTC() },
		newID:      idGen,
		logger:     logger,
	}, nil
}

func (s *addressService) ListAddresses(ctx context.Context, customerID string) ([]Address, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer id is required", ErrAddressInvalidInput)
	}
	if _, err := s.customers.FindByID(ctx, customerID); err != nil {
		return nil, s.mapError(err)
	}
	addresses, err := s.addresses.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, s.mapError(err)
	}
	return addresses, nil
}

func (s *addressService) GetAddress(ctx context.Context, addressID string) (Address, error) {
	addressID = strings.TrimSpace(addressID)
	if addressID == "" {
		return Address{}, fmt.Errorf("%w: address id is required", ErrAddressInvalidInput)
	}
	address, err := s.addresses.FindByID(ctx, addressID)
	if err != nil {
		return Address{}, s.mapError(err)
	}
	return address, nil
}

// CreateAddress stores a new address. A default address takes the flag from the customer's other addresses.
func (s *addressService) CreateAddress(ctx context.Context, cmd CreateAddressCommand) (Address, error) {
	customerID := strings.TrimSpace(cmd.CustomerID)
	if customerID == "" {
		return Address{}, fmt.Errorf("%w: customer id is required", ErrAddressInvalidInput)
	}
	now := s.clock()
	address := Address{
		ID:         addressIDPrefix + s.newID(),
		CustomerID: customerID,
		Street:     cmd.Street,
		Number:     cmd.Number,
		Complement: cmd.Complement,
		District:   cmd.District,
		City:       cmd.City,
		State:      cmd.State,
		ZipCode:    cmd.ZipCode,
		IsDefault:  cmd.IsDefault,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	address, err := normalizeAddress(address)
	if err != nil {
		return Address{}, err
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.customers.FindByID(txCtx, customerID); err != nil {
			return err
		}
		if address.IsDefault {
			if err := s.addresses.ClearDefault(txCtx, customerID, address.ID); err != nil {
				return err
			}
		}
		return s.addresses.Insert(txCtx, address)
	})
	if err != nil {
		return Address{}, s.mapError(err)
	}
	s.logger(ctx, "address.created", map[string]any{"addressId": address.ID, "customerId": customerID, "default": address.IsDefault})
	return address, nil
}

// UpdateAddress applies a partial update. Marking the address default clears the flag on its siblings in
// the same transaction.
func (s *addressService) UpdateAddress(ctx context.Context, cmd UpdateAddressCommand) (Address, error) {
	addressID := strings.TrimSpace(cmd.AddressID)
	if addressID == "" {
		return Address{}, fmt.Errorf("%w: address id is required", ErrAddressInvalidInput)
	}

	var updated Address
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		address, err := s.addresses.FindByID(txCtx, addressID)
		if err != nil {
			return err
		}
		address = applyAddressChanges(address, cmd)
		address.UpdatedAt = s.clock()
		if address, err = normalizeAddress(address); err != nil {
			return err
		}
		if cmd.IsDefault != nil && *cmd.IsDefault {
			if err := s.addresses.ClearDefault(txCtx, address.CustomerID, address.ID); err != nil {
				return err
			}
		}
		if err := s.addresses.Update(txCtx, address); err != nil {
			return err
		}
		updated = address
		return nil
	})
	if err != nil {
		return Address{}, s.mapError(err)
	}
	return updated, nil
}

func (s *addressService) DeleteAddress(ctx context.Context, addressID string) error {
	addressID = strings.TrimSpace(addressID)
	if addressID == "" {
		return fmt.Errorf("%w: address id is required", ErrAddressInvalidInput)
	}
	if err := s.addresses.Delete(ctx, addressID); err != nil {
		return s.mapError(err)
	}
	s.logger(ctx, "address.deleted", map[string]any{"addressId": addressID})
	return nil
}

func (s *addressService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *addressService) mapError(err error) error {
	if errors.Is(err, ErrAddressInvalidInput) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrAddressNotFound, err)
	}
	return err
}

func applyAddressChanges(address Address, cmd UpdateAddressCommand) Address {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&address.Street, cmd.Street)
	set(&address.Number, cmd.Number)
	set(&address.Complement, cmd.Complement)
	set(&address.District, cmd.District)
	set(&address.City, cmd.City)
	set(&address.State, cmd.State)
	set(&address.ZipCode, cmd.ZipCode)
	if cmd.IsDefault != nil {
		address.IsDefault = *cmd.IsDefault
	}
	return address
}

type addressField struct {
	name     string
	value    *string
	max      int
	optional bool
}

// normalizeAddress trims every field, upper-cases the state and enforces the column limits.
func normalizeAddress(address domain.Address) (domain.Address, error) {
	address.State = strings.ToUpper(address.State)
	fields := []addressField{
		{name: "street", value: &address.Street, max: 120},
		{name: "number", value: &address.Number, max: 20},
		{name: "complement", value: &address.Complement, max: 120, optional: true},
		{name: "district", value: &address.District, max: 120},
		{name: "city", value: &address.City, max: 120},
		{name: "state", value: &address.State, max: 2},
		{name: "zipCode", value: &address.ZipCode, max: 12},
	}
	for _, field := range fields {
		*field.value = textutil.CollapseSpace(*field.value)
		length := utf8.RuneCountInString(*field.value)
		if length == 0 && !field.optional {
			return domain.Address{}, fmt.Errorf("%w: %s is required", ErrAddressInvalidInput, field.name)
		}
		if length > field.max {
			return domain.Address{}, fmt.Errorf("%w: %s must be at most %d characters", ErrAddressInvalidInput, field.name, field.max)
		}
	}
	if !validStateCode(address.State) {
		return domain.Address{}, fmt.Errorf("%w: state must be a two letter code", ErrAddressInvalidInput)
	}
	return address, nil
}

func validStateCode(state string) bool {
	if len(state) != 2 {
		return false
	}
	for i := 0; i < len(state); i++ {
		if state[i] < 'A' || state[i] > 'Z' {
			return false
		}
	}
	return true
}

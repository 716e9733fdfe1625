// Package pagination parses page/limit query parameters.
package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	domain "github.com/shopfield/api/internal/domain"
)

const (
	// DefaultLimit is used when neither the request nor Options supply a limit.
	DefaultLimit = 20
	// DefaultMaxLimit caps the limit to prevent unbounded queries.
	DefaultMaxLimit = 100
)

// Options control how Parse behaves for a given listing.
type Options struct {
	DefaultLimit int
	MaxLimit     int
}

var (
	ErrInvalidPage  = errors.New("pagination: invalid page")
	ErrInvalidLimit = errors.New("pagination: invalid limit")
)

// FromRequest parses page and limit from the request query string.
func FromRequest(r *http.Request, opts Options) (domain.Pagination, error) {
	if r == nil {
		return domain.Pagination{}, errors.New("pagination: nil request")
	}
	return Parse(r.URL.Query(), opts)
}

// Parse returns the normalised pagination. Missing values take defaults and limits above the maximum are
// clamped; non-numeric or non-positive values are rejected.
func Parse(values url.Values, opts Options) (domain.Pagination, error) {
	maxLimit := opts.MaxLimit
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	defaultLimit := opts.DefaultLimit
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	defaultLimit = min(defaultLimit, maxLimit)

	page, err := parsePositive(values.Get("page"), 1, ErrInvalidPage)
	if err != nil {
		return domain.Pagination{}, err
	}
	limit, err := parsePositive(values.Get("limit"), defaultLimit, ErrInvalidLimit)
	if err != nil {
		return domain.Pagination{}, err
	}
	return domain.Pagination{Page: page, Limit: min(limit, maxLimit)}, nil
}

func parsePositive(raw string, fallback int, sentinel error) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: must be an integer", sentinel)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", sentinel)
	}
	return value, nil
}

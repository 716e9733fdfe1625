package pagination

import (
	"errors"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	p, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if p.Page != 1 || p.Limit != DefaultLimit {
		t.Fatalf("unexpected defaults %+v", p)
	}

	p, err = Parse(url.Values{}, Options{DefaultLimit: 12})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if p.Limit != 12 {
		t.Fatalf("expected option default 12, got %d", p.Limit)
	}
}

func TestParseClampsLimit(t *testing.T) {
	values := url.Values{}
	values.Set("page", "3")
	values.Set("limit", "500")

	p, err := Parse(values, Options{MaxLimit: 40})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if p.Page != 3 || p.Limit != 40 {
		t.Fatalf("unexpected pagination %+v", p)
	}
	if p.Offset() != 80 {
		t.Fatalf("unexpected offset %d", p.Offset())
	}
}

func TestParseRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name  string
		query string
		want  error
	}{
		{name: "non numeric page", query: "page=abc", want: ErrInvalidPage},
		{name: "zero page", query: "page=0", want: ErrInvalidPage},
		{name: "negative limit", query: "limit=-5", want: ErrInvalidLimit},
		{name: "non numeric limit", query: "limit=ten", want: ErrInvalidLimit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			values, _ := url.ParseQuery(tc.query)
			if _, err := Parse(values, Options{}); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/orders?page=2&limit=5", nil)
	p, err := FromRequest(req, Options{})
	if err != nil {
		t.Fatalf("FromRequest returned error: %v", err)
	}
	if p.Page != 2 || p.Limit != 5 {
		t.Fatalf("unexpected pagination %+v", p)
	}
	if _, err := FromRequest(nil, Options{}); err == nil {
		t.Fatal("expected error for nil request")
	}
}

package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/shopfield/api/internal/platform/httpx"
	"github.com/shopfield/api/internal/platform/observability"
	"github.com/shopfield/api/internal/repositories"
)

type pageResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

func pagePayload[T any](items []T, total, page, limit int) pageResponse[T] {
	if items == nil {
		items = []T{}
	}
	return pageResponse[T]{Items: items, Total: total, Page: page, Limit: limit}
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	httpx.WriteJSON(w, status, payload)
}

// writeInfrastructureError renders failures that no domain sentinel matched.
func writeInfrastructureError(ctx context.Context, w http.ResponseWriter, err error, code, message string) {
	if repositories.IsUnavailable(err) {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "backing store unavailable", http.StatusServiceUnavailable))
		return
	}
	observability.FromContext(ctx).Error("request failed", zap.String("code", code), zap.Error(err))
	httpx.WriteError(ctx, w, httpx.NewError(code, message, http.StatusInternalServerError))
}

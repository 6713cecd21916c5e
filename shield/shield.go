// Package shield holds the HTTP middleware in front of the schemawatch
// console: security headers, body limits, request logging, per-client rate
// limiting, Basic authentication, flash messages and a readiness gate.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.ConsoleStack(logger) {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

// FlashKey is the context key for flash messages.
const FlashKey contextKey = "shield_flash"

// FlashMessage is a one-time notice shown on the next page.
type FlashMessage struct {
	Type    string // "success" or "error"
	Message string
}

// GetFlash retrieves the flash message from the request context.
func GetFlash(ctx context.Context) *FlashMessage {
	v, _ := ctx.Value(FlashKey).(*FlashMessage)
	return v
}

// ConsoleStack returns the middleware applied to every console route, in
// order: HeadToGet, SecurityHeaders, MaxBody, RequestLogger, Flash.
// Authentication and rate limiting are added per route group.
func ConsoleStack(logger *slog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxBody(1 << 20),
		RequestLogger(logger),
		Flash,
	}
}

package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SecurityMetrics counts authentication decisions and admin operations.
type SecurityMetrics struct {
	decisions metric.Int64Counter
	admin     metric.Int64Counter
}

// InitSecurityMetrics creates the instruments on the global meter provider.
func InitSecurityMetrics() (*SecurityMetrics, error) {
	return NewSecurityMetrics(otel.Meter("relgraph/security"))
}

// NewSecurityMetrics creates the instruments on meter.
func NewSecurityMetrics(meter metric.Meter) (*SecurityMetrics, error) {
	decisions, err := meter.Int64Counter("security.auth.decisions.total",
		metric.WithDescription("Authentication decisions by endpoint, method and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth decision counter: %w", err)
	}
	admin, err := meter.Int64Counter("security.admin.operations.total",
		metric.WithDescription("Admin operations by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin operation counter: %w", err)
	}
	return &SecurityMetrics{decisions: decisions, admin: admin}, nil
}

// RecordAuthAccepted counts a request whose credentials were accepted.
func (m *SecurityMetrics) RecordAuthAccepted(ctx context.Context, endpoint, method, issuer string) {
	m.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("method", method),
		attribute.String("outcome", "accepted"),
		attribute.String("issuer", issuer),
	))
}

// RecordAuthRejected counts a rejected request; reason is a short stable code
// such as missing_token.
func (m *SecurityMetrics) RecordAuthRejected(ctx context.Context, endpoint, method, reason string) {
	m.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("method", method),
		attribute.String("outcome", "rejected"),
		attribute.String("reason", reason),
	))
}

// RecordAdminEndpointAccess counts one admin operation.
func (m *SecurityMetrics) RecordAdminEndpointAccess(ctx context.Context, operation string, authenticated, success bool) {
	m.admin.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("authenticated", authenticated),
		attribute.Bool("success", success),
	))
}

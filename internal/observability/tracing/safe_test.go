package tracing

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsFreeText(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/v1/invoices/:id"),
		attribute.String("reason", "goods never arrived"),
	)
	if len(attrs) != 1 || attrs[0].Key != "http.route" {
		t.Fatalf("expected only http.route, got %v", attrs)
	}
}

func TestSafeErrorKeepsFirstLine(t *testing.T) {
	err := SafeError(errors.New("insert failed\nDETAIL: values"))
	if err.Error() != "insert failed" {
		t.Fatalf("unexpected error text %q", err.Error())
	}
	if SafeError(nil) != nil {
		t.Fatalf("expected nil error")
	}
}

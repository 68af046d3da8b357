package firestore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hanko-field/catalog/internal/platform/config"
)

func TestWrapErrorClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind string
	}{
		{name: "not found", err: status.Error(codes.NotFound, "missing"), kind: "not_found"},
		{name: "aborted", err: status.Error(codes.Aborted, "contention"), kind: "conflict"},
		{name: "unavailable", err: status.Error(codes.Unavailable, "down"), kind: "unavailable"},
		{name: "exhausted", err: status.Error(codes.ResourceExhausted, "quota"), kind: "unavailable"},
		{name: "missing index", err: status.Error(codes.FailedPrecondition, "the query requires an index"), kind: "misconfigured"},
		{name: "permission", err: status.Error(codes.PermissionDenied, "denied"), kind: "misconfigured"},
		{name: "plain error", err: errors.New("boom"), kind: "unavailable"},
		{name: "closed provider", err: fmt.Errorf("wrap: %w", ErrProviderClosed), kind: "unavailable"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := WrapError("products.query", tc.err)
			var repoErr *Error
			if !errors.As(wrapped, &repoErr) {
				t.Fatalf("expected *Error got %T", wrapped)
			}
			if repoErr.Kind() != tc.kind {
				t.Fatalf("expected kind %q got %q", tc.kind, repoErr.Kind())
			}
			if repoErr.IsUnavailable() != (tc.kind == "unavailable") || repoErr.IsMisconfigured() != (tc.kind == "misconfigured") {
				t.Fatalf("predicates disagree with kind %q", repoErr.Kind())
			}
			if !errors.Is(wrapped, tc.err) {
				t.Fatalf("expected wrapped error to unwrap to original")
			}
		})
	}
}

func TestWrapErrorPassesCancellationThrough(t *testing.T) {
	if err := WrapError("op", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled got %v", err)
	}
	if err := WrapError("op", status.Error(codes.DeadlineExceeded, "slow")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded got %v", err)
	}
	if WrapError("op", nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestNewCollectionValidation(t *testing.T) {
	if _, err := NewCollection(nil, "products"); err == nil {
		t.Fatalf("expected error for nil provider")
	}
	if _, err := NewCollection(&Provider{}, " "); err == nil {
		t.Fatalf("expected error for blank collection")
	}
	if RawDocument(nil).Fields != nil {
		t.Fatalf("expected empty document for nil snapshot")
	}
}

func TestProviderClosed(t *testing.T) {
	p := NewProvider(config.FirestoreConfig{ProjectID: "test-project"})
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("close returned %v", err)
	}
	if _, err := p.Client(context.Background()); !errors.Is(err, ErrProviderClosed) {
		t.Fatalf("expected ErrProviderClosed got %v", err)
	}
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("second close returned %v", err)
	}
}

package repositories

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/hanko-field/catalog/internal/domain"
)

// DocumentSource returns the raw product documents that pass the coarse
// status predicate. Implementations apply no other filtering; the shape of
// each document is left untouched for the normalizer.
type DocumentSource interface {
	FetchCandidates(ctx context.Context, status string) ([]domain.RawDocument, error)
}

// CategorySource lists raw category documents.
type CategorySource interface {
	ListCategories(ctx context.Context) ([]domain.RawDocument, error)
}

// Pinger is implemented by sources able to report reachability for readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// IsUnavailable reports whether err is a RepositoryError flagged as a backend outage.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}

// SourceError is the RepositoryError produced by the non-Firestore sources.
type SourceError struct {
	Op          string
	Err         error
	NotFound    bool
	Unavailable bool
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *SourceError) Unwrap() error { return e.Err }

func (e *SourceError) IsNotFound() bool    { return e.NotFound }
func (e *SourceError) IsConflict() bool    { return false }
func (e *SourceError) IsUnavailable() bool { return e.Unavailable }

var _ RepositoryError = (*SourceError)(nil)

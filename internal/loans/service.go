// internal/loans/service.go
package loans

import (
	"context"

	"github.com/google/uuid"

	"libhub/internal/clients"
)

// Service defines the interface for the loan service.
type Service interface {
	BorrowBook(ctx context.Context, userID, bookID uuid.UUID) (*LoanView, error)
	ReturnBook(ctx context.Context, loanID uuid.UUID) error
	GetLoan(ctx context.Context, loanID uuid.UUID) (*LoanView, error)
	ListUserLoans(ctx context.Context, userID uuid.UUID) ([]*LoanView, error)
	ListActiveLoans(ctx context.Context) ([]*LoanView, error)
}

// Catalog is the slice of the catalog service the loan sagas depend on.
type Catalog interface {
	GetBook(ctx context.Context, bookID uuid.UUID) (*clients.Book, error)
	DecrementStock(ctx context.Context, bookID uuid.UUID) error
	IncrementStock(ctx context.Context, bookID uuid.UUID) error
}

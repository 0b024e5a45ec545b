// internal/loans/store.go
package loans

import (
	"context"

	"github.com/google/uuid"
)

// LoanStore persists loan records. Loans are append-only from the caller's
// perspective: they are created once and mutated only through status updates,
// never deleted.
type LoanStore interface {
	// GetByID loads a loan, returning ErrLoanNotFound when absent.
	GetByID(ctx context.Context, id uuid.UUID) (*Loan, error)
	// Add persists a new loan and assigns its ID.
	Add(ctx context.Context, loan *Loan) error
	// Update persists the loan's current state.
	Update(ctx context.Context, loan *Loan) error
	// CountActiveForUser counts the user's CheckedOut loans.
	CountActiveForUser(ctx context.Context, userID uuid.UUID) (int, error)
	// ListForUser returns all loans ever created for the user.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*Loan, error)
	// ListActive returns every CheckedOut loan.
	ListActive(ctx context.Context) ([]*Loan, error)
}

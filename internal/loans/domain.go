// internal/loans/domain.go
package loans

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LoanPeriod is the fixed borrowing window applied to every checkout.
const LoanPeriod = 14 * 24 * time.Hour

// MaxActiveLoans is the per-user limit of concurrently checked out loans.
const MaxActiveLoans = 5

// Status is the closed set of loan lifecycle states.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusCheckedOut Status = "CheckedOut"
	StatusFailed     Status = "Failed"
	StatusReturned   Status = "Returned"
)

// Domain errors surfaced by the loan service.
var (
	ErrLoanLimitReached  = errors.New("maximum loan limit reached")
	ErrBookUnavailable   = errors.New("book is not available")
	ErrLoanNotFound      = errors.New("loan not found")
	ErrAlreadyReturned   = errors.New("book already returned")
	ErrInvalidTransition = errors.New("invalid loan status transition")
)

// Loan represents one borrowing transaction. The persisted status acts as the
// durable log of how far the borrow saga progressed.
type Loan struct {
	ID           uuid.UUID  `db:"id" json:"loan_id"`
	UserID       uuid.UUID  `db:"user_id" json:"user_id"`
	BookID       uuid.UUID  `db:"book_id" json:"book_id"`
	CheckoutDate time.Time  `db:"checkout_date" json:"checkout_date"`
	DueDate      time.Time  `db:"due_date" json:"due_date"`
	ReturnDate   *time.Time `db:"return_date" json:"return_date,omitempty"`
	Status       Status     `db:"status" json:"status"`
}

// NewLoan creates a pending loan with the fixed due date policy applied.
func NewLoan(userID, bookID uuid.UUID) *Loan {
	now := time.Now().UTC()
	return &Loan{
		UserID:       userID,
		BookID:       bookID,
		CheckoutDate: now,
		DueDate:      now.Add(LoanPeriod),
		Status:       StatusPending,
	}
}

// MarkCheckedOut commits the borrow saga. Only pending loans can be committed.
func (l *Loan) MarkCheckedOut() error {
	if l.Status != StatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.Status, StatusCheckedOut)
	}
	l.Status = StatusCheckedOut
	return nil
}

// MarkFailed compensates a pending loan. Only pending loans can fail, which
// makes compensation idempotent across overlapping failure paths.
func (l *Loan) MarkFailed() error {
	if l.Status != StatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.Status, StatusFailed)
	}
	l.Status = StatusFailed
	return nil
}

// MarkReturned records the return of a checked out loan.
func (l *Loan) MarkReturned(at time.Time) error {
	if l.Status != StatusCheckedOut {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.Status, StatusReturned)
	}
	l.Status = StatusReturned
	l.ReturnDate = &at
	return nil
}

// RollbackReturn undoes MarkReturned when the inventory update fails, so the
// return can be retried later.
func (l *Loan) RollbackReturn() error {
	if l.Status != StatusReturned {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.Status, StatusCheckedOut)
	}
	l.Status = StatusCheckedOut
	l.ReturnDate = nil
	return nil
}

// IsOverdue reports whether a checked out loan is past its due date.
func (l *Loan) IsOverdue(now time.Time) bool {
	return l.Status == StatusCheckedOut && now.After(l.DueDate)
}

// DaysUntilDue returns the whole days remaining before the due date. It is
// negative once the loan is overdue and zero for non-active loans.
func (l *Loan) DaysUntilDue(now time.Time) int {
	if l.Status != StatusCheckedOut {
		return 0
	}
	return int(l.DueDate.Sub(now).Hours() / 24)
}

// LoanView is the projection of a loan returned to callers.
type LoanView struct {
	LoanID       uuid.UUID  `json:"loan_id"`
	UserID       uuid.UUID  `json:"user_id"`
	BookID       uuid.UUID  `json:"book_id"`
	CheckoutDate time.Time  `json:"checkout_date"`
	DueDate      time.Time  `json:"due_date"`
	ReturnDate   *time.Time `json:"return_date,omitempty"`
	Status       Status     `json:"status"`
	IsOverdue    bool       `json:"is_overdue"`
	DaysUntilDue int        `json:"days_until_due"`
}

// View projects the loan for callers, computing the due date fields at now.
func (l *Loan) View(now time.Time) *LoanView {
	return &LoanView{
		LoanID:       l.ID,
		UserID:       l.UserID,
		BookID:       l.BookID,
		CheckoutDate: l.CheckoutDate,
		DueDate:      l.DueDate,
		ReturnDate:   l.ReturnDate,
		Status:       l.Status,
		IsOverdue:    l.IsOverdue(now),
		DaysUntilDue: l.DaysUntilDue(now),
	}
}

// internal/loans/implementation.go
package loans

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"libhub/internal/middleware"
)

// service implements the Service interface. Both sagas run sequentially
// inside the caller's request context; the loan row is the saga's durable
// log, so every status transition is persisted before the next remote call.
type service struct {
	store   LoanStore
	catalog Catalog
	logger  zerolog.Logger
	tracer  trace.Tracer
}

// NewService creates a new loan service instance.
func NewService(store LoanStore, catalog Catalog, logger zerolog.Logger) Service {
	return &service{
		store:   store,
		catalog: catalog,
		logger:  logger.With().Str("component", "loans").Logger(),
		tracer:  otel.Tracer("libhub/internal/loans"),
	}
}

// BorrowBook orchestrates the borrow saga: fast-fail on the loan limit, persist
// a pending loan, reserve a copy through the catalog service, then commit.
// Any failure after the pending write compensates the loan to Failed before
// the error escapes.
//
// The limit check and the CheckedOut commit are not atomic across concurrent
// requests by the same user; the store would have to enforce the limit
// transactionally to close that window.
func (s *service) BorrowBook(ctx context.Context, userID, bookID uuid.UUID) (*LoanView, error) {
	ctx, span := s.tracer.Start(ctx, "loans.BorrowBook")
	defer span.End()

	log := s.logger.With().
		Str("correlation_id", middleware.CorrelationID(ctx)).
		Stringer("user_id", userID).
		Stringer("book_id", bookID).
		Logger()
	log.Info().Msg("borrow saga started")

	active, err := s.store.CountActiveForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count active loans for user %s: %w", userID, err)
	}
	if active >= MaxActiveLoans {
		log.Warn().Int("active_loans", active).Msg("borrow rejected, loan limit reached")
		return nil, ErrLoanLimitReached
	}

	loan := NewLoan(userID, bookID)
	if err := s.store.Add(ctx, loan); err != nil {
		return nil, fmt.Errorf("failed to create pending loan: %w", err)
	}
	log = log.With().Stringer("loan_id", loan.ID).Logger()
	log.Info().Msg("pending loan recorded")

	if err := s.reserveCopy(ctx, loan, log); err != nil {
		s.failPending(ctx, loan, log)
		return nil, err
	}

	if err := loan.MarkCheckedOut(); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, loan); err != nil {
		return nil, fmt.Errorf("failed to commit loan %s: %w", loan.ID, err)
	}

	log.Info().Time("due_date", loan.DueDate).Msg("borrow saga committed")
	return loan.View(time.Now().UTC()), nil
}

// reserveCopy checks availability and decrements stock. A book reporting zero
// copies is a business failure, not a retryable fault.
func (s *service) reserveCopy(ctx context.Context, loan *Loan, log zerolog.Logger) error {
	book, err := s.catalog.GetBook(ctx, loan.BookID)
	if err != nil {
		return fmt.Errorf("failed to get book %s: %w", loan.BookID, err)
	}
	if !book.IsAvailable || book.AvailableCopies <= 0 {
		log.Warn().Msg("book not available")
		return ErrBookUnavailable
	}
	log.Info().Int("available_copies", book.AvailableCopies).Msg("book availability confirmed")

	if err := s.catalog.DecrementStock(ctx, loan.BookID); err != nil {
		return fmt.Errorf("failed to decrement stock for book %s: %w", loan.BookID, err)
	}
	log.Info().Msg("stock decremented")
	return nil
}

// failPending is the borrow saga's compensation. Only Pending -> Failed is
// legal, so a loan compensated by an earlier path is left untouched. The
// status write runs on a cancellation-free context: the store must reflect
// the exact saga progress even when the caller has gone away.
func (s *service) failPending(ctx context.Context, loan *Loan, log zerolog.Logger) {
	if loan.Status != StatusPending {
		return
	}
	if err := loan.MarkFailed(); err != nil {
		log.Error().Err(err).Msg("failed to mark loan as failed")
		return
	}
	if err := s.store.Update(context.WithoutCancel(ctx), loan); err != nil {
		log.Error().Err(err).Msg("failed to persist loan compensation")
		return
	}
	log.Warn().Msg("compensation applied, loan marked failed")
}

// ReturnBook orchestrates the return saga. The local "book is returned" fact
// commits first; if the inventory update then fails, the loan rolls back to
// CheckedOut so the return can be retried, and the error is surfaced.
func (s *service) ReturnBook(ctx context.Context, loanID uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "loans.ReturnBook")
	defer span.End()

	log := s.logger.With().
		Str("correlation_id", middleware.CorrelationID(ctx)).
		Stringer("loan_id", loanID).
		Logger()
	log.Info().Msg("return saga started")

	loan, err := s.store.GetByID(ctx, loanID)
	if err != nil {
		return err
	}
	if loan.Status == StatusReturned {
		return ErrAlreadyReturned
	}

	if err := loan.MarkReturned(time.Now().UTC()); err != nil {
		return err
	}
	if err := s.store.Update(ctx, loan); err != nil {
		return fmt.Errorf("failed to persist return of loan %s: %w", loanID, err)
	}
	log.Info().Msg("loan marked returned")

	if err := s.catalog.IncrementStock(ctx, loan.BookID); err != nil {
		s.rollbackReturn(ctx, loan, log)
		return fmt.Errorf("failed to increment stock for book %s: %w", loan.BookID, err)
	}

	log.Info().Stringer("book_id", loan.BookID).Msg("return saga completed")
	return nil
}

// rollbackReturn is the return saga's compensation, the inverse of the borrow
// path: the local mutation happened first, so it is undone when the remote
// call fails.
func (s *service) rollbackReturn(ctx context.Context, loan *Loan, log zerolog.Logger) {
	if err := loan.RollbackReturn(); err != nil {
		log.Error().Err(err).Msg("failed to roll back return")
		return
	}
	if err := s.store.Update(context.WithoutCancel(ctx), loan); err != nil {
		log.Error().Err(err).Msg("failed to persist return rollback")
		return
	}
	log.Warn().Msg("loan reverted to checked out")
}

// GetLoan returns one loan's projection.
func (s *service) GetLoan(ctx context.Context, loanID uuid.UUID) (*LoanView, error) {
	loan, err := s.store.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return loan.View(time.Now().UTC()), nil
}

// ListUserLoans returns the user's full borrowing history.
func (s *service) ListUserLoans(ctx context.Context, userID uuid.UUID) ([]*LoanView, error) {
	loans, err := s.store.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans for user %s: %w", userID, err)
	}
	return projectAll(loans), nil
}

// ListActiveLoans returns every currently checked out loan.
func (s *service) ListActiveLoans(ctx context.Context) ([]*LoanView, error) {
	loans, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active loans: %w", err)
	}
	return projectAll(loans), nil
}

func projectAll(loans []*Loan) []*LoanView {
	now := time.Now().UTC()
	views := make([]*LoanView, 0, len(loans))
	for _, loan := range loans {
		views = append(views, loan.View(now))
	}
	return views
}

// internal/loans/postgres.go
package loans

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PostgresStore implements LoanStore against the loans table:
//
//	CREATE TABLE loans (
//		id            UUID PRIMARY KEY,
//		user_id       UUID NOT NULL,
//		book_id       UUID NOT NULL,
//		checkout_date TIMESTAMPTZ NOT NULL,
//		due_date      TIMESTAMPTZ NOT NULL,
//		return_date   TIMESTAMPTZ,
//		status        TEXT NOT NULL
//	);
//	CREATE INDEX loans_user_status_idx ON loans (user_id, status);
type PostgresStore struct {
	db      *sqlx.DB
	dialect goqu.DialectWrapper
}

// NewPostgresStore creates a loan store on the given database handle.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{
		db:      db,
		dialect: goqu.Dialect("postgres"),
	}
}

// Add persists a new loan and assigns its ID.
func (s *PostgresStore) Add(ctx context.Context, loan *Loan) error {
	loan.ID = uuid.New()

	query, args, err := s.dialect.Insert("loans").Rows(goqu.Record{
		"id":            loan.ID,
		"user_id":       loan.UserID,
		"book_id":       loan.BookID,
		"checkout_date": loan.CheckoutDate,
		"due_date":      loan.DueDate,
		"return_date":   loan.ReturnDate,
		"status":        string(loan.Status),
	}).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert loan: %w", err)
	}
	return nil
}

// Update persists the loan's current state.
func (s *PostgresStore) Update(ctx context.Context, loan *Loan) error {
	query, args, err := s.dialect.Update("loans").Set(goqu.Record{
		"return_date": loan.ReturnDate,
		"status":      string(loan.Status),
	}).Where(goqu.Ex{"id": loan.ID}).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update loan %s: %w", loan.ID, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrLoanNotFound
	}
	return nil
}

// GetByID loads one loan, returning ErrLoanNotFound when absent.
func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*Loan, error) {
	query, args, err := s.selectLoans().Where(goqu.Ex{"id": id}).Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	var loan Loan
	if err := s.db.GetContext(ctx, &loan, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to get loan %s: %w", id, err)
	}
	return &loan, nil
}

// CountActiveForUser counts the user's CheckedOut loans.
func (s *PostgresStore) CountActiveForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	query, args, err := s.dialect.From("loans").
		Select(goqu.COUNT("*")).
		Where(goqu.Ex{"user_id": userID, "status": string(StatusCheckedOut)}).
		Prepared(true).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("failed to build count query: %w", err)
	}

	var count int
	if err := s.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count active loans for user %s: %w", userID, err)
	}
	return count, nil
}

// ListForUser returns the user's loans, newest first.
func (s *PostgresStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]*Loan, error) {
	query, args, err := s.selectLoans().
		Where(goqu.Ex{"user_id": userID}).
		Order(goqu.I("checkout_date").Desc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build list query: %w", err)
	}
	return s.queryLoans(ctx, query, args...)
}

// ListActive returns every CheckedOut loan, newest first.
func (s *PostgresStore) ListActive(ctx context.Context) ([]*Loan, error) {
	query, args, err := s.selectLoans().
		Where(goqu.Ex{"status": string(StatusCheckedOut)}).
		Order(goqu.I("checkout_date").Desc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build list query: %w", err)
	}
	return s.queryLoans(ctx, query, args...)
}

func (s *PostgresStore) selectLoans() *goqu.SelectDataset {
	return s.dialect.From("loans").
		Select("id", "user_id", "book_id", "checkout_date", "due_date", "return_date", "status")
}

func (s *PostgresStore) queryLoans(ctx context.Context, query string, args ...interface{}) ([]*Loan, error) {
	var loans []*Loan
	if err := s.db.SelectContext(ctx, &loans, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query loans: %w", err)
	}
	return loans, nil
}

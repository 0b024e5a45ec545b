// internal/loans/saga_e2e_test.go
package loans

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libhub/internal/clients"
	"libhub/internal/discovery"
)

// fakeCatalog is an in-process catalog service with atomic stock adjustment:
// decrements are rejected once no copies remain.
type fakeCatalog struct {
	mu    sync.Mutex
	stock map[uuid.UUID]int

	// staleReads makes GET report one available copy regardless of stock,
	// simulating a concurrent borrower winning the race between the
	// availability check and the decrement.
	staleReads bool
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{stock: make(map[uuid.UUID]int)}
}

func (f *fakeCatalog) handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/api/books/{bookID}", func(w http.ResponseWriter, req *http.Request) {
		bookID, err := uuid.Parse(chi.URLParam(req, "bookID"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		copies, ok := f.stock[bookID]
		if f.staleReads && copies == 0 {
			copies = 1
		}
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"book_id":          bookID,
			"available_copies": copies,
			"is_available":     copies > 0,
		})
	})
	r.Put("/api/books/{bookID}/stock", func(w http.ResponseWriter, req *http.Request) {
		bookID, err := uuid.Parse(chi.URLParam(req, "bookID"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var body struct {
			ChangeAmount int `json:"change_amount"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		copies, ok := f.stock[bookID]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if copies+body.ChangeAmount < 0 {
			w.WriteHeader(http.StatusConflict)
			return
		}
		f.stock[bookID] = copies + body.ChangeAmount
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func (f *fakeCatalog) copies(bookID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stock[bookID]
}

// startSaga wires a real catalog client against the fake catalog through a
// static resolver, exactly as the loans service composes them.
func startSaga(t *testing.T, store LoanStore) (Service, *fakeCatalog) {
	t.Helper()
	catalog := newFakeCatalog()
	server := httptest.NewServer(catalog.handler())
	t.Cleanup(server.Close)

	serverURL, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(serverURL.Port())
	require.NoError(t, err)

	resolver := discovery.StaticResolver{
		"catalog-service": discovery.Instance{
			Name:   "catalog-service",
			Scheme: "http",
			Host:   serverURL.Hostname(),
			Port:   port,
		},
	}
	client := clients.NewCatalogClient(resolver, "catalog-service", zerolog.Nop())
	return NewService(store, client, zerolog.Nop()), catalog
}

func TestBorrowAndReturnEndToEnd(t *testing.T) {
	store := newMemStore()
	userID := uuid.New()
	store.seed(userID, uuid.New(), StatusCheckedOut)
	store.seed(userID, uuid.New(), StatusCheckedOut)

	svc, catalog := startSaga(t, store)
	bookID := uuid.New()
	catalog.stock[bookID] = 3

	view, err := svc.BorrowBook(context.Background(), userID, bookID)
	require.NoError(t, err)
	assert.Equal(t, StatusCheckedOut, view.Status)
	assert.Equal(t, view.CheckoutDate.Add(LoanPeriod), view.DueDate)
	assert.Equal(t, 2, catalog.copies(bookID))

	require.NoError(t, svc.ReturnBook(context.Background(), view.LoanID))
	assert.Equal(t, 3, catalog.copies(bookID))

	returned, err := svc.GetLoan(context.Background(), view.LoanID)
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, returned.Status)
	assert.NotNil(t, returned.ReturnDate)
}

func TestBorrowEndToEndLimitReached(t *testing.T) {
	store := newMemStore()
	userID := uuid.New()
	for i := 0; i < MaxActiveLoans; i++ {
		store.seed(userID, uuid.New(), StatusCheckedOut)
	}

	svc, catalog := startSaga(t, store)
	bookID := uuid.New()
	catalog.stock[bookID] = 1

	_, err := svc.BorrowBook(context.Background(), userID, bookID)
	require.ErrorIs(t, err, ErrLoanLimitReached)

	assert.Equal(t, MaxActiveLoans, store.len())
	assert.Equal(t, 1, catalog.copies(bookID))
}

func TestBorrowEndToEndBookOutOfStock(t *testing.T) {
	store := newMemStore()
	svc, catalog := startSaga(t, store)
	bookID := uuid.New()
	catalog.stock[bookID] = 0

	_, err := svc.BorrowBook(context.Background(), uuid.New(), bookID)
	require.ErrorIs(t, err, ErrBookUnavailable)

	assert.Equal(t, StatusFailed, store.only(t).Status)
	assert.Equal(t, 0, catalog.copies(bookID))
}

func TestBorrowEndToEndLosesRaceOnLastCopy(t *testing.T) {
	// The availability check passes on a stale read but the catalog's atomic
	// stock adjustment rejects the decrement: the saga treats the rejection
	// as a normal failure path and compensates.
	store := newMemStore()
	svc, catalog := startSaga(t, store)
	bookID := uuid.New()
	catalog.stock[bookID] = 0
	catalog.staleReads = true

	_, err := svc.BorrowBook(context.Background(), uuid.New(), bookID)
	require.Error(t, err)
	assert.ErrorContains(t, err, "failed to decrement stock")

	assert.Equal(t, StatusFailed, store.only(t).Status)
	assert.Equal(t, 0, catalog.copies(bookID))
}

func TestReturnEndToEndCatalogGone(t *testing.T) {
	store := newMemStore()
	userID := uuid.New()
	bookID := uuid.New()
	loanID := store.seed(userID, bookID, StatusCheckedOut)

	// Resolve succeeds but nothing listens on the resolved port.
	resolver := discovery.StaticResolver{
		"catalog-service": discovery.Instance{Scheme: "http", Host: "127.0.0.1", Port: 1},
	}
	client := clients.NewCatalogClient(resolver, "catalog-service", zerolog.Nop())
	svc := NewService(store, client, zerolog.Nop())

	err := svc.ReturnBook(context.Background(), loanID)
	require.Error(t, err)

	persisted, getErr := store.GetByID(context.Background(), loanID)
	require.NoError(t, getErr)
	assert.Equal(t, StatusCheckedOut, persisted.Status)
	assert.Nil(t, persisted.ReturnDate)
}

// internal/clients/catalog_client.go
package clients

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"libhub/internal/discovery"
	"libhub/internal/middleware"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Book is the catalog service's view of a title.
type Book struct {
	ID              uuid.UUID `json:"book_id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	ISBN            string    `json:"isbn"`
	AvailableCopies int       `json:"available_copies"`
	IsAvailable     bool      `json:"is_available"`
}

type stockAdjustment struct {
	ChangeAmount int `json:"change_amount"`
}

// CatalogClient presents the catalog service's availability and stock
// operations as typed local calls. The target address is resolved through the
// discovery resolver on every call, and the caller's correlation ID and
// authorization header are forwarded on every request.
type CatalogClient struct {
	resolver    discovery.Resolver
	serviceName string
	httpClient  *http.Client
	logger      zerolog.Logger
}

// NewCatalogClient creates a catalog client that resolves serviceName through
// the given resolver.
func NewCatalogClient(resolver discovery.Resolver, serviceName string, logger zerolog.Logger) *CatalogClient {
	return &CatalogClient{
		resolver:    resolver,
		serviceName: serviceName,
		httpClient:  &http.Client{},
		logger:      logger.With().Str("component", "catalog_client").Logger(),
	}
}

// GetBook fetches the current snapshot of a book.
func (c *CatalogClient) GetBook(ctx context.Context, bookID uuid.UUID) (*Book, error) {
	base, err := c.resolver.Resolve(ctx, c.serviceName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve catalog service: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/books/%s", base.URL(), bookID), nil)
	if err != nil {
		return nil, err
	}
	c.decorate(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request failed for book %s: %w", bookID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("catalog returned status %d for book %s: %s", resp.StatusCode, bookID, body)
	}

	var book Book
	if err := json.NewDecoder(resp.Body).Decode(&book); err != nil {
		return nil, fmt.Errorf("failed to decode book %s: %w", bookID, err)
	}

	return &book, nil
}

// DecrementStock removes one available copy. Any failure is a hard failure
// for the caller; the borrow saga compensates on it.
func (c *CatalogClient) DecrementStock(ctx context.Context, bookID uuid.UUID) error {
	return c.adjustStock(ctx, bookID, -1)
}

// IncrementStock restores one available copy. Failures are logged here and
// reported to the caller; the return saga decides their severity.
func (c *CatalogClient) IncrementStock(ctx context.Context, bookID uuid.UUID) error {
	if err := c.adjustStock(ctx, bookID, 1); err != nil {
		c.logger.Warn().
			Err(err).
			Str("correlation_id", middleware.CorrelationID(ctx)).
			Stringer("book_id", bookID).
			Msg("failed to increment stock")
		return err
	}
	return nil
}

func (c *CatalogClient) adjustStock(ctx context.Context, bookID uuid.UUID, delta int) error {
	base, err := c.resolver.Resolve(ctx, c.serviceName)
	if err != nil {
		return fmt.Errorf("failed to resolve catalog service: %w", err)
	}

	body, err := json.Marshal(stockAdjustment{ChangeAmount: delta})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, fmt.Sprintf("%s/api/books/%s/stock", base.URL(), bookID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.decorate(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("stock adjustment request failed for book %s: %w", bookID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("catalog returned status %d adjusting stock for book %s: %s", resp.StatusCode, bookID, respBody)
	}

	return nil
}

// decorate forwards the caller's trace token and identity so one end-user
// action stays traceable across service boundaries.
func (c *CatalogClient) decorate(req *http.Request) {
	if correlationID := middleware.CorrelationID(req.Context()); correlationID != "" {
		req.Header.Set(middleware.CorrelationHeader, correlationID)
	}
	if auth := middleware.Authorization(req.Context()); auth != "" {
		req.Header.Set("Authorization", auth)
	}
}

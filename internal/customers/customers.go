package customers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"call-relay/internal/observability"
	"call-relay/internal/roster"
)

// suffixLength is how many trailing digits two numbers must share to be
// treated as the same line when country prefixes differ.
const suffixLength = 10

// Customer is one row of the customer sheet.
type Customer struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Company string `json:"company"`
	CAEmail string `json:"ca_email"`
}

// Source supplies raw sheet rows. Rows are [name, phone, company, ca_email];
// trailing cells may be absent.
type Source interface {
	Enabled() bool
	FetchRows(ctx context.Context) ([][]interface{}, error)
}

// Directory caches customer records keyed by normalized phone number.
// Lookups never touch the sheet; Refresh replaces the cache wholesale.
type Directory struct {
	source Source
	logger *observability.Logger

	mu        sync.RWMutex
	byPhone   map[string]Customer
	bySuffix  map[string]Customer
	refreshed time.Time
}

func NewDirectory(source Source, logger *observability.Logger) *Directory {
	return &Directory{
		source:   source,
		logger:   logger,
		byPhone:  make(map[string]Customer),
		bySuffix: make(map[string]Customer),
	}
}

// Refresh fetches the sheet and swaps in a fresh cache. When the source is
// disabled the directory stays empty and lookups miss. A fetch failure keeps
// the previous cache so stale data beats no data.
func (d *Directory) Refresh(ctx context.Context) error {
	if !d.source.Enabled() {
		return nil
	}

	rows, err := d.source.FetchRows(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch customer rows: %w", err)
	}

	byPhone := make(map[string]Customer, len(rows))
	bySuffix := make(map[string]Customer, len(rows))
	for _, row := range rows {
		customer := Customer{
			Name:    cellString(row, 0),
			Phone:   cellString(row, 1),
			Company: cellString(row, 2),
			CAEmail: cellString(row, 3),
		}
		normalized := roster.NormalizePhone(customer.Phone)
		if normalized == "" {
			continue
		}
		byPhone[normalized] = customer
		if len(normalized) >= suffixLength {
			bySuffix[normalized[len(normalized)-suffixLength:]] = customer
		}
	}

	d.mu.Lock()
	d.byPhone = byPhone
	d.bySuffix = bySuffix
	d.refreshed = time.Now()
	d.mu.Unlock()

	d.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "customer_count", Value: len(byPhone)}),
		"customer directory refreshed")
	return nil
}

// Lookup resolves a phone number to a customer record. It tries an exact
// normalized match first, then falls back to matching the trailing digits so
// numbers stored with a country prefix still resolve.
func (d *Directory) Lookup(ctx context.Context, phone string) (Customer, bool) {
	normalized := roster.NormalizePhone(phone)
	if normalized == "" {
		return Customer{}, false
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if customer, ok := d.byPhone[normalized]; ok {
		return customer, true
	}
	if len(normalized) >= suffixLength {
		if customer, ok := d.bySuffix[normalized[len(normalized)-suffixLength:]]; ok {
			return customer, true
		}
	}
	return Customer{}, false
}

// Size returns the number of cached customers.
func (d *Directory) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byPhone)
}

func cellString(row []interface{}, idx int) string {
	if idx >= len(row) || row[idx] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%v", row[idx]))
}

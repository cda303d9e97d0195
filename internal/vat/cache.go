package vat

import (
	"sync"

	"github.com/forgecommerce/invoicing/internal/calculator"
)

// RateCache is a thread-safe in-memory copy of the active tax-rate catalog,
// indexed by tax code.
// Uses sync.RWMutex to allow concurrent reads while serializing writes.
type RateCache struct {
	mu    sync.RWMutex
	rates map[string]calculator.TaxRateEntry
}

// NewRateCache creates a new empty RateCache.
func NewRateCache() *RateCache {
	return &RateCache{
		rates: make(map[string]calculator.TaxRateEntry),
	}
}

// TaxRate retrieves the active entry for a tax code.
func (c *RateCache) TaxRate(code string) (calculator.TaxRateEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.rates[code]
	return entry, ok
}

// GetAll returns a copy of all cached rates.
func (c *RateCache) GetAll() map[string]calculator.TaxRateEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]calculator.TaxRateEntry, len(c.rates))
	for code, entry := range c.rates {
		result[code] = entry
	}
	return result
}

// Load replaces the entire cache with the given rows.
// Only loads rates that are currently active (ValidTo is nil).
func (c *RateCache) Load(rates []TaxRate) {
	newRates := make(map[string]calculator.TaxRateEntry, len(rates))

	for _, r := range rates {
		if r.ValidTo != nil {
			continue
		}
		newRates[r.Code] = calculator.TaxRateEntry{
			Code:        r.Code,
			Description: r.Description,
			VAT:         r.VAT,
			Surcharge:   r.Surcharge,
		}
	}

	c.mu.Lock()
	c.rates = newRates
	c.mu.Unlock()
}

// Count returns the number of tax codes in the cache.
func (c *RateCache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rates)
}

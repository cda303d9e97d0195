package calculator

import (
	"sync"

	"github.com/google/uuid"
)

// Catalog provides the lookups the calculator needs. Missing entries are
// reported with ok=false and never as errors.
type Catalog interface {
	TaxRate(code string) (TaxRateEntry, bool)
	Retention(code string) (RetentionEntry, bool)
	Tariff(code string) (TariffRule, bool)
	ZoneRules(companyID uuid.UUID) []TaxZoneRule
}

// StaticCatalog is an in-memory Catalog. The zero value is empty and ready
// to use. It is safe for concurrent use.
type StaticCatalog struct {
	mu         sync.RWMutex
	taxRates   map[string]TaxRateEntry
	retentions map[string]RetentionEntry
	tariffs    map[string]TariffRule
	zones      map[uuid.UUID][]TaxZoneRule
}

// NewStaticCatalog creates a catalog holding the given tax rates.
func NewStaticCatalog(rates ...TaxRateEntry) *StaticCatalog {
	c := &StaticCatalog{}
	for _, r := range rates {
		c.AddTaxRate(r)
	}
	return c
}

func (c *StaticCatalog) AddTaxRate(r TaxRateEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.taxRates == nil {
		c.taxRates = make(map[string]TaxRateEntry)
	}
	c.taxRates[r.Code] = r
}

func (c *StaticCatalog) AddRetention(r RetentionEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.retentions == nil {
		c.retentions = make(map[string]RetentionEntry)
	}
	c.retentions[r.Code] = r
}

func (c *StaticCatalog) AddTariff(r TariffRule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tariffs == nil {
		c.tariffs = make(map[string]TariffRule)
	}
	c.tariffs[r.Code] = r
}

func (c *StaticCatalog) AddZoneRule(companyID uuid.UUID, r TaxZoneRule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.zones == nil {
		c.zones = make(map[uuid.UUID][]TaxZoneRule)
	}
	c.zones[companyID] = append(c.zones[companyID], r)
}

func (c *StaticCatalog) TaxRate(code string) (TaxRateEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.taxRates[code]
	return r, ok
}

func (c *StaticCatalog) Retention(code string) (RetentionEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.retentions[code]
	return r, ok
}

func (c *StaticCatalog) Tariff(code string) (TariffRule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.tariffs[code]
	return r, ok
}

func (c *StaticCatalog) ZoneRules(companyID uuid.UUID) []TaxZoneRule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rules := c.zones[companyID]
	out := make([]TaxZoneRule, len(rules))
	copy(out, rules)
	return out
}

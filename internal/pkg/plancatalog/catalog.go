package plancatalog

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Interval string

const (
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

const (
	PlanBasic         = "BASIC"
	PlanPremium       = "PREMIUM"
	PlanPremiumAnnual = "PREMIUM_ANNUAL"
)

var ErrPlanNotFound = errors.New("plan not found")

// PlanDefinition describes a purchasable plan. Prices are minor currency units.
type PlanDefinition struct {
	ID          string   `yaml:"id" json:"id" validate:"required,max=64"`
	DisplayName string   `yaml:"display_name" json:"display_name" validate:"required"`
	PriceMinor  int64    `yaml:"price_minor" json:"price_minor" validate:"gte=0"`
	Currency    string   `yaml:"currency" json:"currency" validate:"required,len=3,uppercase"`
	Interval    Interval `yaml:"interval" json:"interval" validate:"required,oneof=month year"`
	Features    []string `yaml:"features" json:"features"`
}

// PeriodEnd returns the end of one billing interval starting at start.
func (p PlanDefinition) PeriodEnd(start time.Time) time.Time {
	switch p.Interval {
	case IntervalYear:
		return AddMonths(start, 12)
	default:
		return AddMonths(start, 1)
	}
}

// Catalog is an immutable plan table. Safe for concurrent use.
type Catalog struct {
	plans map[string]PlanDefinition
}

var validate = validator.New()

// New validates the definitions and builds a catalog keyed by upper-cased id.
func New(defs []PlanDefinition) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, errors.New("plan catalog is empty")
	}
	plans := make(map[string]PlanDefinition, len(defs))
	for _, d := range defs {
		d.ID = normalizeID(d.ID)
		d.Currency = strings.ToUpper(strings.TrimSpace(d.Currency))
		d.Interval = Interval(strings.ToLower(strings.TrimSpace(string(d.Interval))))
		if err := validate.Struct(d); err != nil {
			return nil, fmt.Errorf("invalid plan %q: %w", d.ID, err)
		}
		if _, dup := plans[d.ID]; dup {
			return nil, fmt.Errorf("duplicate plan %q", d.ID)
		}
		d.Features = append([]string(nil), d.Features...)
		plans[d.ID] = d
	}
	return &Catalog{plans: plans}, nil
}

// Default returns the built-in plan table.
func Default() *Catalog {
	c, err := New(defaultPlans())
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads a YAML plan file. An empty path yields the built-in table.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan catalog: %w", err)
	}
	return Parse(raw)
}

// Parse builds a catalog from YAML of the form `plans: [...]`.
func Parse(raw []byte) (*Catalog, error) {
	var doc struct {
		Plans []PlanDefinition `yaml:"plans"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse plan catalog: %w", err)
	}
	return New(doc.Plans)
}

// Lookup resolves a plan id case-insensitively.
func (c *Catalog) Lookup(planID string) (PlanDefinition, error) {
	p, ok := c.plans[normalizeID(planID)]
	if !ok {
		return PlanDefinition{}, fmt.Errorf("%w: %q", ErrPlanNotFound, planID)
	}
	p.Features = append([]string(nil), p.Features...)
	return p, nil
}

// IDs lists plan ids in sorted order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.plans))
	for id := range c.plans {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func normalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

func defaultPlans() []PlanDefinition {
	return []PlanDefinition{
		{
			ID:          PlanBasic,
			DisplayName: "Basic",
			PriceMinor:  900,
			Currency:    "EUR",
			Interval:    IntervalMonth,
			Features:    []string{"contacts", "invoices"},
		},
		{
			ID:          PlanPremium,
			DisplayName: "Premium",
			PriceMinor:  2900,
			Currency:    "EUR",
			Interval:    IntervalMonth,
			Features:    []string{"contacts", "invoices", "automations", "reports"},
		},
		{
			ID:          PlanPremiumAnnual,
			DisplayName: "Premium (annual)",
			PriceMinor:  29000,
			Currency:    "EUR",
			Interval:    IntervalYear,
			Features:    []string{"contacts", "invoices", "automations", "reports"},
		},
	}
}

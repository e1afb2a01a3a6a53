package billing

import (
	"fmt"
	"os"
	"sort"

	"github.com/sethmwebi/medrin-jobs-backend/app/models"

	"gopkg.in/yaml.v3"
)

// PlanSpec is one row of the plan catalog.
type PlanSpec struct {
	Name       models.Plan `yaml:"name"`
	PriceID    string      `yaml:"price_id"`    // Stripe recurring price
	CardPrice  int64       `yaml:"card_price"`  // cents
	LocalPrice int64       `yaml:"local_price"` // KES, whole shillings
	Quota      int         `yaml:"quota"`
	Unlimited  bool        `yaml:"unlimited"`
	TermMonths int         `yaml:"term_months"`
	AutoRenews bool        `yaml:"auto_renews"`
}

// RenewalMonths is the extension granted by a sweep; 0 means the plan lapses.
func (p PlanSpec) RenewalMonths() int {
	if !p.AutoRenews {
		return 0
	}
	return p.TermMonths
}

// Catalog maps plan names to their price, quota and term.
type Catalog struct {
	plans map[models.Plan]PlanSpec
}

type catalogFile struct {
	Plans []PlanSpec `yaml:"plans"`
}

// DefaultCatalog is the compiled-in plan table.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog([]PlanSpec{
		{Name: models.PlanFreeTrial, Quota: 3, TermMonths: 1},
		{Name: models.PlanBasic, PriceID: "price_1QLrobB4ye5lKzaRFZjaZrX3", CardPrice: 1000, LocalPrice: 500, Quota: 5, TermMonths: 1, AutoRenews: true},
		{Name: models.PlanPro, PriceID: "price_1QLrpTB4ye5lKzaRc0uDnzyh", CardPrice: 2500, LocalPrice: 1000, Quota: 10, TermMonths: 1, AutoRenews: true},
		{Name: models.PlanEnterprise, PriceID: "price_1QLrtcB4ye5lKzaRMfziUjz5", CardPrice: 10000, LocalPrice: 5000, Unlimited: true, TermMonths: 1, AutoRenews: true},
	})
	if err != nil {
		panic(err)
	}
	return c
}

// NewCatalog validates specs and builds a catalog.
func NewCatalog(specs []PlanSpec) (*Catalog, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("plan catalog is empty")
	}
	plans := make(map[models.Plan]PlanSpec, len(specs))
	localPrices := map[int64]models.Plan{}
	for _, p := range specs {
		if p.Name == "" {
			return nil, fmt.Errorf("plan catalog entry missing name")
		}
		if _, dup := plans[p.Name]; dup {
			return nil, fmt.Errorf("plan %s listed twice", p.Name)
		}
		if p.Quota < 0 || p.CardPrice < 0 || p.LocalPrice < 0 {
			return nil, fmt.Errorf("plan %s has a negative quota or price", p.Name)
		}
		if p.TermMonths <= 0 {
			return nil, fmt.Errorf("plan %s must have a positive term", p.Name)
		}
		if p.LocalPrice > 0 {
			if other, dup := localPrices[p.LocalPrice]; dup {
				return nil, fmt.Errorf("plans %s and %s share local price %d", other, p.Name, p.LocalPrice)
			}
			localPrices[p.LocalPrice] = p.Name
		}
		plans[p.Name] = p
	}
	return &Catalog{plans: plans}, nil
}

// LoadCatalog reads a YAML plan table from path. An empty path yields the defaults.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan catalog: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse plan catalog: %w", err)
	}
	return NewCatalog(f.Plans)
}

// Lookup returns the spec for plan or a validation error.
func (c *Catalog) Lookup(plan models.Plan) (PlanSpec, error) {
	p, ok := c.plans[plan]
	if !ok {
		return PlanSpec{}, validationError("plan_lookup", fmt.Sprintf("unknown plan %q", plan))
	}
	return p, nil
}

// PriceID returns the Stripe price for plan.
func (c *Catalog) PriceID(plan models.Plan) (string, error) {
	p, err := c.Lookup(plan)
	if err != nil {
		return "", err
	}
	if p.PriceID == "" {
		return "", validationError("plan_lookup", fmt.Sprintf("plan %q cannot be purchased by card", plan))
	}
	return p.PriceID, nil
}

// PlanForLocalAmount finds the plan whose local price equals amount.
func (c *Catalog) PlanForLocalAmount(amount int64) (PlanSpec, error) {
	if amount > 0 {
		for _, p := range c.plans {
			if p.LocalPrice == amount {
				return p, nil
			}
		}
	}
	return PlanSpec{}, validationError("plan_lookup", fmt.Sprintf("no plan priced at %d", amount))
}

// Plans lists the catalog ordered by local price.
func (c *Catalog) Plans() []PlanSpec {
	out := make([]PlanSpec, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LocalPrice == out[j].LocalPrice {
			return out[i].Name < out[j].Name
		}
		return out[i].LocalPrice < out[j].LocalPrice
	})
	return out
}

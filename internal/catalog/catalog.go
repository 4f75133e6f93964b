package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Category string

const (
	CategoryUser      Category = "user"
	CategoryAgent     Category = "agent"
	CategoryExhibitor Category = "exhibitor"
	CategorySponsor   Category = "sponsor"
)

// RequiresOrganization reports whether registrants of this category must
// name the organization they represent.
func (c Category) RequiresOrganization() bool {
	switch c {
	case CategoryAgent, CategoryExhibitor, CategorySponsor:
		return true
	}
	return false
}

func (c Category) Valid() bool {
	return c == CategoryUser || c.RequiresOrganization()
}

type Product struct {
	ID       string   `yaml:"id" json:"id"`
	Label    string   `yaml:"label" json:"label"`
	Amount   Money    `yaml:"amount" json:"amount"`
	Currency string   `yaml:"currency" json:"currency"`
	Category Category `yaml:"category" json:"category"`
	Tier     string   `yaml:"tier,omitempty" json:"tier,omitempty"`
}

type AddOn struct {
	ID              string `yaml:"id" json:"id"`
	Name            string `yaml:"name" json:"name"`
	LocalPrice      int64  `yaml:"local_price" json:"local_price"`
	LocalCurrency   string `yaml:"-" json:"local_currency"`
	SettlementPrice Money  `yaml:"settlement_price" json:"settlement_price"`
	Description     string `yaml:"description" json:"description"`
}

type Event struct {
	Name         string `yaml:"name" json:"name"`
	Date         string `yaml:"date" json:"date"`
	Venue        string `yaml:"venue" json:"venue"`
	SupportEmail string `yaml:"support_email" json:"support_email"`
}

type Catalog struct {
	Event         Event     `yaml:"event" json:"event"`
	Currency      string    `yaml:"currency" json:"currency"`
	LocalCurrency string    `yaml:"local_currency" json:"local_currency"`
	Products      []Product `yaml:"products" json:"products"`
	AddOns        []AddOn   `yaml:"add_ons" json:"add_ons"`

	products map[string]Product
	addOns   map[string]AddOn
}

var (
	ErrUnknownProduct = errors.New("unknown registration product")
	ErrUnknownAddOn   = errors.New("unknown add-on")
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// Load reads a catalog file; an empty path yields the embedded default.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if c.Currency == "" {
		c.Currency = "USD"
	}
	if c.LocalCurrency == "" {
		c.LocalCurrency = "VND"
	}
	c.products = make(map[string]Product, len(c.Products))
	for i := range c.Products {
		p := &c.Products[i]
		if p.ID == "" {
			return nil, fmt.Errorf("product #%d has no id", i+1)
		}
		if _, dup := c.products[p.ID]; dup {
			return nil, fmt.Errorf("duplicate product %q", p.ID)
		}
		if !p.Category.Valid() {
			return nil, fmt.Errorf("product %q has invalid category %q", p.ID, p.Category)
		}
		if p.Amount < 0 {
			return nil, fmt.Errorf("product %q has negative amount", p.ID)
		}
		if p.Currency == "" {
			p.Currency = c.Currency
		}
		if p.Currency != c.Currency {
			return nil, fmt.Errorf("product %q is priced in %s, catalog settles in %s", p.ID, p.Currency, c.Currency)
		}
		c.products[p.ID] = *p
	}
	c.addOns = make(map[string]AddOn, len(c.AddOns))
	for i := range c.AddOns {
		a := &c.AddOns[i]
		if a.ID == "" {
			return nil, fmt.Errorf("add-on #%d has no id", i+1)
		}
		if _, dup := c.addOns[a.ID]; dup {
			return nil, fmt.Errorf("duplicate add-on %q", a.ID)
		}
		if a.SettlementPrice < 0 {
			return nil, fmt.Errorf("add-on %q has negative price", a.ID)
		}
		a.LocalCurrency = c.LocalCurrency
		c.addOns[a.ID] = *a
	}
	if len(c.products) == 0 {
		return nil, fmt.Errorf("catalog has no products")
	}
	return &c, nil
}

func (c *Catalog) Product(id string) (Product, bool) {
	p, ok := c.products[id]
	return p, ok
}

func (c *Catalog) AddOn(id string) (AddOn, bool) {
	a, ok := c.addOns[id]
	return a, ok
}

// Quote is the priced selection for one registration attempt.
type Quote struct {
	Product  Product `json:"product"`
	AddOns   []AddOn `json:"add_ons"`
	Total    Money   `json:"total"`
	Currency string  `json:"currency"`
}

func (q Quote) AddOnIDs() []string {
	out := make([]string, 0, len(q.AddOns))
	for _, a := range q.AddOns {
		out = append(out, a.ID)
	}
	return out
}

func (q Quote) PaymentRequired() bool { return q.Total.Positive() }

// Quote prices a product plus add-ons in the settlement currency.
// Repeated add-on ids are counted once.
func (c *Catalog) Quote(productID string, addOnIDs []string) (Quote, error) {
	p, ok := c.products[productID]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %q", ErrUnknownProduct, productID)
	}
	q := Quote{Product: p, AddOns: make([]AddOn, 0, len(addOnIDs)), Total: p.Amount, Currency: c.Currency}
	seen := make(map[string]bool, len(addOnIDs))
	for _, id := range addOnIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		a, ok := c.addOns[id]
		if !ok {
			return Quote{}, fmt.Errorf("%w: %q", ErrUnknownAddOn, id)
		}
		q.AddOns = append(q.AddOns, a)
		q.Total += a.SettlementPrice
	}
	return q, nil
}

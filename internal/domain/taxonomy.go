package domain

// TaxonomyEntry is one node of the fixed five-level category hierarchy.
type TaxonomyEntry struct {
	ID            int
	Section       string
	Tier1         string
	Tier2         string
	Tier3         string
	Tier4         string
	Tier5         string
	GroupingKey   string
	GroupingValue string
}

// TaxonomyLookup resolves a taxonomy id to its hierarchy entry. The dictionary
// itself lives outside this service; injecting the lookup keeps the
// reconciliation engine and selector testable with fixture taxonomies.
type TaxonomyLookup interface {
	Lookup(id int) (TaxonomyEntry, bool)
}

// StaticTaxonomy is a map-backed TaxonomyLookup for fixtures and local runs.
type StaticTaxonomy map[int]TaxonomyEntry

func (t StaticTaxonomy) Lookup(id int) (TaxonomyEntry, bool) {
	e, ok := t[id]
	return e, ok
}

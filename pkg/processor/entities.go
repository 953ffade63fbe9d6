package processor

// Group buckets entities by load order: dimensions land before facts.
type Group string

const (
	GroupDimensions Group = "dimensions"
	GroupFacts      Group = "facts"
)

// EntitySpec describes one extractable entity: its API name, target
// table, scheduling group, and extraction shape.
type EntitySpec struct {
	Name         string
	Table        string
	Group        Group
	Incremental  bool
	PredictSmall bool
	DependsOn    []string
}

// catalog is ordered dimensions first, then facts, matching the load
// dependency between them.
var catalog = []EntitySpec{
	{Name: "customer", Table: "customer", Group: GroupDimensions, Incremental: true, PredictSmall: true},
	{Name: "employee", Table: "employee", Group: GroupDimensions, Incremental: false, PredictSmall: true},
	{Name: "office", Table: "office", Group: GroupDimensions, Incremental: false, PredictSmall: true},
	{Name: "appointment", Table: "appointment", Group: GroupFacts, Incremental: true, DependsOn: []string{"customer", "employee", "office"}},
	{Name: "subscription", Table: "subscription", Group: GroupFacts, Incremental: true, DependsOn: []string{"customer", "office"}},
	{Name: "payment", Table: "payment", Group: GroupFacts, Incremental: true, DependsOn: []string{"customer", "office"}},
}

// hotEntities are the high-churn facts refreshed hourly in addition to
// the nightly run.
var hotEntities = []string{"appointment", "payment"}

// Catalog returns every known entity in load order.
func Catalog() []EntitySpec {
	out := make([]EntitySpec, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds an entity by API name.
func Lookup(name string) (EntitySpec, bool) {
	for _, e := range catalog {
		if e.Name == name {
			return e, true
		}
	}
	return EntitySpec{}, false
}

// ByGroup returns the entities in a group, preserving catalog order.
func ByGroup(g Group) []EntitySpec {
	var out []EntitySpec
	for _, e := range catalog {
		if e.Group == g {
			out = append(out, e)
		}
	}
	return out
}

// HotEntities returns the entities eligible for the hourly schedule.
func HotEntities() []EntitySpec {
	out := make([]EntitySpec, 0, len(hotEntities))
	for _, name := range hotEntities {
		if e, ok := Lookup(name); ok {
			out = append(out, e)
		}
	}
	return out
}

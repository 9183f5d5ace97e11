package permissions

// Policy is a nested permission document. Each top-level key is a resource
// category; its value is either a bool (blanket allow/deny) or a further
// mapping that narrows the grant. Policies are JSON-shaped so they round-trip
// through the persisted identity document unchanged.
type Policy map[string]any

// Resource categories.
const (
	CategoryEntities      = "entities"
	CategoryConfigEntries = "config_entries"
)

// Access keys within an entity grant.
const (
	KeyRead    = "read"
	KeyControl = "control"
	KeyEdit    = "edit"
)

// Checker answers permission questions for one principal.
type Checker interface {
	// CheckEntity reports whether the given access key is granted for an
	// entity id like "light.kitchen".
	CheckEntity(entityID, key string) bool
}

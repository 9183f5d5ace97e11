package permissions

import "strings"

// PolicyChecker evaluates entity access against a merged policy document.
type PolicyChecker struct {
	policy Policy
}

// NewChecker creates a checker over the given policy.
func NewChecker(policy Policy) *PolicyChecker {
	return &PolicyChecker{policy: policy}
}

// CheckEntity resolves an entity grant. Lookup order: the exact entity id,
// then the entity's domain, then the "all" bucket. The first bucket that
// mentions the entity decides; an absent grant is a deny.
func (c *PolicyChecker) CheckEntity(entityID, key string) bool {
	entities, ok := c.policy[CategoryEntities]
	if !ok {
		return false
	}

	switch v := entities.(type) {
	case bool:
		return v
	case map[string]any:
		domain := entityID
		if i := strings.IndexByte(entityID, '.'); i > 0 {
			domain = entityID[:i]
		}
		for _, lookup := range []struct{ bucket, id string }{
			{"entity_ids", entityID},
			{"domains", domain},
			{"all", ""},
		} {
			if granted, decided := checkBucket(v[lookup.bucket], lookup.id, key); decided {
				return granted
			}
		}
	}
	return false
}

// checkBucket evaluates one grant bucket. The second return is false when the
// bucket does not apply and the next bucket should be consulted.
func checkBucket(bucket any, id, key string) (bool, bool) {
	switch v := bucket.(type) {
	case bool:
		return v, true
	case map[string]any:
		if id == "" {
			// The "all" bucket maps access keys directly.
			return keyGranted(v, key), true
		}
		entry, ok := v[id]
		if !ok {
			return false, false
		}
		switch e := entry.(type) {
		case bool:
			return e, true
		case map[string]any:
			return keyGranted(e, key), true
		}
		return false, true
	}
	return false, false
}

func keyGranted(grants map[string]any, key string) bool {
	if v, ok := grants[key].(bool); ok {
		return v
	}
	return false
}

// OwnerChecker is the checker handed to the installation owner.
type OwnerChecker struct{}

func (OwnerChecker) CheckEntity(string, string) bool { return true }

var (
	_ Checker = (*PolicyChecker)(nil)
	_ Checker = OwnerChecker{}
)

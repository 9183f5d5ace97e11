package permissions

// SystemAdminPolicy grants everything. Assigned to the built-in
// administrators group and never read from disk.
func SystemAdminPolicy() Policy {
	return Policy{
		CategoryEntities:      true,
		CategoryConfigEntries: true,
	}
}

// SystemUserPolicy grants full entity access but no configuration access.
func SystemUserPolicy() Policy {
	return Policy{
		CategoryEntities: true,
	}
}

// SystemReadOnlyPolicy grants read access to all entities and nothing else.
func SystemReadOnlyPolicy() Policy {
	return Policy{
		CategoryEntities: map[string]any{
			"all": map[string]any{
				KeyRead: true,
			},
		},
	}
}

package model

// FieldBinding maps logical attribute roles (e.g. "population", "subgroup")
// to concrete column names. It is resolved once per dataset and passed as a
// value through the pipeline; it is never re-derived mid-run.
type FieldBinding map[string]string

// Column returns the bound column name for a role, or "" if unbound.
func (b FieldBinding) Column(role string) string {
	return b[role]
}

// Has reports whether the role has a bound column.
func (b FieldBinding) Has(role string) bool {
	_, ok := b[role]
	return ok
}

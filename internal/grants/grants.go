// Package grants implements the runtime capability grant table: capability
// patterns added to a recipient at runtime via capability/grant, keyed by
// grant id, revocable by id or by pattern equality.
package grants

import "github.com/mew-run/gateway/internal/capability"

// Table is keyed recipientId -> grantId -> capability patterns.
type Table struct {
	byRecipient map[string]map[string][]capability.Pattern
}

// New builds an empty Table.
func New() *Table {
	return &Table{byRecipient: make(map[string]map[string][]capability.Pattern)}
}

// Add records a new grant for recipient, keyed by grantID (the granting
// envelope's id). Re-granting under a different grantID produces a second,
// independently revocable record; grants are never merged.
func (t *Table) Add(recipient, grantID string, patterns []capability.Pattern) {
	if _, ok := t.byRecipient[recipient]; !ok {
		t.byRecipient[recipient] = make(map[string][]capability.Pattern)
	}
	t.byRecipient[recipient][grantID] = patterns
}

// ForRecipient returns the recipient's runtime grant map (grantID ->
// patterns), for computing effective capabilities.
func (t *Table) ForRecipient(recipient string) map[string][]capability.Pattern {
	return t.byRecipient[recipient]
}

// RevokeByID removes a single grant record by id.
func (t *Table) RevokeByID(recipient, grantID string) {
	grants, ok := t.byRecipient[recipient]
	if !ok {
		return
	}
	delete(grants, grantID)
	if len(grants) == 0 {
		delete(t.byRecipient, recipient)
	}
}

// RevokeByPatterns removes, from every grant record held by recipient, any
// pattern whose canonical form equals one of patterns; empty records and
// empty recipient entries are dropped.
func (t *Table) RevokeByPatterns(recipient string, patterns []capability.Pattern) {
	grants, ok := t.byRecipient[recipient]
	if !ok {
		return
	}
	revoke := make(map[string]struct{}, len(patterns))
	for _, p := range patterns {
		revoke[p.Canonical()] = struct{}{}
	}
	for grantID, held := range grants {
		var kept []capability.Pattern
		for _, p := range held {
			if _, drop := revoke[p.Canonical()]; !drop {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			delete(grants, grantID)
		} else {
			grants[grantID] = kept
		}
	}
	if len(grants) == 0 {
		delete(t.byRecipient, recipient)
	}
}

// PurgeRecipient removes every grant record for recipient wholesale, used
// when the recipient disconnects.
func (t *Table) PurgeRecipient(recipient string) {
	delete(t.byRecipient, recipient)
}

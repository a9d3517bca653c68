package core

import (
	"cmp"
	"slices"
)

// PresenceTable holds one entry per joined connection.
// It is not safe for concurrent use; the hub guards it.
type PresenceTable struct {
	entries map[*Client]PresenceEntry
}

// NewPresenceTable returns an empty table.
func NewPresenceTable() *PresenceTable {
	return &PresenceTable{entries: make(map[*Client]PresenceEntry)}
}

// Upsert stores entry for c, replacing any previous one.
func (p *PresenceTable) Upsert(c *Client, entry PresenceEntry) {
	entry.ClientID = c.ID
	entry.Badges = slices.Clone(entry.Badges)
	p.entries[c] = entry
}

// Get returns the entry for c.
func (p *PresenceTable) Get(c *Client) (PresenceEntry, bool) {
	e, ok := p.entries[c]
	return e, ok
}

// Remove deletes the entry for c, if any.
func (p *PresenceTable) Remove(c *Client) {
	delete(p.entries, c)
}

// RefreshBadges replaces the badges of every entry for name and reports how many changed.
func (p *PresenceTable) RefreshBadges(name string, badges []string) int {
	n := 0
	for c, e := range p.entries {
		if e.IdentityName != name {
			continue
		}
		e.Badges = slices.Clone(badges)
		p.entries[c] = e
		n++
	}
	return n
}

// SnapshotAll returns a copy of every entry ordered by identity name, then connection.
func (p *PresenceTable) SnapshotAll() []PresenceEntry {
	out := make([]PresenceEntry, 0, len(p.entries))
	for _, e := range p.entries {
		e.Badges = slices.Clone(e.Badges)
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b PresenceEntry) int {
		return cmp.Or(cmp.Compare(a.IdentityName, b.IdentityName), cmp.Compare(a.ClientID, b.ClientID))
	})
	return out
}

// Len reports the number of entries.
func (p *PresenceTable) Len() int {
	return len(p.entries)
}

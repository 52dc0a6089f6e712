package perm

import (
	"fmt"
	"sort"
)

// CatalogEntry describes one capability in the permission catalog.
type CatalogEntry struct {
	Key   Key
	Label string
}

// Catalog is the immutable registry of every permission key the portal knows
// about. It is built once at process start and shared by every validator and
// by the admin full-access bypass. No call site keeps its own key list.
type Catalog struct {
	entries map[Key]CatalogEntry
	ordered []Key
}

// NewCatalog builds a catalog from the given entries. Duplicate keys are an error.
func NewCatalog(entries []CatalogEntry) (*Catalog, error) {
	c := &Catalog{entries: make(map[Key]CatalogEntry, len(entries))}
	for _, e := range entries {
		if e.Key.IsZero() {
			return nil, fmt.Errorf("%w: catalog entry without key", ErrInvalidInput)
		}
		if _, dup := c.entries[e.Key]; dup {
			return nil, fmt.Errorf("%w: duplicate catalog key %s", ErrInvalidInput, e.Key)
		}
		c.entries[e.Key] = e
		c.ordered = append(c.ordered, e.Key)
	}
	sort.Slice(c.ordered, func(i, j int) bool {
		return c.ordered[i].String() < c.ordered[j].String()
	})
	return c, nil
}

// DefaultCatalog returns the portal's fixed permission table.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog([]CatalogEntry{
		{Key: MustKey("documents.view_all"), Label: "View all documents"},
		{Key: MustKey("documents.create"), Label: "Create documents"},
		{Key: MustKey("documents.edit_all"), Label: "Edit all documents"},
		{Key: MustKey("documents.delete_all"), Label: "Delete all documents"},
		{Key: MustKey("documents.approve"), Label: "Approve documents"},
		{Key: MustKey("documents.share"), Label: "Share documents"},
		{Key: MustKey("categories.view_all"), Label: "View all categories"},
		{Key: MustKey("categories.create"), Label: "Create categories"},
		{Key: MustKey("categories.edit"), Label: "Edit categories"},
		{Key: MustKey("categories.delete"), Label: "Delete categories"},
		{Key: MustKey("categories.assign"), Label: "Assign categories"},
		{Key: MustKey("departments.view_all"), Label: "View all departments"},
		{Key: MustKey("departments.manage"), Label: "Manage departments"},
		{Key: MustKey("departments.assign_users"), Label: "Assign users to departments"},
		{Key: MustKey("departments.view_employees"), Label: "View department employees"},
		{Key: MustKey("users.view_all"), Label: "View all users"},
		{Key: MustKey("users.create"), Label: "Create users"},
		{Key: MustKey("users.edit"), Label: "Edit users"},
		{Key: MustKey("users.deactivate"), Label: "Deactivate users"},
		{Key: MustKey("users.assign_roles"), Label: "Assign user roles"},
		{Key: MustKey("system.admin_settings"), Label: "Administer system settings"},
		{Key: MustKey("system.view_analytics"), Label: "View analytics"},
		{Key: MustKey("system.manage_settings"), Label: "Manage system settings"},
		{Key: MustKey("system.backup"), Label: "Run system backups"},
	})
	if err != nil {
		panic(err)
	}
	return c
}

// Contains reports whether the key is part of the catalog.
func (c *Catalog) Contains(key Key) bool {
	_, ok := c.entries[key]
	return ok
}

// Entry returns the catalog entry for a key.
func (c *Catalog) Entry(key Key) (CatalogEntry, bool) {
	e, ok := c.entries[key]
	return e, ok
}

// Keys returns every catalog key in stable order.
func (c *Catalog) Keys() []Key {
	out := make([]Key, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// FullSet returns the complete capability set, used as the admin bypass.
// The returned map is owned by the caller.
func (c *Catalog) FullSet() map[Key]struct{} {
	set := make(map[Key]struct{}, len(c.entries))
	for k := range c.entries {
		set[k] = struct{}{}
	}
	return set
}

// Validate parses a raw key and checks it against the catalog.
func (c *Catalog) Validate(raw string) (Key, error) {
	key, err := ParseKey(raw)
	if err != nil {
		return Key{}, err
	}
	if !c.Contains(key) {
		return Key{}, fmt.Errorf("%w: unknown permission %s", ErrInvalidInput, key)
	}
	return key, nil
}

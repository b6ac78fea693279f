package runewiki

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/rewired-gh/runesync/internal/models"
)

const maxCandidates = 5

// Catalog maps item names to wiki item ids.
type Catalog struct {
	byName map[string]models.Item // lowercase name
	byID   map[string]models.Item
}

// NewCatalog indexes items by lowercase name and by id.
func NewCatalog(items []models.Item) *Catalog {
	c := &Catalog{
		byName: make(map[string]models.Item, len(items)),
		byID:   make(map[string]models.Item, len(items)),
	}
	for _, item := range items {
		c.byName[strings.ToLower(item.Name)] = item
		c.byID[item.ID] = item
	}
	return c
}

// ParseCatalog reads "id: name" lines. Lines without a colon are skipped.
func ParseCatalog(r io.Reader) (*Catalog, error) {
	var items []models.Item
	scanner := bufio.NewScanner(r)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		idStr, name, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(idStr))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid item id %q", lineNo, idStr)
		}
		items = append(items, models.Item{ID: strconv.Itoa(id), Name: strings.TrimSpace(name)})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return NewCatalog(items), nil
}

// Len returns the number of items in the catalog.
func (c *Catalog) Len() int {
	return len(c.byID)
}

// Resolve finds the item for an identifier. All-digit identifiers are item
// ids and must be present in the catalog. Names match case-insensitively, first exactly, then by a unique
// substring. No match or an ambiguous match fails with models.ErrItemNotFound.
func (c *Catalog) Resolve(identifier string) (models.Item, error) {
	identifier = strings.TrimSpace(identifier)
	if isItemID(identifier) {
		if n, err := strconv.Atoi(identifier); err == nil {
			identifier = strconv.Itoa(n)
		}
		if item, ok := c.byID[identifier]; ok {
			return item, nil
		}
		return models.Item{}, fmt.Errorf("%w: no item with id %s", models.ErrItemNotFound, identifier)
	}

	lower := strings.ToLower(identifier)
	if item, ok := c.byName[lower]; ok {
		return item, nil
	}

	var matches []models.Item
	for name, item := range c.byName {
		if strings.Contains(name, lower) {
			matches = append(matches, item)
		}
	}
	switch len(matches) {
	case 0:
		return models.Item{}, fmt.Errorf("%w: no item named %q", models.ErrItemNotFound, identifier)
	case 1:
		return matches[0], nil
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Name < matches[j].Name })
	names := make([]string, 0, maxCandidates)
	for i := 0; i < len(matches) && i < maxCandidates; i++ {
		names = append(names, fmt.Sprintf("%s (ID: %s)", matches[i].Name, matches[i].ID))
	}
	return models.Item{}, fmt.Errorf("%w: %d items match %q: %s",
		models.ErrItemNotFound, len(matches), identifier, strings.Join(names, ", "))
}

func isItemID(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

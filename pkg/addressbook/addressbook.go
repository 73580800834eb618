// Package addressbook parses the fixed id -> endpoint mapping a council uses
// to resolve peer ids into dialable addresses. Membership is static for the
// lifetime of a process: there is no discovery, gossip, or dynamic join/leave.
package addressbook

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Book is a fixed mapping of council member id to "host:port".
type Book map[int]string

// Parse converts a comma-separated "id=host:port" list into a Book, e.g.
// "1=localhost:9001,2=localhost:9002,3=localhost:9003".
func Parse(csv string) (Book, error) {
	book := make(Book)
	csv = strings.TrimSpace(csv)
	if csv == "" {
		return book, nil
	}
	for _, entry := range strings.Split(csv, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		idPart, addr, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("addressbook: entry %q missing '='", entry)
		}
		id, err := strconv.Atoi(strings.TrimSpace(idPart))
		if err != nil {
			return nil, fmt.Errorf("addressbook: entry %q has non-integer id: %w", entry, err)
		}
		addr = strings.TrimSpace(addr)
		if addr == "" {
			return nil, fmt.Errorf("addressbook: entry %q has empty address", entry)
		}
		if _, exists := book[id]; exists {
			return nil, fmt.Errorf("addressbook: duplicate id %d", id)
		}
		book[id] = addr
	}
	return book, nil
}

// IDs returns every member id in the book, sorted ascending.
func (b Book) IDs() []int {
	ids := make([]int, 0, len(b))
	for id := range b {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Size returns the number of members in the book (N in majority arithmetic).
func (b Book) Size() int { return len(b) }

// Copy returns an independent copy of the book.
func (b Book) Copy() Book {
	out := make(Book, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

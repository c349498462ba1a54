// Package inventory turns raw Discord records into the follow inventory and
// converts it to and from the persisted snapshot rows.
package inventory

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// labelSorter orders labels with the root locale at primary strength, so
// case, accents and width are ignored. A Collator keeps scratch buffers and
// must not be shared between goroutines; each sort builds its own.
type labelSorter struct {
	collator *collate.Collator
}

func newLabelSorter() *labelSorter {
	return &labelSorter{collator: collate.New(language.Und, collate.Loose)}
}

func (s *labelSorter) compare(a, b string) int {
	return s.collator.CompareString(a, b)
}

// CompareLabels compares two labels the way the inventory is sorted
func CompareLabels(a, b string) int {
	return newLabelSorter().compare(a, b)
}

// sortByLabel sorts items by label. Labels that collate equal are ordered by
// id, so the result does not depend on the order items arrived in.
func sortByLabel[T any](items []T, label, id func(T) string) {
	sorter := newLabelSorter()
	sort.SliceStable(items, func(i, j int) bool {
		if c := sorter.compare(label(items[i]), label(items[j])); c != 0 {
			return c < 0
		}
		return id(items[i]) < id(items[j])
	})
}

package wearable

import (
	"slices"
)

// HidingRules decides which wearables of an outfit are rendered.
type HidingRules interface {
	// Visible returns the entries that are rendered for bs, in input order,
	// and the categories that ended up hidden.
	Visible(bs BodyShape, entries []*Entry, forceRender []Category) (visible []*Entry, hidden []Category)
}

// CategoryHidingRules applies the hides and replaces lists of the definitions.
// Wearables are visited in CategoryPriority order and a wearable hides only
// what comes after it. When two wearables share a category, the later one in
// the input wins. The body shape is never hidden; forced categories are never hidden.
type CategoryHidingRules struct{}

var _ HidingRules = CategoryHidingRules{}

func (CategoryHidingRules) Visible(bs BodyShape, entries []*Entry, forceRender []Category) ([]*Entry, []Category) {
	byCategory := map[Category]*Entry{}
	for _, e := range entries {
		if !e.Definition().Succeeded() {
			continue
		}
		byCategory[e.Category()] = e
	}

	ordered := make([]*Entry, 0, len(byCategory))
	for _, e := range byCategory {
		ordered = append(ordered, e)
	}
	slices.SortStableFunc(ordered, func(a, b *Entry) int {
		return a.Category().priority() - b.Category().priority()
	})

	hidden := map[Category]struct{}{}
	shown := map[*Entry]struct{}{}
	for _, e := range ordered {
		if _, isHidden := hidden[e.Category()]; isHidden {
			continue
		}
		shown[e] = struct{}{}
		for _, c := range e.Definition().Asset().HiddenCategories(bs) {
			if c == CategoryBodyShape || slices.Contains(forceRender, c) {
				continue
			}
			hidden[c] = struct{}{}
		}
	}

	visible := make([]*Entry, 0, len(shown))
	for _, e := range entries {
		if _, ok := shown[e]; ok && !slices.Contains(visible, e) {
			visible = append(visible, e)
		}
	}

	hiddenCategories := make([]Category, 0, len(hidden))
	for c := range hidden {
		hiddenCategories = append(hiddenCategories, c)
	}
	slices.Sort(hiddenCategories)
	return visible, hiddenCategories
}

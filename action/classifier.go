package action

import (
	"context"
	"strings"
)

// Classification is the result of mapping free text onto the vocabulary.
type Classification struct {
	Action      Action
	Description string
}

// Classifier maps free text to exactly one Action. Implementations may be
// remote; the rule-based one never fails.
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

// Classify applies the fixed keyword rules, first match wins. Matching is
// case-insensitive substring containment.
func Classify(text string) Action {
	m := strings.ToLower(text)
	has := func(s string) bool { return strings.Contains(m, s) }

	switch {
	case has("sort") && has("sales"):
		return NewSortBySales()
	case has("scatter") && (has("sales") || has("costs")):
		return NewScatterPlot()
	case has("profit") ||
		(has("profits") && has("insert")) ||
		(has("sales") && has("costs") && has("insert")):
		return NewInsertComputedColumn()
	default:
		return Unsupported{}
	}
}

// Rules is the local Classifier backed by Classify and a description catalog.
type Rules struct {
	Catalog *Catalog
	Locale  string
}

// NewRules returns a rule classifier using the embedded catalog.
func NewRules(locale string) *Rules {
	return &Rules{Catalog: DefaultCatalog(), Locale: locale}
}

// Classify implements Classifier. The error is always nil.
func (r *Rules) Classify(_ context.Context, text string) (Classification, error) {
	a := Classify(text)
	catalog := r.Catalog
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return Classification{
		Action:      a,
		Description: catalog.Describe(r.Locale, a.Kind()),
	}, nil
}

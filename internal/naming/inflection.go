package naming

import (
	"strings"

	"github.com/jinzhu/inflection"
)

// Pluralize converts a singular word to its plural form.
// Configured overrides win over the inflection rules.
func (n *Namer) Pluralize(word string) string {
	if override, ok := n.config.PluralOverrides[strings.ToLower(word)]; ok {
		return override
	}
	return inflection.Plural(word)
}

// Singularize converts a plural word to its singular form.
// Configured overrides win over the inflection rules.
func (n *Namer) Singularize(word string) string {
	if override, ok := n.config.SingularOverrides[strings.ToLower(word)]; ok {
		return override
	}
	return inflection.Singular(word)
}

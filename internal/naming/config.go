// Package naming converts SQL schema names to GraphQL names, including
// pluralisation and per-type collision handling.
package naming

// Config holds naming customization options.
type Config struct {
	// PluralOverrides maps singular -> custom plural, e.g. {"datum": "data"}.
	PluralOverrides map[string]string `mapstructure:"plural_overrides"`

	// SingularOverrides maps plural -> custom singular, e.g. {"data": "datum"}.
	SingularOverrides map[string]string `mapstructure:"singular_overrides"`
}

// DefaultConfig returns a Config with empty override maps.
func DefaultConfig() Config {
	return Config{
		PluralOverrides:   make(map[string]string),
		SingularOverrides: make(map[string]string),
	}
}

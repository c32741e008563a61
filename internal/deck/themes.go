// internal/deck/themes.go
package deck

import "strings"

// Supported themes.
const (
	ThemeEmoji    = "emoji"
	ThemeStarWars = "starwars"
	ThemePokemon  = "pokemon"
)

// DefaultPairs is the number of distinct values on a standard board.
const DefaultPairs = 8

// MaxPairs is the largest board the static fallback lists can fill.
const MaxPairs = 12

// fallbacks are used whenever an upstream source is unavailable. Each list
// holds MaxPairs distinct values.
var fallbacks = map[string][]string{
	ThemeEmoji: {
		"🎮", "🎯", "🎨", "🎭", "🎪", "🎸", "🎺", "🎼",
		"🐙", "🍕", "🦖", "🚀",
	},
	ThemeStarWars: {
		"Luke", "Vader", "Leia", "Han", "Yoda", "Obi-Wan", "R2-D2", "C-3PO",
		"Chewbacca", "Lando", "Padmé", "Boba Fett",
	},
	ThemePokemon: {
		"Pikachu", "Charizard", "Bulbasaur", "Squirtle", "Jigglypuff", "Meowth", "Psyduck", "Snorlax",
		"Eevee", "Gengar", "Mewtwo", "Onix",
	},
}

// NormalizeTheme lower-cases a theme name and maps unknown themes to emoji.
func NormalizeTheme(theme string) string {
	t := strings.ToLower(strings.TrimSpace(theme))
	if _, ok := fallbacks[t]; ok {
		return t
	}
	return ThemeEmoji
}

// Themes lists every supported theme.
func Themes() []string {
	return []string{ThemeEmoji, ThemeStarWars, ThemePokemon}
}

// fill returns exactly n distinct values, taking from values first and
// topping up from the theme's fallback list.
func fill(theme string, values []string, n int) []string {
	out := make([]string, 0, n)
	seen := make(map[string]bool, n)
	add := func(v string) {
		if v == "" || seen[v] || len(out) >= n {
			return
		}
		seen[v] = true
		out = append(out, v)
	}
	for _, v := range values {
		add(v)
	}
	for _, v := range fallbacks[theme] {
		add(v)
	}
	return out
}

// Package normalizer rewrites local slang and SMS abbreviations into the
// canonical French the extractor prompt expects.
package normalizer

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

var defaultDictionary = map[string]string{
	"pb":       "problème",
	"prblm":    "problème",
	"pblm":     "problème",
	"stp":      "s'il te plaît",
	"svp":      "s'il vous plaît",
	"bcp":      "beaucoup",
	"tjrs":     "toujours",
	"auj":      "aujourd'hui",
	"dem1":     "demain",
	"mtn":      "maintenant",
	"rdv":      "rendez-vous",
	"urgt":     "urgent",
	"kwat":     "quartier",
	"elec":     "électricité",
	"élec":     "électricité",
	"clim":     "climatisation",
	"tuyo":     "tuyau",
	"robi":     "robinet",
	"ya":       "il y a",
	"slt":      "salut",
	"cc":       "coucou",
	"dsl":      "désolé",
	"pk":       "pourquoi",
	"qd":       "quand",
	"jsp":      "je ne sais pas",
	"vrmt":     "vraiment",
	"ds":       "dans",
	"ms":       "mais",
	"tt":       "tout",
	"nn":       "non",
	"wanda":    "problème",
	"njoh":     "gratuit",
	"kongossa": "rumeur",
}

// Normalizer is immutable and safe for concurrent use.
type Normalizer struct {
	dict map[string]string
}

// New builds a normalizer from the built-in dictionary merged with overrides.
// An override mapping a word to "" disables that entry.
func New(overrides map[string]string) *Normalizer {
	dict := make(map[string]string, len(defaultDictionary)+len(overrides))
	for k, v := range defaultDictionary {
		dict[k] = v
	}
	for k, v := range overrides {
		k = strings.ToLower(strings.TrimSpace(k))
		if v == "" {
			delete(dict, k)
			continue
		}
		dict[k] = v
	}
	return &Normalizer{dict: dict}
}

// LoadDictionary reads a flat YAML map of word: replacement.
func LoadDictionary(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read slang dictionary %s: %w", path, err)
	}
	var dict map[string]string
	if err := yaml.Unmarshal(data, &dict); err != nil {
		return nil, fmt.Errorf("parse slang dictionary %s: %w", path, err)
	}
	for k := range dict {
		if strings.IndexFunc(k, isSeparator) >= 0 {
			return nil, fmt.Errorf("slang dictionary %s: key %q must be a single word", path, k)
		}
	}
	return dict, nil
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// Normalize replaces whole words case-insensitively and collapses whitespace.
func (n *Normalizer) Normalize(text string) string {
	var out strings.Builder
	out.Grow(len(text))

	runes := []rune(text)
	for i := 0; i < len(runes); {
		if isSeparator(runes[i]) {
			out.WriteRune(runes[i])
			i++
			continue
		}
		j := i
		for j < len(runes) && !isSeparator(runes[j]) {
			j++
		}
		word := string(runes[i:j])
		if repl, ok := n.dict[strings.ToLower(word)]; ok {
			out.WriteString(repl)
		} else {
			out.WriteString(word)
		}
		i = j
	}

	return strings.Join(strings.Fields(out.String()), " ")
}

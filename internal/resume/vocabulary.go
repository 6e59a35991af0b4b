package resume

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultSkills is the built-in keyword vocabulary.
var DefaultSkills = []string{
	"python", "java", "javascript", "c++", "c#", "php", "ruby", "swift", "kotlin",
	"html", "css", "react", "angular", "vue", "node.js", "django", "flask", "spring",
	"sql", "mysql", "postgresql", "mongodb", "nosql", "aws", "azure", "gcp", "cloud",
	"docker", "kubernetes", "git", "linux", "machine learning", "ai", "data science",
	"tensorflow", "pytorch", "scikit-learn", "pandas", "numpy",
}

// Vocabulary matches skill keywords against lowercased text. A keyword
// matches only when it is not glued to a letter or digit on either side, so
// "java" does not match inside "javascript" but "c++" matches in "c++, go".
type Vocabulary struct {
	skills   []string
	patterns []*regexp.Regexp
}

func NewVocabulary(skills []string) (*Vocabulary, error) {
	seen := make(map[string]bool, len(skills))
	v := &Vocabulary{}
	for _, s := range skills {
		key := strings.Join(strings.Fields(strings.ToLower(s)), " ")
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		words := strings.Split(key, " ")
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		re, err := regexp.Compile(`(?:^|[^\pL\pN])` + strings.Join(words, `\s+`) + `(?:$|[^\pL\pN])`)
		if err != nil {
			return nil, fmt.Errorf("skill %q: %w", s, err)
		}
		v.skills = append(v.skills, key)
		v.patterns = append(v.patterns, re)
	}
	if len(v.skills) == 0 {
		return nil, fmt.Errorf("skill vocabulary is empty")
	}
	return v, nil
}

// MustDefault returns the built-in vocabulary.
func MustDefault() *Vocabulary {
	v, err := NewVocabulary(DefaultSkills)
	if err != nil {
		panic(err)
	}
	return v
}

// Skills returns the normalized keyword list.
func (v *Vocabulary) Skills() []string {
	return append([]string(nil), v.skills...)
}

// Match returns the sorted, deduplicated keywords found in lowered.
func (v *Vocabulary) Match(lowered string) []string {
	found := make([]string, 0)
	for i, re := range v.patterns {
		if re.MatchString(lowered) {
			found = append(found, v.skills[i])
		}
	}
	sort.Strings(found)
	return found
}

type vocabularyFile struct {
	Skills []string `yaml:"skills"`
}

// LoadVocabulary reads a YAML document of the form `skills: [a, b, ...]`.
func LoadVocabulary(path string) (*Vocabulary, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read skills file: %w", err)
	}
	var doc vocabularyFile
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse skills file %s: %w", path, err)
	}
	return NewVocabulary(doc.Skills)
}

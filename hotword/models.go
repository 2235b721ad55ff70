// Package hotword matches transcripts against a vocabulary of hot-word models.
package hotword

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"streamhwd/recognizer"
)

type model struct {
	id      string
	phrases [][]string // normalized words, longest phrase first
}

// Models is a recognizer.TextProcessor backed by phrase lists.
type Models struct {
	models []model
}

// New builds the matcher from model id → phrases. Models are tried in id order.
func New(vocabulary map[string][]string) (*Models, error) {
	if len(vocabulary) == 0 {
		return nil, fmt.Errorf("hotword: no models configured")
	}

	ids := make([]string, 0, len(vocabulary))
	for id := range vocabulary {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	m := &Models{}
	for _, id := range ids {
		mdl := model{id: id}
		for _, p := range vocabulary[id] {
			words := normalize(p)
			if len(words) == 0 {
				continue
			}
			mdl.phrases = append(mdl.phrases, words)
		}
		if len(mdl.phrases) == 0 {
			return nil, fmt.Errorf("hotword: model %q has no phrases", id)
		}
		sort.SliceStable(mdl.phrases, func(i, j int) bool {
			return len(mdl.phrases[i]) > len(mdl.phrases[j])
		})
		m.models = append(m.models, mdl)
	}
	return m, nil
}

// Process returns a candidate when text contains one of the phrases. A
// transcript without a phrase is still accepted when prev is set, since the
// hot word was already heard in the partial results.
func (m *Models) Process(text string, prev *recognizer.Candidate) (recognizer.Candidate, bool) {
	words := normalize(text)
	if len(words) == 0 {
		return recognizer.Candidate{}, false
	}
	joined := strings.Join(words, " ")

	for _, mdl := range m.models {
		for _, phrase := range mdl.phrases {
			if containsWords(words, phrase) {
				return recognizer.Candidate{
					Model:  mdl.id,
					Phrase: strings.Join(phrase, " "),
					Text:   joined,
				}, true
			}
		}
	}

	if prev != nil {
		return recognizer.Candidate{Model: prev.Model, Phrase: prev.Phrase, Text: joined}, true
	}
	return recognizer.Candidate{}, false
}

// IDs lists the configured model ids.
func (m *Models) IDs() []string {
	ids := make([]string, len(m.models))
	for i, mdl := range m.models {
		ids[i] = mdl.id
	}
	return ids
}

func normalize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
}

func containsWords(words, phrase []string) bool {
	for i := 0; i+len(phrase) <= len(words); i++ {
		match := true
		for j := range phrase {
			if words[i+j] != phrase[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

package recognizer

import "fmt"

// Candidate is a hot-word match produced by a TextProcessor from a transcript.
type Candidate struct {
	Model  string
	Phrase string // optional label, e.g. the matched phrase
	Text   string
}

// Confident reports whether the candidate carries a usable transcript.
func (c Candidate) Confident() bool { return c.Text != "" }

func (c Candidate) ModelInfo() ModelInfo {
	return newModelInfo(c.Model, c.Phrase)
}

type ModelInfo struct {
	Model   string
	Phrase  string
	Display string
}

func newModelInfo(model, phrase string) ModelInfo {
	mi := ModelInfo{Model: model, Phrase: phrase}
	if phrase != "" {
		mi.Display = fmt.Sprintf(": %q", phrase)
	}
	return mi
}

// TextProcessor matches transcripts against the configured hot-word models.
// prev is the candidate derived from partial transcripts, nil when there is none.
type TextProcessor interface {
	Process(text string, prev *Candidate) (Candidate, bool)
}

type TextProcessorFunc func(text string, prev *Candidate) (Candidate, bool)

func (f TextProcessorFunc) Process(text string, prev *Candidate) (Candidate, bool) {
	return f(text, prev)
}

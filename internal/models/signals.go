package models

// Section is a heading together with the text of the elements that follow it
type Section struct {
	Heading string `json:"heading"`
	Content string `json:"content"`
}

// ProgressIndicator is a progress-bar-like element. Missing attributes stay empty.
type ProgressIndicator struct {
	Value string `json:"value,omitempty"`
	Max   string `json:"max,omitempty"`
	Label string `json:"label,omitempty"`
	Text  string `json:"text,omitempty"`
}

// RawPageSignals is everything pulled off a rendered usage page before interpretation.
// Signal slices keep document order.
type RawPageSignals struct {
	FullText           string              `json:"fullText"`
	Percentages        []string            `json:"percentages"`
	DollarAmounts      []string            `json:"dollarAmounts"`
	ResetPhrases       []string            `json:"resetPhrases"`
	TimePhrases        []string            `json:"timePhrases"`
	Sections           []Section           `json:"sections"`
	ProgressIndicators []ProgressIndicator `json:"progressIndicators"`

	// RenderSettled is false when the readiness poll timed out and extraction ran anyway.
	RenderSettled bool `json:"renderSettled"`
}

// RuleMatch names the parser rule that produced a field's value
type RuleMatch struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Value string `json:"value"`
}

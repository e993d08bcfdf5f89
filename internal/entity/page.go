package entity

// PageContext is the document metadata used to build alt text.
type PageContext struct {
	Title   string `json:"title"`
	Excerpt string `json:"excerpt"`
	Content string `json:"content"`
}

// AltSource selects the generation strategy.
type AltSource string

const (
	AltSourceHeuristic AltSource = "heuristic"
	AltSourceAI        AltSource = "ai"
)

// GenerationPolicy drives a single decision cycle.
type GenerationPolicy struct {
	Source      AltSource
	ForceUpdate bool
	MaxLength   int
}

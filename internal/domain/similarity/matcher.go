package similarity

import "strings"

type Reason string

const (
	ReasonNone        Reason = "none"
	ReasonSubstring   Reason = "substring"
	ReasonContainment Reason = "containment"
	ReasonDice        Reason = "dice"
)

type Options struct {
	Threshold                     float64
	ContainmentThreshold          float64 // 0 means Threshold
	MinPromptTokensForContainment int
	MinSubstringLength            int
}

func DefaultOptions() Options {
	return Options{
		Threshold:                     0.85,
		MinPromptTokensForContainment: 8,
		MinSubstringLength:            40,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Threshold <= 0 {
		o.Threshold = d.Threshold
	}
	if o.ContainmentThreshold <= 0 {
		o.ContainmentThreshold = o.Threshold
	}
	if o.MinPromptTokensForContainment <= 0 {
		o.MinPromptTokensForContainment = d.MinPromptTokensForContainment
	}
	if o.MinSubstringLength <= 0 {
		o.MinSubstringLength = d.MinSubstringLength
	}
	return o
}

// Result is the outcome of comparing a prompt with a window of messages.
type Result struct {
	Blocked          bool
	Similarity       float64
	MatchedMessageID int
	Reason           Reason
}

// Matcher holds a normalized prompt and keeps the best score seen across
// candidates fed to Observe.
type Matcher struct {
	opts   Options
	prompt string
	tokens []string
	n      int
	best   Result
}

func NewMatcher(prompt string, opts Options) *Matcher {
	opts = opts.withDefaults()
	p := Normalize(prompt)
	tokens := Tokens(p)
	return &Matcher{
		opts:   opts,
		prompt: p,
		tokens: tokens,
		n:      NGramSize(len(tokens)),
		best:   Result{Reason: ReasonNone},
	}
}

// Empty reports a prompt with nothing left after normalization.
func (m *Matcher) Empty() bool { return m.prompt == "" }

// Observe scores one candidate. It returns true once the prompt is blocked;
// callers stop scanning at that point.
func (m *Matcher) Observe(messageID int, text string) bool {
	if m.Empty() || m.best.Blocked {
		return m.best.Blocked
	}
	candidate := Normalize(text)
	if candidate == "" {
		return false
	}

	if len([]rune(m.prompt)) >= m.opts.MinSubstringLength && strings.Contains(candidate, m.prompt) {
		m.best = Result{Blocked: true, Similarity: 1, MatchedMessageID: messageID, Reason: ReasonSubstring}
		return true
	}

	if len(m.tokens) >= m.opts.MinPromptTokensForContainment {
		c := Containment(m.tokens, Tokens(candidate), m.n)
		if c >= m.opts.ContainmentThreshold {
			m.best = Result{Blocked: true, Similarity: c, MatchedMessageID: messageID, Reason: ReasonContainment}
			return true
		}
	}

	d := Dice(m.prompt, candidate)
	if d > m.best.Similarity {
		m.best.Similarity = d
		m.best.MatchedMessageID = messageID
		if d >= m.opts.Threshold {
			m.best.Blocked = true
			m.best.Reason = ReasonDice
			return true
		}
	}
	return false
}

func (m *Matcher) Result() Result { return m.best }

// Compare is a convenience for a single pair of texts.
func Compare(prompt, candidate string, opts Options) Result {
	m := NewMatcher(prompt, opts)
	m.Observe(0, candidate)
	return m.Result()
}

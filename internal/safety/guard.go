// Package safety decides which queries are refused before any index is touched.
package safety

import (
	"trialrag/internal/domain"
	"trialrag/internal/lexicon"
)

// Refusal messages are fixed; they never contain retrieved text.
const (
	AdviceRefusal = "I cannot provide medical advice or prescriptive recommendations. " +
		"Please consult the official drug label documentation or a qualified healthcare professional for clinical decisions."
	PolicyRefusal = "I cannot fulfill this request as it violates safety policies."
)

// first-person prescriptive phrasing, matched on word boundaries
var advicePatterns = []string{
	"should i take",
	"can i take",
	"is it safe for me",
	"safe for me to",
	"plan for me",
	"prescribe",
	"prescribe me",
	"recommend taking",
	"what should i do",
	"treatment plan",
	"medical advice",
	"diagnose",
	"diagnose me",
	"can i stop",
	"should i stop",
	"change my dose",
	"switch to",
}

// matched as word prefixes
var harmfulPatterns = []string{
	"bomb",
	"suicide",
	"kill",
	"murder",
	"illegal",
	"hack",
	"poison",
	"weapon",
	"terror",
	"drug abuse",
	"recreational",
	"get high",
}

// IsAdviceSeeking reports whether text asks for personalized medical advice.
func IsAdviceSeeking(text string) bool {
	p := lexicon.Phrase(text)
	for _, pat := range advicePatterns {
		if lexicon.HasPhrase(p, pat) {
			return true
		}
	}
	return false
}

// IsHarmful reports whether text touches a harmful-content topic.
func IsHarmful(text string) bool {
	p := lexicon.Phrase(text)
	for _, pat := range harmfulPatterns {
		if lexicon.HasPrefixWord(p, pat) {
			return true
		}
	}
	return false
}

// Reason names why a query was refused.
type Reason string

const (
	ReasonNone    Reason = ""
	ReasonAdvice  Reason = "advice_seeking"
	ReasonHarmful Reason = "harmful_content"
)

// Verdict is the guard's decision for a classified query.
type Verdict struct {
	Refuse  bool
	Reason  Reason
	Message string
}

// Check runs before retrieval. Advice-seeking wins over harmful content so
// the user is pointed at the label and a clinician.
func Check(c domain.Classification) Verdict {
	switch {
	case c.AdviceSeeking:
		return Verdict{Refuse: true, Reason: ReasonAdvice, Message: AdviceRefusal}
	case c.Harmful:
		return Verdict{Refuse: true, Reason: ReasonHarmful, Message: PolicyRefusal}
	default:
		return Verdict{}
	}
}

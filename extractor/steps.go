package extractor

import (
	"regexp"
	"strings"

	"github.com/c360studio/uatgate/model"
)

// knownActions is the verb vocabulary the generator's template library binds.
// A flow item opening with any other verb still becomes a step, but one the
// generator will reject as unbindable.
var knownActions = map[string]string{
	"navigate": "navigate",
	"open":     "navigate",
	"go":       "navigate",
	"visit":    "navigate",
	"click":    "click",
	"press":    "click",
	"tap":      "click",
	"fill":     "fill",
	"enter":    "fill",
	"type":     "fill",
	"select":   "select",
	"choose":   "select",
	"submit":   "submit",
	"add":      "add",
	"remove":   "remove",
	"delete":   "remove",
	"verify":   "verify",
	"see":      "verify",
	"check":    "verify",
	"confirm":  "verify",
	"expect":   "verify",
	"wait":     "wait",
	"sign":     "sign",
	"log":      "sign",
	"login":    "sign",
	"pay":      "pay",
	"upload":   "upload",
	"download": "download",
	"search":   "search",
	"scroll":   "scroll",
}

// expectSeparators split a step's action text from its expected outcome.
var expectSeparators = []string{" -> ", " → ", ", then ", "; then ", " and see ", " and verify "}

// parseStep converts one flow list item into a Step. The leading verb becomes
// the action; a trailing "-> outcome" (or "then outcome") clause becomes the
// expectation.
func parseStep(item string) model.Step {
	text := strings.TrimSpace(item)

	var expect string
	for _, sep := range expectSeparators {
		if idx := strings.Index(strings.ToLower(text), sep); idx >= 0 {
			expect = strings.TrimSpace(text[idx+len(sep):])
			text = strings.TrimSpace(text[:idx])
			break
		}
	}

	action, target := splitVerb(text)

	return model.Step{
		Action: action,
		Target: target,
		Expect: expect,
	}
}

// splitVerb separates the leading verb from the rest of the item. Known verbs
// map onto the canonical action vocabulary; unknown leading words are kept
// verbatim so the generator can report exactly which verb failed to bind.
func splitVerb(text string) (string, string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", ""
	}

	verb := strings.ToLower(strings.Trim(fields[0], ".,:;"))
	rest := strings.TrimSpace(strings.TrimPrefix(text, fields[0]))

	if canonical, ok := knownActions[verb]; ok {
		// "sign in", "log in", "log out" keep their particle in the target
		return canonical, rest
	}
	return verb, rest
}

// parseStory splits a user-story item into its want clause and so-that
// clause. Returns ok=false when the item is not story-shaped.
func parseStory(item string) (want, outcome string, ok bool) {
	lower := strings.ToLower(item)

	idx := strings.Index(lower, ", i ")
	if idx < 0 {
		return "", "", false
	}
	rest := item[idx+len(", i "):]

	// Strip the story verb (want to / need to / can / should be able to)
	for _, prefix := range []string{"want to ", "need to ", "should be able to ", "want ", "need ", "can "} {
		if strings.HasPrefix(strings.ToLower(rest), prefix) {
			rest = rest[len(prefix):]
			break
		}
	}

	if soIdx := strings.Index(strings.ToLower(rest), " so that "); soIdx >= 0 {
		return strings.TrimSpace(rest[:soIdx]), strings.TrimSpace(rest[soIdx+len(" so that "):]), true
	}
	if soIdx := strings.Index(strings.ToLower(rest), ", so "); soIdx >= 0 {
		return strings.TrimSpace(rest[:soIdx]), strings.TrimSpace(rest[soIdx+len(", so "):]), true
	}
	return strings.TrimSpace(rest), "", true
}

var capabilityRe = regexp.MustCompile(`(?i)^(?:users?|customers?|members?|guests?|admins?|visitors?) (?:can|may|must|should) (.+)$`)

// parseCapability splits a "Guests can check out" style item into its
// capability clause. Returns ok=false when the item is not capability-shaped.
func parseCapability(item string) (want string, ok bool) {
	if m := capabilityRe.FindStringSubmatch(strings.TrimSpace(item)); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	return "", false
}

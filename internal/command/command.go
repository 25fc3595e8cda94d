// Package command detects in-band user commands such as "remember ..." or
// "help" in chat messages.
package command

import (
	"regexp"
	"strings"
)

// Kind is the command a message carries.
type Kind int

const (
	None Kind = iota
	Remember
	Recall
	Clear
	Help
)

func (k Kind) String() string {
	switch k {
	case Remember:
		return "remember"
	case Recall:
		return "recall"
	case Clear:
		return "clear"
	case Help:
		return "help"
	}
	return "none"
}

// Immediate commands are answered without the LLM.
func (k Kind) Immediate() bool { return k == Help || k == Clear }

// Deferred commands take effect around an LLM reply.
func (k Kind) Deferred() bool { return k == Remember || k == Recall }

// Match is the result of Detect. Argument holds an explicit fact for
// Remember ("remember my cat is called Tom" -> "my cat is called Tom").
type Match struct {
	Kind     Kind
	Argument string
}

const HelpText = `Here is what I can do:
- Chat about anything. I keep the recent conversation in mind during a session.
- "remember <fact>" or "remember this": store something in long-term memory.
- "what do you remember?": list what I have stored about you.
- "clear" or "start over": forget the current conversation (long-term memory stays).
- "help": show this message.`

const ClearText = "Conversation cleared. Long-term memories are kept."

type rule struct {
	re   *regexp.Regexp
	kind Kind
}

type ruleSet struct {
	kind     Kind
	patterns []string
}

// rules is scanned in order and the first match wins.
var rules = compile([]ruleSet{
	{Remember, []string{
		`\bremember\s+(this|that|it)\b`,
		`\bplease\s+remember\s+(this|that|it)\b`,
		`\b(can|could)\s+you\s+remember\s+(this|that|it)\b`,
		`\btry\s+to\s+remember\s+(this|that|it)\b`,
		`\b(don['’]t|do\s+not)\s+forget\s+(about\s+)?(this|that|it)\b`,
		`\b(please\s+|can\s+you\s+)?save\b.*\b(conversation|this|that|it)\b`,
		`\bstore\b.*\b(memory|this|that|it)\b`,
		`\badd\s+(this|that|it)\s+to\s+your\s+memory\b`,
		`\bkeep\s+(this|that|it)\s+in\s+mind\b`,
		`\bhold\s+on\s+to\s+(this|that|it)\b`,
		`\bkeep\s+track\s+of\s+(this|that|it)\b`,
		`\bkeep\s+(this|that|it)\s+for\s+later\b`,
		`\bmake\s+a\s+note\s+of\s+(this|that|it)\b`,
		`\bnote\s+(this|that|it)\s+for\s+later\b`,
		`\bremember\s+what\s+i\s+(just\s+said|am\s+about\s+to\s+say)\b`,
		`\bremember\s+the\s+following\b`,
		`\bremember\s+this\s+(information|detail|message|note|for\s+me)\b`,
		`\bi\s+(need|want)\s+you\s+to\s+remember\b`,
		`\bcommit\s+(this|that|it)\s+to\s+memory\b`,
		`\bput\s+(this|that|it)\s+((in|into|to)\s+(your\s+)?(long[-\s]*term\s+)?memory|away|aside)\b`,
		`^(please\s+)?remember\s+\S`,
	}},
	{Recall, []string{
		`\b(please\s+|can\s+you\s+|could\s+you\s+)?recall\b`,
		`\bwhat\s+(do|can)\s+you\s+(remember|recall)\b`,
		`\b(do|can|could)\s+you\s+remember\b`,
		`\btell\s+me\s+about\b.*\b(memory|memories)\b`,
		`\b(tell|show|give|remind)\s+me\s+what\s+you\s+remember\b`,
		`\bshow\s+me\b.*\b(memory|memories)\b`,
		`\bshow\b.*\b(what\s+you\s+remember|your\s+memories)\b`,
		`\bgive\s+me\s+(your\s+)?(memory|memories)\b`,
	}},
	{Clear, []string{
		`^/?(clear|reset)[\s?!.]*$`,
		`\bstart\s+over\b`,
		`\b(clear|reset)\s+(the\s+|our\s+|this\s+)?(context|conversation|history|chat|memory)\b`,
	}},
	{Help, []string{
		`^/?help[\s?!.]*$`,
		`^/?help\s+(with\s+)?commands?\b`,
		`\bwhat\s+can\s+you\s+do\b`,
		`^/?commands?[\s?!.]*$`,
		`\bshow\s+(me\s+)?(the\s+)?help\b`,
	}},
})

// factPattern captures an explicit fact after a leading "remember".
var factPattern = regexp.MustCompile(`(?is)^(?:please\s+)?remember\s+(?:that\s+)?(.+)$`)

// pronounArgs are remember arguments that refer to the conversation rather
// than carry a fact.
var pronounArgs = regexp.MustCompile(`(?i)^((this|that|it)(\s+(for\s+later|for\s+next\s+time|next\s+time|for\s+me|information|detail|message|note))?|what\s+i\s+.*|the\s+following.*)[\s.!?]*$`)

func compile(sets []ruleSet) []rule {
	var out []rule
	for _, set := range sets {
		for _, p := range set.patterns {
			out = append(out, rule{re: regexp.MustCompile(p), kind: set.kind})
		}
	}
	return out
}

// Detect returns the first command matching text, or a None match.
func Detect(text string) Match {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Match{}
	}
	lower := strings.ToLower(trimmed)

	for _, r := range rules {
		if !r.re.MatchString(lower) {
			continue
		}
		m := Match{Kind: r.kind}
		if r.kind == Remember {
			m.Argument = fact(trimmed)
		}
		return m
	}
	return Match{}
}

func fact(text string) string {
	sub := factPattern.FindStringSubmatch(text)
	if sub == nil {
		return ""
	}
	arg := strings.TrimSpace(sub[1])
	if pronounArgs.MatchString(arg) {
		return ""
	}
	return strings.TrimRight(arg, " .!")
}

package extract

import (
	"context"
	"regexp"
	"strings"
	"unicode"
)

// Heuristic is the deterministic keyword and pattern extractor. It never
// fails and is always run, with the LLM layered on top when available.
type Heuristic struct{}

// NewHeuristic creates a heuristic extractor.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

var (
	yesPhrases = []string{"yes", "yeah", "yep", "yup", "correct", "that's right", "that is right", "right", "sure", "absolutely", "sounds good", "perfect", "ok", "okay", "affirmative", "that works", "please do", "go ahead", "it is", "that's it", "exactly"}
	noPhrases  = []string{"no", "nope", "nah", "not right", "incorrect", "wrong", "negative", "not correct", "change", "different", "actually", "wait"}

	goodbyePhrases  = []string{"goodbye", "good bye", "bye", "that's all", "that is all", "nothing else", "no thank you", "no thanks", "never mind", "nevermind", "hang up", "i'm good", "i'm all set"}
	humanPhrases    = []string{"real person", "a person", "human", "representative", "operator", "speak to someone", "talk to someone", "customer service", "agent"}
	schedulePhrases = []string{"schedule", "appointment", "book", "repair", "fix", "service", "broken", "not working", "isn't working", "stopped working", "won't turn on", "wont turn on", "not cooling", "not heating", "no heat", "no air", "no ac", "no a c", "leak", "leaking", "noise", "making a", "maintenance", "tune up", "tune-up", "install", "replace", "replacement", "technician", "someone out", "come out", "send someone", "take a look", "check my", "check on", "blowing", "frozen", "thermostat", "furnace", "heat pump", "air conditioner", "ac unit", "a c unit", "boiler", "estimate", "quote"}
	problemPhrases  = []string{"not working", "isn't working", "stopped", "won't", "wont", "broken", "not cooling", "not heating", "no heat", "no air", "no ac", "leak", "noise", "noisy", "blowing", "frozen", "ice", "smell", "short cycling", "keeps", "running", "tripping", "dripping", "rattling", "squealing", "warm air", "cold air"}

	questionStarts = []string{"what", "when", "where", "how", "do you", "does", "are you", "is there", "is it", "can you tell", "could you tell", "will you", "which", "who", "why"}

	namePrefixes    = []string{"my name is", "my name's", "the name is", "name is", "this is", "it's", "it is", "i'm", "i am", "call me", "yeah it's", "yes it's", "sure it's"}
	addressPrefixes = []string{"my address is", "the address is", "address is", "i live at", "we're at", "we are at", "i'm at", "it's at", "it's", "it is", "that's", "the service address is"}
	fillerWords     = map[string]bool{"um": true, "uh": true, "er": true, "hmm": true, "yes": true, "yeah": true, "sure": true, "okay": true, "ok": true, "hi": true, "hello": true, "well": true, "so": true, "oh": true}
	notNames        = map[string]bool{"no": true, "nope": true, "sorry": true, "what": true, "thanks": true, "thank": true, "you": true, "please": true, "the": true, "a": true, "and": true}

	digitWords = map[string]string{
		"zero": "0", "one": "1", "two": "2", "three": "3", "four": "4",
		"five": "5", "six": "6", "seven": "7", "eight": "8", "nine": "9",
	}

	streetNumberRe = regexp.MustCompile(`\d+\s+[A-Za-z]`)
	nonNameRe      = regexp.MustCompile(`[^A-Za-z' \-]`)
)

// Extract implements Extractor.
func (h *Heuristic) Extract(_ context.Context, req Request) (Slots, error) {
	text := strings.TrimSpace(req.Utterance)
	lower := normalize(text)
	if lower == "" {
		return Slots{}, nil
	}

	slots := Slots{
		Intent: classifyIntent(lower),
		Answer: classifyAnswer(lower),
	}

	switch req.State {
	case "identify_need":
		if slots.Intent == IntentSchedule && containsAny(lower, problemPhrases) {
			slots.Issue = cleanFreeText(text)
		}
	case "collect_name":
		slots.Name = ExtractName(text)
	case "collect_phone":
		slots.Phone = ExtractPhone(text)
	case "collect_address":
		slots.Address = ExtractAddress(text)
	case "collect_issue":
		if len(strings.Fields(lower)) >= 2 || containsAny(lower, problemPhrases) {
			slots.Issue = cleanFreeText(text)
		}
	case "collect_date":
		slots.Date = text
	case "collect_time":
		slots.Time = text
	}

	if slots.Phone == "" && req.State != "collect_address" {
		slots.Phone = ExtractPhone(text)
	}

	return slots, nil
}

func classifyIntent(lower string) Intent {
	switch {
	case containsAny(lower, goodbyePhrases):
		return IntentGoodbye
	case containsAny(lower, humanPhrases):
		return IntentHuman
	case containsAny(lower, schedulePhrases):
		return IntentSchedule
	case IsQuestion(lower):
		return IntentQuestion
	default:
		return IntentNone
	}
}

func classifyAnswer(lower string) Answer {
	words := strings.Fields(lower)
	if len(words) == 0 {
		return AnswerNone
	}
	// The first word carries the answer in "no, it's the 22nd" and "yes, that's right".
	first := strings.Trim(words[0], ".,!")
	if hasPhrase(noPhrases, first) {
		return AnswerNo
	}
	if hasPhrase(yesPhrases, first) {
		return AnswerYes
	}
	if containsAny(lower, noPhrases) {
		return AnswerNo
	}
	if containsAny(lower, yesPhrases) {
		return AnswerYes
	}
	return AnswerNone
}

// IsQuestion reports whether the utterance is phrased as a question.
func IsQuestion(s string) bool {
	lower := normalize(s)
	if strings.HasSuffix(strings.TrimSpace(strings.ToLower(s)), "?") {
		return true
	}
	for _, q := range questionStarts {
		if strings.HasPrefix(lower, q+" ") || lower == q {
			return true
		}
	}
	return false
}

// ExtractName pulls a person's name out of an answer like "yeah it's Jane Doe".
func ExtractName(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.TrimRight(s, ".!?")
	for _, p := range namePrefixes {
		if idx := strings.Index(s, p+" "); idx >= 0 {
			s = s[idx+len(p)+1:]
			break
		}
	}
	s = nonNameRe.ReplaceAllString(s, " ")

	var parts []string
	for _, w := range strings.Fields(s) {
		if len(parts) == 0 && fillerWords[w] {
			continue
		}
		if notNames[w] || w == "thanks" {
			break
		}
		parts = append(parts, titleCase(w))
		if len(parts) == 4 {
			break
		}
	}
	return strings.Join(parts, " ")
}

// ExtractPhone returns an E.164 US number from spoken or typed digits.
func ExtractPhone(text string) string {
	var digits strings.Builder
	// "oh" is only a zero between digits; "Oh, 555..." is an interjection.
	pendingOhs := 0
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == '.' || r == '-'
	}) {
		if tok == "oh" || tok == "o" {
			if digits.Len() > 0 {
				pendingOhs++
			}
			continue
		}
		if d, ok := digitWords[tok]; ok {
			digits.WriteString(strings.Repeat("0", pendingOhs) + d)
			pendingOhs = 0
			continue
		}
		for _, r := range tok {
			if unicode.IsDigit(r) {
				digits.WriteString(strings.Repeat("0", pendingOhs))
				pendingOhs = 0
				digits.WriteRune(r)
			}
		}
	}

	d := digits.String()
	switch {
	case len(d) == 10:
		return "+1" + d
	case len(d) == 11 && d[0] == '1':
		return "+" + d
	default:
		return ""
	}
}

// ExtractAddress returns the address portion of an answer when it starts
// with a street number.
func ExtractAddress(text string) string {
	s := strings.TrimSpace(text)
	lower := strings.ToLower(s)
	for _, p := range addressPrefixes {
		if strings.HasPrefix(lower, p+" ") {
			s = strings.TrimSpace(s[len(p)+1:])
			break
		}
	}
	loc := streetNumberRe.FindStringIndex(s)
	if loc == nil {
		return ""
	}
	return strings.TrimRight(strings.TrimSpace(s[loc[0]:]), ".")
}

func cleanFreeText(text string) string {
	s := strings.TrimSpace(text)
	words := strings.Fields(s)
	for len(words) > 0 && fillerWords[strings.ToLower(strings.Trim(words[0], ",."))] {
		words = words[1:]
	}
	s = strings.Join(words, " ")
	if s == "" {
		return ""
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func titleCase(w string) string {
	if w == "" {
		return w
	}
	r := []rune(w)
	r[0] = unicode.ToUpper(r[0])
	for i := 1; i < len(r); i++ {
		if r[i-1] == '-' || r[i-1] == '\'' && i == 2 {
			r[i] = unicode.ToUpper(r[i])
		}
	}
	return string(r)
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(",", " ", "?", " ", "!", " ", ".", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// containsAny reports whether any phrase occurs in s on word boundaries.
func containsAny(s string, phrases []string) bool {
	padded := " " + s + " "
	for _, p := range phrases {
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}

func hasPhrase(phrases []string, w string) bool {
	for _, p := range phrases {
		if p == w {
			return true
		}
	}
	return false
}

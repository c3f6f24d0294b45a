// Package knowledge holds the FAQ answers the agent can give mid-call.
package knowledge

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Entry is one FAQ answer and the keywords that trigger it.
type Entry struct {
	ID       string   `yaml:"id"`
	Keywords []string `yaml:"keywords"`
	Answer   string   `yaml:"answer"`
}

type faqFile struct {
	FAQs []Entry `yaml:"faqs"`
}

// Business is the company information templated into the default answers.
type Business struct {
	CompanyName string
	Hours       string
	ServiceArea string
}

// Base is a concurrency-safe set of FAQ entries that can be swapped at
// runtime.
type Base struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewBase creates a knowledge base with the given entries.
func NewBase(entries []Entry) *Base {
	b := &Base{}
	b.Replace(entries)
	return b
}

// Defaults returns the built-in FAQ entries for a business.
func Defaults(biz Business) []Entry {
	return []Entry{
		{
			ID:       "hours",
			Keywords: []string{"hours", "open", "close", "closed", "weekend", "weekends", "saturday", "sunday"},
			Answer:   fmt.Sprintf("We're open %s.", biz.Hours),
		},
		{
			ID:       "service_area",
			Keywords: []string{"service area", "do you service", "serve", "area", "come to", "cover", "located", "location", "far", "my town", "my city"},
			Answer:   fmt.Sprintf("We serve %s.", biz.ServiceArea),
		},
		{
			ID:       "pricing",
			Keywords: []string{"cost", "price", "pricing", "how much", "charge", "fee", "rates", "expensive"},
			Answer:   "Our diagnostic visit is a flat fee that's credited toward the repair if you go ahead with it. The technician will give you an exact quote before any work starts.",
		},
		{
			ID:       "brands",
			Keywords: []string{"brand", "brands", "carrier", "trane", "lennox", "rheem", "goodman", "make", "model"},
			Answer:   "Our technicians service all major brands of furnaces, air conditioners, heat pumps and boilers.",
		},
		{
			ID:       "financing",
			Keywords: []string{"financing", "finance", "payment plan", "monthly payments", "credit", "pay over time"},
			Answer:   "Yes, we offer financing on new equipment and larger repairs, subject to credit approval.",
		},
		{
			ID:       "maintenance_plan",
			Keywords: []string{"maintenance plan", "membership", "service plan", "tune up plan", "annual", "club"},
			Answer:   fmt.Sprintf("%s offers a yearly maintenance plan with two tune-ups, priority scheduling and a discount on repairs.", biz.CompanyName),
		},
	}
}

// Load reads FAQ entries from a YAML file of the form:
//
//	faqs:
//	  - id: hours
//	    keywords: [hours, open]
//	    answer: We're open every day.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read faq file: %w", err)
	}

	var f faqFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse faq file: %w", err)
	}

	for i, e := range f.FAQs {
		if strings.TrimSpace(e.Answer) == "" {
			return nil, fmt.Errorf("faq entry %d (%s) has no answer", i, e.ID)
		}
		if len(e.Keywords) == 0 {
			return nil, fmt.Errorf("faq entry %d (%s) has no keywords", i, e.ID)
		}
	}
	return f.FAQs, nil
}

// Replace swaps the entries atomically.
func (b *Base) Replace(entries []Entry) {
	normalized := make([]Entry, len(entries))
	for i, e := range entries {
		kws := make([]string, 0, len(e.Keywords))
		for _, k := range e.Keywords {
			if k = normalize(k); k != "" {
				kws = append(kws, k)
			}
		}
		normalized[i] = Entry{ID: e.ID, Keywords: kws, Answer: e.Answer}
	}

	b.mu.Lock()
	b.entries = normalized
	b.mu.Unlock()
}

// Entries returns a copy of the current entries.
func (b *Base) Entries() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Match returns the entry whose keywords best cover the utterance. Longer
// keyword phrases count for more than single words.
func (b *Base) Match(utterance string) (Entry, bool) {
	text := " " + normalize(utterance) + " "
	if strings.TrimSpace(text) == "" {
		return Entry{}, false
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	var best Entry
	bestScore := 0
	for _, e := range b.entries {
		score := 0
		for _, k := range e.Keywords {
			if strings.Contains(text, " "+k+" ") {
				score += len(strings.Fields(k))
			}
		}
		if score > bestScore {
			best, bestScore = e, score
		}
	}
	return best, bestScore > 0
}

func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '\'':
			return r
		default:
			return ' '
		}
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

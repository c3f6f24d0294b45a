package dialog

import "strings"

// Hazard is a safety emergency recognized in caller speech.
type Hazard struct {
	Kind         string
	Instructions string
}

var hazards = []struct {
	hazard  Hazard
	phrases []string
}{
	{
		hazard:  Hazard{Kind: "gas", Instructions: "If you smell gas, please leave the house right away, don't switch any lights or appliances on or off, and call your gas utility or 911 once you're outside."},
		phrases: []string{"smell gas", "smells like gas", "smelling gas", "gas smell", "gas leak", "leaking gas", "rotten egg", "rotten eggs"},
	},
	{
		hazard:  Hazard{Kind: "carbon_monoxide", Instructions: "A carbon monoxide alarm is serious. Please get everyone out of the house into fresh air now and call 911 if anyone feels dizzy, sleepy or sick."},
		phrases: []string{"carbon monoxide", "monoxide", "co alarm", "co detector", "c o alarm", "c o detector"},
	},
	{
		hazard:  Hazard{Kind: "fire", Instructions: "If you see smoke, flames or sparks, please turn the system off at the breaker if it's safe, leave the house, and call 911."},
		phrases: []string{"on fire", "caught fire", "catching fire", "flames", "see smoke", "smell smoke", "smells like smoke", "smoke coming", "smoke is coming", "smoke pouring", "full of smoke", "smoking", "sparks", "sparking", "burning smell", "smells like burning", "smell burning", "electrical burning"},
	},
	{
		hazard:  Hazard{Kind: "flooding", Instructions: "If water is spreading, please shut off the water supply and the power to the unit if you can do so safely, and keep away from anything electrical that's wet."},
		phrases: []string{"flooding", "flooded", "flood", "water everywhere", "burst pipe", "pipe burst", "pipes burst"},
	},
}

var (
	noHeatPhrases     = []string{"no heat", "heat is out", "heat went out", "heat's out", "heater is out", "furnace is out", "furnace went out", "not heating", "no heating", "freezing in here", "house is freezing", "it's freezing", "freezing cold", "furnace stopped", "furnace died", "heat stopped"}
	vulnerablePhrases = []string{"baby", "babies", "infant", "newborn", "month old", "elderly", "senior", "grandmother", "grandfather", "grandma", "grandpa", "disabled", "wheelchair", "bedridden", "oxygen", "medical", "sick", "pregnant", "toddler"}

	// benignPhrases are routine equipment talk that would otherwise read
	// as a hazard; they are blanked out before matching.
	benignPhrases = []string{"fire up", "fires up", "firing up", "smoke detector", "smoke detectors", "freezing up", "freezes up", "freeze up", "froze up", "frozen up"}
)

var noHeatHazard = Hazard{
	Kind:         "no_heat_vulnerable",
	Instructions: "With no heat and someone vulnerable in the home, please keep everyone in one warm room, use extra layers and blankets, and never use a gas oven or grill for heat.",
}

// DetectHazard looks for a safety emergency in an utterance.
func DetectHazard(utterance string) (Hazard, bool) {
	text := " " + normalizeText(utterance) + " "
	if strings.TrimSpace(text) == "" {
		return Hazard{}, false
	}
	for _, p := range benignPhrases {
		text = strings.ReplaceAll(text, " "+p+" ", " ")
	}

	for _, h := range hazards {
		if containsPhrase(text, h.phrases) {
			return h.hazard, true
		}
	}
	if containsPhrase(text, noHeatPhrases) && containsPhrase(text, vulnerablePhrases) {
		return noHeatHazard, true
	}
	return Hazard{}, false
}

// HazardFor returns the hazard of the given kind, falling back to a general
// safety message.
func HazardFor(kind string) Hazard {
	for _, h := range hazards {
		if h.hazard.Kind == kind {
			return h.hazard
		}
	}
	if kind == noHeatHazard.Kind {
		return noHeatHazard
	}
	return Hazard{Kind: "general", Instructions: "If anyone is in danger, please leave the house and call 911."}
}

func containsPhrase(padded string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}

func normalizeText(s string) string {
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

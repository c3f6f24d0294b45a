package dialog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectHazard(t *testing.T) {
	tests := []struct {
		utterance string
		kind      string
	}{
		{"I smell gas near the furnace", "gas"},
		{"it smells like rotten eggs in here", "gas"},
		{"our carbon monoxide alarm is going off", "carbon_monoxide"},
		{"the CO detector keeps beeping", "carbon_monoxide"},
		{"there's smoke coming out of the vents", "fire"},
		{"the outdoor unit is sparking", "fire"},
		{"the basement is flooded from the water heater", "flooding"},
		{"the furnace is on fire", "fire"},
		{"I smell smoke from the air handler", "fire"},
		{"no heat and my grandmother is ninety years old", "no_heat_vulnerable"},
		{"it's freezing in here and my dad is in a wheelchair", "no_heat_vulnerable"},
		{"the furnace went out and we have a newborn", "no_heat_vulnerable"},
	}

	for _, tt := range tests {
		t.Run(tt.utterance, func(t *testing.T) {
			h, ok := DetectHazard(tt.utterance)
			assert.True(t, ok)
			assert.Equal(t, tt.kind, h.Kind)
			assert.NotEmpty(t, h.Instructions)
		})
	}
}

func TestDetectHazard_NotAnEmergency(t *testing.T) {
	for _, utterance := range []string{
		"",
		"my AC is not cooling",
		"we have no heat",
		"can you look at my fireplace insert",
		"the gas bill is high",
		"my furnace won't fire up",
		"my smoke detector keeps chirping",
		"the AC is freezing up, it's about 12 years old",
		"the heat pump froze up and it's fifteen years old",
		"no heat, the furnace is about twenty years old",
	} {
		_, ok := DetectHazard(utterance)
		assert.False(t, ok, utterance)
	}
}

func TestHazardFor(t *testing.T) {
	assert.Equal(t, "gas", HazardFor("gas").Kind)
	assert.Equal(t, "no_heat_vulnerable", HazardFor("no_heat_vulnerable").Kind)
	assert.Equal(t, "general", HazardFor("unknown").Kind)
}

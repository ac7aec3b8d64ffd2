package enrichment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractIndustry(t *testing.T) {
	tests := []struct {
		text string
		want Industry
	}{
		{"Shell is an international chain of gas stations.", IndustryFuel},
		{"A gas station with a small shop that sells food and coffee.", IndustryFuel},
		{"De Kas is a restaurant in Amsterdam Oost.", IndustryFood},
		{"Vodafone is a mobile network operator.", IndustryTelecom},
		{"Hetzner offers cloud hosting.", IndustrySoftware},
		{"ING is a Dutch bank.", IndustryBanking},
		{"Jansen & Partners is a law firm in Utrecht.", IndustryProfessional},
		{"A family-run wholesale distributor of textiles.", IndustryWholesale},
		{"Barneveld is a town in Gelderland.", IndustryUnknown},
		{"", IndustryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractIndustry(tt.text))
		})
	}
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name, city, address string
		want                string
	}{
		{"Jansen", "", "", `What type of business is "Jansen" in the Netherlands?`},
		{"Jansen", "Utrecht", "", `What type of business is "Jansen" located in Utrecht in the Netherlands?`},
		{"Jansen", "", "Oudegracht 1", `What type of business is "Jansen" at Oudegracht 1 in the Netherlands?`},
		{" Jansen ", "Utrecht", "Oudegracht 1", `What type of business is "Jansen" at Oudegracht 1, Utrecht in the Netherlands?`},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, BuildQuery(tt.name, tt.city, tt.address))
	}
}

func TestSimulateIndustry(t *testing.T) {
	tests := []struct {
		name string
		want Industry
	}{
		{"SHELL UTRECHT", IndustryFuel},
		{"Q-Park Centrum", IndustryParking},
		{"Restaurant De Kas", IndustryFood},
		{"Restaurnt De Kas", IndustryFood},
		{"Notaris Bakker", IndustryProfessional},
		{"Drukkerij Van Dam", IndustryOffice},
		{"BEA 12:00 PostNL NR 12345", IndustryPostage},
		{"Zwxq Qrtv", IndustryUnknown},
		{"", IndustryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SimulateIndustry(tt.name))
		})
	}
}

func TestApplyClues(t *testing.T) {
	assert.Equal(t, IndustryFood, ApplyClues(IndustryFuel, []string{"restaurant receipt"}))
	assert.Equal(t, IndustryFuel, ApplyClues(IndustryFood, []string{"fuel"}))
	assert.Equal(t, IndustrySoftware, ApplyClues(IndustrySoftware, []string{"parking"}))
	assert.Equal(t, IndustryFuel, ApplyClues(IndustryFuel, nil))
	assert.Equal(t, IndustryFuel, ApplyClues(IndustryFuel, []string{"nothing useful"}))
}

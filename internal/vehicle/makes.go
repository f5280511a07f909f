// internal/vehicle/makes.go
package vehicle

import (
	"regexp"
	"sort"
	"strings"
)

// Make is a canonical manufacturer name with the spellings that map to it.
type Make struct {
	Name    string
	Aliases []string
}

// Makes is the manufacturer vocabulary used to recognize vehicles in free text.
var Makes = []Make{
	{Name: "Acura"},
	{Name: "Alfa Romeo"},
	{Name: "Audi"},
	{Name: "BMW"},
	{Name: "Buick"},
	{Name: "Cadillac"},
	{Name: "Chevrolet", Aliases: []string{"Chevy"}},
	{Name: "Chrysler"},
	{Name: "Dodge"},
	{Name: "Fiat"},
	{Name: "Ford"},
	{Name: "Genesis"},
	{Name: "GMC"},
	{Name: "Honda"},
	{Name: "Hyundai"},
	{Name: "Infiniti"},
	{Name: "Jaguar"},
	{Name: "Jeep"},
	{Name: "Kia"},
	{Name: "Land Rover"},
	{Name: "Lexus"},
	{Name: "Lincoln"},
	{Name: "Mazda"},
	{Name: "Mercedes-Benz", Aliases: []string{"Mercedes Benz", "Mercedes"}},
	{Name: "Mini"},
	{Name: "Mitsubishi"},
	{Name: "Nissan"},
	{Name: "Porsche"},
	{Name: "Ram"},
	{Name: "Subaru"},
	{Name: "Tesla"},
	{Name: "Toyota"},
	{Name: "Volkswagen", Aliases: []string{"VW"}},
	{Name: "Volvo"},
}

var (
	makePattern *regexp.Regexp
	makeLookup  = map[string]string{}
)

func init() {
	var spellings []string
	for _, m := range Makes {
		for _, s := range append([]string{m.Name}, m.Aliases...) {
			makeLookup[strings.ToLower(s)] = m.Name
			spellings = append(spellings, s)
		}
	}
	// Longest first so "Mercedes-Benz" wins over "Mercedes" at the same offset.
	sort.SliceStable(spellings, func(i, j int) bool { return len(spellings[i]) > len(spellings[j]) })

	quoted := make([]string, len(spellings))
	for i, s := range spellings {
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(s), " ", `\s+`)
	}
	makePattern = regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
}

// MakeMatch is a manufacturer found in text.
type MakeMatch struct {
	Name  string // canonical
	Start int    // byte offset of the match
	End   int
}

// FindMake returns the leftmost manufacturer mentioned in text.
func FindMake(text string) (MakeMatch, bool) {
	loc := makePattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return MakeMatch{}, false
	}
	spelled := strings.Join(strings.Fields(text[loc[2]:loc[3]]), " ")
	return MakeMatch{Name: makeLookup[strings.ToLower(spelled)], Start: loc[2], End: loc[3]}, true
}

// CanonicalMake maps any known spelling to its canonical name.
func CanonicalMake(s string) (string, bool) {
	name, ok := makeLookup[strings.ToLower(strings.Join(strings.Fields(strings.ReplaceAll(s, "_", " ")), " "))]
	return name, ok
}

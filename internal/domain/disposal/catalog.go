// Package disposal serves the static safe-disposal guidance and take-back
// locations.
package disposal

// Guideline is a group of steps for one kind of medication
type Guideline struct {
	Category string   `json:"category"`
	Steps    []string `json:"steps"`
}

// Location is an authorized collection site
type Location struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Address string   `json:"address"`
	Hours   string   `json:"hours"`
	Accepts []string `json:"accepts"`
}

var guidelines = []Guideline{
	{
		Category: "Pills & Tablets",
		Steps: []string{
			"Mix medications with unpalatable substances like dirt, cat litter, or used coffee grounds",
			"Place the mixture in a sealed container to prevent leakage",
			"Remove or black out all personal information on prescription labels",
			"Dispose of the container in your household trash",
		},
	},
	{
		Category: "Liquids",
		Steps: []string{
			"Keep medication in its original container",
			"Add a non-toxic solid substance like salt, flour, or charcoal",
			"Secure the lid and place tape around it",
			"Place the container inside a non-leaking container like a plastic bag",
			"Dispose of in household trash",
		},
	},
	{
		Category: "Inhalers",
		Steps: []string{
			"Do not puncture or throw into a fire or incinerator",
			"Check with your local waste management authorities for proper disposal guidelines",
			"Some pharmacies may accept inhalers for proper disposal",
		},
	},
	{
		Category: "Sharps",
		Steps: []string{
			"Place used needles and syringes in an FDA-cleared sharps container immediately after use",
			"Do not overfill the container past the fill line",
			"Drop off full containers at a sharps collection site or household hazardous waste facility",
		},
	},
}

var locations = []Location{
	{
		Name:    "Main Street Pharmacy",
		Kind:    "pharmacy",
		Address: "120 Main St",
		Hours:   "Mon-Sat 9am - 9pm",
		Accepts: []string{"Pills & Tablets", "Liquids", "Inhalers"},
	},
	{
		Name:    "County General Hospital",
		Kind:    "hospital",
		Address: "4500 Medical Center Dr",
		Hours:   "24 hours",
		Accepts: []string{"Pills & Tablets", "Liquids", "Sharps"},
	},
	{
		Name:    "Central Police Station",
		Kind:    "law enforcement",
		Address: "15 Civic Plaza",
		Hours:   "Mon-Fri 8am - 6pm",
		Accepts: []string{"Pills & Tablets"},
	},
}

// Guidelines returns the disposal steps grouped by medication type
func Guidelines() []Guideline {
	out := make([]Guideline, len(guidelines))
	for i, g := range guidelines {
		out[i] = Guideline{Category: g.Category, Steps: append([]string(nil), g.Steps...)}
	}
	return out
}

// Locations returns the take-back sites
func Locations() []Location {
	out := make([]Location, len(locations))
	for i, l := range locations {
		l.Accepts = append([]string(nil), l.Accepts...)
		out[i] = l
	}
	return out
}

// ReminderMessage is the notification text for the periodic expiry check
const ReminderMessage = "Check your medicine cabinet for expired medications. We'll remind you again in 6 months."

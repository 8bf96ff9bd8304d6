package factory

import (
	"fmt"
	"strings"
	"time"

	"github.com/warp/collections-engine/allocation"
)

// =============================================================================
// DEMO SCENARIOS
// =============================================================================

// Scenario is a named seed document for a single day. The literal {{date}}
// in Document is replaced by the target day before parsing.
type Scenario struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Scope       allocation.ScopeID `json:"scope"`
	Document    string             `json:"-"`
}

// Seed renders the scenario for day and parses it.
func (s Scenario) Seed(day time.Time) (*Seed, error) {
	doc := strings.ReplaceAll(s.Document, "{{date}}", allocation.FormatDay(day))
	seed, err := ParseSeed([]byte(doc))
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.ID, err)
	}
	return seed, nil
}

// ScenarioByID looks up a built-in scenario.
func ScenarioByID(id string) (Scenario, bool) {
	for _, s := range Scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return Scenario{}, false
}

const teamOfFour = `
agents:
  - id: tess
    name: Tess (team leader)
    levels: {bucket-a: team_leader}
  - id: sam
    name: Sam (senior)
    levels: {bucket-a: senior}
  - id: mia
    name: Mia (mid-level)
    levels: {bucket-a: mid_level}
  - id: jo
    name: Jo (junior)
    levels: {bucket-a: junior}
`

// Scenarios lists the built-in demo days, all in scope bucket-a.
var Scenarios = []Scenario{
	{
		ID:          "even-split",
		Name:        "Even Split",
		Description: "One agent per level, 10 cases at DPD 5; save 25/25/25/25 and each agent gets 2 or 3",
		Scope:       "bucket-a",
		Document: teamOfFour + `
duty:
  - date: "{{date}}"
    scope: bucket-a
    working: [tess, sam, mia, jo]
generate:
  - scope: bucket-a
    prefix: even
    count: 10
    dpd: [5]
`,
	},
	{
		ID:          "missing-level",
		Name:        "Level Without Agents",
		Description: "Juniors are off today; their share of the pool is placed as leftovers",
		Scope:       "bucket-a",
		Document: teamOfFour + `
  - id: max
    name: Max (mid-level)
    levels: {bucket-a: mid_level}
duty:
  - date: "{{date}}"
    scope: bucket-a
    working: [mia, max]
    off: [tess, sam, jo]
generate:
  - scope: bucket-a
    prefix: gap
    count: 10
    dpd: [0]
`,
	},
	{
		ID:          "partial-data",
		Name:        "Partial Data",
		Description: "A new hire on duty without a level is excluded from stratified runs but joins simple runs",
		Scope:       "bucket-a",
		Document: teamOfFour + `
  - id: new-hire
    name: New Hire
duty:
  - date: "{{date}}"
    scope: bucket-a
    working: [tess, sam, mia, jo, new-hire]
generate:
  - scope: bucket-a
    prefix: pd
    count: 16
    dpd: [0, 30]
`,
	},
	{
		ID:          "empty-roster",
		Name:        "Empty Roster",
		Description: "Cases but nobody on duty; suggesting a config has nothing to work from",
		Scope:       "bucket-a",
		Document: teamOfFour + `
duty:
  - date: "{{date}}"
    scope: bucket-a
    working: []
    off: [tess, sam, mia, jo]
generate:
  - scope: bucket-a
    prefix: idle
    count: 5
    dpd: [15]
`,
	},
	{
		ID:          "busy-day",
		Name:        "Busy Day",
		Description: "Two agents per level and 240 cases across four DPD bands",
		Scope:       "bucket-a",
		Document: teamOfFour + `
  - id: tom
    name: Tom (team leader)
    levels: {bucket-a: team_leader}
  - id: sia
    name: Sia (senior)
    levels: {bucket-a: senior}
  - id: mo
    name: Mo (mid-level)
    levels: {bucket-a: mid_level}
  - id: jay
    name: Jay (junior)
    levels: {bucket-a: junior}
duty:
  - date: "{{date}}"
    scope: bucket-a
    working: [tess, tom, sam, sia, mia, mo, jo, jay]
generate:
  - scope: bucket-a
    prefix: busy
    count: 240
    dpd: [0, 30, 60, 90]
`,
	},
}

// Package harness runs recording-workflow scenarios defined in YAML
// against a store-backed session and checks phase traces and final state.
package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance scenario for the recording workflow: a
// seeded match, a sequence of user actions, and assertions on the phases
// and scores that fall out.
type Scenario struct {
	// Name uniquely identifies this scenario (also the golden file name).
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// MatchID defaults to "match-<name>" when empty.
	MatchID string `yaml:"match_id,omitempty"`

	// Team1 and Team2 are the backend team ids for side A and side B.
	Team1 string `yaml:"team1"`
	Team2 string `yaml:"team2"`

	// Rules is an optional path to a CUE rule-set file, resolved relative
	// to the scenario file. Empty means the embedded default rules.
	Rules string `yaml:"rules,omitempty"`

	// Players seeds the selectable pools per team.
	Players PlayerSeed `yaml:"players,omitempty"`

	// Steps is the user action sequence.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final session state.
	Assertions []Assertion `yaml:"assertions"`
}

// PlayerSeed lists the selectable players per team.
type PlayerSeed struct {
	Team1 []SeedPlayer `yaml:"team1,omitempty"`
	Team2 []SeedPlayer `yaml:"team2,omitempty"`
}

// SeedPlayer is one selectable-pool entry.
type SeedPlayer struct {
	UserID string `yaml:"user_id"`
	Name   string `yaml:"name,omitempty"`
	// Pool is registered, unregistered, virtual, or unassigned.
	// Defaults to registered.
	Pool string `yaml:"pool,omitempty"`
}

// Step is one user action. Exactly one action field must be set.
type Step struct {
	// Event records a match event.
	Event *EventStep `yaml:"event,omitempty"`

	// RemoveEvent deletes a previously recorded event by its step label.
	RemoveEvent *RemoveStep `yaml:"remove_event,omitempty"`

	// Advance moves to the next phase.
	Advance *AdvanceStep `yaml:"advance,omitempty"`

	// Retreat moves to the previous phase.
	Retreat *struct{} `yaml:"retreat,omitempty"`

	// ConfirmScoreless clears the 0-0 gate for a quarter.
	ConfirmScoreless *ScorelessStep `yaml:"confirm_scoreless,omitempty"`

	// Shootout enters penalty scores.
	Shootout *ShootoutStep `yaml:"shootout,omitempty"`

	// Participants sets the attendee selection.
	Participants *ParticipantsStep `yaml:"participants,omitempty"`

	// MVP sets the MVP selection.
	MVP *MVPStep `yaml:"mvp,omitempty"`

	// Submit finalizes the session.
	Submit *AdvanceStep `yaml:"submit,omitempty"`
}

// EventStep records one event.
type EventStep struct {
	// Label names the event so later steps can remove it.
	Label   string `yaml:"label,omitempty"`
	Quarter int    `yaml:"quarter"`
	Type    string `yaml:"type"`
	// Team is 1 or 2 (the side credited with the event).
	Team    int    `yaml:"team"`
	Minute  int    `yaml:"minute"`
	Player  string `yaml:"player"`
	Assist  string `yaml:"assist,omitempty"`
	OwnGoal bool   `yaml:"own_goal,omitempty"`
	Notes   string `yaml:"notes,omitempty"`

	// ExpectError is the expected validation field, empty for success.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// RemoveStep deletes the event recorded under Label.
type RemoveStep struct {
	Label string `yaml:"label"`
}

// AdvanceStep moves forward and optionally checks the outcome.
type AdvanceStep struct {
	// ExpectPhase is the phase expected after the step, empty to skip.
	ExpectPhase string `yaml:"expect_phase,omitempty"`

	// ExpectError marks the step as expected to fail: "scoreless" for the
	// 0-0 gate, otherwise a validation field name.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// ScorelessStep confirms a genuine 0-0 quarter.
type ScorelessStep struct {
	Quarter int `yaml:"quarter"`
}

// ShootoutStep enters penalty shootout scores.
type ShootoutStep struct {
	Team1 int `yaml:"team1"`
	Team2 int `yaml:"team2"`
}

// ParticipantsStep sets attendees per team.
type ParticipantsStep struct {
	Team1 []string `yaml:"team1,omitempty"`
	Team2 []string `yaml:"team2,omitempty"`
}

// MVPStep selects MVPs from the confirmed attendees.
type MVPStep struct {
	Players []string `yaml:"players"`

	// ExpectError is the expected validation field, empty for success.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion validates final session state.
type Assertion struct {
	// Type is one of: final_phase, totals, tally, shootout.
	Type string `yaml:"type"`

	// Phase is the expected final phase (final_phase).
	Phase string `yaml:"phase,omitempty"`

	// PointsTeam1/2 and GoalsTeam1/2 are the expected totals (totals).
	PointsTeam1 int `yaml:"points_team1,omitempty"`
	PointsTeam2 int `yaml:"points_team2,omitempty"`
	GoalsTeam1  int `yaml:"goals_team1,omitempty"`
	GoalsTeam2  int `yaml:"goals_team2,omitempty"`

	// Quarter plus Team1/Team2 goals (tally).
	Quarter int `yaml:"quarter,omitempty"`
	Team1   int `yaml:"team1,omitempty"`
	Team2   int `yaml:"team2,omitempty"`

	// Present is the expected shootout presence (shootout).
	Present bool `yaml:"present,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalPhase = "final_phase"
	AssertTotals     = "totals"
	AssertTally      = "tally"
	AssertShootout   = "shootout"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected to catch typos, and required fields are validated.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	if scenario.MatchID == "" {
		scenario.MatchID = "match-" + scenario.Name
	}
	if scenario.Rules != "" && !filepath.IsAbs(scenario.Rules) {
		scenario.Rules = filepath.Join(filepath.Dir(path), scenario.Rules)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and each step
// carries exactly one action.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Team1 == "" || s.Team2 == "" {
		return fmt.Errorf("team1 and team2 are required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		switch a.Type {
		case AssertFinalPhase:
			if a.Phase == "" {
				return fmt.Errorf("assertions[%d]: phase is required for final_phase", i)
			}
		case AssertTotals, AssertShootout:
			// All fields optional; zero values assert zeros.
		case AssertTally:
			if a.Quarter < 1 {
				return fmt.Errorf("assertions[%d]: quarter is required for tally", i)
			}
		default:
			return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
		}
	}

	return nil
}

func validateStep(index int, step *Step) error {
	count := 0
	if step.Event != nil {
		count++
		if step.Event.Quarter < 1 {
			return fmt.Errorf("steps[%d].event: quarter is required", index)
		}
		if step.Event.Team != 1 && step.Event.Team != 2 {
			return fmt.Errorf("steps[%d].event: team must be 1 or 2", index)
		}
	}
	if step.RemoveEvent != nil {
		count++
		if step.RemoveEvent.Label == "" {
			return fmt.Errorf("steps[%d].remove_event: label is required", index)
		}
	}
	if step.Advance != nil {
		count++
	}
	if step.Retreat != nil {
		count++
	}
	if step.ConfirmScoreless != nil {
		count++
		if step.ConfirmScoreless.Quarter < 1 {
			return fmt.Errorf("steps[%d].confirm_scoreless: quarter is required", index)
		}
	}
	if step.Shootout != nil {
		count++
	}
	if step.Participants != nil {
		count++
	}
	if step.MVP != nil {
		count++
	}
	if step.Submit != nil {
		count++
	}

	if count != 1 {
		return fmt.Errorf("steps[%d]: exactly one action is required, got %d", index, count)
	}
	return nil
}

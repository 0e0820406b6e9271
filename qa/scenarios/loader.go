// Package scenarios runs YAML-described planning days through the
// scheduling pipeline and checks the resulting placements.
package scenarios

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/runsheet/core/model"
)

type TruckDef struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name,omitempty"`
}

type JobDef struct {
	ID       string `yaml:"id"`
	Kind     string `yaml:"kind,omitempty"`
	Load     int    `yaml:"load,omitempty"`
	Travel   int    `yaml:"travel,omitempty"`
	Onsite   int    `yaml:"onsite,omitempty"`
	Return   int    `yaml:"return,omitempty"`
	Earliest string `yaml:"earliest,omitempty"`
	Truck    string `yaml:"truck,omitempty"`
	Priority *int   `yaml:"priority,omitempty"`
	// Day empty leaves the job out of auto-scheduling; it can still be
	// placed by a manual step.
	Day string `yaml:"day,omitempty"`
}

func (j JobDef) ToModel() model.Job {
	return model.Job{
		ID:           j.ID,
		Kind:         model.JobKind(j.Kind),
		Load:         j.Load,
		Travel:       j.Travel,
		Onsite:       j.Onsite,
		ReturnTravel: j.Return,
		Earliest:     j.Earliest,
		TruckID:      j.Truck,
		Priority:     j.Priority,
		Day:          model.Day(j.Day),
	}
}

// ManualStep places one job with the first-fit probe after auto-scheduling.
// Want is "truck@HH:MM", or "none" when no truck has room.
type ManualStep struct {
	Job  string `yaml:"job"`
	Want string `yaml:"want"`
}

type Expected struct {
	Placed      int      `yaml:"placed"`
	Unscheduled []string `yaml:"unscheduled,omitempty"`
	// Starts maps job ids to "truck@HH:MM".
	Starts map[string]string `yaml:"starts,omitempty"`
}

type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Day         string         `yaml:"day"`
	Settings    model.Settings `yaml:"settings"`
	Trucks      []TruckDef     `yaml:"trucks"`
	Jobs        []JobDef       `yaml:"jobs"`
	Manual      []ManualStep   `yaml:"manual,omitempty"`
	Expected    Expected       `yaml:"expected"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("%s: scenario name is required", path)
	}
	return &sc, nil
}

// parseSlot splits "truck@HH:MM" into a truck id and a minute of day.
func parseSlot(s string) (string, int, error) {
	truck, clock, ok := strings.Cut(s, "@")
	if !ok {
		return "", 0, fmt.Errorf("slot %q: want truck@HH:MM", s)
	}
	m, ok := model.ParseClock(clock)
	if !ok {
		return "", 0, fmt.Errorf("slot %q: invalid clock", s)
	}
	return truck, m, nil
}

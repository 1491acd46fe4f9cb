package registry

import (
	"fmt"
	"log"
	"maps"
	"slices"
	"strings"

	"github.com/st3v3nmw/mirrorcheck/internal/scenario"
)

var sets = make(map[string]*Set)

// Set is a named group of scenarios run together.
type Set struct {
	Key       string
	Name      string
	Summary   string
	Scenarios []scenario.Scenario
}

func (s *Set) Add(sc scenario.Scenario) {
	s.Scenarios = append(s.Scenarios, sc)
}

func (s *Set) Get(id string) (*scenario.Scenario, error) {
	for i := range s.Scenarios {
		if s.Scenarios[i].ID == id {
			return &s.Scenarios[i], nil
		}
	}

	return nil, fmt.Errorf("scenario %q not found in set %s", id, s.Key)
}

func (s *Set) Len() int {
	return len(s.Scenarios)
}

// README renders the set as a markdown listing.
func (s *Set) README() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n%s\n\n## Scenarios\n\n", s.Name, s.Summary)
	for i := range s.Scenarios {
		sc := &s.Scenarios[i]
		fmt.Fprintf(&b, "%d. **%s** - %s\n", i+1, sc.ID, sc.Title())
	}

	return b.String()
}

func Register(key string, set *Set) {
	if set.Len() == 0 {
		log.Fatalf("Cannot register empty scenario set %s.", key)
	}

	if err := scenario.ValidateAll(set.Scenarios); err != nil {
		log.Fatalf("Cannot register scenario set %s: %v", key, err)
	}

	set.Key = key
	sets[key] = set
}

func Get(key string) (*Set, error) {
	set, exists := sets[key]
	if !exists {
		return nil, fmt.Errorf("scenario set %s not found", key)
	}

	return set, nil
}

// Keys returns the registered set keys in sorted order.
func Keys() []string {
	return slices.Sorted(maps.Keys(sets))
}

// All returns every registered scenario, set by set in key order.
func All() []scenario.Scenario {
	var all []scenario.Scenario
	for _, key := range Keys() {
		all = append(all, sets[key].Scenarios...)
	}

	return all
}

// Find looks up a scenario by id across every set.
func Find(id string) (*scenario.Scenario, error) {
	for _, key := range Keys() {
		if sc, err := sets[key].Get(id); err == nil {
			return sc, nil
		}
	}

	return nil, fmt.Errorf("scenario %s not found", id)
}

// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package check

import (
	"fmt"
	"strings"
)

// GroupVerdict is the combined outcome of every check run against one
// application group. Its outcome is the worst of its results; no result
// is ever suppressed.
type GroupVerdict struct {
	Application string   `yaml:"application" json:"application"`
	CharmName   string   `yaml:"charm" json:"charm"`
	Units       []string `yaml:"units" json:"units"`
	Results     []Result `yaml:"checks" json:"checks"`

	Outcome Outcome `yaml:"-" json:"-"`
	Status  string  `yaml:"verdict" json:"verdict"`
}

// NewGroupVerdict combines the results for one application group.
func NewGroupVerdict(application, charmName string, units []string, results []Result) GroupVerdict {
	outcome := Pass
	for _, r := range results {
		outcome = Worst(outcome, r.Outcome)
	}
	return GroupVerdict{
		Application: application,
		CharmName:   charmName,
		Units:       units,
		Results:     results,
		Outcome:     outcome,
		Status:      outcome.String(),
	}
}

// Verdict is the overall determination for one invocation. Groups arising
// from a machine target that spans several applications keep their own
// verdicts; the overall outcome is the worst across all groups.
type Verdict struct {
	Groups []GroupVerdict `yaml:"applications" json:"applications"`

	Outcome Outcome `yaml:"-" json:"-"`
	Status  string  `yaml:"verdict" json:"verdict"`
}

// Combine aggregates per-group verdicts into the overall verdict.
func Combine(groups []GroupVerdict) Verdict {
	outcome := Pass
	for _, g := range groups {
		outcome = Worst(outcome, g.Outcome)
	}
	return Verdict{
		Groups:  groups,
		Outcome: outcome,
		Status:  outcome.String(),
	}
}

// Describe renders the verdict as a human readable report. Every non-PASS
// result is enumerated with its units and reason; warnings are always
// shown.
func (v Verdict) Describe() string {
	var b strings.Builder
	for _, g := range v.Groups {
		fmt.Fprintf(&b, "application %q (charm %s, units: %s): %s\n",
			g.Application, g.CharmName, strings.Join(g.Units, ", "), g.Outcome)
		for _, r := range g.Results {
			if r.Outcome != Pass {
				fmt.Fprintf(&b, "  %s\n", r.Describe())
			}
			for _, w := range r.Warnings {
				fmt.Fprintf(&b, "  WARN %s: %s\n", r.Check, w)
			}
		}
	}
	fmt.Fprintf(&b, "overall: %s\n", v.Outcome)
	return b.String()
}

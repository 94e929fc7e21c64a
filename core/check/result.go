// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package check defines the outcome vocabulary shared by all charm
// verifiers and the rules for aggregating individual check results into
// a verdict for the whole run.
package check

import (
	"fmt"
	"strings"
)

// Outcome is the tri-state result of a single check. Ordering matters:
// when results are combined the worst outcome wins, and Fail outranks
// Unknown, which outranks Pass.
type Outcome int

const (
	Pass Outcome = iota
	Unknown
	Fail
)

// String is part of fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case Pass:
		return "PASS"
	case Unknown:
		return "UNKNOWN"
	case Fail:
		return "FAIL"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Worst returns the more severe of two outcomes.
func Worst(a, b Outcome) Outcome {
	if b > a {
		return b
	}
	return a
}

// Result is the outcome of one check run against one application group.
type Result struct {
	// Check names the check that produced the result.
	Check string `yaml:"check" json:"check"`

	Outcome Outcome `yaml:"-" json:"-"`

	// Status is the outcome rendered for serialisation.
	Status string `yaml:"result" json:"result"`

	// Reason explains a non-PASS outcome so the operator can act on it.
	Reason string `yaml:"reason,omitempty" json:"reason,omitempty"`

	// Units are the unit names the result pertains to.
	Units []string `yaml:"units,omitempty" json:"units,omitempty"`

	// Warnings carry advisory notes that do not affect the outcome,
	// such as recorded force bypasses or recommended manual failovers.
	Warnings []string `yaml:"warnings,omitempty" json:"warnings,omitempty"`
}

// Passed returns a passing result.
func Passed(check, reason string) Result {
	return seal(Result{Check: check, Outcome: Pass, Reason: reason})
}

// Failedf returns a failing result pertaining to the given units.
func Failedf(check string, units []string, format string, args ...interface{}) Result {
	return seal(Result{
		Check:   check,
		Outcome: Fail,
		Reason:  fmt.Sprintf(format, args...),
		Units:   units,
	})
}

// Unknownf returns an indeterminate result. Checks report Unknown whenever
// a signal they rely on is missing; missing data is never treated as
// healthy.
func Unknownf(check string, units []string, format string, args ...interface{}) Result {
	return seal(Result{
		Check:   check,
		Outcome: Unknown,
		Reason:  fmt.Sprintf(format, args...),
		Units:   units,
	})
}

// WithWarnings returns a copy of r with the warnings appended.
func (r Result) WithWarnings(warnings ...string) Result {
	r.Warnings = append(r.Warnings[:len(r.Warnings):len(r.Warnings)], warnings...)
	return r
}

func seal(r Result) Result {
	r.Status = r.Outcome.String()
	return r
}

// Describe renders the result on one line.
func (r Result) Describe() string {
	var b strings.Builder
	b.WriteString(r.Outcome.String())
	b.WriteString(" ")
	b.WriteString(r.Check)
	if r.Reason != "" {
		b.WriteString(": ")
		b.WriteString(r.Reason)
	}
	if len(r.Units) > 0 {
		b.WriteString(" (units: ")
		b.WriteString(strings.Join(r.Units, ", "))
		b.WriteString(")")
	}
	return b.String()
}

// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package resolver expands the targets named on the command line into the
// application groups a verification run must check. Machine targets expand
// to every unit hosted on the machine, so one machine may produce several
// independent application groups.
package resolver

import (
	"sort"

	"github.com/juju/collections/set"
	"github.com/juju/errors"

	"github.com/canonical/juju-verify/core/snapshot"
)

// Kind says whether the targets name units or machines. The two may not
// be mixed in one run.
type Kind string

const (
	Units    Kind = "units"
	Machines Kind = "machines"
)

// Targets is a validated, immutable target set.
type Targets struct {
	Kind  Kind
	Names []string
}

// Group is the set of targeted units belonging to one application,
// paired with the application's full current membership via the snapshot.
type Group struct {
	Application string
	CharmName   string

	// Units are the targeted units of the application, ordered by name.
	Units []*snapshot.Unit
}

// Resolve maps the target set onto application groups using the given
// snapshot. It fails with NotValid for malformed input (empty set, unit
// targets spanning several applications) and NotFound when a named target
// does not exist in current cluster state; machine mode is the explicit
// way to request a run spanning several applications.
func Resolve(snap *snapshot.Snapshot, targets Targets) ([]Group, error) {
	if len(targets.Names) == 0 {
		return nil, errors.NotValidf("empty target set")
	}
	switch targets.Kind {
	case Units:
		return resolveUnits(snap, targets.Names, false)
	case Machines:
		return resolveMachines(snap, targets.Names)
	}
	return nil, errors.NotValidf("target kind %q", targets.Kind)
}

func resolveUnits(snap *snapshot.Snapshot, names []string, multiApp bool) ([]Group, error) {
	byApp := make(map[string][]*snapshot.Unit)
	seen := set.NewStrings()
	for _, name := range names {
		if seen.Contains(name) {
			continue
		}
		seen.Add(name)
		unit := snap.Unit(name)
		if unit == nil {
			return nil, errors.NotFoundf("unit %q", name)
		}
		byApp[unit.Application] = append(byApp[unit.Application], unit)
	}
	if !multiApp && len(byApp) > 1 {
		apps := make([]string, 0, len(byApp))
		for name := range byApp {
			apps = append(apps, name)
		}
		sort.Strings(apps)
		return nil, errors.NotValidf("unit targets spanning applications %v; use machine targets to verify more than one application", apps)
	}

	groups := make([]Group, 0, len(byApp))
	for appName, units := range byApp {
		app, ok := snap.Applications[appName]
		if !ok {
			return nil, errors.NotFoundf("application %q", appName)
		}
		sort.Slice(units, func(i, j int) bool { return units[i].Name < units[j].Name })
		groups = append(groups, Group{
			Application: appName,
			CharmName:   app.CharmName,
			Units:       units,
		})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Application < groups[j].Application })
	return groups, nil
}

func resolveMachines(snap *snapshot.Snapshot, names []string) ([]Group, error) {
	unitNames := []string{}
	seen := set.NewStrings()
	for _, id := range names {
		if seen.Contains(id) {
			continue
		}
		seen.Add(id)
		machine := snap.Machine(id)
		if machine == nil {
			return nil, errors.NotFoundf("machine %q", id)
		}
		unitNames = append(unitNames, machine.Units...)
	}
	if len(unitNames) == 0 {
		return nil, errors.NotFoundf("units hosted on machines %v", names)
	}
	return resolveUnits(snap, unitNames, true)
}

// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package verifier

import (
	"fmt"
	"sort"
	"strings"

	"github.com/juju/collections/set"

	"github.com/canonical/juju-verify/core/check"
	"github.com/canonical/juju-verify/core/snapshot"
)

// gatewayRedundancy fails when a targeted gateway unit hosts the sole
// active instance of a routed resource of the given kind. A resource is
// redundant only while another active instance of it runs on a host that
// is not going down.
type gatewayRedundancy struct {
	kind string
}

// Name is part of Verifier.
func (c gatewayRedundancy) Name() string { return c.kind + "-redundancy" }

// Verify is part of Verifier.
func (c gatewayRedundancy) Verify(req Request) check.Result {
	if req.Snapshot.Network.Resources == nil {
		return check.Unknownf(c.Name(), req.TargetNames(),
			"%s information for application %q could not be obtained", c.kind, req.Application.Name)
	}
	hosts, missing := req.targetHostnames()
	if len(missing) > 0 {
		return check.Unknownf(c.Name(), missing, "hostnames of %d targeted unit(s) are not reported", len(missing))
	}
	targetHosts := set.NewStrings(hosts...)

	// Resources going down with the targets, and active instances that
	// remain elsewhere.
	leaving := set.NewStrings()
	staying := set.NewStrings()
	for _, res := range req.Snapshot.Network.Resources {
		if res.Kind != c.kind || !res.Active {
			continue
		}
		if targetHosts.Contains(res.Host) {
			leaving.Add(res.ID)
		} else {
			staying.Add(res.ID)
		}
	}

	stranded := leaving.Difference(staying).SortedValues()
	if len(stranded) > 0 {
		return check.Failedf(c.Name(), req.TargetNames(),
			"targeted unit(s) host the only active instance of %s(s): %s",
			c.kind, strings.Join(stranded, ", "))
	}
	return check.Passed(c.Name(), fmt.Sprintf("every active %s remains available", c.kind))
}

// routerHAAdvisory recommends failing over HA routers hosted on targeted
// units before disruption. Advisory only; its warnings never change the
// verdict, and missing data is covered by the redundancy checks.
type routerHAAdvisory struct{}

// Name is part of Verifier.
func (routerHAAdvisory) Name() string { return "ha-routers" }

// Verify is part of Verifier.
func (c routerHAAdvisory) Verify(req Request) check.Result {
	hosts, _ := req.targetHostnames()
	targetHosts := set.NewStrings(hosts...)
	var routers []string
	for _, res := range req.Snapshot.Network.Resources {
		if res.Kind == snapshot.ResourceRouter && res.HA && res.Active && targetHosts.Contains(res.Host) {
			routers = append(routers, fmt.Sprintf("%s (on %s)", res.ID, res.Host))
		}
	}
	if len(routers) == 0 {
		return check.Passed(c.Name(), "no HA routers on targeted units")
	}
	sort.Strings(routers)
	return check.Passed(c.Name(), "HA routers fail over on their own").WithWarnings(
		"it is recommended to manually failover the following routers: " + strings.Join(routers, ", "))
}

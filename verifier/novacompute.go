// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package verifier

import (
	"fmt"
	"strings"

	"github.com/canonical/juju-verify/core/check"
)

// novaActiveGuests refuses to disrupt a hypervisor that still hosts
// running guests. The operator either evacuates the guests first or
// explicitly overrides, in which case the bypass is recorded in the
// report.
type novaActiveGuests struct{}

// Name is part of Verifier.
func (novaActiveGuests) Name() string { return "active-guests" }

// Verify is part of Verifier.
func (c novaActiveGuests) Verify(req Request) check.Result {
	var unreported []string
	var busy []string
	var counts []string
	for _, u := range req.Units {
		hypervisor, ok := req.Snapshot.Compute.Hypervisors[u.Name]
		if !ok {
			unreported = append(unreported, u.Name)
			continue
		}
		if hypervisor.RunningGuests > 0 {
			busy = append(busy, u.Name)
			counts = append(counts, fmt.Sprintf("%s hosts %d running guest(s)", u.Name, hypervisor.RunningGuests))
		}
	}
	if len(unreported) > 0 {
		return check.Unknownf(c.Name(), unreported,
			"guest occupancy of %d targeted unit(s) could not be obtained", len(unreported))
	}
	if len(busy) == 0 {
		return check.Passed(c.Name(), "no running guests on targeted units")
	}
	if req.Force {
		return check.Passed(c.Name(), "running guests ignored on request").
			WithWarnings("force override: " + strings.Join(counts, "; "))
	}
	return check.Failedf(c.Name(), busy,
		"%s; evacuate the guests or re-run with --force", strings.Join(counts, "; "))
}

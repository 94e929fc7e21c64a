// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package jujuapi implements the cluster state gateway over the Juju
// controller API. It is deliberately thin: one status fetch builds the
// topology, and a handful of read-only charm actions gather the workload
// detail the verifiers need. Nothing here mutates the model.
package jujuapi

import (
	"context"
	"sort"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/juju/api"
	apiaction "github.com/juju/juju/api/client/action"
	apiclient "github.com/juju/juju/api/client/client"
	"github.com/juju/juju/api/connector"
	"github.com/juju/juju/core/status"
	"github.com/juju/juju/rpc/params"
	"github.com/juju/loggo/v2"
	"github.com/juju/names/v5"
	"github.com/juju/retry"

	"github.com/canonical/juju-verify/core/snapshot"
	"github.com/canonical/juju-verify/gateway"
)

var logger = loggo.GetLogger("juju-verify.gateway.jujuapi")

// Config holds the connection details for one controller model.
type Config struct {
	ControllerAddresses []string
	CACert              string
	ModelUUID           string
	Username            string
	Password            string

	// Clock paces action result polling; wall clock when nil.
	Clock clock.Clock
}

// Gateway talks to a Juju controller. It holds no connection between
// invocations; every Snapshot call dials, reads and hangs up.
type Gateway struct {
	cfg   Config
	clock clock.Clock
}

// New returns a gateway for the given controller details.
func New(cfg Config) (*Gateway, error) {
	if len(cfg.ControllerAddresses) == 0 {
		return nil, errors.NotValidf("missing controller addresses")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	return &Gateway{cfg: cfg, clock: clk}, nil
}

// Snapshot implements gateway.Gateway. The model topology comes from a
// single full status call; workload detail sections are gathered for the
// charm types the scope touches. A probe that cannot be completed leaves
// its section absent, which the verifiers surface as UNKNOWN; only
// failing to reach the controller or a malformed status aborts the run.
func (g *Gateway) Snapshot(ctx context.Context, scope gateway.Scope) (*snapshot.Snapshot, error) {
	conn, err := g.connect()
	if err != nil {
		return nil, gateway.NewError(errors.Annotate(err, "connecting to controller"))
	}
	defer func() { _ = conn.Close() }()

	full, err := apiclient.NewClient(conn, logger).Status(nil)
	if err != nil {
		return nil, gateway.NewError(errors.Annotate(err, "fetching model status"))
	}
	snap, err := buildTopology(full)
	if err != nil {
		return nil, gateway.NewError(errors.Trace(err))
	}

	runner := &actionRunner{
		client: apiaction.NewClient(conn),
		clock:  g.clock,
	}
	g.collectWorkloadDetail(ctx, runner, snap, scope)
	return snap, nil
}

func (g *Gateway) connect() (api.Connection, error) {
	simple, err := connector.NewSimple(connector.SimpleConfig{
		ControllerAddresses: g.cfg.ControllerAddresses,
		CACert:              g.cfg.CACert,
		ModelUUID:           g.cfg.ModelUUID,
		Username:            g.cfg.Username,
		Password:            g.cfg.Password,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return simple.Connect()
}

// buildTopology converts a full status into the snapshot's application,
// unit and machine views. Subordinate units are attributed to their own
// application and to their principal's machine.
func buildTopology(full *params.FullStatus) (*snapshot.Snapshot, error) {
	snap := &snapshot.Snapshot{
		Model:        full.Model.Name,
		Applications: make(map[string]*snapshot.Application),
		Machines:     make(map[string]*snapshot.Machine),
		Storage: snapshot.StorageState{
			Health:      make(map[string]string),
			Replication: make(map[string]snapshot.Replication),
			OSDTrees:    make(map[string][]snapshot.OSDTreeNode),
			Monitors:    make(map[string]snapshot.MonQuorum),
		},
		Compute: snapshot.ComputeState{
			Hypervisors: make(map[string]snapshot.Hypervisor),
		},
	}
	for id, machine := range full.Machines {
		snap.Machines[id] = &snapshot.Machine{ID: id, Hostname: machine.Hostname}
	}
	for name, app := range full.Applications {
		cn, err := charmName(app.Charm)
		if err != nil {
			return nil, errors.Trace(err)
		}
		snap.Applications[name] = &snapshot.Application{
			Name:      name,
			CharmName: cn,
		}
	}
	for appName, app := range full.Applications {
		for unitName, unit := range app.Units {
			if err := addUnit(snap, appName, unitName, unit); err != nil {
				return nil, errors.Trace(err)
			}
			for subName, sub := range unit.Subordinates {
				subApp, err := names.UnitApplication(subName)
				if err != nil {
					return nil, errors.Trace(err)
				}
				sub := sub
				sub.Machine = unit.Machine
				if err := addUnit(snap, subApp, subName, sub); err != nil {
					return nil, errors.Trace(err)
				}
			}
		}
	}
	for _, app := range snap.Applications {
		units := app.Units
		sort.Slice(units, func(i, j int) bool { return units[i].Name < units[j].Name })
	}
	for _, machine := range snap.Machines {
		sort.Strings(machine.Units)
	}
	return snap, nil
}

func addUnit(snap *snapshot.Snapshot, appName, unitName string, unit params.UnitStatus) error {
	app, ok := snap.Applications[appName]
	if !ok {
		return errors.NotFoundf("application %q for unit %q", appName, unitName)
	}
	hostname := ""
	if machine := snap.Machines[unit.Machine]; machine != nil {
		machine.Units = append(machine.Units, unitName)
		hostname = machine.Hostname
	}
	app.Units = append(app.Units, &snapshot.Unit{
		Name:           unitName,
		Application:    appName,
		Machine:        unit.Machine,
		Hostname:       hostname,
		WorkloadStatus: status.Status(unit.WorkloadStatus.Status),
		AgentStatus:    status.Status(unit.AgentStatus.Status),
	})
	return nil
}

// targetedUnits resolves the scope to the concrete units it touches.
// Unknown names are ignored here; the resolver reports them properly.
func targetedUnits(snap *snapshot.Snapshot, scope gateway.Scope) []*snapshot.Unit {
	names := scope.Units
	for _, id := range scope.Machines {
		if machine := snap.Machines[id]; machine != nil {
			names = append(names, machine.Units...)
		}
	}
	var units []*snapshot.Unit
	for _, name := range names {
		if unit := snap.Unit(name); unit != nil {
			units = append(units, unit)
		}
	}
	return units
}

// collectWorkloadDetail fills the snapshot sections needed by the charm
// types the scope touches.
func (g *Gateway) collectWorkloadDetail(ctx context.Context, runner *actionRunner, snap *snapshot.Snapshot, scope gateway.Scope) {
	targeted := targetedUnits(snap, scope)
	apps := make(map[string]bool)
	for _, unit := range targeted {
		apps[unit.Application] = true
	}

	var cephOSD, cephMon, networkApps []string
	var novaUnits []*snapshot.Unit
	for appName := range apps {
		switch snap.Applications[appName].CharmName {
		case "ceph-osd":
			cephOSD = append(cephOSD, appName)
		case "ceph-mon":
			cephMon = append(cephMon, appName)
		case "neutron-gateway":
			networkApps = append(networkApps, appName)
		}
	}
	for _, unit := range targeted {
		if snap.Applications[unit.Application].CharmName == "nova-compute" {
			novaUnits = append(novaUnits, unit)
		}
	}

	sort.Strings(cephOSD)
	sort.Strings(cephMon)
	sort.Strings(networkApps)
	g.collectCeph(ctx, runner, snap, cephOSD, cephMon)
	g.collectCompute(ctx, runner, snap, novaUnits)
	g.collectNetwork(ctx, runner, snap, networkApps)
}

func (g *Gateway) collectCeph(ctx context.Context, runner *actionRunner, snap *snapshot.Snapshot, osdApps, monApps []string) {
	if len(osdApps)+len(monApps) == 0 {
		return
	}
	monUnit := firstActiveUnit(snap, "ceph-mon")
	if monUnit == "" {
		logger.Warningf("no active ceph-mon unit found; ceph checks will report unknown")
		return
	}

	for _, appName := range osdApps {
		if health, err := runner.message(ctx, monUnit, "get-health", nil); err != nil {
			logger.Warningf("cannot probe ceph health for %q: %v", appName, err)
		} else {
			snap.Storage.Health[appName] = health
		}
		if pools, err := runner.message(ctx, monUnit, "list-pools", map[string]interface{}{"format": "json"}); err != nil {
			logger.Warningf("cannot list ceph pools for %q: %v", appName, err)
		} else if minimum, ok, err := minSurvivingReplicas(pools); err != nil {
			logger.Warningf("cannot derive replication requirement for %q: %v", appName, err)
		} else if ok {
			snap.Storage.Replication[appName] = snapshot.Replication{MinSurvivingReplicas: minimum}
		}
		if tree, err := runner.message(ctx, monUnit, "show-disk-free", map[string]interface{}{"format": "json"}); err != nil {
			logger.Warningf("cannot probe ceph disk usage for %q: %v", appName, err)
		} else if nodes, err := parseOSDTree(tree); err != nil {
			logger.Warningf("cannot parse OSD tree for %q: %v", appName, err)
		} else {
			snap.Storage.OSDTrees[appName] = nodes
		}
	}

	for _, appName := range monApps {
		unit := firstActiveUnit(snap, "ceph-mon")
		if health, err := runner.message(ctx, unit, "get-health", nil); err != nil {
			logger.Warningf("cannot probe ceph health for %q: %v", appName, err)
		} else {
			snap.Storage.Health[appName] = health
		}
		if quorumJSON, err := runner.message(ctx, unit, "get-quorum-status", map[string]interface{}{"format": "json"}); err != nil {
			logger.Warningf("cannot probe monitor quorum for %q: %v", appName, err)
		} else if quorum, err := parseQuorumStatus(quorumJSON); err != nil {
			logger.Warningf("cannot parse quorum status for %q: %v", appName, err)
		} else {
			snap.Storage.Monitors[appName] = quorum
		}
	}
}

func (g *Gateway) collectCompute(ctx context.Context, runner *actionRunner, snap *snapshot.Snapshot, units []*snapshot.Unit) {
	for _, unit := range units {
		output, err := runner.run(ctx, unit.Name, "instance-count", nil)
		if err != nil {
			logger.Warningf("cannot probe guest count on %q: %v", unit.Name, err)
			continue
		}
		count, err := parseCount(output["instance-count"])
		if err != nil {
			logger.Warningf("cannot parse guest count on %q: %v", unit.Name, err)
			continue
		}
		snap.Compute.Hypervisors[unit.Name] = snapshot.Hypervisor{RunningGuests: count}
	}
}

// collectNetwork gathers routed resources across every unit of the
// affected gateway applications. Partial data is worse than none here: a
// missing listing for a unit going down could hide the loss of its sole
// active resources, so any failure leaves the whole section absent.
func (g *Gateway) collectNetwork(ctx context.Context, runner *actionRunner, snap *snapshot.Snapshot, appNames []string) {
	if len(appNames) == 0 {
		return
	}
	probes := []struct {
		kind   string
		action string
	}{
		{snapshot.ResourceRouter, "get-status-routers"},
		{snapshot.ResourceDHCPNetwork, "get-status-dhcp"},
		{snapshot.ResourceLoadBalancer, "get-status-lb"},
	}
	resources := []snapshot.NetworkResource{}
	for _, appName := range appNames {
		for _, unit := range snap.Applications[appName].Units {
			for _, probe := range probes {
				listing, err := runner.message(ctx, unit.Name, probe.action, map[string]interface{}{"format": "json"})
				if err != nil {
					logger.Warningf("cannot probe %ss on %q: %v", probe.kind, unit.Name, err)
					return
				}
				parsed, err := parseResources(probe.kind, unit.Hostname, listing)
				if err != nil {
					logger.Warningf("cannot parse %s listing from %q: %v", probe.kind, unit.Name, err)
					return
				}
				resources = append(resources, parsed...)
			}
		}
	}
	snap.Network.Resources = resources
}

// firstActiveUnit returns the name of the first unit with an active
// workload in any application running the given charm.
func firstActiveUnit(snap *snapshot.Snapshot, charmName string) string {
	for _, appName := range snap.ApplicationNames() {
		app := snap.Applications[appName]
		if app.CharmName != charmName {
			continue
		}
		for _, unit := range app.Units {
			if unit.Healthy() {
				return unit.Name
			}
		}
	}
	return ""
}

// actionRunner runs read-only charm actions and waits for their results.
type actionRunner struct {
	client *apiaction.Client
	clock  clock.Clock
}

// actionWait bounds how long one probe action may take before the
// section it feeds is given up on.
const actionWait = 2 * time.Minute

var errActionPending = errors.New("action has not completed")

// run enqueues a single action on a unit and polls until it reaches a
// terminal state, returning its output.
func (r *actionRunner) run(ctx context.Context, unitName, name string, actionParams map[string]interface{}) (map[string]interface{}, error) {
	enqueued, err := r.client.EnqueueOperation(ctx, []apiaction.Action{{
		Receiver:   names.NewUnitTag(unitName).String(),
		Name:       name,
		Parameters: actionParams,
	}})
	if err != nil {
		return nil, errors.Annotatef(err, "enqueuing action %q on %q", name, unitName)
	}
	if len(enqueued.Actions) != 1 {
		return nil, errors.Errorf("expected 1 enqueued action, got %d", len(enqueued.Actions))
	}
	if enqueued.Actions[0].Error != nil {
		return nil, errors.Trace(enqueued.Actions[0].Error)
	}
	id := enqueued.Actions[0].Action.ID

	var result apiaction.ActionResult
	err = retry.Call(retry.CallArgs{
		Func: func() error {
			results, err := r.client.Actions(ctx, []string{id})
			if err != nil {
				return errors.Trace(err)
			}
			if len(results) != 1 {
				return errors.Errorf("expected 1 action result, got %d", len(results))
			}
			result = results[0]
			switch result.Status {
			case params.ActionCompleted, params.ActionFailed, params.ActionCancelled, params.ActionAborted:
				return nil
			}
			return errActionPending
		},
		IsFatalError: func(err error) bool {
			return !errors.Is(err, errActionPending)
		},
		Delay:       2 * time.Second,
		MaxDuration: actionWait,
		Clock:       r.clock,
		Stop:        ctx.Done(),
	})
	if err != nil {
		return nil, errors.Annotatef(err, "waiting for action %q on %q", name, unitName)
	}
	if result.Status != params.ActionCompleted {
		return nil, errors.Errorf("action %q on %q finished %s: %s", name, unitName, result.Status, result.Message)
	}
	return result.Output, nil
}

// message runs an action and returns its "message" result, the key the
// ceph and gateway charms report their payloads under.
func (r *actionRunner) message(ctx context.Context, unitName, name string, actionParams map[string]interface{}) (string, error) {
	output, err := r.run(ctx, unitName, name, actionParams)
	if err != nil {
		return "", errors.Trace(err)
	}
	message, ok := output["message"].(string)
	if !ok {
		return "", errors.Errorf("action %q on %q returned no message", name, unitName)
	}
	return message, nil
}

// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package jujuapi

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/juju/charm/v12"
	"github.com/juju/errors"

	"github.com/canonical/juju-verify/core/snapshot"
)

// charmName reduces a charm URL as reported by the controller
// ("ch:amd64/jammy/ceph-osd-513") to the bare charm name.
func charmName(curl string) (string, error) {
	parsed, err := charm.ParseURL(curl)
	if err != nil {
		return "", errors.Annotatef(err, "parsing charm url %q", curl)
	}
	return parsed.Name, nil
}

// minSurvivingReplicas derives the replication requirement from the
// monitor's pool listing. Every pool keeps serving I/O while at least
// min_size replicas remain, so the strictest pool wins. The second
// return is false when the cluster has no pools to derive from.
func minSurvivingReplicas(poolsJSON string) (int, bool, error) {
	var pools []struct {
		Size    int `json:"size"`
		MinSize int `json:"min_size"`
	}
	if err := json.Unmarshal([]byte(poolsJSON), &pools); err != nil {
		return 0, false, errors.Annotate(err, "parsing pool listing")
	}
	if len(pools) == 0 {
		return 0, false, nil
	}
	minimum := 0
	for _, pool := range pools {
		if pool.MinSize > minimum {
			minimum = pool.MinSize
		}
	}
	return minimum, true, nil
}

// parseQuorumStatus extracts monitor membership from the monitor's
// quorum status payload.
func parseQuorumStatus(quorumJSON string) (snapshot.MonQuorum, error) {
	var payload struct {
		MonMap struct {
			Mons []struct {
				Name string `json:"name"`
			} `json:"mons"`
		} `json:"monmap"`
		QuorumNames []string `json:"quorum_names"`
	}
	if err := json.Unmarshal([]byte(quorumJSON), &payload); err != nil {
		return snapshot.MonQuorum{}, errors.Annotate(err, "parsing quorum status")
	}
	quorum := snapshot.MonQuorum{OnlineMons: payload.QuorumNames}
	for _, mon := range payload.MonMap.Mons {
		quorum.KnownMons = append(quorum.KnownMons, mon.Name)
	}
	return quorum, nil
}

// parseOSDTree extracts CRUSH tree nodes from the monitor's disk usage
// payload.
func parseOSDTree(treeJSON string) ([]snapshot.OSDTreeNode, error) {
	var payload struct {
		Nodes []struct {
			ID       int    `json:"id"`
			Name     string `json:"name"`
			Type     string `json:"type"`
			TypeID   int    `json:"type_id"`
			KB       uint64 `json:"kb"`
			KBUsed   uint64 `json:"kb_used"`
			KBAvail  uint64 `json:"kb_avail"`
			Children []int  `json:"children"`
		} `json:"nodes"`
	}
	if err := json.Unmarshal([]byte(treeJSON), &payload); err != nil {
		return nil, errors.Annotate(err, "parsing OSD tree")
	}
	nodes := make([]snapshot.OSDTreeNode, len(payload.Nodes))
	for i, n := range payload.Nodes {
		nodes[i] = snapshot.OSDTreeNode{
			ID:       n.ID,
			Name:     n.Name,
			Type:     n.Type,
			TypeID:   n.TypeID,
			KB:       n.KB,
			KBUsed:   n.KBUsed,
			KBAvail:  n.KBAvail,
			Children: n.Children,
		}
	}
	return nodes, nil
}

// resourcePayloadKeys maps a resource kind to the key its listing action
// reports the instances under.
var resourcePayloadKeys = map[string]string{
	snapshot.ResourceRouter:       "routers",
	snapshot.ResourceDHCPNetwork:  "networks",
	snapshot.ResourceLoadBalancer: "load-balancers",
}

// parseResources extracts the routed resources of one kind hosted by the
// unit on the given host.
func parseResources(kind, host, listJSON string) ([]snapshot.NetworkResource, error) {
	key, ok := resourcePayloadKeys[kind]
	if !ok {
		return nil, errors.NotValidf("resource kind %q", kind)
	}
	var payload map[string][]struct {
		ID     string `json:"id"`
		HA     bool   `json:"ha"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal([]byte(listJSON), &payload); err != nil {
		return nil, errors.Annotatef(err, "parsing %s listing", kind)
	}
	entries := payload[key]
	resources := make([]snapshot.NetworkResource, len(entries))
	for i, entry := range entries {
		resources[i] = snapshot.NetworkResource{
			Kind:   kind,
			ID:     entry.ID,
			Host:   host,
			Active: entry.Status == "ACTIVE",
			HA:     entry.HA,
		}
	}
	return resources, nil
}

// parseCount normalises an action result value into a count. Charms
// report counts as numbers or numeric strings depending on version.
func parseCount(value interface{}) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	case string:
		count, err := strconv.Atoi(v)
		if err != nil {
			return 0, errors.Annotatef(err, "parsing count %q", v)
		}
		return count, nil
	}
	return 0, errors.Errorf("unexpected count value %v", fmt.Sprintf("%T", value))
}

// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// juju-verify checks whether a disruptive maintenance action can be
// performed on selected units or machines without breaking the
// redundancy guarantees of the workloads they run. It only advises; it
// never performs the action.
package main

import (
	"fmt"
	"os"

	"github.com/juju/cmd/v3"

	"github.com/canonical/juju-verify/verifier"
)

var mainDoc = `
juju-verify is a pre-flight safety gate for operators performing
maintenance on a live, charm-deployed cluster. Given a set of units or
machines and a proposed action, it checks the safety rules of every
affected charm and reports a single safe/unsafe/unknown verdict.

Supported charms: ` + fmt.Sprintf("%v", verifier.SupportedCharms()) + `
`

func newSuperCommand() *cmd.SuperCommand {
	verify := cmd.NewSuperCommand(cmd.SuperCommandParams{
		Name:    "juju-verify",
		Doc:     mainDoc,
		Purpose: "verify that maintenance operations are safe to perform",
		Log:     &cmd.Log{},
	})
	verify.Register(newVerifyCommand(verifier.Reboot))
	verify.Register(newVerifyCommand(verifier.Shutdown))
	return verify
}

func main() {
	ctx, err := cmd.DefaultContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(cmd.Main(newSuperCommand(), ctx, os.Args[1:]))
}

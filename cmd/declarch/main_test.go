// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"os"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"
)

// TestMain lets `go test` re-exec this binary as the `declarch` command
// inside each testscript's isolated $WORK environment, the standard
// go-internal/testscript harness shape. The teacher pulls in
// rogpeppe/go-internal only as an indirect dependency; promoting it to a
// direct one for CLI end-to-end coverage is the documented reason in
// DESIGN.md.
func TestMain(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"declarch": runMain,
	}))
}

// runMain wraps main() so testscript can capture its exit code. main()
// still calls os.Exit directly on every error path (declerrors.FatalError
// does), which is fine here: testscript.RunMain executes this func in a
// freshly re-exec'd child process per script command, exactly like a
// real installed binary.
func runMain() int {
	main()
	return 0
}

func TestScripts(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir: "testdata",
	})
}

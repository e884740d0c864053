package main

import (
	"testing"

	"github.com/urfave/cli/v2"
)

// TestNewCLIApp verifies the command surface of the CLI.
func TestNewCLIApp(t *testing.T) {
	app := newCLIApp()

	if app.Name != "stacknote" {
		t.Errorf("app name = %q, want stacknote", app.Name)
	}

	want := map[string]bool{
		"serve":  false,
		"ingest": false,
		"brief":  false,
		"mcp":    false,
	}
	for _, cmd := range app.Commands {
		if _, ok := want[cmd.Name]; ok {
			want[cmd.Name] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestIngestRequiresURL(t *testing.T) {
	app := newCLIApp()
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}

	err := app.Run([]string{"stacknote", "ingest"})
	if err == nil {
		t.Fatal("ingest without a URL should fail")
	}
}

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestSetupRejectsUnknownLogLevel(t *testing.T) {
	app := &cli.App{
		Name: "chatvault",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "info"},
		},
		Before: setup,
		Action: func(*cli.Context) error { return nil },
	}

	require.NoError(t, app.Run([]string{"chatvault", "--log-level", "debug"}))
	err := app.Run([]string{"chatvault", "--log-level", "verbose"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestImportRequiresProvider(t *testing.T) {
	app := &cli.App{
		Name: "chatvault",
		Commands: []*cli.Command{
			{
				Name:   "import",
				Action: importCommand,
				Flags: append(databaseFlags(),
					&cli.StringFlag{Name: "provider", Required: true},
				),
			},
		},
	}

	err := app.Run([]string{"chatvault", "import", "export.json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "multi line", truncate("multi\nline", 20))

	long := truncate("abcdefghijklmnopqrstuvwxyz", 10)
	assert.Len(t, long, 10)
	assert.Equal(t, "abcdefg...", long)
}

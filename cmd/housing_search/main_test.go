package main

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func findCommand(t *testing.T, app *cli.App, name string) *cli.Command {
	t.Helper()
	for _, cmd := range app.Commands {
		if cmd.Name == name {
			return cmd
		}
	}
	t.Fatalf("command %q not found", name)
	return nil
}

func TestCLIApp_Commands(t *testing.T) {
	app := newCLIApp()

	for _, name := range []string{"serve", "backfill", "search"} {
		cmd := findCommand(t, app, name)
		assert.NotNil(t, cmd.Action, "command %s has no action", name)
	}
}

func TestCLIApp_SearchFlags(t *testing.T) {
	app := newCLIApp()
	app.Writer = io.Discard
	app.ErrWriter = io.Discard

	t.Run("query is required", func(t *testing.T) {
		err := app.Run([]string{"housing_search", "search", "--limit", "5"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "query")
	})

	t.Run("limit has default value", func(t *testing.T) {
		cmd := findCommand(t, app, "search")
		var limitFlag *cli.IntFlag
		for _, flag := range cmd.Flags {
			if f, ok := flag.(*cli.IntFlag); ok && f.Name == "limit" {
				limitFlag = f
				break
			}
		}
		require.NotNil(t, limitFlag)
		assert.Equal(t, 10, limitFlag.Value)
	})
}

func TestOptionalFloat(t *testing.T) {
	var target, weight *float64

	app := &cli.App{
		Name: "test",
		Flags: []cli.Flag{
			&cli.Float64Flag{Name: "target-price"},
			&cli.Float64Flag{Name: "price-weight"},
		},
		Action: func(c *cli.Context) error {
			target = optionalFloat(c, "target-price")
			weight = optionalFloat(c, "price-weight")
			return nil
		},
	}

	require.NoError(t, app.Run([]string{"test", "--target-price", "2100"}))

	require.NotNil(t, target)
	assert.Equal(t, 2100.0, *target)
	assert.Nil(t, weight, "unset flag must stay nil so the service picks the default")
}

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		env     string
		debugOn bool
	}{
		{env: envLocal, debugOn: true},
		{env: envDev, debugOn: true},
		{env: envProd, debugOn: false},
		{env: "unknown", debugOn: false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			log := setupLogger(tt.env)
			require.NotNil(t, log)
			assert.Equal(t, tt.debugOn, log.Enabled(t.Context(), slog.LevelDebug))
		})
	}
}

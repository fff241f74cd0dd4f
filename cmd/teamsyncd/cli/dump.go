package cli

import (
	"context"
	"fmt"
)

// DumpCmd prints the state dump of one bundle.
type DumpCmd struct {
	Bundle string `arg:"" help:"Bundle name."`
}

// Run executes the dump command.
func (c *DumpCmd) Run(cli *CLI, ctx context.Context) error {
	b, err := cli.Client(ctx)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer b.Close()

	payload, err := b.GetDump(ctx, c.Bundle)
	if err != nil {
		return err
	}
	return cli.PrintOut(payload + "\n")
}

// DumpsCmd prints the state dumps of every bundle that answered.
type DumpsCmd struct {
	OutputFlags
}

// Run executes the dumps command.
func (c *DumpsCmd) Run(cli *CLI, ctx context.Context) error {
	b, err := cli.Client(ctx)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer b.Close()

	dumps, err := b.GetDumps(ctx)
	if err != nil {
		return err
	}

	output, err := FormatDumps(dumps, &c.OutputFlags)
	if err != nil {
		return err
	}
	return cli.PrintOut(output)
}

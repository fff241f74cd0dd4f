package cli

import (
	"context"
	"fmt"
)

// ShowCmd lists the bundles the daemon tracks.
type ShowCmd struct {
	OutputFlags
}

// Run executes the show command.
func (c *ShowCmd) Run(cli *CLI, ctx context.Context) error {
	b, err := cli.Client(ctx)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer b.Close()

	bundles, err := b.ListBundles(ctx)
	if err != nil {
		return err
	}

	if len(bundles) == 0 && c.Format() == OutputFormatTable {
		return cli.PrintOut("No bundles tracked\n")
	}

	output, err := FormatBundles(bundles, &c.OutputFlags)
	if err != nil {
		return err
	}
	return cli.PrintOut(output)
}

package cli

import (
	"context"
	"fmt"
)

// ChannelCmd manages teamd control channels.
type ChannelCmd struct {
	Add    ChannelAddCmd    `cmd:"" help:"Open the control channel of a bundle."`
	Remove ChannelRemoveCmd `cmd:"" help:"Close the control channel of a bundle."`
}

// ChannelAddCmd opens a control channel.
type ChannelAddCmd struct {
	Bundle string `arg:"" help:"Bundle name."`
}

// Run executes the channel add command.
func (c *ChannelAddCmd) Run(cli *CLI, ctx context.Context) error {
	b, err := cli.Client(ctx)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer b.Close()

	connected, err := b.AddChannel(ctx, c.Bundle)
	if err != nil {
		return err
	}
	if !connected {
		return cli.PrintOutf("%s: queued, the daemon keeps retrying\n", c.Bundle)
	}
	return cli.PrintOutf("%s: connected\n", c.Bundle)
}

// ChannelRemoveCmd closes a control channel.
type ChannelRemoveCmd struct {
	Bundle string `arg:"" help:"Bundle name."`
}

// Run executes the channel remove command.
func (c *ChannelRemoveCmd) Run(cli *CLI, ctx context.Context) error {
	b, err := cli.Client(ctx)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer b.Close()

	if err := b.RemoveChannel(ctx, c.Bundle); err != nil {
		return err
	}
	return cli.PrintOutf("%s: removed\n", c.Bundle)
}

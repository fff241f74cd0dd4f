package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/frobware/go-teamsync/client"
	"github.com/frobware/go-teamsync/config"
	"github.com/frobware/go-teamsync/logging"
)

// CLI is the root command structure for teamsyncd.
type CLI struct {
	Config     string `name:"config" help:"Config file path (TOML, or YAML by extension)." default:"${default_config_path}"`
	Log        string `name:"log" help:"Log spec (e.g., 'info,linksync=debug')." env:"TEAMSYNC_LOG"`
	RuntimeDir string `name:"runtime-dir" help:"Runtime directory root." default:"${default_runtime_dir}"`
	Remote     string `name:"remote" short:"r" help:"Daemon endpoint (unix:///path or host:port). Defaults to the runtime directory socket."`

	Serve   ServeCmd   `cmd:"" help:"Run the synchroniser daemon."`
	Show    ShowCmd    `cmd:"" help:"List tracked bundles."`
	Dump    DumpCmd    `cmd:"" help:"Print the teamd state dump of one bundle."`
	Dumps   DumpsCmd   `cmd:"" help:"Print the teamd state dumps of every bundle."`
	Channel ChannelCmd `cmd:"" help:"Open or close teamd control channels."`

	// Out receives command output. Nil means os.Stdout.
	Out io.Writer `kong:"-"`
}

// KongOptions returns the Kong configuration options for the CLI.
func KongOptions() []kong.Option {
	return []kong.Option{
		kong.Name("teamsyncd"),
		kong.Description("Team device state synchroniser."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"default_config_path": config.DefaultConfigPath,
			"default_runtime_dir": config.DefaultRuntimeDirs().Base(),
		},
	}
}

// LoadConfig loads the configuration from the config file path.
func (c *CLI) LoadConfig() (config.Config, error) {
	return config.Load(c.Config)
}

// RuntimeDirs returns the runtime paths rooted at --runtime-dir.
func (c *CLI) RuntimeDirs() (config.RuntimeDirs, error) {
	return config.NewRuntimeDirs(c.RuntimeDir)
}

// Logger creates a logger for CLI commands.
// CLI commands default to WARN level for quieter output.
// Use LoggerFromConfig for the daemon.
func (c *CLI) Logger() (*slog.Logger, error) {
	cfg, err := c.LoadConfig()
	if err != nil {
		return nil, err
	}

	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	spec := c.Log
	if spec == "" {
		spec = "warn"
	}

	return logging.New(logging.Options{
		CLISpec:    spec,
		ConfigSpec: cfg.Logging.ToSpec(),
		Format:     format,
		Output:     os.Stderr,
	})
}

// LoggerFromConfig creates a logger using config file settings.
// Output goes to stdout for daemon log collection.
func (c *CLI) LoggerFromConfig() (*slog.Logger, error) {
	cfg, err := c.LoadConfig()
	if err != nil {
		return nil, err
	}

	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	return logging.New(logging.Options{
		CLISpec:    c.Log,
		ConfigSpec: cfg.Logging.ToSpec(),
		Format:     format,
		Output:     os.Stdout,
	})
}

// Address returns the daemon endpoint: --remote when set, otherwise
// the socket under the runtime directory.
func (c *CLI) Address() (string, error) {
	if c.Remote != "" {
		return c.Remote, nil
	}
	dirs, err := c.RuntimeDirs()
	if err != nil {
		return "", err
	}
	return "unix://" + dirs.SocketPath(), nil
}

// Client connects to the daemon. The returned client must be closed
// when no longer needed.
func (c *CLI) Client(_ context.Context) (client.Client, error) {
	logger, err := c.Logger()
	if err != nil {
		return nil, err
	}
	address, err := c.Address()
	if err != nil {
		return nil, err
	}
	return client.Dial(address, client.WithLogger(logger))
}

func (c *CLI) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

// WriteOut writes p to the output, treating a short write as an error.
func (c *CLI) WriteOut(p []byte) error {
	n, err := c.out().Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return io.ErrShortWrite
	}
	return nil
}

// PrintOut writes s to the output.
func (c *CLI) PrintOut(s string) error {
	return c.WriteOut([]byte(s))
}

// PrintOutf formats and writes to the output.
func (c *CLI) PrintOutf(format string, args ...any) error {
	return c.PrintOut(fmt.Sprintf(format, args...))
}

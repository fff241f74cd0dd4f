// teamsyncd mirrors kernel team device state into the state store and
// exposes teamd state dumps over gRPC.
package main

import (
	"context"
	"os"

	"github.com/alecthomas/kong"

	"github.com/frobware/go-teamsync/cmd/teamsyncd/cli"
)

func main() {
	var c cli.CLI
	kctx := kong.Parse(&c, cli.KongOptions()...)
	kctx.BindTo(context.Background(), (*context.Context)(nil))
	if err := kctx.Run(&c); err != nil {
		kctx.Errorf("%v", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&sendCmd{}, "")
	subcommands.Register(&encodeCmd{}, "")
	subcommands.Register(&fileURLCmd{}, "")
	subcommands.Register(&publishFeedCmd{}, "feeds")
	subcommands.Register(&historyCmd{}, "journal")
	flag.Parse()
	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}

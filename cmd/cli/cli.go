package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"tally.dev/internal/config"
)

type Command interface {
	Name() string
	Description() string

	// Parse is given an allocated flagSet, and the set of args that are specific to this command.
	// It should parse the args, and return an error if unexpected values were received in the flags.
	Parse(flagSet *pflag.FlagSet, args []string) error

	// Run should run the command, and return an error if something went wrong.
	Run() error
}

var (
	commands = []Command{
		&StartCommand{},
		&PsCommand{},
		&VersionCommand{},
	}
)

func showUsageFooter() {
	fmt.Fprintf(os.Stderr, "\n")

	releaseChannel, _ := config.GetReleaseChannel()
	fmt.Fprintf(
		os.Stderr,
		"tally %s on %s\n\n",
		config.GetTallyVersion(),
		releaseChannel,
	)
}

func showUsage() {
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "Usage: tally [command] [options]\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "Config and logs live in ~/.tally, or in $TALLY_PATH when it is set.\n")
	fmt.Fprintf(os.Stderr, "\n")

	fmt.Fprintf(os.Stderr, "Available commands:\n\n")

	longestCmdNameLength := 0
	for _, cmd := range commands {
		if len(cmd.Name()) > longestCmdNameLength {
			longestCmdNameLength = len(cmd.Name())
		}
	}

	for _, cmd := range commands {
		fmt.Fprintf(os.Stderr, "\t%s%s\t%s\n", cmd.Name(), strings.Repeat(" ", longestCmdNameLength-len(cmd.Name())), cmd.Description())
	}

	showUsageFooter()
	os.Exit(1)
}

func showCommandUsage(cmd Command, flagSet *pflag.FlagSet) {
	shortUsage := fmt.Sprintf("%s [options]", cmd.Name())

	// allow commands to override the short usage text
	if cmdWithShortUsage, ok := cmd.(interface{ ShortUsage() string }); ok {
		shortUsage = cmdWithShortUsage.ShortUsage()
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "Usage: tally %s\n", shortUsage)
	fmt.Fprintf(os.Stderr, "%s\n", cmd.Description())
	fmt.Fprintf(os.Stderr, "\n")

	if flagSet.HasFlags() {
		flagSet.PrintDefaults()
	} else {
		fmt.Fprintf(os.Stderr, "This command has no options.\n")
	}

	showUsageFooter()
	os.Exit(1)
}

func main() {
	args := os.Args[1:]

	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		showUsage()
	}

	commandName := args[0]
	args = args[1:]

	// Make sure this is a real command
	var command Command
	for _, cmd := range commands {
		if cmd.Name() == commandName {
			command = cmd
			break
		}
	}

	if command == nil {
		fmt.Fprintf(os.Stderr, "unrecognized command: %s\n\n", commandName)
		showUsage()
	}

	// Perform parsing
	flagSet := pflag.NewFlagSet(commandName, pflag.ContinueOnError)
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "\n")
		showCommandUsage(command, flagSet)
	}
	if err := command.Parse(flagSet, args); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		showCommandUsage(command, flagSet)
	}

	// Run the command
	startTime := time.Now()
	if err := command.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n\n", err)
		os.Exit(1)
	}

	execDuration := (time.Since(startTime) + time.Millisecond).Truncate(time.Millisecond)
	fmt.Fprintf(os.Stderr, "\n⚡️%s completed in %s\n", commandName, execDuration)
}

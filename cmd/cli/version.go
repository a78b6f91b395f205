package main

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/pflag"
	"tally.dev/internal/config"
)

type VersionCommand struct{}

func (c *VersionCommand) Name() string {
	return "version"
}

func (c *VersionCommand) Description() string {
	return "Print the version info of tally"
}

func (c *VersionCommand) Parse(flagSet *pflag.FlagSet, args []string) error {
	return flagSet.Parse(args)
}

func (c *VersionCommand) Run() error {
	versionInfo := map[string]string{
		"version": config.GetTallyVersion(),
		"os":      runtime.GOOS,
		"arch":    runtime.GOARCH,
	}

	releaseChannel, err := config.GetReleaseChannel()
	if err != nil {
		return fmt.Errorf("failed to get release channel: %w", err)
	}
	versionInfo["channel"] = string(releaseChannel)

	buf, err := json.MarshalIndent(versionInfo, "", "\t")
	if err != nil {
		return fmt.Errorf("failed to marshal version info: %w", err)
	}

	fmt.Printf("%s\n", buf)
	return nil
}

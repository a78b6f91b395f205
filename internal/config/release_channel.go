package config

import (
	"fmt"
	"path/filepath"
)

type ReleaseChannel string

const (
	ReleaseChannelStable  ReleaseChannel = "stable"
	ReleaseChannelBeta    ReleaseChannel = "beta"
	ReleaseChannelNightly ReleaseChannel = "nightly"
	ReleaseChannelDev     ReleaseChannel = "dev"
)

func (channel *ReleaseChannel) UnmarshalJSON(buf []byte) error {
	value := string(buf)

	switch value {
	case "null":
		// leave the field as is, like encoding/json does

	case `"stable"`:
		*channel = ReleaseChannelStable
	case `"beta"`:
		*channel = ReleaseChannelBeta
	case `"nightly"`:
		*channel = ReleaseChannelNightly
	case `"dev"`:
		*channel = ReleaseChannelDev

	default:
		return fmt.Errorf("invalid release channel: '%s'", value)
	}

	return nil
}

// GetPath returns the per-channel data directory, which holds the log files.
func (channel ReleaseChannel) GetPath() (string, error) {
	dir, err := GetAppPath()
	if err != nil {
		return "", err
	}

	return ensureDir(filepath.Join(dir, string(channel)))
}

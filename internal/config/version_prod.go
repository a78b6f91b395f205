//go:build prod

package config

const defaultLogLevel = "info"

// Set at link time with -ldflags "-X tally.dev/internal/config.version=vX.Y.Z"
var version = "v0.0.0"

func GetTallyVersion() string {
	return version
}

func GetReleaseChannel() (ReleaseChannel, error) {
	shellConfig, err := LoadShellConfig()
	if err != nil {
		return ReleaseChannelStable, err
	}
	return shellConfig.ReleaseChannel, nil
}

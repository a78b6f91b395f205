//go:build !prod

package config

const defaultLogLevel = "debug"

func GetTallyVersion() string {
	return "v0.0.0"
}

func GetReleaseChannel() (ReleaseChannel, error) {
	return ReleaseChannelDev, nil
}

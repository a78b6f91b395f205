package server

import (
	"runtime"

	"tally.dev/internal/config"
)

type GetVersionResponse struct {
	Version string                `json:"version"`
	OS      string                `json:"os"`
	Arch    string                `json:"arch"`
	Channel config.ReleaseChannel `json:"channel"`
}

var GetVersion = RpcMethod[struct{}, GetVersionResponse]{
	Name:             "get_version",
	SkipInputParsing: true,
	Run: func(req RpcRequest[struct{}]) (GetVersionResponse, *HttpError) {
		// A channel that can't be read falls back to the stable channel
		channel, _ := config.GetReleaseChannel()

		return GetVersionResponse{
			Version: config.GetTallyVersion(),
			OS:      runtime.GOOS,
			Arch:    runtime.GOARCH,
			Channel: channel,
		}, nil
	},
}

package server

import "tally.dev/internal/log"

// ToggleDevtools only notifies the UI. Opening the devtools, or faking the key
// press that does it, happens on the renderer side.
var ToggleDevtools = RpcMethod[struct{}, struct{}]{
	Name:             "toggle_devtools",
	SkipInputParsing: true,
	Run: func(req RpcRequest[struct{}]) (struct{}, *HttpError) {
		req.Server.emit(EventOpenDevtools, nil)
		logger.Print("toggle_devtools: emitted open-devtools event", log.Ctx{})

		return struct{}{}, nil
	},
}

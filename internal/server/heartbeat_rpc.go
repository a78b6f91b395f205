package server

import (
	"time"
)

type Heartbeat struct {
	Ok bool `json:"ok"`
}

var GetHeartbeat = Stream[struct{}, Heartbeat]{
	Name: "GetHeartbeat",
	Run: func(req *StreamRequest[struct{}, Heartbeat]) error {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for {
			req.Send(Heartbeat{Ok: true})

			select {
			case <-ticker.C:
			case <-req.Context.Done():
				return nil
			}
		}
	},
}

package server

import (
	"fmt"

	"tally.dev/internal/identity"
	"tally.dev/internal/pubsub"
)

var GetTopics = RpcMethod[struct{}, map[string]pubsub.TopicInfo]{
	Name:             "get_topics",
	SkipInputParsing: true,
	Run: func(req RpcRequest[struct{}]) (map[string]pubsub.TopicInfo, *HttpError) {
		return req.Server.topics.GetTopicInfo(), nil
	},
}

type SubscribeEventsInput struct {
	// Names limits the stream to these events. Empty means every event.
	Names []string `json:"names"`
}

var SubscribeEvents = Stream[SubscribeEventsInput, Event]{
	Name: "SubscribeEvents",
	Run: func(req *StreamRequest[SubscribeEventsInput, Event]) error {
		input, err := req.ParseInput()
		if err != nil {
			return err
		}

		wanted := make(map[string]bool, len(input.Names))
		for _, name := range input.Names {
			wanted[name] = true
		}

		sub, err := pubsub.Subscribe(req.Server.topics, EventsTopic)
		if err != nil {
			return err
		}
		defer sub.Unsubscribe()

		for {
			select {
			case message, ok := <-sub.Out:
				if !ok {
					// Topic was closed
					return nil
				}

				event, isEvent := message.(Event)
				if !isEvent {
					continue
				}
				if len(wanted) == 0 || wanted[event.Name] {
					req.Send(event)
				}

			case <-req.Context.Done():
				return nil
			}
		}
	},
}

type SubscribeTopicInput struct {
	// Topic is the topic id in its string form, like "/events#shell"
	Topic string `json:"topic"`
}

var SubscribeTopic = Stream[SubscribeTopicInput, any]{
	Name: "SubscribeTopic",
	Run: func(req *StreamRequest[SubscribeTopicInput, any]) error {
		input, err := req.ParseInput()
		if err != nil {
			return err
		}

		id, err := identity.Parse(input.Topic)
		if err != nil {
			return err
		}

		sub, err := pubsub.Subscribe(req.Server.topics, pubsub.TopicId(id))
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", id, err)
		}
		defer sub.Unsubscribe()

		for {
			select {
			case s, ok := <-sub.Out:
				if !ok {
					// Channel is closed
					return nil
				}

				req.Send(s)

			case <-req.Context.Done():
				return nil
			}
		}
	},
}

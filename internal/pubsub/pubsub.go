package pubsub

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"tally.dev/internal/identity"
)

var (
	ErrTopicClosed      error = errors.New("tried to operate on a closed topic")
	ErrTopicDoesntExist error = errors.New("tried to operate on a topic that doesn't exist")
	ErrTopicExists      error = errors.New("tried to create a topic that already exists")
)

var (
	MetaTopic TopicId = TopicId{Category: "/topics", Key: "meta"}
)

// How many messages a subscriber can fall behind before it starts missing them.
const subscriberBuffer = 16

// Identifier of a topic
type TopicId identity.Id

func (topic TopicId) String() string {
	return (identity.Id)(topic).String()
}

type Topic struct {
	// `id` is only set at creation time and isn't written to afterwards.
	Id TopicId
	// `registry` is only set at creation time and isn't written to afterwards.
	registry *Registry

	// This mutex controls the reading and writing of every field below.
	m sync.Mutex

	counter     int
	dropped     int
	closed      bool
	subscribers []chan any
}

type Subscription struct {
	Out   <-chan any
	topic *Topic
}

func (topic *Topic) addSubscriber(sub chan any) error {
	topic.m.Lock()
	defer topic.m.Unlock()

	if topic.closed {
		return fmt.Errorf("%w: %s", ErrTopicClosed, topic.Id.String())
	}

	topic.subscribers = append(topic.subscribers, sub)

	return nil
}

func (topic *Topic) removeSubscriber(sub <-chan any) {
	topic.m.Lock()
	defer topic.m.Unlock()

	writeIndex := 0
	for readIndex := 0; readIndex < len(topic.subscribers); readIndex++ {
		item := topic.subscribers[readIndex]
		if item == sub {
			close(item)
			continue
		}

		topic.subscribers[writeIndex] = item
		writeIndex += 1
	}

	topic.subscribers = topic.subscribers[:writeIndex]
}

func (topic *Topic) Info() TopicInfo {
	topic.m.Lock()
	defer topic.m.Unlock()

	return TopicInfo{
		Id:              topic.Id,
		Closed:          topic.closed,
		Count:           topic.counter,
		Dropped:         topic.dropped,
		SubscriberCount: len(topic.subscribers),
	}
}

func (topic *Topic) isClosed() bool {
	topic.m.Lock()
	defer topic.m.Unlock()

	return topic.closed
}

// Publish hands the message to every subscriber without waiting on any of them.
// A subscriber with a full buffer misses the message.
func (topic *Topic) Publish(message any) error {
	topic.m.Lock()
	defer topic.m.Unlock()

	if topic.closed {
		return fmt.Errorf("%w: %s", ErrTopicClosed, topic.Id.String())
	}

	topic.counter += 1
	for _, sub := range topic.subscribers {
		select {
		case sub <- message:
		default:
			topic.dropped += 1
		}
	}

	return nil
}

func (topic *Topic) Close() {
	topic.m.Lock()
	defer topic.m.Unlock()

	if topic.closed {
		return
	}

	topic.closed = true

	for _, channel := range topic.subscribers {
		close(channel)
	}

	topic.subscribers = nil

	if topic.Id != MetaTopic {
		topic.registry.publishMeta("close", topic.Id)
	}
}

type MetaTopicInfo struct {
	Kind string `json:"kind"`
	Data any    `json:"data"`
}

type Registry struct {
	m sync.Mutex

	metaTopic atomic.Pointer[Topic]

	topics map[string]*Topic
}

func (r *Registry) publishMeta(kind string, data any) {
	if meta := r.metaTopic.Load(); meta != nil {
		// the meta topic is only closed along with the registry owner, nothing to report then
		_ = meta.Publish(MetaTopicInfo{Kind: kind, Data: data})
	}
}

func (r *Registry) CreateTopic(id TopicId) (*Topic, error) {
	if strings.HasPrefix(id.Category, "/topics") {
		return nil, fmt.Errorf("%w: %s", ErrTopicExists, id.String())
	}

	r.m.Lock()
	topic, err := r.createTopic(id)
	r.m.Unlock()

	if err == nil {
		r.publishMeta("create", id)
	}

	return topic, err
}

// Requires caller to take the lock
func (r *Registry) createTopic(id TopicId) (*Topic, error) {
	if r.topics == nil {
		r.topics = make(map[string]*Topic, 8)
	}

	key := id.String()
	if prev := r.topics[key]; prev != nil && !prev.isClosed() {
		return nil, fmt.Errorf("%w: %s", ErrTopicExists, id.String())
	}

	topic := &Topic{Id: id, registry: r}
	r.topics[key] = topic

	return topic, nil
}

// CreateMetaTopic creates the topic that announces the creation and closing of
// every other topic in the registry.
func (r *Registry) CreateMetaTopic() error {
	r.m.Lock()
	defer r.m.Unlock()

	meta, err := r.createTopic(MetaTopic)
	if err != nil {
		return err
	}
	r.metaTopic.Store(meta)

	return nil
}

func (r *Registry) lookup(id TopicId) *Topic {
	r.m.Lock()
	defer r.m.Unlock()

	return r.topics[id.String()]
}

func Subscribe(r *Registry, id TopicId) (Subscription, error) {
	topic := r.lookup(id)
	if topic == nil {
		return Subscription{}, fmt.Errorf("%w: %s", ErrTopicDoesntExist, id.String())
	}

	channel := make(chan any, subscriberBuffer)

	if err := topic.addSubscriber(channel); err != nil {
		return Subscription{}, err
	}

	return Subscription{Out: channel, topic: topic}, nil
}

// Unsubscribe stops delivery and closes `Out`.
func (sub *Subscription) Unsubscribe() {
	sub.topic.removeSubscriber(sub.Out)
}

type TopicInfo struct {
	Id              TopicId `json:"id"`
	Closed          bool    `json:"closed"`
	Count           int     `json:"count"`
	Dropped         int     `json:"dropped"`
	SubscriberCount int     `json:"subscriberCount"`
}

func (r *Registry) GetTopicInfo() map[string]TopicInfo {
	r.m.Lock()
	defer r.m.Unlock()

	out := make(map[string]TopicInfo, len(r.topics))

	for key, topic := range r.topics {
		out[key] = topic.Info()
	}

	return out
}

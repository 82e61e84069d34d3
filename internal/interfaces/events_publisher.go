package interfaces

type EventPublisher interface {
	Publish(topic string, event any) error
}

// NopPublisher discards events; used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(string, any) error { return nil }

var _ EventPublisher = NopPublisher{}

package ports

import "github.com/bnema/focuscoin/internal/domain"

type EventPublisher interface {
	Publish(event domain.Event)
}

type NopPublisher struct{}

func (NopPublisher) Publish(domain.Event) {}

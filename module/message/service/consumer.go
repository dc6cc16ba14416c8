package service

import (
	"context"
	"encoding/json"
	"time"

	"ChatApp/logger"
	chatsvc "ChatApp/module/chat/service"
	"ChatApp/service/natsx"
	"ChatApp/service/relay"

	"github.com/nats-io/nats.go"
)

// StartStoreConsumer subscribes the durable-store worker to the relay's
// message subject. The relay stays free of persistence; everything it
// accepts flows through here into Mongo. Queue-group subscription, so
// multiple workers would share the stream without double writes.
func StartStoreConsumer(nc *natsx.Client, msgs *Service, chats *chatsvc.Service) (*nats.Subscription, error) {
	return nc.QueueSubscribe(natsx.SubjectMessageStore, natsx.QueueMessageStore, func(data []byte) {
		var m relay.Message
		if err := json.Unmarshal(data, &m); err != nil {
			logger.Warnf("[store] drop undecodable message: %v", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := msgs.SaveRelayed(ctx, m); err != nil {
			logger.Errorf("[store] save message id=%s: %v", m.ID, err)
			return
		}
		if err := chats.TouchLastMessage(ctx, m.ChatID, m.Content, m.Timestamp); err != nil {
			logger.Warnf("[store] touch chat=%s: %v", m.ChatID, err)
		}
	})
}

// Publisher adapts the NATS client to relay.MessagePublisher.
type Publisher struct {
	nc *natsx.Client
}

func NewPublisher(nc *natsx.Client) *Publisher {
	return &Publisher{nc: nc}
}

func (p *Publisher) PublishMessage(m relay.Message) error {
	return p.nc.PublishJSON(natsx.SubjectMessageStore, m)
}

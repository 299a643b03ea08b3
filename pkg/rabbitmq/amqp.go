package rabbitmq

import (
	"context"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
)

type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

type channel interface {
	declarer
	Confirm(noWait bool) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishDeferred(ctx context.Context, exchange, key string, msg amqp.Publishing) (confirmation, error)
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	Close() error
}

type connection interface {
	Channel() (channel, error)
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	IsClosed() bool
	Close() error
}

type dialFunc func(url string) (connection, error)

func dialAMQP(url string) (connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return amqpConnection{conn}, nil
}

type amqpConnection struct {
	*amqp.Connection
}

func (c amqpConnection) Channel() (channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return amqpChannel{ch}, nil
}

type amqpChannel struct {
	*amqp.Channel
}

func (c amqpChannel) PublishDeferred(ctx context.Context, exchange, key string, msg amqp.Publishing) (confirmation, error) {
	dc, err := c.Channel.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
	if err != nil {
		return nil, err
	}
	if dc == nil {
		return nil, errors.New("channel is not in confirm mode")
	}
	return dc, nil
}

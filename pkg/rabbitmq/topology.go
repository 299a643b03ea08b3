package rabbitmq

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sergeJAVA/contractor-service/pkg/config"
)

// Topology is the exchange/queue layout for one domain. Rejected messages go
// to the dead queue, wait there for RetryTTL and are routed back to the
// primary queue through the retry exchange.
type Topology struct {
	Domain        string
	Exchange      string
	Queue         string
	DeadExchange  string
	DeadQueue     string
	RetryExchange string
	RetryTTL      time.Duration
}

func TopologyFromConfig(cfg config.RabbitConfig) Topology {
	return Topology{
		Domain:        strings.TrimSpace(cfg.Domain),
		Exchange:      strings.TrimSpace(cfg.Exchange),
		Queue:         strings.TrimSpace(cfg.Queue),
		DeadExchange:  strings.TrimSpace(cfg.DeadExchange),
		DeadQueue:     strings.TrimSpace(cfg.DeadQueue),
		RetryExchange: strings.TrimSpace(cfg.RetryExchange),
		RetryTTL:      cfg.RetryTTL(),
	}
}

func (t Topology) UpdateRoutingKey() string { return t.Domain + ".update" }

func (t Topology) DeadRoutingKey() string { return "dead." + t.Domain }

func (t Topology) RetryRoutingKey() string { return "retry." + t.Domain }

func (t Topology) Validate() error {
	names := map[string]string{
		"domain":         t.Domain,
		"exchange":       t.Exchange,
		"queue":          t.Queue,
		"dead exchange":  t.DeadExchange,
		"dead queue":     t.DeadQueue,
		"retry exchange": t.RetryExchange,
	}
	for label, value := range names {
		if value == "" {
			return fmt.Errorf("rabbitmq topology: %s is required", label)
		}
	}
	if t.Queue == t.DeadQueue {
		return errors.New("rabbitmq topology: dead queue must differ from the primary queue")
	}
	ttl := t.RetryTTL.Milliseconds()
	if ttl <= 0 || ttl > math.MaxInt32 {
		return fmt.Errorf("rabbitmq topology: retry ttl %v out of range", t.RetryTTL)
	}
	return nil
}

// QueueArgs returns the arguments of the primary queue.
func (t Topology) QueueArgs() amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    t.DeadExchange,
		"x-dead-letter-routing-key": t.DeadRoutingKey(),
	}
}

// DeadQueueArgs returns the arguments of the retry-delay queue.
func (t Topology) DeadQueueArgs() amqp.Table {
	return amqp.Table{
		"x-message-ttl":             int32(t.RetryTTL.Milliseconds()),
		"x-dead-letter-exchange":    t.RetryExchange,
		"x-dead-letter-routing-key": t.RetryRoutingKey(),
	}
}

type declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// Declare creates every exchange, queue and binding. It is safe to call on
// each (re)connect: declarations with identical arguments are idempotent.
func (t Topology) Declare(ch declarer) error {
	if err := t.Validate(); err != nil {
		return err
	}
	for _, exchange := range []string{t.Exchange, t.DeadExchange, t.RetryExchange} {
		if err := ch.ExchangeDeclare(exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", exchange, err)
		}
	}

	if _, err := ch.QueueDeclare(t.Queue, true, false, false, false, t.QueueArgs()); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.Queue, err)
	}
	if _, err := ch.QueueDeclare(t.DeadQueue, true, false, false, false, t.DeadQueueArgs()); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.DeadQueue, err)
	}

	bindings := []struct{ queue, key, exchange string }{
		{t.Queue, t.UpdateRoutingKey(), t.Exchange},
		{t.DeadQueue, t.DeadRoutingKey(), t.DeadExchange},
		{t.Queue, t.RetryRoutingKey(), t.RetryExchange},
	}
	for _, b := range bindings {
		if err := ch.QueueBind(b.queue, b.key, b.exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s with %s: %w", b.queue, b.exchange, b.key, err)
		}
	}
	return nil
}

package rabbitmq

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sergeJAVA/contractor-service/pkg/logger"
)

type binding struct {
	queue, key, exchange string
}

type publishCall struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeConfirmation struct {
	ack   bool
	err   error
	block bool
}

func (f fakeConfirmation) WaitContext(ctx context.Context) (bool, error) {
	if f.block {
		<-ctx.Done()
		return false, ctx.Err()
	}
	return f.ack, f.err
}

type fakeChannel struct {
	mu sync.Mutex

	exchanges  map[string]string
	queues     map[string]amqp.Table
	bindings   []binding
	confirmed  bool
	qos        int
	publishes  []publishCall
	confirm    fakeConfirmation
	publishErr error
	declareErr error
	deliveries chan amqp.Delivery
	closeCh    chan *amqp.Error
	closed     bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		exchanges:  map[string]string{},
		queues:     map[string]amqp.Table{},
		confirm:    fakeConfirmation{ack: true},
		deliveries: make(chan amqp.Delivery),
	}
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.declareErr != nil {
		return f.declareErr
	}
	if !durable {
		return errors.New("exchange must be durable")
	}
	f.exchanges[name] = kind
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !durable {
		return amqp.Queue{}, errors.New("queue must be durable")
	}
	f.queues[name] = args
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bindings = append(f.bindings, binding{queue: name, key: key, exchange: exchange})
	return nil
}

func (f *fakeChannel) Confirm(noWait bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmed = true
	return nil
}

func (f *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.qos = prefetchCount
	return nil
}

func (f *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	if autoAck {
		return nil, errors.New("auto ack not expected")
	}
	return f.deliveries, nil
}

func (f *fakeChannel) PublishDeferred(ctx context.Context, exchange, key string, msg amqp.Publishing) (confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	f.publishes = append(f.publishes, publishCall{exchange: exchange, key: key, msg: msg})
	return f.confirm, nil
}

func (f *fakeChannel) NotifyClose(c chan *amqp.Error) chan *amqp.Error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCh = c
	return c
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeChannel) published() []publishCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]publishCall, len(f.publishes))
	copy(out, f.publishes)
	return out
}

type fakeConn struct {
	mu      sync.Mutex
	ch      *fakeChannel
	closeCh chan *amqp.Error
	closed  bool
}

func (f *fakeConn) Channel() (channel, error) {
	return f.ch, nil
}

func (f *fakeConn) NotifyClose(c chan *amqp.Error) chan *amqp.Error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCh = c
	return c
}

func (f *fakeConn) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// drop simulates the broker closing the connection.
func (f *fakeConn) drop() {
	f.mu.Lock()
	f.closed = true
	ch := f.closeCh
	f.mu.Unlock()
	ch <- &amqp.Error{Code: amqp.ConnectionForced, Reason: "broker shutdown"}
}

type fakeDialer struct {
	mu       sync.Mutex
	failures int
	conns    []*fakeConn
}

func (d *fakeDialer) dial(string) (connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failures > 0 {
		d.failures--
		return nil, errors.New("connection refused")
	}
	conn := &fakeConn{ch: newFakeChannel()}
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func testTopology() Topology {
	return Topology{
		Domain:        "contractor",
		Exchange:      "contractors_contractor_exchange",
		Queue:         "deals_contractor_queue",
		DeadExchange:  "deals_dead_exchange",
		DeadQueue:     "deals_dead_contractor_queue",
		RetryExchange: "deals_dead_contractor_exchange",
		RetryTTL:      5 * time.Minute,
	}
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "rabbitmq-test", Output: io.Discard})
}

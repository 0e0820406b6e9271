// Package mqtt stores shared documents as retained messages on an MQTT
// broker, one topic per key.
package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/runsheet/core/docsync"
	"github.com/kilianp07/runsheet/core/factory"
	"github.com/kilianp07/runsheet/core/monitoring"
	"github.com/kilianp07/runsheet/infra/logger"
)

func init() {
	_ = docsync.RegisterStore("mqtt", func(conf map[string]any) (docsync.DocumentStore, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewDocStore(c)
	})
}

// topic tracks the local listeners of one subscribed topic.
type topic struct {
	last      []byte
	listeners map[int]chan []byte
}

// DocStore implements docsync.DocumentStore on retained MQTT messages.
// Each topic has at most one broker subscription shared by every local
// listener.
type DocStore struct {
	cli    pahoClient
	cfg    Config
	logger logger.Logger

	mu     sync.Mutex
	topics map[string]*topic
	nextID int
}

// NewDocStore connects to the broker.
func NewDocStore(cfg Config) (*DocStore, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt_docstore")
	d := &DocStore{cfg: cfg, logger: log, topics: map[string]*topic{}}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected to %s", cfg.Broker)
		d.resubscribe(c)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	d.cli = c
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}
	return d, nil
}

// Topic returns the topic holding key.
func (d *DocStore) Topic(key string) string {
	return d.cfg.TopicPrefix + "/" + key
}

// Read subscribes to the key topic and waits for its retained message.
// docsync.ErrNotFound is returned when none arrives within ReadTimeout.
func (d *DocStore) Read(ctx context.Context, key string) ([]byte, error) {
	t := d.Topic(key)
	id, ch, cached, err := d.listen(t)
	if err != nil {
		return nil, err
	}
	defer d.unlisten(t, id)
	if cached != nil {
		return cached, nil
	}
	timer := time.NewTimer(d.cfg.ReadTimeout)
	defer timer.Stop()
	select {
	case b := <-ch:
		return b, nil
	case <-timer.C:
		return nil, docsync.ErrNotFound
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Upsert publishes blob as the retained message of the key topic, retrying
// with exponential backoff.
func (d *DocStore) Upsert(ctx context.Context, key string, blob []byte) error {
	t := d.Topic(key)
	backoff := time.Duration(d.cfg.BackoffMS) * time.Millisecond
	var publishErr error
	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		token := d.cli.Publish(t, d.cfg.QoS, true, blob)
		select {
		case <-token.Done():
			publishErr = token.Error()
		case <-ctx.Done():
			return ctx.Err()
		}
		if publishErr == nil {
			d.logger.Debugf("published %d bytes to %s", len(blob), t)
			return nil
		}
		d.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		if attempt == d.cfg.MaxRetries {
			break
		}
		select {
		case <-time.After(backoff * time.Duration(1<<attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	monitoring.CaptureException(publishErr, map[string]string{"module": "mqtt", "topic": t})
	return fmt.Errorf("publish %s: %w", t, publishErr)
}

// Subscribe streams the messages of the key topic until ctx ends. A slow
// reader only keeps the latest document.
func (d *DocStore) Subscribe(ctx context.Context, key string) (<-chan []byte, error) {
	t := d.Topic(key)
	id, ch, _, err := d.listen(t)
	if err != nil {
		return nil, err
	}
	out := make(chan []byte, 1)
	go func() {
		defer close(out)
		defer d.unlisten(t, id)
		for {
			select {
			case <-ctx.Done():
				return
			case b := <-ch:
				select {
				case out <- b:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close disconnects from the broker.
func (d *DocStore) Close() error {
	if d.cli != nil && d.cli.IsConnected() {
		d.cli.Disconnect(250)
	}
	return nil
}

// listen registers a listener on t, subscribing at the broker for the first
// one. cached holds the latest document already seen on t.
func (d *DocStore) listen(t string) (id int, ch chan []byte, cached []byte, err error) {
	d.mu.Lock()
	st, ok := d.topics[t]
	if !ok {
		st = &topic{listeners: map[int]chan []byte{}}
		d.topics[t] = st
	}
	d.nextID++
	id = d.nextID
	ch = make(chan []byte, 1)
	st.listeners[id] = ch
	if st.last != nil {
		cached = append([]byte(nil), st.last...)
	}
	d.mu.Unlock()
	if ok {
		return id, ch, cached, nil
	}
	token := d.cli.Subscribe(t, d.cfg.QoS, d.onMessage)
	if token.Wait() && token.Error() != nil {
		d.unlisten(t, id)
		return 0, nil, nil, fmt.Errorf("subscribe %s: %w", t, token.Error())
	}
	return id, ch, nil, nil
}

// unlisten removes a listener and drops the broker subscription with the
// last one.
func (d *DocStore) unlisten(t string, id int) {
	d.mu.Lock()
	st, ok := d.topics[t]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(st.listeners, id)
	empty := len(st.listeners) == 0
	if empty {
		delete(d.topics, t)
	}
	d.mu.Unlock()
	if empty && d.cli.IsConnected() {
		if token := d.cli.Unsubscribe(t); token.Wait() && token.Error() != nil {
			d.logger.Warnf("unsubscribe %s: %v", t, token.Error())
		}
	}
}

func (d *DocStore) onMessage(_ paho.Client, msg paho.Message) {
	payload := msg.Payload()
	// an empty retained payload clears the topic
	if len(payload) == 0 {
		return
	}
	b := append([]byte(nil), payload...)
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.topics[msg.Topic()]
	if !ok {
		return
	}
	st.last = b
	for _, ch := range st.listeners {
		select {
		case ch <- b:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- b
		}
	}
}

// resubscribe restores broker subscriptions after a reconnect.
func (d *DocStore) resubscribe(c paho.Client) {
	d.mu.Lock()
	topics := make([]string, 0, len(d.topics))
	for t := range d.topics {
		topics = append(topics, t)
	}
	d.mu.Unlock()
	for _, t := range topics {
		if token := c.Subscribe(t, d.cfg.QoS, d.onMessage); token.Wait() && token.Error() != nil {
			d.logger.Errorf("resubscribe %s: %v", t, token.Error())
		}
	}
}

package mqtt

import (
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// mockClient implements pahoClient and paho.Client for tests. It behaves
// like a tiny broker: retained messages are replayed on subscribe.
type mockClient struct {
	mu          sync.Mutex
	opts        *paho.ClientOptions
	retained    map[string][]byte
	handlers    map[string]paho.MessageHandler
	subscribed  []string
	unsubbed    []string
	published   []published
	publishErrs []error
	connectErr  error
}

func newMockClient() *mockClient {
	return &mockClient{retained: map[string][]byte{}, handlers: map[string]paho.MessageHandler{}}
}

func (m *mockClient) install() func() {
	prev := newMQTTClient
	newMQTTClient = func(o *paho.ClientOptions) pahoClient {
		m.opts = o
		return m
	}
	return func() { newMQTTClient = prev }
}

func (m *mockClient) IsConnected() bool { return true }
func (m *mockClient) Connect() paho.Token {
	if m.connectErr != nil {
		return &dummyToken{err: m.connectErr}
	}
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(m)
	}
	return &dummyToken{}
}
func (m *mockClient) Disconnect(uint) {}
func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	b, _ := payload.([]byte)
	m.mu.Lock()
	m.published = append(m.published, published{topic, qos, retained, b})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		m.mu.Unlock()
		if err != nil {
			return &dummyToken{err: err}
		}
		m.mu.Lock()
	}
	if retained {
		m.retained[topic] = b
	}
	h := m.handlers[topic]
	m.mu.Unlock()
	if h != nil {
		h(m, mockMessage{topic: topic, p: b})
	}
	return &dummyToken{}
}
func (m *mockClient) Subscribe(topic string, _ byte, cb paho.MessageHandler) paho.Token {
	m.mu.Lock()
	m.handlers[topic] = cb
	m.subscribed = append(m.subscribed, topic)
	b, ok := m.retained[topic]
	m.mu.Unlock()
	if ok {
		cb(m, mockMessage{topic: topic, p: b, retained: true})
	}
	return &dummyToken{}
}
func (m *mockClient) Unsubscribe(topics ...string) paho.Token {
	m.mu.Lock()
	for _, t := range topics {
		delete(m.handlers, t)
		m.unsubbed = append(m.unsubbed, t)
	}
	m.mu.Unlock()
	return &dummyToken{}
}
func (m *mockClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &dummyToken{}
}
func (m *mockClient) AddRoute(string, paho.MessageHandler)    {}
func (m *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }
func (m *mockClient) IsConnectionOpen() bool                  { return true }

func (m *mockClient) publishes() []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]published(nil), m.published...)
}

func (m *mockClient) handlerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

type mockMessage struct {
	topic    string
	p        []byte
	retained bool
}

func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Qos() byte         { return 1 }
func (m mockMessage) Retained() bool    { return m.retained }
func (m mockMessage) Topic() string     { return m.topic }
func (m mockMessage) MessageID() uint16 { return 0 }
func (m mockMessage) Payload() []byte   { return m.p }
func (m mockMessage) Ack()              {}

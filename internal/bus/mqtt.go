package bus

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// QoS is used for every publish and subscription; ducks expect at-most-once.
const QoS byte = 0

var ErrNotConnected = errors.New("mqtt client not connected")

// Config describes how to reach the broker.
type Config struct {
	Host           string
	Port           int
	ClientIDPrefix string
	Username       string
	Password       string
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	Logger         *zap.Logger
}

// Client is a thin paho wrapper that fans messages out to per-topic callbacks
// and restores subscriptions after a reconnect.
type Client struct {
	client mqtt.Client
	log    *zap.Logger

	mu     sync.Mutex
	subs   map[string]map[int]func([]byte)
	nextID int
}

// Connect dials the broker and blocks until the session is up or ctx ends.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("mqtt host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 1883
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 60 * time.Second
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	prefix := cfg.ClientIDPrefix
	if prefix == "" {
		prefix = "duckswarm"
	}

	mc := newClient(cfg.Logger)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(randomClientID(prefix))
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	// Handlers publish (launch echo), so they cannot run on the ordered router.
	opts.SetOrderMatters(false)
	opts.SetDefaultPublishHandler(mc.dispatch)
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		mc.log.Info("mqtt connected", zap.String("host", cfg.Host), zap.Int("port", cfg.Port))
		mc.resubscribeAll()
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		mc.log.Warn("mqtt connection lost", zap.Error(err))
	})

	mc.client = mqtt.NewClient(opts)
	token := mc.client.Connect()
	select {
	case <-ctx.Done():
		mc.client.Disconnect(0)
		return nil, fmt.Errorf("connect %s:%d: %w", cfg.Host, cfg.Port, ctx.Err())
	case <-token.Done():
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return mc, nil
}

func newClient(log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		log:  log,
		subs: make(map[string]map[int]func([]byte)),
	}
}

// Subscribe registers cb for topic. The broker subscription is shared by all
// callbacks on the same topic and dropped with the last one.
func (c *Client) Subscribe(topic string, cb func([]byte)) (func(), error) {
	c.mu.Lock()
	if c.subs[topic] == nil {
		c.subs[topic] = make(map[int]func([]byte))
	}
	id := c.nextID
	c.nextID++
	c.subs[topic][id] = cb
	needSubscribe := len(c.subs[topic]) == 1
	c.mu.Unlock()

	if needSubscribe {
		if token := c.client.Subscribe(topic, QoS, nil); token.Wait() && token.Error() != nil {
			c.remove(topic, id)
			return nil, fmt.Errorf("subscribe %s: %w", topic, token.Error())
		}
		c.log.Debug("subscribed", zap.String("topic", topic))
	}

	return func() {
		if c.remove(topic, id) {
			_ = c.client.Unsubscribe(topic).Wait()
		}
	}, nil
}

// remove drops one callback and reports whether the topic has none left.
func (c *Client) remove(topic string, id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	callbacks := c.subs[topic]
	if callbacks == nil {
		return false
	}
	delete(callbacks, id)
	if len(callbacks) == 0 {
		delete(c.subs, topic)
		return true
	}
	return false
}

// Publish sends payload at QoS 0 and waits for it to leave the client.
func (c *Client) Publish(topic string, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	if token := c.client.Publish(topic, QoS, false, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish %s: %w", topic, token.Error())
	}
	return nil
}

// Connected reports whether the broker session is currently open.
func (c *Client) Connected() bool {
	return c.client != nil && c.client.IsConnectionOpen()
}

// Close disconnects, allowing in-flight work a short grace period.
func (c *Client) Close() {
	if c.client == nil {
		return
	}
	c.client.Disconnect(250)
}

func (c *Client) dispatch(_ mqtt.Client, msg mqtt.Message) {
	c.mu.Lock()
	callbacks := c.subs[msg.Topic()]
	list := make([]func([]byte), 0, len(callbacks))
	for _, cb := range callbacks {
		list = append(list, cb)
	}
	c.mu.Unlock()
	for _, cb := range list {
		cb(msg.Payload())
	}
}

func (c *Client) resubscribeAll() {
	c.mu.Lock()
	topics := make([]string, 0, len(c.subs))
	for topic := range c.subs {
		topics = append(topics, topic)
	}
	c.mu.Unlock()
	for _, topic := range topics {
		if token := c.client.Subscribe(topic, QoS, nil); token.Wait() && token.Error() != nil {
			c.log.Warn("resubscribe failed", zap.String("topic", topic), zap.Error(token.Error()))
		}
	}
}

func randomClientID(prefix string) string {
	nonce := make([]byte, 8)
	_, _ = rand.Read(nonce)
	return prefix + "-" + base64.RawURLEncoding.EncodeToString(nonce)
}

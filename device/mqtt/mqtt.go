package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"

	"github.com/oxrs-io/oxrs-go/core/logger"
)

// MessageHandler receives one incoming JSON document.
type MessageHandler func(doc map[string]interface{})

// Settings are the transport settings. They can be replaced at runtime via
// the REST API and are persisted on the device's file system.
type Settings struct {
	Broker      string `json:"broker,omitempty"`
	Port        int    `json:"port,omitempty"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	ClientID    string `json:"clientId,omitempty"`
	TopicPrefix string `json:"topicPrefix,omitempty"`
	TopicSuffix string `json:"topicSuffix,omitempty"`
}

// Builder is a builder helper for the transport Client
type Builder struct {
	// Broker is the broker host name or IP. This is optional, it can also
	// be supplied later via ApplySettings.
	Broker string
	// Port is the broker port. Defaults to 1883.
	Port int
	// ConnectRetryInterval is the pause between failed connection attempts.
	// Defaults to 5 seconds.
	ConnectRetryInterval time.Duration
}

type event struct {
	connected    bool
	disconnected bool
	reason       DisconnectReason
	topic        string
	payload      []byte
}

// Client is the MQTT transport. It is driven by Loop() from the device's
// poll cycle; all registered callbacks are invoked on the polling goroutine.
type Client struct {
	mutex         sync.Mutex
	settings      Settings
	retryInterval time.Duration

	client       paho.Client
	connectToken paho.Token
	nextConnect  time.Time

	events chan event

	onConnected    func()
	onDisconnected func(DisconnectReason)
	onConfig       MessageHandler
	onCommand      MessageHandler
}

// New returns a new transport client. The client will not attempt to connect
// until Loop() is called with a broker and a client id configured.
func New(b *Builder) *Client {
	retryInterval := b.ConnectRetryInterval
	if retryInterval == 0 {
		retryInterval = 5 * time.Second
	}
	return &Client{
		settings: Settings{
			Broker: b.Broker,
			Port:   b.Port,
		},
		retryInterval: retryInterval,
		events:        make(chan event, 64),
	}
}

// SetBroker sets the broker host and port.
func (c *Client) SetBroker(broker string, port int) {
	c.mutex.Lock()
	c.settings.Broker = broker
	c.settings.Port = port
	c.mutex.Unlock()
	c.reset()
}

// SetClientID sets the MQTT client id, which is also the device segment of
// all topics.
func (c *Client) SetClientID(clientID string) {
	c.mutex.Lock()
	c.settings.ClientID = clientID
	c.mutex.Unlock()
	c.reset()
}

// SetAuth sets the broker credentials.
func (c *Client) SetAuth(username, password string) {
	c.mutex.Lock()
	c.settings.Username = username
	c.settings.Password = password
	c.mutex.Unlock()
	c.reset()
}

// SetTopicPrefix sets an optional prefix for all topics.
func (c *Client) SetTopicPrefix(prefix string) {
	c.mutex.Lock()
	c.settings.TopicPrefix = prefix
	c.mutex.Unlock()
	c.reset()
}

// SetTopicSuffix sets an optional suffix for all topics.
func (c *Client) SetTopicSuffix(suffix string) {
	c.mutex.Lock()
	c.settings.TopicSuffix = suffix
	c.mutex.Unlock()
	c.reset()
}

// ApplySettings replaces the transport settings wholesale. An empty client id
// keeps the current one, so persisted settings without a clientId fall back
// to the MAC-derived default.
func (c *Client) ApplySettings(settings Settings) {
	c.mutex.Lock()
	if settings.ClientID == "" {
		settings.ClientID = c.settings.ClientID
	}
	c.settings = settings
	c.mutex.Unlock()
	c.reset()
}

// Settings returns a copy of the current transport settings, including
// credentials. Callers serving the settings outward must mask the password.
func (c *Client) Settings() Settings {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.settings
}

// OnConnected registers the connected callback.
func (c *Client) OnConnected(callback func()) { c.onConnected = callback }

// OnDisconnected registers the disconnected callback.
func (c *Client) OnDisconnected(callback func(DisconnectReason)) { c.onDisconnected = callback }

// OnConfig registers the handler for incoming config documents.
func (c *Client) OnConfig(handler MessageHandler) { c.onConfig = handler }

// OnCommand registers the handler for incoming command documents.
func (c *Client) OnCommand(handler MessageHandler) { c.onCommand = handler }

// IsConnected reports whether the transport currently has a broker
// connection.
func (c *Client) IsConnected() bool {
	c.mutex.Lock()
	client := c.client
	c.mutex.Unlock()
	return client != nil && client.IsConnected()
}

func (c *Client) topic(kind string) string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.topicLocked(kind)
}

func (c *Client) topicLocked(kind string) string {
	topic := kind + "/" + c.settings.ClientID
	if c.settings.TopicPrefix != "" {
		topic = c.settings.TopicPrefix + "/" + topic
	}
	if c.settings.TopicSuffix != "" {
		topic = topic + "/" + c.settings.TopicSuffix
	}
	return topic
}

// ConfigTopic returns the topic configuration documents arrive on.
func (c *Client) ConfigTopic() string { return c.topic("conf") }

// CommandTopic returns the topic command documents arrive on.
func (c *Client) CommandTopic() string { return c.topic("cmnd") }

// StatusTopic returns the topic status messages are published to.
func (c *Client) StatusTopic() string { return c.topic("stat") }

// TelemetryTopic returns the topic telemetry messages are published to.
func (c *Client) TelemetryTopic() string { return c.topic("tele") }

// LogTopic returns the topic log lines are mirrored to.
func (c *Client) LogTopic() string { return c.topic("log") }

// AdoptTopic returns the topic the adoption report is published to.
func (c *Client) AdoptTopic() string { return c.StatusTopic() + "/adopt" }

// Loop drives the transport once: pending events are dispatched on the
// calling goroutine, and a connection attempt is started or checked if the
// transport is not connected.
func (c *Client) Loop() {
drain:
	for {
		select {
		case ev := <-c.events:
			c.dispatch(ev)
		default:
			break drain
		}
	}

	c.mutex.Lock()
	client := c.client
	token := c.connectToken
	configured := c.settings.Broker != "" && c.settings.ClientID != ""
	nextConnect := c.nextConnect
	c.mutex.Unlock()

	if client == nil {
		if configured && time.Now().After(nextConnect) {
			c.startConnect()
		}
		return
	}

	if token != nil {
		select {
		case <-token.Done():
			c.mutex.Lock()
			c.connectToken = nil
			c.mutex.Unlock()
			if err := token.Error(); err != nil {
				reason := classifyDisconnect(err)
				if reason == ConnectionLost {
					reason = ConnectFailed
				}
				if c.onDisconnected != nil {
					c.onDisconnected(reason)
				}
				c.mutex.Lock()
				c.client = nil
				c.nextConnect = time.Now().Add(c.retryInterval)
				c.mutex.Unlock()
			}
		default:
		}
	}
}

func (c *Client) dispatch(ev event) {
	switch {
	case ev.connected:
		if c.onConnected != nil {
			c.onConnected()
		}
	case ev.disconnected:
		if c.onDisconnected != nil {
			c.onDisconnected(ev.reason)
		}
	default:
		if status := c.Receive(ev.topic, ev.payload); status != ReceiveOK {
			logger.Default().Warnf("mqtt %s", status)
		}
	}
}

// Receive processes one incoming message and reports how it was handled.
// Malformed messages are classified and dropped, they never propagate.
func (c *Client) Receive(topic string, payload []byte) ReceiveStatus {
	if len(payload) == 0 {
		return ReceiveZeroLength
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return ReceiveJSONError
	}
	switch topic {
	case c.ConfigTopic():
		if c.onConfig == nil {
			return ReceiveNoConfigHandler
		}
		c.onConfig(doc)
	case c.CommandTopic():
		if c.onCommand == nil {
			return ReceiveNoCommandHandler
		}
		c.onCommand(doc)
	default:
		return ReceiveUnknownTopic
	}
	return ReceiveOK
}

// PublishStatus publishes a status document. It returns false when the
// transport is not connected or the publish fails.
func (c *Client) PublishStatus(doc map[string]interface{}) bool {
	return c.publish(c.StatusTopic(), doc, 0)
}

// PublishTelemetry publishes a telemetry document.
func (c *Client) PublishTelemetry(doc map[string]interface{}) bool {
	return c.publish(c.TelemetryTopic(), doc, 0)
}

// PublishAdopt publishes the adoption report.
func (c *Client) PublishAdopt(doc map[string]interface{}) bool {
	return c.publish(c.AdoptTopic(), doc, 1)
}

// PublishLog mirrors a formatted log line to the log topic. It is called
// from the logger hook on arbitrary goroutines and must not log itself.
func (c *Client) PublishLog(payload []byte) bool {
	c.mutex.Lock()
	client := c.client
	c.mutex.Unlock()
	if client == nil || !client.IsConnected() {
		return false
	}
	// fire and forget, a slow broker must not stall the caller
	client.Publish(c.LogTopic(), 0, false, payload)
	return true
}

func (c *Client) publish(topic string, doc map[string]interface{}, qos byte) bool {
	c.mutex.Lock()
	client := c.client
	c.mutex.Unlock()
	if client == nil || !client.IsConnected() {
		return false
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		logger.Default().WithError(err).Errorf("mqtt cannot serialise payload for %s", topic)
		return false
	}
	token := client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return false
	}
	return token.Error() == nil
}

func (c *Client) startConnect() {
	c.mutex.Lock()
	settings := c.settings
	c.mutex.Unlock()

	port := settings.Port
	if port == 0 {
		port = 1883
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", settings.Broker, port))
	opts.SetClientID(settings.ClientID)
	if settings.Username != "" {
		opts.SetUsername(settings.Username)
		opts.SetPassword(settings.Password)
	}
	// CleanSession avoids a queued message backlog on device restart
	opts.SetCleanSession(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetAutoReconnect(true)

	opts.OnConnect = func(pc paho.Client) {
		handler := func(_ paho.Client, msg paho.Message) {
			c.enqueue(event{topic: msg.Topic(), payload: msg.Payload()})
		}
		// subscriptions are re-established on every (re)connect
		for _, topic := range []string{c.ConfigTopic(), c.CommandTopic()} {
			if token := pc.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
				logger.Default().WithError(token.Error()).Errorf("mqtt cannot subscribe to %s", topic)
			}
		}
		c.enqueue(event{connected: true})
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		c.enqueue(event{disconnected: true, reason: classifyDisconnect(err)})
	}

	client := paho.NewClient(opts)
	c.mutex.Lock()
	c.client = client
	c.connectToken = client.Connect()
	c.mutex.Unlock()
}

// reset drops the current connection so the next Loop() reconnects with the
// current settings.
func (c *Client) reset() {
	c.mutex.Lock()
	client := c.client
	c.client = nil
	c.connectToken = nil
	c.nextConnect = time.Time{}
	c.mutex.Unlock()
	if client != nil {
		client.Disconnect(250)
	}
}

func (c *Client) enqueue(ev event) {
	select {
	case c.events <- ev:
	default:
		logger.Default().Warnln("mqtt event queue full, dropping")
	}
}

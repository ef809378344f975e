// Package controlplane implements the MQTT control plane: node discovery,
// availability (LWT), call notifications, and Home Assistant auto-discovery
// entity advertisement.
//
// The teacher has no MQTT code of its own; github.com/eclipse/paho.mqtt.golang
// is grounded on two independent repos in the retrieved example pack
// (madpsy-ka9q_ubersdr, LumenPrima-tr-engine) that use it for exactly this
// kind of discovery/telemetry control channel. Per Design Notes §9, payloads
// are tagged Go structs marshaled/unmarshaled with encoding/json — never a
// map[string]interface{} grab-bag.
package controlplane

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	topicDiscoveryPrefix    = "intercom/discovery/"
	topicAvailabilityPrefix = "intercom/availability/"
	topicCall               = "intercom/call"

	qosAtLeastOnce = byte(1)
)

// DiscoveryPayload is the retained node-announcement payload published to
// intercom/discovery/<device_id>.
type DiscoveryPayload struct {
	Room         string   `json:"room"`
	IP           string   `json:"ip"`
	Capabilities []string `json:"capabilities"`
}

// CallPayload is the payload published to intercom/call.
type CallPayload struct {
	From     string `json:"from"`
	ToRoom   string `json:"to_room"`
	Priority string `json:"priority"`
	Chime    string `json:"chime,omitempty"`
	Source   string `json:"source"` // "hub" for hub-originated calls
}

// Availability is "online" or "offline", the LWT payload shape.
type Availability string

const (
	Online  Availability = "online"
	Offline Availability = "offline"
)

// NodeAnnouncement is delivered to OnNode when a discovery or availability
// message arrives for a node.
type NodeAnnouncement struct {
	DeviceID     string
	Room         string
	IP           string
	Capabilities []string
	Availability Availability
}

// CallHandler is invoked when a non-self-originated call message arrives.
type CallHandler func(CallPayload)

// NodeHandler is invoked on node discovery/availability updates.
type NodeHandler func(NodeAnnouncement)

// Client wraps a paho MQTT client configured for this system's topics.
type Client struct {
	cli mqtt.Client
	log *slog.Logger

	onCall CallHandler
	onNode NodeHandler
}

// Config holds MQTT connection parameters, mirroring spec.md §6's
// configuration options.
type Config struct {
	Host      string
	Port      int
	Username  string // required
	Password  string // required
	ClientID  string
}

// Connect dials the broker and subscribes to discovery/availability/call
// topics. Connection failures are logged and retried by the underlying paho
// client's auto-reconnect; this is not a startup-fatal error per spec.md §7
// (only TransportBind/GroupJoin/CodecInit are fatal at startup).
func Connect(cfg Config, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("[controlplane] mqtt_user and mqtt_password are required")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) { log.Info("mqtt connected") })
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) { log.Warn("mqtt connection lost", "error", err) })

	c := &Client{log: log}
	opts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		c.dispatch(msg.Topic(), msg.Payload())
	})

	cli := mqtt.NewClient(opts)
	tok := cli.Connect()
	tok.Wait()
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("[controlplane] connect: %w", err)
	}
	c.cli = cli

	if tok := cli.Subscribe(topicDiscoveryPrefix+"+", qosAtLeastOnce, nil); tok.Wait() && tok.Error() != nil {
		return nil, fmt.Errorf("[controlplane] subscribe discovery: %w", tok.Error())
	}
	if tok := cli.Subscribe(topicAvailabilityPrefix+"+", qosAtLeastOnce, nil); tok.Wait() && tok.Error() != nil {
		return nil, fmt.Errorf("[controlplane] subscribe availability: %w", tok.Error())
	}
	if tok := cli.Subscribe(topicCall, qosAtLeastOnce, nil); tok.Wait() && tok.Error() != nil {
		return nil, fmt.Errorf("[controlplane] subscribe call: %w", tok.Error())
	}

	return c, nil
}

// OnCall registers the handler invoked for non-self-originated call
// messages.
func (c *Client) OnCall(h CallHandler) { c.onCall = h }

// OnNode registers the handler invoked for discovery/availability updates.
func (c *Client) OnNode(h NodeHandler) { c.onNode = h }

func (c *Client) dispatch(topic string, payload []byte) {
	switch {
	case topic == topicCall:
		var p CallPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			c.log.Warn("malformed call payload", "error", err)
			return
		}
		// Self-echo prevention per spec.md §4.7: the hub drops its own
		// call messages on receipt.
		if p.Source == "hub" {
			return
		}
		if c.onCall != nil {
			c.onCall(p)
		}
	case len(topic) > len(topicDiscoveryPrefix) && topic[:len(topicDiscoveryPrefix)] == topicDiscoveryPrefix:
		deviceID := topic[len(topicDiscoveryPrefix):]
		var p DiscoveryPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			c.log.Warn("malformed discovery payload", "device_id", deviceID, "error", err)
			return
		}
		if c.onNode != nil {
			c.onNode(NodeAnnouncement{DeviceID: deviceID, Room: p.Room, IP: p.IP, Capabilities: p.Capabilities, Availability: Online})
		}
	case len(topic) > len(topicAvailabilityPrefix) && topic[:len(topicAvailabilityPrefix)] == topicAvailabilityPrefix:
		deviceID := topic[len(topicAvailabilityPrefix):]
		avail := Availability(payload)
		if c.onNode != nil {
			c.onNode(NodeAnnouncement{DeviceID: deviceID, Availability: avail})
		}
	default:
		c.log.Debug("unhandled mqtt topic", "topic", topic)
	}
}

// PublishCall publishes a hub-originated call notification, stamping
// source="hub" for self-echo prevention.
func (c *Client) PublishCall(p CallPayload) {
	p.Source = "hub"
	data, err := json.Marshal(p)
	if err != nil {
		c.log.Warn("marshal call payload failed", "error", err)
		return
	}
	tok := c.cli.Publish(topicCall, qosAtLeastOnce, false, data)
	go func() {
		tok.Wait()
		if err := tok.Error(); err != nil {
			c.log.Warn("mqtt publish failed", "topic", topicCall, "error", err)
		}
	}()
}

// PublishAvailability publishes the hub's own availability (hubs don't have
// an LWT-driven availability topic themselves in this design, but the call
// exists for symmetry with node availability handling and for future hub
// health advertisement).
func (c *Client) PublishAvailability(deviceID string, a Availability) {
	tok := c.cli.Publish(topicAvailabilityPrefix+deviceID, qosAtLeastOnce, true, []byte(a))
	go func() {
		tok.Wait()
		if err := tok.Error(); err != nil {
			c.log.Warn("mqtt publish failed", "topic", topicAvailabilityPrefix+deviceID, "error", err)
		}
	}()
}

// Disconnect cleanly closes the MQTT connection.
func (c *Client) Disconnect() {
	c.cli.Disconnect(250)
}

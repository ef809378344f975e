// Package nodecontrol is the node-side half of the MQTT control plane: it
// marks this node online on connect (with a Last Will marking it offline on
// disconnect), publishes its room/IP through Announce, and subscribes to call notifications so
// chimedetect can arm its fallback-beep window. Mirrors the hub's
// internal/controlplane topic layout without importing it.
package nodecontrol

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	discoveryTopicPrefix    = "intercom/discovery/"
	availabilityTopicPrefix = "intercom/availability/"
	callTopic               = "intercom/call"
)

// Config carries MQTT broker connection parameters.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	ClientID string
}

// Announcement is published by each Announce call; nothing republishes it
// when Room/IP change.
type Announcement struct {
	DeviceID     string   `json:"device_id"`
	Room         string   `json:"room"`
	IP           string   `json:"ip"`
	Capabilities []string `json:"capabilities"`
}

// CallPayload mirrors the hub's controlplane.CallPayload.
type CallPayload struct {
	From     string `json:"from"`
	ToRoom   string `json:"to_room"`
	Priority string `json:"priority"`
	Chime    string `json:"chime,omitempty"`
	Source   string `json:"source"`
}

// Client wraps a paho MQTT connection for one node.
type Client struct {
	cli      mqtt.Client
	deviceID string
	log      *slog.Logger
	onCall   func(CallPayload)
}

// Connect dials the broker, publishes "online" with a Last Will of
// "offline", and subscribes to intercom/call.
func Connect(cfg Config, deviceID string, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetWill(availabilityTopicPrefix+deviceID, "offline", 1, true)

	c := &Client{deviceID: deviceID, log: log}
	opts.SetOnConnectHandler(func(cl mqtt.Client) {
		cl.Publish(availabilityTopicPrefix+deviceID, 1, true, "online")
		cl.Subscribe(callTopic, 1, c.handleCall)
	})

	cli := mqtt.NewClient(opts)
	if tok := cli.Connect(); tok.WaitTimeout(10*time.Second) && tok.Error() != nil {
		return nil, tok.Error()
	}
	c.cli = cli
	return c, nil
}

// OnCall registers the handler invoked for each non-self call notification.
func (c *Client) OnCall(fn func(CallPayload)) { c.onCall = fn }

func (c *Client) handleCall(_ mqtt.Client, msg mqtt.Message) {
	var p CallPayload
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		c.log.Warn("malformed call payload", "error", err)
		return
	}
	if p.Source == "node" && p.From == c.deviceID {
		return // self-echo guard, mirrors the hub's Source=="hub" check
	}
	if c.onCall != nil {
		c.onCall(p)
	}
}

// Announce publishes this node's discovery record.
func (c *Client) Announce(a Announcement) {
	data, err := json.Marshal(a)
	if err != nil {
		return
	}
	c.cli.Publish(discoveryTopicPrefix+c.deviceID, 1, true, data)
}

// Disconnect publishes "offline" explicitly and closes the connection.
func (c *Client) Disconnect() {
	c.cli.Publish(availabilityTopicPrefix+c.deviceID, 1, true, "offline")
	c.cli.Disconnect(250)
}

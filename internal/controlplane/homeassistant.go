package controlplane

import "encoding/json"

// haDiscoveryPrefix is the standard Home Assistant MQTT discovery topic
// root. Entities are published once at startup, retained, so HA picks them
// up on restart without the hub needing to republish.
const haDiscoveryPrefix = "homeassistant"

// haEntity is the minimal HA MQTT discovery config document shared by every
// entity this hub advertises.
type haEntity struct {
	Name        string `json:"name"`
	UniqueID    string `json:"unique_id"`
	StateTopic  string `json:"state_topic"`
	CommandTopic string `json:"command_topic,omitempty"`
	Device      haDevice `json:"device"`
}

type haDevice struct {
	Identifiers []string `json:"identifiers"`
	Name        string   `json:"name"`
}

// PublishHADiscovery advertises the entities listed in spec.md §6: notify,
// state sensor, volume number, mute switch, target select, AGC switch,
// priority select, DND switch, call button, chime select.
func (c *Client) PublishHADiscovery(hubID, hubName string) {
	dev := haDevice{Identifiers: []string{hubID}, Name: hubName}
	base := "intercom/" + hubID

	entities := []struct {
		domain string
		suffix string
		name   string
		hasCmd bool
	}{
		{"sensor", "state", "Intercom State", false},
		{"number", "volume", "Intercom Volume", true},
		{"switch", "mute", "Intercom Mute", true},
		{"select", "target", "Intercom Target", true},
		{"switch", "agc", "Intercom AGC", true},
		{"select", "priority", "Intercom Priority", true},
		{"switch", "dnd", "Intercom DND", true},
		{"button", "call", "Intercom Call", true},
		{"select", "chime", "Intercom Chime", true},
		{"notify", "notify", "Intercom Notify", true},
	}

	for _, e := range entities {
		ent := haEntity{
			Name:       e.name,
			UniqueID:   hubID + "_" + e.suffix,
			StateTopic: base + "/" + e.suffix + "/state",
			Device:     dev,
		}
		if e.hasCmd {
			ent.CommandTopic = base + "/" + e.suffix + "/set"
		}
		data, err := json.Marshal(ent)
		if err != nil {
			c.log.Warn("ha discovery marshal failed", "entity", e.suffix, "error", err)
			continue
		}
		topic := haDiscoveryPrefix + "/" + e.domain + "/" + hubID + "/" + e.suffix + "/config"
		tok := c.cli.Publish(topic, qosAtLeastOnce, true, data)
		go func() {
			tok.Wait()
			if err := tok.Error(); err != nil {
				c.log.Warn("ha discovery publish failed", "error", err)
			}
		}()
	}
}

// Command node runs a simulated satellite intercom node: it joins the
// multicast group, decodes and plays incoming frames (or the local fallback
// beep), and announces itself over MQTT. Mirrors the teacher's
// client/main.go flag/startup/signal-handling shape.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/Bri-J-C/ha-intercom-sub001/node/internal/chimedetect"
	"github.com/Bri-J-C/ha-intercom-sub001/node/internal/mcast"
	"github.com/Bri-J-C/ha-intercom-sub001/node/internal/nodecodec"
	"github.com/Bri-J-C/ha-intercom-sub001/node/internal/nodecontrol"
	"github.com/Bri-J-C/ha-intercom-sub001/node/internal/nodepacket"
	"github.com/Bri-J-C/ha-intercom-sub001/node/internal/play"
	"github.com/Bri-J-C/ha-intercom-sub001/node/internal/rxqueue"
	"github.com/Bri-J-C/ha-intercom-sub001/node/internal/simhw"
)

func main() {
	deviceID := flag.String("device-id", "node-kitchen", "this node's device id string")
	room := flag.String("room", "kitchen", "room this node belongs to")
	iface := flag.String("iface", "eth0", "LAN interface for multicast TX/RX")
	hubDeviceID := flag.String("hub-device-id", "", "hub's stable device id (hex), for chime detection")
	mqttHost := flag.String("mqtt-host", "localhost", "MQTT broker host")
	mqttPort := flag.Int("mqtt-port", 1883, "MQTT broker port")
	mqttUser := flag.String("mqtt-user", "", "MQTT username")
	mqttPass := flag.String("mqtt-pass", "", "MQTT password")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil)).With("component", "node", "device_id", *deviceID)
	slog.SetDefault(log)

	dec, err := nodecodec.New()
	if err != nil {
		log.Error("codec init failed", "error", err)
		os.Exit(1)
	}

	q := rxqueue.New()
	sink := simhw.NewI2SSink()
	playTask := play.New(q, dec, sink)
	if err := playTask.Enable(); err != nil {
		log.Error("play task enable failed", "error", err)
		os.Exit(1)
	}

	detector := chimedetect.New(*hubDeviceID, func() {
		log.Info("playing local fallback beep")
	})

	receiver, err := mcast.NewReceiver(mcast.DefaultGroup, mcast.DefaultPort, *iface, log)
	if err != nil {
		log.Error("multicast receiver init failed", "error", err)
		os.Exit(1)
	}

	ctrl, err := nodecontrol.Connect(nodecontrol.Config{
		Host: *mqttHost, Port: *mqttPort, Username: *mqttUser, Password: *mqttPass,
		ClientID: "node-" + *deviceID,
	}, *deviceID, log.With("component", "nodecontrol"))
	if err != nil {
		log.Error("mqtt connect failed", "error", err)
		os.Exit(1)
	}
	ctrl.OnCall(func(p nodecontrol.CallPayload) {
		if p.ToRoom == *room || p.ToRoom == "all" {
			detector.OnCallNotification()
		}
	})
	ctrl.Announce(nodecontrol.Announcement{DeviceID: *deviceID, Room: *room, Capabilities: []string{"speaker", "mic"}})

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Info("shutting down")
		_ = playTask.Disable()
		ctrl.Disconnect()
		cancel()
	}()

	stop := make(chan struct{})
	go playTask.Run(stop)
	defer close(stop)

	receiver.Run(ctx, func(dg mcast.Datagram) {
		f, err := nodepacket.Parse(dg.Data)
		if err != nil {
			log.Debug("malformed packet", "error", err)
			return
		}
		if f.DeviceID.String() == *deviceID {
			return
		}
		detector.OnFrame(f.DeviceID.String(), f.Sequence)
		q.Push(play.Entry{Opus: f.Payload})
	})
}

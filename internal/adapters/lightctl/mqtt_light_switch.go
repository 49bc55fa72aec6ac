package lightctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"geotag-service/internal/ports"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type MQTTConfig struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string
	Username string
	Password string
	// Messages go to <Topic>/<room>.
	Topic string
}

// Command is the payload published for a room.
type Command struct {
	Room   string `json:"room"`
	Action string `json:"action"`
}

// MQTTLightSwitch publishes ON/OFF commands for a room's lights to an MQTT
// bridge.
type MQTTLightSwitch struct {
	client mqtt.Client
	topic  string
}

// NewMQTTLightSwitch connects to the broker, retrying with exponential backoff.
func NewMQTTLightSwitch(cfg MQTTConfig) (*MQTTLightSwitch, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, errors.New("mqtt broker is empty")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second
	const maxRetries = 5

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.Printf("lights: mqtt connect failed broker=%s err=%v", cfg.Broker, token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithMaxRetries(bo, maxRetries-1))
	if err != nil {
		return nil, fmt.Errorf("connect mqtt broker %s: %w", cfg.Broker, err)
	}

	log.Printf("lights: connected to mqtt broker=%s", cfg.Broker)
	return NewMQTTLightSwitchWithClient(client, cfg.Topic), nil
}

// NewMQTTLightSwitchWithClient wraps an already connected client.
func NewMQTTLightSwitchWithClient(client mqtt.Client, topic string) *MQTTLightSwitch {
	if topic == "" {
		topic = "lights"
	}
	return &MQTTLightSwitch{client: client, topic: strings.TrimSuffix(topic, "/")}
}

func (s *MQTTLightSwitch) Switch(ctx context.Context, roomName string, action ports.LightAction) error {
	if action != ports.LightOn && action != ports.LightOff {
		return fmt.Errorf("switch lights: room %q: unknown action %q", roomName, action)
	}

	payload, err := json.Marshal(Command{Room: roomName, Action: string(action)})
	if err != nil {
		return fmt.Errorf("switch lights: encode: %w", err)
	}

	topic := s.topic + "/" + roomName
	token := s.client.Publish(topic, 1, false, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("switch lights: room %q: %w", roomName, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("switch lights: room %q: publish: %w", roomName, err)
	}

	log.Printf("lights: published topic=%s action=%s", topic, action)
	return nil
}

func (s *MQTTLightSwitch) Close() {
	if s.client.IsConnected() {
		s.client.Disconnect(250)
		log.Println("lights: mqtt client disconnected")
	}
}

// Package wled forwards presets to WLED controllers over MQTT.
package wled

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/fkcurrie/fluidnc-position-led/internal/config"
	"github.com/fkcurrie/fluidnc-position-led/internal/types"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 5 * time.Second
	qos            = 1
)

// Publisher is the part of mqtt.Client used here
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// apiMessage is the WLED JSON API body selecting a preset
type apiMessage struct {
	Preset int `json:"ps"`
}

// Client applies presets on WLED devices through their MQTT API topic and
// optionally publishes the controller state.
type Client struct {
	pub        Publisher
	apiTopic   string
	stateTopic string
	disconnect func()
}

var _ types.PresetApplier = (*Client)(nil)

// New creates a client publishing through pub
func New(pub Publisher, cfg config.MQTTConfig) *Client {
	return &Client{
		pub:        pub,
		apiTopic:   cfg.APITopic,
		stateTopic: cfg.StateTopic,
	}
}

// Dial connects to the configured broker. The paho client reconnects on its own
// afterwards.
func Dial(cfg config.MQTTConfig) (*Client, error) {
	if cfg.Broker == "" {
		return nil, errors.New("no mqtt broker configured")
	}

	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(5 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", cfg.Broker).Msg("MQTT connection lost")
	})
	if cfg.StateTopic != "" {
		opts.SetWill(cfg.StateTopic, "offline", qos, true)
	}

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connect to %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Broker, err)
	}
	log.Info().Str("broker", cfg.Broker).Str("topic", cfg.APITopic).Msg("Connected to MQTT broker")

	client := New(c, cfg)
	client.disconnect = func() { c.Disconnect(250) }
	return client, nil
}

// ApplyPreset publishes {"ps":id} to the API topic. Failures are only logged.
func (c *Client) ApplyPreset(id int) {
	payload, _ := json.Marshal(apiMessage{Preset: id})
	c.publish(c.apiTopic, false, payload)
}

// PublishState publishes the state name to the retained state topic, if one is
// configured.
func (c *Client) PublishState(state types.OperatingState) {
	if c.stateTopic == "" {
		return
	}
	c.publish(c.stateTopic, true, []byte(state.String()))
}

// Close disconnects from the broker
func (c *Client) Close() {
	if c.disconnect != nil {
		c.disconnect()
	}
}

func (c *Client) publish(topic string, retained bool, payload []byte) {
	token := c.pub.Publish(topic, qos, retained, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			log.Warn().Str("topic", topic).Msg("MQTT publish timed out")
			return
		}
		if err := token.Error(); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

// Package mqtt mirrors entity state to an MQTT broker and applies commands
// received from it.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/fpga-matrixpanel/internal/config"
	"github.com/coreman2200/fpga-matrixpanel/internal/entity"
)

var errBadTopic = errors.New("unrecognised topic")

// Publisher sends one message.
type Publisher interface {
	Publish(topic string, retained bool, payload []byte) error
}

// Bridge connects a registry to a topic tree:
//
//	<prefix>/<kind>/<id>/state  retained state
//	<prefix>/<kind>/<id>/set    commands
type Bridge struct {
	cfg     config.MQTT
	reg     *entity.Registry
	pub     Publisher
	client  paho.Client
	dropped atomic.Uint64
	logger  zerolog.Logger
}

// New builds a bridge that publishes through pub. Use Connect to publish
// through a broker instead.
func New(cfg config.MQTT, reg *entity.Registry, pub Publisher) *Bridge {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = config.DefaultTopicPrefix
	}
	if cfg.ClientID == "" {
		cfg.ClientID = ClientID()
	}
	b := &Bridge{
		cfg:    cfg,
		reg:    reg,
		pub:    pub,
		logger: log.With().Str("component", "mqtt").Str("client_id", cfg.ClientID).Logger(),
	}
	reg.Subscribe(b.PublishState)
	return b
}

// ClientID is "matrixd-" followed by eight random hex digits.
func ClientID() string {
	return "matrixd-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func brokerURL(b string) string {
	if strings.Contains(b, "://") {
		return b
	}
	return "tcp://" + b
}

// Connect dials the broker, subscribes to command topics and publishes
// every current state. It reconnects on its own afterwards.
func (b *Bridge) Connect(ctx context.Context) error {
	opts := paho.NewClientOptions()
	opts.AddBroker(brokerURL(b.cfg.Broker))
	opts.SetClientID(b.cfg.ClientID)
	opts.SetUsername(b.cfg.Username)
	opts.SetPassword(b.cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	// Handlers publish state and wait on the token.
	opts.SetOrderMatters(false)
	opts.OnConnect = func(c paho.Client) {
		b.logger.Info().Str("broker", b.cfg.Broker).Msg("mqtt connected")
		tok := c.Subscribe(b.cfg.TopicPrefix+"/+/+/set", 1, func(_ paho.Client, m paho.Message) {
			if err := b.Handle(m.Topic(), m.Payload()); err != nil {
				b.dropped.Add(1)
				b.logger.Warn().Err(err).Str("topic", m.Topic()).Msg("dropped command")
			}
		})
		go func() {
			if tok.WaitTimeout(5*time.Second) && tok.Error() != nil {
				b.logger.Error().Err(tok.Error()).Msg("subscribe")
			}
			b.PublishAll()
		}()
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		b.logger.Warn().Err(err).Msg("mqtt connection lost, reconnecting")
	}

	b.client = paho.NewClient(opts)
	b.pub = clientPublisher{b.client}

	tok := b.client.Connect()
	select {
	case <-tok.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("mqtt connect %s: timeout", b.cfg.Broker)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", b.cfg.Broker, err)
	}
	return nil
}

// Close disconnects from the broker.
func (b *Bridge) Close() {
	if b.client != nil && b.client.IsConnected() {
		b.client.Disconnect(250)
	}
}

// Dropped counts commands that could not be applied.
func (b *Bridge) Dropped() uint64 { return b.dropped.Load() }

func (b *Bridge) topic(kind entity.Kind, id, leaf string) string {
	return b.cfg.TopicPrefix + "/" + string(kind) + "/" + id + "/" + leaf
}

// StateTopic is where the state of an entity is published.
func (b *Bridge) StateTopic(kind entity.Kind, id string) string { return b.topic(kind, id, "state") }

// CommandTopic is where commands for an entity are accepted.
func (b *Bridge) CommandTopic(kind entity.Kind, id string) string { return b.topic(kind, id, "set") }

type lightPayload struct {
	State      string `json:"state"`
	Brightness *int   `json:"brightness,omitempty"`
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ON":
		return true, nil
	case "OFF":
		return false, nil
	}
	return false, fmt.Errorf("invalid state %q", s)
}

// Payload encodes s the way it is published.
func Payload(s entity.State) []byte {
	switch s.Kind {
	case entity.KindLight:
		br := s.Brightness
		b, _ := json.Marshal(lightPayload{State: onOff(s.On), Brightness: &br})
		return b
	case entity.KindSwitch:
		return []byte(onOff(s.On))
	default:
		return []byte(strconv.FormatFloat(s.Value, 'f', -1, 64))
	}
}

// PublishState publishes one retained state. Failures are logged.
func (b *Bridge) PublishState(s entity.State) {
	if b.pub == nil {
		return
	}
	if err := b.pub.Publish(b.StateTopic(s.Kind, s.ID), true, Payload(s)); err != nil {
		b.logger.Warn().Err(err).Str("id", s.ID).Msg("publish state")
	}
}

func (b *Bridge) PublishAll() {
	for _, s := range b.reg.States() {
		b.PublishState(s)
	}
}

// Handle applies a command received on topic.
func (b *Bridge) Handle(topic string, payload []byte) error {
	rest, ok := strings.CutPrefix(topic, b.cfg.TopicPrefix+"/")
	if !ok {
		return errBadTopic
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[2] != "set" {
		return errBadTopic
	}
	id := parts[1]
	switch entity.Kind(parts[0]) {
	case entity.KindLight:
		l, err := b.reg.Light(id)
		if err != nil {
			return err
		}
		p, err := parseLight(payload)
		if err != nil {
			return err
		}
		on, err := parseOnOff(p.State)
		if err != nil {
			return err
		}
		br := -1
		if p.Brightness != nil {
			br = *p.Brightness
		}
		return l.Set(on, br)
	case entity.KindSwitch:
		s, err := b.reg.Switch(id)
		if err != nil {
			return err
		}
		on, err := parseOnOff(string(payload))
		if err != nil {
			return err
		}
		s.WriteState(on)
		return nil
	case entity.KindNumber:
		n, err := b.reg.Number(id)
		if err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", payload)
		}
		return n.Control(v)
	}
	return errBadTopic
}

// parseLight accepts the JSON schema or a bare ON/OFF.
func parseLight(payload []byte) (lightPayload, error) {
	var p lightPayload
	if err := json.Unmarshal(payload, &p); err == nil {
		return p, nil
	}
	if _, err := parseOnOff(string(payload)); err != nil {
		return p, err
	}
	p.State = string(payload)
	return p, nil
}

type clientPublisher struct{ c paho.Client }

func (p clientPublisher) Publish(topic string, retained bool, payload []byte) error {
	tok := p.c.Publish(topic, 1, retained, payload)
	if !tok.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	return tok.Error()
}

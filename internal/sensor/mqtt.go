package sensor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTOptions configures an MQTT source.
type MQTTOptions struct {
	BrokerURL string
	ClientID  string
	Topic     string
	QoS       byte
	Username  string
	Password  string
	Logger    *log.Logger
}

// MQTT is a Source fed by an MQTT subscription. Read returns the most
// recent value received; a value is reported once.
type MQTT struct {
	raw    mqtt.Client
	topic  string
	logger *log.Logger

	mu     sync.Mutex
	latest float64
	fresh  bool
}

// NewMQTT connects to the broker and subscribes to opts.Topic.
func NewMQTT(opts MQTTOptions) (*MQTT, error) {
	if opts.Topic == "" {
		return nil, fmt.Errorf("mqtt topic cannot be empty")
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[sensor] ", log.LstdFlags)
	}

	s := &MQTT{topic: opts.Topic, logger: opts.Logger}

	o := mqtt.NewClientOptions()
	o.AddBroker(opts.BrokerURL)
	o.SetClientID(opts.ClientID)
	if opts.Username != "" {
		o.SetUsername(opts.Username)
		o.SetPassword(opts.Password)
	}
	o.SetConnectRetry(true)
	o.SetConnectRetryInterval(2 * time.Second)
	// Resubscribe after reconnects.
	o.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.Subscribe(opts.Topic, opts.QoS, s.handle)
		if token.Wait() && token.Error() != nil {
			s.logger.Printf("Subscribe to %s failed: %v", opts.Topic, token.Error())
		}
	})

	s.raw = mqtt.NewClient(o)
	token := s.raw.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", opts.BrokerURL, token.Error())
	}

	s.logger.Printf("Subscribed to %s on %s", opts.Topic, opts.BrokerURL)
	return s, nil
}

func (s *MQTT) handle(_ mqtt.Client, msg mqtt.Message) {
	v, err := parsePayload(msg.Payload())
	if err != nil {
		s.logger.Printf("Ignoring payload on %s: %v", msg.Topic(), err)
		return
	}
	s.set(v)
}

func (s *MQTT) set(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = v
	s.fresh = true
}

// Read implements Source. It returns ErrNoData when nothing new arrived
// since the previous Read.
func (s *MQTT) Read(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fresh {
		return 0, ErrNoData
	}
	s.fresh = false
	return s.latest, nil
}

// Close disconnects from the broker.
func (s *MQTT) Close() {
	if s.raw != nil {
		s.raw.Disconnect(250)
	}
}

// parsePayload accepts a bare number ("1013.2") or a JSON object with a
// numeric value field ({"value": 1013.2}).
func parsePayload(payload []byte) (float64, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return 0, fmt.Errorf("empty payload")
	}

	var v float64
	if payload[0] == '{' {
		var p struct {
			Value *float64 `json:"value"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return 0, fmt.Errorf("invalid JSON: %w", err)
		}
		if p.Value == nil {
			return 0, fmt.Errorf("missing value field")
		}
		v = *p.Value
	} else {
		f, err := strconv.ParseFloat(string(payload), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %w", err)
		}
		v = f
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value")
	}
	return v, nil
}

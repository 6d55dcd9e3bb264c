// Package mqtt connects the dispatch engine to an MQTT broker: outbound
// decision notifications and inbound load requests.
package mqtt

import (
	"context"
	"encoding/json"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/mobiis/cargodispatch/core/bus"
	"github.com/mobiis/cargodispatch/core/model"
	"github.com/mobiis/cargodispatch/infra/logger"
)

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// PahoBus publishes dispatch decisions over MQTT using Eclipse Paho.
type PahoBus struct {
	cli        pahoClient
	qos        map[string]byte
	maxRetries int
	backoff    time.Duration
	logger     logger.Logger
}

var _ bus.NotificationBus = (*PahoBus)(nil)

// NewPahoBus connects to the MQTT broker.
func NewPahoBus(cfg Config) (*PahoBus, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_bus")
	opts.OnConnect = func(_ paho.Client) {
		log.Infof("MQTT connected")
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pb := &PahoBus{
		cli:        c,
		qos:        cfg.QoS,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		logger:     log,
	}
	if pb.maxRetries <= 0 {
		pb.maxRetries = 3
	}
	if pb.backoff <= 0 {
		pb.backoff = 100 * time.Millisecond
	}
	return pb, nil
}

// Publish sends the decision as a JSON payload to the given topic. The
// context bounds the whole operation including retries.
func (p *PahoBus) Publish(ctx context.Context, topic string, decision model.DispatchDecision) error {
	payload, err := json.Marshal(decision)
	if err != nil {
		return err
	}
	qos := byte(1)
	if q, ok := p.qos["decision"]; ok {
		qos = q
	}
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, qos, false, payload)
		select {
		case <-token.Done():
			publishErr = token.Error()
		case <-ctx.Done():
			return ctx.Err()
		}
		if publishErr == nil {
			p.logger.Infof("published decision %s to %s", decision.ExecutionID, topic)
			return nil
		}
		p.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		select {
		case <-time.After(p.backoff * time.Duration(1<<attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return publishErr
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoBus) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}

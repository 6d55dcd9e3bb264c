package mqtt

import (
	"encoding/json"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/mobiis/cargodispatch/core/model"
	"github.com/mobiis/cargodispatch/infra/logger"
)

// LoadSource subscribes to the inbound load-request topic and feeds parsed
// requests to a channel consumed by the dispatch pipeline.
type LoadSource struct {
	cli    pahoClient
	topic  string
	out    chan model.LoadRequest
	logger logger.Logger
}

// NewLoadSource connects to the broker and subscribes to cfg.LoadTopic.
// buffer bounds the number of pending requests; when the pipeline falls
// behind, additional requests are dropped and logged.
func NewLoadSource(cfg Config, buffer int) (*LoadSource, error) {
	if buffer <= 0 {
		buffer = 64
	}
	log := logger.New("mqtt_load_source")
	topic := cfg.LoadTopic
	if topic == "" {
		topic = "loads/requests"
	}
	s := &LoadSource{
		topic:  topic,
		out:    make(chan model.LoadRequest, buffer),
		logger: log,
	}

	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	qos := byte(1)
	if q, ok := cfg.QoS["load"]; ok {
		qos = q
	}
	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected, subscribing to %s", s.topic)
		if token := c.Subscribe(s.topic, qos, s.onLoad); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	s.cli = c
	return s, nil
}

func (s *LoadSource) onLoad(_ paho.Client, msg paho.Message) {
	var req model.LoadRequest
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		s.logger.Errorf("failed to decode load request: %v", err)
		return
	}
	if err := req.Validate(); err != nil {
		s.logger.Warnf("rejecting malformed load request: %v", err)
		return
	}
	select {
	case s.out <- req:
	default:
		s.logger.Errorf("load buffer full, dropping request %s", req.ID)
	}
}

// Loads returns the channel of inbound load requests.
func (s *LoadSource) Loads() <-chan model.LoadRequest { return s.out }

// Disconnect closes the subscription and the request channel.
func (s *LoadSource) Disconnect() {
	if s.cli != nil && s.cli.IsConnected() {
		s.cli.Disconnect(250)
	}
	close(s.out)
}

package mqttapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"hemrs/app/src/domain"
	"hemrs/app/src/infra"
)

const (
	connectTimeout    = 10 * time.Second
	disconnectQuiesce = 250

	resultAccepted = "accepted"
	resultInvalid  = "invalid"
	resultRejected = "rejected"
)

// Enqueuer is the asynchronous ingest path. MQTT never persists synchronously.
type Enqueuer interface {
	Enqueue(ctx context.Context, req domain.IngestRequest) (domain.Admission, error)
}

// Config holds broker connection settings.
type Config struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// ConfigFrom extracts the MQTT settings from the application config.
func ConfigFrom(cfg infra.Config) Config {
	return Config{
		Broker:   cfg.MQTTBroker,
		Topic:    cfg.MQTTTopic,
		ClientID: cfg.MQTTClientID,
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
		QoS:      byte(cfg.MQTTQoS),
	}
}

// Subscriber feeds measurements published on an MQTT topic into the
// ingestion queue.
type Subscriber struct {
	cfg         Config
	queue       Enqueuer
	logger      *infra.Logger
	connectWait time.Duration
}

// NewSubscriber creates a subscriber. Nothing connects until Run.
func NewSubscriber(cfg Config, queue Enqueuer, logger *infra.Logger) *Subscriber {
	return &Subscriber{
		cfg:         cfg,
		queue:       queue,
		logger:      logger,
		connectWait: connectTimeout,
	}
}

// Run connects, subscribes and blocks until ctx is done. An unreachable broker
// is not fatal: paho keeps retrying in the background and the connect handler
// subscribes once a session is up, and again after every reconnect.
func (s *Subscriber) Run(ctx context.Context) error {
	if s.cfg.Broker == "" {
		return errors.New("mqtt: broker is not configured")
	}

	client := pahomqtt.NewClient(s.clientOptions(ctx))
	defer s.disconnect(ctx, client)

	token := client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt: connect to %s: %w", s.cfg.Broker, err)
		}
		s.logger.Printf(ctx, "MQTT subscriber connected to %s, topic %s", s.cfg.Broker, s.cfg.Topic)
	case <-time.After(s.connectWait):
		s.logger.Warnf(ctx, "MQTT broker %s not reachable after %v, retrying in background", s.cfg.Broker, s.connectWait)
	case <-ctx.Done():
	}

	<-ctx.Done()
	return nil
}

func (s *Subscriber) disconnect(ctx context.Context, client pahomqtt.Client) {
	if client.IsConnected() {
		client.Unsubscribe(s.cfg.Topic).WaitTimeout(time.Second)
	}
	client.Disconnect(disconnectQuiesce)
	s.logger.Println(ctx, "MQTT subscriber stopped")
}

func (s *Subscriber) clientOptions(ctx context.Context) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetMaxReconnectInterval(time.Minute).
		SetConnectTimeout(connectTimeout)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}

	opts.SetOnConnectHandler(func(client pahomqtt.Client) {
		token := client.Subscribe(s.cfg.Topic, s.cfg.QoS, func(_ pahomqtt.Client, msg pahomqtt.Message) {
			_ = s.HandleMessage(ctx, msg.Payload())
		})
		if token.WaitTimeout(connectTimeout) && token.Error() != nil {
			s.logger.Warnf(ctx, "MQTT subscribe to %s failed: %v", s.cfg.Topic, token.Error())
		}
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		s.logger.Warnf(ctx, "MQTT connection lost: %v", err)
	})
	return opts
}

// HandleMessage decodes one payload (an object or an array of objects) and
// enqueues it. Failures are logged and counted, never retried.
func (s *Subscriber) HandleMessage(ctx context.Context, payload []byte) error {
	var req domain.IngestRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		infra.IncMQTTMessage(resultInvalid)
		s.logger.Warnf(ctx, "MQTT payload rejected: %v", err)
		if !errors.Is(err, domain.ErrInvalidInput) {
			err = fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		return err
	}

	admission, err := s.queue.Enqueue(ctx, req)
	if err != nil {
		result := resultRejected
		if errors.Is(err, domain.ErrInvalidInput) {
			result = resultInvalid
		}
		infra.IncMQTTMessage(result)
		s.logger.Warnf(ctx, "MQTT message not enqueued (%d of %d accepted): %v", admission.Accepted, len(req.Items), err)
		return err
	}

	infra.IncMQTTMessage(resultAccepted)
	return nil
}

package emitter

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chenBenjamin97/rink-minimap/pkg/entity"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	//Prefix of the topics, frames go to <prefix>/<video id>/frames
	Prefix string
	QoS    byte
}

//MQTT publishes frames to a broker. Publishing failures are counted and returned, the connection reconnects on its own.
type MQTT struct {
	cfg    MQTTConfig
	client mqtt.Client
	log    logrus.FieldLogger

	published atomic.Uint64
	errors    atomic.Uint64
}

//Connect establishes the connection to the broker
func Connect(ctx context.Context, cfg MQTTConfig, log logrus.FieldLogger) (*MQTT, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		log.WithField("broker", cfg.Broker).Info("MQTT connection established")
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		log.WithFields(logrus.Fields{
			"broker": cfg.Broker,
			"error":  err.Error(),
		}).Warn("MQTT connection lost, will auto-reconnect")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
	case <-time.After(5 * time.Second):
		return nil, fmt.Errorf("mqtt connection timeout")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}

	return NewMQTT(client, cfg, log), nil
}

func NewMQTT(client mqtt.Client, cfg MQTTConfig, log logrus.FieldLogger) *MQTT {
	return &MQTT{cfg: cfg, client: client, log: log}
}

func (e *MQTT) Topic(videoID int64) string {
	return fmt.Sprintf("%s/%d/frames", e.cfg.Prefix, videoID)
}

func (e *MQTT) Emit(ctx context.Context, videoID int64, frame entity.FrameData) error {
	payload, err := Encode(videoID, frame)
	if err != nil {
		e.errors.Add(1)
		return fmt.Errorf("failed to encode frame %d: %w", frame.FrameID, err)
	}

	token := e.client.Publish(e.Topic(videoID), e.cfg.QoS, false, payload)
	select {
	case <-token.Done():
	case <-time.After(2 * time.Second):
		e.errors.Add(1)
		return fmt.Errorf("publish timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		e.errors.Add(1)
		return fmt.Errorf("publish failed: %w", err)
	}
	e.published.Add(1)
	return nil
}

//Stats returns how many frames were published and how many failed
func (e *MQTT) Stats() (published, failed uint64) {
	return e.published.Load(), e.errors.Load()
}

func (e *MQTT) Close() error {
	if e.client.IsConnected() {
		e.client.Disconnect(250)
		e.log.Info("MQTT disconnected")
	}
	return nil
}

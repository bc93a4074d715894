package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/shenikar/sos_broadcasting_system/internal/config"
	"github.com/shenikar/sos_broadcasting_system/internal/models"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	// QoS 1: показание может прийти повторно, публикация идемпотентна
	messQoS = byte(1)
)

// CrowdPublisher принимает показания загруженности столовой
type CrowdPublisher interface {
	PublishMessCrowd(ctx context.Context, level *int, waitTime string) (*models.MessCrowdUpdate, error)
}

// crowdReading - полезная нагрузка датчика
type crowdReading struct {
	Level    *int   `json:"level"`
	WaitTime string `json:"wait_time"`
}

// MQTTConsumer читает показания датчиков из брокера и публикует их в канал mess-crowd
type MQTTConsumer struct {
	client mqtt.Client
	topic  string
	feeds  CrowdPublisher
	logger *logrus.Logger
}

func NewMQTTConsumer(cfg *config.Config, feeds CrowdPublisher, logger *logrus.Logger) *MQTTConsumer {
	c := &MQTTConsumer{
		topic:  cfg.MQTTMessTopic,
		feeds:  feeds,
		logger: logger,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTBrokerURL)
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(true)
	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
		opts.SetPassword(cfg.MQTTPassword)
	}

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.log().WithError(err).Warn("MQTT connection lost")
	})
	// Подписка теряется после переподключения с чистой сессией
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		c.log().Info("MQTT connected")
		if err := c.subscribe(client); err != nil {
			c.log().WithError(err).Error("Failed to subscribe to mess topic")
		}
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		c.log().Info("MQTT reconnecting")
	})

	c.client = mqtt.NewClient(opts)
	return c
}

// Start подключается к брокеру. Дальнейшие переподключения выполняет клиент.
func (c *MQTTConsumer) Start() error {
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("telemetry: mqtt connect timed out after %s", connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("telemetry: mqtt connect: %w", err)
	}
	return nil
}

func (c *MQTTConsumer) Stop() {
	if c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}

func (c *MQTTConsumer) subscribe(client mqtt.Client) error {
	token := client.Subscribe(c.topic, messQoS, c.handleMessage)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("telemetry: subscribe %q: %w", c.topic, token.Error())
	}
	c.log().Info("Subscribed to mess topic")
	return nil
}

func (c *MQTTConsumer) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	log := c.log().WithField("message_id", msg.MessageID())

	var reading crowdReading
	if err := json.Unmarshal(msg.Payload(), &reading); err != nil {
		log.WithError(err).Warn("Malformed crowd reading, dropping")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	update, err := c.feeds.PublishMessCrowd(ctx, reading.Level, reading.WaitTime)
	if err != nil {
		log.WithError(err).Warn("Failed to publish crowd reading")
		return
	}
	log.WithFields(logrus.Fields{
		"level":  update.Level,
		"status": update.Status,
	}).Debug("Crowd reading published")
}

func (c *MQTTConsumer) log() *logrus.Entry {
	return c.logger.WithFields(logrus.Fields{
		"component": "telemetry",
		"topic":     c.topic,
	})
}

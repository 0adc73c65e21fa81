package broker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"tollgrid/internal/config"
	"tollgrid/internal/logger"
	"tollgrid/pkg/errors"
	"tollgrid/pkg/retry"
)

const defaultOpTimeout = 5 * time.Second

type subscription struct {
	filter  string
	handler HandlerFunc
}

type MQTTClient struct {
	cfg    config.MQTTConfig
	client mqtt.Client
	logger logger.Logger

	mu   sync.Mutex
	subs []subscription
}

func NewMQTTClient(cfg config.MQTTConfig, serviceName string, log logger.Logger) (*MQTTClient, error) {
	c := &MQTTClient{
		cfg:    cfg,
		logger: log,
	}

	scheme := "tcp"
	var tlsConfig *tls.Config
	if cfg.TLSEnabled {
		scheme = "ssl"
		var err error
		tlsConfig, err = tlsConfigFromCA(cfg.CACertPath)
		if err != nil {
			return nil, err
		}
	}

	prefix := cfg.ClientIDPrefix
	if prefix == "" {
		prefix = serviceName
	}

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port)).
		SetClientID(fmt.Sprintf("%s-%s", prefix, uuid.New().String())).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(orDefault(cfg.ConnectTimeout, 10*time.Second)).
		SetKeepAlive(orDefault(cfg.KeepAlive, 20*time.Second))

	if tlsConfig != nil {
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.logger.Warnw("MQTT connection lost", "error", err)
	})

	// Clean sessions do not survive a reconnect, so subscriptions are
	// replayed every time the connection comes back.
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		c.mu.Lock()
		subs := make([]subscription, len(c.subs))
		copy(subs, c.subs)
		c.mu.Unlock()

		for _, sub := range subs {
			if err := c.subscribe(client, sub); err != nil {
				c.logger.Errorw("MQTT resubscribe failed", "filter", sub.filter, "error", err)
			}
		}
	})

	c.client = mqtt.NewClient(opts)
	return c, nil
}

func (c *MQTTClient) Connect(ctx context.Context) error {
	token := c.client.Connect()
	if !token.WaitTimeout(orDefault(c.cfg.ConnectTimeout, 10*time.Second)) {
		return fmt.Errorf("mqtt connect timed out")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect failed: %w", err)
	}
	c.logger.Infow("MQTT connected", "host", c.cfg.Host, "port", c.cfg.Port, "tls", c.cfg.TLSEnabled)
	return nil
}

func (c *MQTTClient) Publish(ctx context.Context, topic string, payload []byte) error {
	policy := retry.Policy{
		MaxAttempts:     3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2.0,
	}

	err := retry.Retry(ctx, policy, func() error {
		token := c.client.Publish(topic, 1, false, payload)
		if !token.WaitTimeout(orDefault(c.cfg.PublishTimeout, defaultOpTimeout)) {
			return fmt.Errorf("publish timed out")
		}
		return token.Error()
	})
	if err != nil {
		return fmt.Errorf("mqtt publish to %s failed: %w", topic, err)
	}
	return nil
}

func (c *MQTTClient) Subscribe(filter string, handler HandlerFunc) error {
	sub := subscription{filter: filter, handler: handler}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()

	return c.subscribe(c.client, sub)
}

func (c *MQTTClient) subscribe(client mqtt.Client, sub subscription) error {
	token := client.Subscribe(sub.filter, 1, func(_ mqtt.Client, msg mqtt.Message) {
		ctx := context.Background()
		defer func() {
			if r := recover(); r != nil {
				c.logger.Errorw("Panic in message handler",
					"topic", msg.Topic(),
					"error", errors.RecoverPanic(r),
				)
			}
		}()
		if err := sub.handler(ctx, msg.Topic(), msg.Payload()); err != nil {
			c.logger.Warnw("Message handler error, message dropped",
				"topic", msg.Topic(),
				"error", err,
			)
		}
	})

	if !token.WaitTimeout(orDefault(c.cfg.SubscribeTimeout, defaultOpTimeout)) {
		return fmt.Errorf("mqtt subscribe to %s timed out", sub.filter)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe to %s failed: %w", sub.filter, err)
	}
	return nil
}

func (c *MQTTClient) Connected() bool {
	return c.client.IsConnectionOpen()
}

func (c *MQTTClient) Close() error {
	c.client.Disconnect(250)
	return nil
}

func tlsConfigFromCA(caPath string) (*tls.Config, error) {
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate %s: %w", caPath, err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates parsed from %s", caPath)
	}

	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

// Package ingest subscribes to device readings published over MQTT.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	authdomain "github.com/smallbiznis/plantcare/internal/auth/domain"
	"github.com/smallbiznis/plantcare/internal/config"
	"github.com/smallbiznis/plantcare/internal/liveevents"
	obscontext "github.com/smallbiznis/plantcare/internal/observability/context"
	"github.com/smallbiznis/plantcare/internal/ratelimit"
	readingdomain "github.com/smallbiznis/plantcare/internal/reading/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("ingest.mqtt",
	fx.Provide(NewHandler),
	fx.Invoke(Run),
)

const (
	qos             = 1
	connectTimeout  = 10 * time.Second
	handleTimeout   = 5 * time.Second
	disconnectQuiet = 250
)

var (
	ErrInvalidTopic   = errors.New("invalid_topic")
	ErrInvalidPayload = errors.New("invalid_payload")
	ErrUnknownSubject = errors.New("unknown_subject")
	ErrRateLimited    = errors.New("rate_limited")
)

type HandlerParams struct {
	fx.In

	Log      *zap.Logger
	Readings readingdomain.Service
	Users    authdomain.Service
	Limiter  *ratelimit.ReadingsLimiter `optional:"true"`
}

// Handler turns one MQTT message into a stored reading.
type Handler struct {
	log      *zap.Logger
	readings readingdomain.Service
	users    authdomain.Service
	limiter  *ratelimit.ReadingsLimiter
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		log:      p.Log.Named("ingest.mqtt"),
		readings: p.Readings,
		users:    p.Users,
		limiter:  p.Limiter,
	}
}

// Handle stores the payload for the subject named by the topic's last segment.
func (h *Handler) Handle(ctx context.Context, topic string, payload []byte) (*readingdomain.Reading, error) {
	subject, err := subjectFromTopic(topic)
	if err != nil {
		return nil, err
	}

	var req readingdomain.AddRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, ErrInvalidPayload
	}
	if strings.TrimSpace(req.SensorType) == "" {
		req.SensorType = readingdomain.SensorTypeMQTT
	}
	req.Source = liveevents.SourceMQTT

	if _, err := h.users.Get(ctx, subject); err != nil {
		if errors.Is(err, authdomain.ErrUserNotFound) {
			return nil, ErrUnknownSubject
		}
		return nil, err
	}

	if h.limiter.Enabled() {
		res, err := h.limiter.AllowSubject(ctx, subject)
		if err != nil {
			return nil, err
		}
		if !res.Allowed {
			return nil, ErrRateLimited
		}
	}

	return h.readings.Add(ctx, subject, req)
}

// onMessage is the paho callback; failures are logged and the message dropped.
func (h *Handler) onMessage(_ mqtt.Client, msg mqtt.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()
	ctx = obscontext.WithActor(ctx, obscontext.ActorDevice, msg.Topic())

	reading, err := h.Handle(ctx, msg.Topic(), msg.Payload())
	if err != nil {
		h.log.Warn("mqtt reading dropped",
			zap.String("topic", msg.Topic()),
			zap.Int("payload_bytes", len(msg.Payload())),
			zap.Error(err),
		)
		return
	}
	h.log.Debug("mqtt reading stored",
		zap.String("topic", msg.Topic()),
		zap.Int64("reading_id", reading.ID),
	)
}

func subjectFromTopic(topic string) (snowflake.ID, error) {
	topic = strings.TrimRight(strings.TrimSpace(topic), "/")
	idx := strings.LastIndex(topic, "/")
	if idx < 0 || idx == len(topic)-1 {
		return 0, ErrInvalidTopic
	}
	id, err := snowflake.ParseString(topic[idx+1:])
	if err != nil || id <= 0 {
		return 0, ErrInvalidTopic
	}
	return id, nil
}

// Run connects to MQTT_BROKER_URL and subscribes for the app lifetime. Without a
// broker URL the subscriber stays off.
func Run(lc fx.Lifecycle, cfg config.Config, handler *Handler, log *zap.Logger) {
	log = log.Named("ingest.mqtt")
	if cfg.MQTT.BrokerURL == "" {
		log.Info("mqtt ingest disabled, MQTT_BROKER_URL not set")
		return
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTT.BrokerURL).
		SetClientID(cfg.MQTT.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(connectTimeout).
		SetOrderMatters(false)
	if cfg.MQTT.Username != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	topic := cfg.MQTT.Topic
	// Resubscribe on every (re)connect; the session is not persisted.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.Subscribe(topic, qos, handler.onMessage)
		switch state, err := awaitSubscribe(token, connectTimeout); state {
		case subscribeFailed:
			log.Error("mqtt subscribe failed", zap.String("topic", topic), zap.Error(err))
		case subscribePending:
			log.Warn("mqtt subscribe pending, no SUBACK yet", zap.String("topic", topic))
		default:
			log.Info("mqtt subscribed", zap.String("topic", topic))
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			token := client.Connect()
			if !token.WaitTimeout(connectTimeout) {
				log.Warn("mqtt connect still pending, retrying in background", zap.String("broker", cfg.MQTT.BrokerURL))
				return nil
			}
			if err := token.Error(); err != nil {
				log.Warn("mqtt connect failed, retrying in background", zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			client.Disconnect(disconnectQuiet)
			return nil
		},
	})
}

const (
	subscribeAcked   = "acked"
	subscribePending = "pending"
	subscribeFailed  = "failed"
)

// awaitSubscribe waits up to timeout for the broker's SUBACK.
func awaitSubscribe(token mqtt.Token, timeout time.Duration) (string, error) {
	if !token.WaitTimeout(timeout) {
		return subscribePending, nil
	}
	if err := token.Error(); err != nil {
		return subscribeFailed, err
	}
	return subscribeAcked, nil
}

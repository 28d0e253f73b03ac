package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/ride-pool/internal/config"
	"github.com/example/ride-pool/internal/dispatch"
	"github.com/example/ride-pool/internal/events"
	"github.com/example/ride-pool/internal/logging"
)

var (
	eventsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_pool",
		Name:      "consumer_events_consumed_total",
		Help:      "Total ride events consumed",
	})
	eventsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_pool",
		Name:      "consumer_events_invalid_total",
		Help:      "Total ride events that could not be decoded",
	})
	deliveries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_pool",
		Name:      "consumer_deliveries_total",
		Help:      "Total realtime messages published to recipients",
	})
	deliveryErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_pool",
		Name:      "consumer_delivery_errors_total",
		Help:      "Total recipients whose delivery failed after retries",
	})
)

func init() {
	prometheus.MustRegister(eventsConsumed, eventsInvalid, deliveries, deliveryErrors)
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConsumerConfig()
	logger := logging.NewLogger("ride-pool-consumer", cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	// publish-only: the API processes hold the websocket sessions
	hub := dispatch.NewRedisHub(rc, cfg.RedisChannelPrefix, nil, logger)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := rc.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic, GroupID: cfg.KafkaGroup, MinBytes: 1, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
	}()

	logger.Info("consumer listening", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers, "group", cfg.KafkaGroup)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Warn("kafka read error", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second
		eventsConsumed.Inc()

		ev, err := events.Decode(m.Value)
		if err != nil {
			eventsInvalid.Inc()
			logger.Warn("invalid ride event", "offset", m.Offset, "error", err)
			continue
		}

		sent, err := fanOut(ctx, hub, ev, 3, 200*time.Millisecond)
		deliveries.Add(float64(sent))
		if err != nil {
			logger.Error("ride event delivery incomplete", "ride_id", ev.RideID, "type", ev.Type, "error", err)
		}
	}
}

// RealtimePublisher is the part of the realtime hub the consumer needs.
type RealtimePublisher interface {
	Publish(ctx context.Context, userID string, msg dispatch.Message) error
}

// fanOut publishes ev to every recipient and returns how many succeeded.
// A failing recipient does not stop delivery to the rest.
func fanOut(ctx context.Context, pub RealtimePublisher, ev events.RideEvent, attempts int, delay time.Duration) (int, error) {
	msg, err := dispatch.NewMessage(dispatch.KindRideEvent, ev)
	if err != nil {
		return 0, err
	}
	sent := 0
	var errs []error
	for _, userID := range ev.Recipients {
		if err := publishWithRetry(ctx, pub, userID, msg, attempts, delay); err != nil {
			deliveryErrors.Inc()
			errs = append(errs, fmt.Errorf("recipient %s: %w", userID, err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// publishWithRetry retries with doubling delay, giving up early when ctx ends.
func publishWithRetry(ctx context.Context, pub RealtimePublisher, userID string, msg dispatch.Message, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = pub.Publish(ctx, userID, msg); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

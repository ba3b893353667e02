package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/aravind-gm/oranew/kafka"
	"github.com/aravind-gm/oranew/models"
	awspkg "github.com/aravind-gm/oranew/pkg/aws"
	"github.com/aravind-gm/oranew/pkg/resilience"
)

// Notifier delivers order events to whoever sends customer notifications.
type Notifier interface {
	Notify(ctx context.Context, event models.OrderEvent) error
}

// SNSNotifier publishes order events to an SNS topic.
type SNSNotifier struct {
	publisher awspkg.SNSPublisher
	topicArn  string
}

func NewSNSNotifier(publisher awspkg.SNSPublisher, topicArn string) *SNSNotifier {
	return &SNSNotifier{publisher: publisher, topicArn: topicArn}
}

func (n *SNSNotifier) Notify(ctx context.Context, event models.OrderEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	return n.publisher.Publish(ctx, n.topicArn, body, map[string]string{"eventType": event.Type})
}

// KafkaNotifier writes order events keyed by order id.
type KafkaNotifier struct {
	producer kafka.ProducerAPI
}

func NewKafkaNotifier(producer kafka.ProducerAPI) *KafkaNotifier {
	return &KafkaNotifier{producer: producer}
}

func (n *KafkaNotifier) Notify(ctx context.Context, event models.OrderEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	return n.producer.Publish(ctx, event.OrderID.String(), body)
}

// HTTPNotifier posts order events to the notification service.
type HTTPNotifier struct {
	client *resty.Client
	url    string
}

func NewHTTPNotifier(baseURL string, timeout time.Duration) *HTTPNotifier {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &HTTPNotifier{client: client, url: "/api/notifications/order-events"}
}

func (n *HTTPNotifier) Notify(ctx context.Context, event models.OrderEvent) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(event).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("notification request: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("notification service returned %d: %s", resp.StatusCode(), string(resp.Body()))
	}
	return nil
}

// BreakerNotifier skips delivery while the wrapped notifier keeps failing.
type BreakerNotifier struct {
	next Notifier
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerNotifier(next Notifier, logger *zap.Logger) *BreakerNotifier {
	return &BreakerNotifier{next: next, cb: resilience.NewBreaker("order-notifier", logger)}
}

func (n *BreakerNotifier) Notify(ctx context.Context, event models.OrderEvent) error {
	_, err := resilience.ExecuteWithBreaker(n.cb, func() (struct{}, error) {
		return struct{}{}, n.next.Notify(ctx, event)
	})
	return err
}

type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, models.OrderEvent) error { return nil }

// EventDispatcher sends notifications off the request path. Each delivery
// gets its own timeout and failures are only logged.
type EventDispatcher struct {
	notifier Notifier
	timeout  time.Duration
	logger   *zap.Logger
	wg       sync.WaitGroup
}

func NewEventDispatcher(notifier Notifier, timeout time.Duration, logger *zap.Logger) *EventDispatcher {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &EventDispatcher{notifier: notifier, timeout: timeout, logger: logger}
}

func (d *EventDispatcher) Dispatch(event models.OrderEvent) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.notifier.Notify(ctx, event); err != nil {
			d.logger.Warn("order notification failed",
				zap.String("type", event.Type),
				zap.String("order_id", event.OrderID.String()),
				zap.Error(err),
			)
			return
		}
		d.logger.Debug("order notification sent",
			zap.String("type", event.Type),
			zap.String("order_id", event.OrderID.String()),
		)
	}()
}

// Wait blocks until every dispatched notification has finished.
func (d *EventDispatcher) Wait() {
	d.wg.Wait()
}

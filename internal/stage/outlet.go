package stage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"filterchain/internal/broker"
	"filterchain/pkg/metrics"
	"filterchain/pkg/models"
)

const (
	routeResult = "result"
	routeNext   = "next"
)

// Outlet is handed to a Hook for one message. Every publish stamps the
// stage's filtering time on the message first.
type Outlet struct {
	stage      *Stage
	receivedAt time.Time
	route      string
}

// ToResult sets the verdict and sends the message to the result topic.
func (o *Outlet) ToResult(ctx context.Context, msg *models.FilterMessage, smpp, result, reason int32) error {
	msg.ResultInfo.SetResult(smpp, result, reason)
	return o.publish(ctx, routeResult, o.stage.result, msg)
}

// ToNext forwards the message to the next stage. A terminal stage has no
// next publisher, so the message goes to the result topic unchanged.
func (o *Outlet) ToNext(ctx context.Context, msg *models.FilterMessage) error {
	if o.stage.next == nil {
		return o.publish(ctx, routeResult, o.stage.result, msg)
	}
	return o.publish(ctx, routeNext, o.stage.next, msg)
}

// Published reports whether a publish on either route succeeded. A failed
// publish leaves it false so the stage still sends an error result.
func (o *Outlet) Published() bool {
	return o.route != ""
}

func (o *Outlet) publish(ctx context.Context, route string, pub broker.Publisher, msg *models.FilterMessage) error {
	now := o.stage.now()
	msg.ResultInfo.Record(o.stage.name, o.receivedAt, now)

	payload, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := pub.Publish(ctx, messageKey(msg), payload); err != nil {
		metrics.IncStageMessage(o.stage.name, "publish_error")
		return fmt.Errorf("publish to %s: %w", route, err)
	}
	o.route = route

	metrics.IncStageMessage(o.stage.name, route)
	metrics.ObserveStageDuration(o.stage.name, route, now.Sub(o.receivedAt))
	return nil
}

func messageKey(msg *models.FilterMessage) string {
	if msg.MessageInfo.MessageID != "" {
		return msg.MessageInfo.MessageID
	}
	return uuid.NewString()
}

package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/cuongbtq/openclerk/shared/logger"
	"github.com/cuongbtq/openclerk/shared/rabbitmq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	route rabbitmq.Route
	value any
	err   error
}

func (p *recordingPublisher) PublishJSON(_ context.Context, route rabbitmq.Route, v any) error {
	p.route = route
	p.value = v
	return p.err
}

func TestRabbitNotifier_Publishes(t *testing.T) {
	pub := &recordingPublisher{}
	route := rabbitmq.Route{Exchange: "openclerk.notifications", RoutingKey: "email.failure"}
	n := NewRabbitNotifier(pub, route, logger.NewNop().Logger)

	msg := &Notification{Template: TemplateFailure, UserID: 4, To: "a@example.com", Arguments: map[string]string{"failures": "4"}}
	require.NoError(t, n.Notify(context.Background(), msg))

	assert.Equal(t, route, pub.route)
	assert.Same(t, msg, pub.value)
}

func TestRabbitNotifier_PublishError(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("not connected")}
	n := NewRabbitNotifier(pub, rabbitmq.Route{}, logger.NewNop().Logger)

	err := n.Notify(context.Background(), &Notification{Template: TemplateFailure})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to publish notification")
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(logger.NewNop().Logger)
	assert.NoError(t, n.Notify(context.Background(), &Notification{Template: TemplateFailure}))
}

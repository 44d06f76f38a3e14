package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/types"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func newFakeToken(err error, finished bool) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if finished {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }

func (t *fakeToken) Done() <-chan struct{} { return t.done }

func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	token        paho.Token
	published    []published
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.published = append(c.published, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return c.token
}

func (c *fakeClient) Disconnect(uint) {
	c.disconnected = true
}

func TestPublisher(t *testing.T) {
	cfg := types.MQTTConfig{Broker: "tcp://localhost:1883", Topic: "solax/metrics", QoS: 1, Retained: true}

	t.Run("publishes one json message", func(t *testing.T) {
		fc := &fakeClient{token: newFakeToken(nil, true)}
		p := newPublisher(fc, cfg)

		require.NoError(t, p.PushMetrics(context.Background(), types.Metrics{"solax.acpower": types.Int(512)}))
		require.Len(t, fc.published, 1)
		msg := fc.published[0]
		assert.Equal(t, "solax/metrics", msg.topic)
		assert.Equal(t, byte(1), msg.qos)
		assert.True(t, msg.retained)

		var body map[string]map[string]float64
		require.NoError(t, json.Unmarshal(msg.payload, &body))
		assert.Equal(t, 512.0, body["metrics"]["solax.acpower"])

		p.Close()
		assert.True(t, fc.disconnected)
	})

	t.Run("broker error", func(t *testing.T) {
		fc := &fakeClient{token: newFakeToken(errors.New("not authorized"), true)}
		err := newPublisher(fc, cfg).PushMetrics(context.Background(), types.Metrics{})
		assert.ErrorContains(t, err, "not authorized")
	})

	t.Run("context canceled", func(t *testing.T) {
		fc := &fakeClient{token: newFakeToken(nil, false)}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := newPublisher(fc, cfg).PushMetrics(ctx, types.Metrics{})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("connect requires broker", func(t *testing.T) {
		_, err := Connect(context.Background(), types.MQTTConfig{})
		assert.Error(t, err)
	})
}

package wled

import (
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkcurrie/fluidnc-position-led/internal/config"
	"github.com/fkcurrie/fluidnc-position-led/internal/types"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool { return true }
func (t *fakeToken) WaitTimeout(_ time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error { return t.err }

type message struct {
	topic    string
	retained bool
	payload  string
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []message
	err  error
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, message{topic: topic, retained: retained, payload: string(payload.([]byte))})
	return newFakeToken(p.err)
}

func (p *fakePublisher) messages() []message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]message(nil), p.sent...)
}

func TestClient_ApplyPreset(t *testing.T) {
	pub := &fakePublisher{}
	c := New(pub, config.MQTTConfig{APITopic: "wled/all/api"})

	c.ApplyPreset(3)
	c.ApplyPreset(5)

	assert.Equal(t, []message{
		{topic: "wled/all/api", payload: `{"ps":3}`},
		{topic: "wled/all/api", payload: `{"ps":5}`},
	}, pub.messages())
}

func TestClient_PublishErrorsAreSwallowed(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	c := New(pub, config.MQTTConfig{APITopic: "wled/all/api"})

	assert.NotPanics(t, func() { c.ApplyPreset(1) })
	assert.Len(t, pub.messages(), 1)
}

func TestClient_PublishState(t *testing.T) {
	pub := &fakePublisher{}

	New(pub, config.MQTTConfig{APITopic: "a"}).PublishState(types.StateRun)
	assert.Empty(t, pub.messages())

	c := New(pub, config.MQTTConfig{APITopic: "a", StateTopic: "cnc/state"})
	c.PublishState(types.StateAlarm)
	require.Len(t, pub.messages(), 1)
	assert.Equal(t, message{topic: "cnc/state", retained: true, payload: "Alarm"}, pub.messages()[0])
}

func TestDial_NoBroker(t *testing.T) {
	_, err := Dial(config.MQTTConfig{})
	assert.Error(t, err)
}

func TestClient_CloseWithoutConnection(t *testing.T) {
	c := New(&fakePublisher{}, config.MQTTConfig{})
	assert.NotPanics(t, c.Close)
}

package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keyedEvent struct {
	Identity string `json:"identity"`
	NewTotal int    `json:"new_total"`
}

func (e keyedEvent) EventKey() string { return e.Identity }

func TestBuildMessageKeysByMember(t *testing.T) {
	msg, err := buildMessage("operation_applied", keyedEvent{Identity: "123", NewTotal: 70})
	require.NoError(t, err)
	assert.Equal(t, "operation_applied", msg.Topic)
	assert.Equal(t, []byte("123"), msg.Key)
	assert.JSONEq(t, `{"identity":"123","new_total":70}`, string(msg.Value))
}

func TestBuildMessageUnkeyedEvent(t *testing.T) {
	msg, err := buildMessage("audit", map[string]int{"n": 1})
	require.NoError(t, err)
	assert.Equal(t, "audit", msg.Topic)
	assert.Nil(t, msg.Key)
}

func TestBuildMessageUnmarshalableEvent(t *testing.T) {
	_, err := buildMessage("audit", func() {})
	assert.Error(t, err)
}

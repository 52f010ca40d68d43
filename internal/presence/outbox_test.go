package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxKeepsNewest(t *testing.T) {
	o := NewOutbox()
	_, ok := o.Take()
	assert.False(t, ok)
	assert.Nil(t, o.Resend())

	o.Put([]byte("one"))
	o.Put([]byte("two"))
	o.Put([]byte("three"))

	<-o.Ready()
	select {
	case <-o.Ready():
		t.Fatal("ready signals should coalesce")
	default:
	}

	data, ok := o.Take()
	require.True(t, ok)
	assert.Equal(t, "three", string(data))
	_, ok = o.Take()
	assert.False(t, ok, "taken once")
}

func TestOutboxResend(t *testing.T) {
	o := NewOutbox()
	o.Put([]byte("old"))
	o.Put([]byte("new"))

	assert.Equal(t, "new", string(o.Resend()))
	_, ok := o.Take()
	assert.False(t, ok, "resend counts as sent")

	assert.Equal(t, "new", string(o.Resend()), "still replayable")
}

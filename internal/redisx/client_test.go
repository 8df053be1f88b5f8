package redisx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewAppliesTimeouts(t *testing.T) {
	c := New("127.0.0.1:6379")
	defer c.Close()

	opt := c.Options()
	assert.Equal(t, 2*time.Second, opt.DialTimeout)
	assert.Equal(t, 2*time.Second, opt.ReadTimeout)
	assert.Equal(t, 2*time.Second, opt.WriteTimeout)
}

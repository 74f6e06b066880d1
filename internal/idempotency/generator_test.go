package idempotency

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateKey(t *testing.T) {
	g := NewGenerator()

	a := g.GenerateKey(ScopeWebhookEvent, map[string]interface{}{"provider": "stripe", "event_id": "evt_1"})
	b := g.GenerateKey(ScopeWebhookEvent, map[string]interface{}{"event_id": "evt_1", "provider": "stripe"})
	c := g.GenerateKey(ScopeWebhookEvent, map[string]interface{}{"provider": "stripe", "event_id": "evt_2"})

	assert.Equal(t, a, b, "parameter order must not matter")
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "webhook_event-")
}

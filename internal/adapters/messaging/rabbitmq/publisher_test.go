package rabbitmq

import (
	"testing"

	"patient-access/internal/domain/notifications"

	"github.com/stretchr/testify/assert"
)

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "notification.access_requested", RoutingKey(notifications.TypeAccessRequested))
	assert.Equal(t, "notification.access_revoked", RoutingKey(notifications.TypeAccessRevoked))
}

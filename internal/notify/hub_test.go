package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tranduckhuy/eduva-backend-sub005/pkg/models"
)

func statusEvent(status models.JobStatus) models.JobStatusUpdated {
	audio, video := int64(20), int64(40)
	return models.JobStatusUpdated{JobID: uuid.New(), Status: status, AudioCost: &audio, VideoCost: &video}
}

func TestEncode(t *testing.T) {
	data, err := Encode(statusEvent(models.StatusContentGenerated))
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, models.EventJobStatusUpdated, env.Event)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "ContentGenerated", payload["status"])
	assert.Equal(t, float64(20), payload["audioCost"])
	assert.Equal(t, float64(40), payload["videoCost"])
	assert.NotContains(t, payload, "failureReason")
}

func TestHubDeliversToUserOnly(t *testing.T) {
	hub := NewHub(4, zerolog.Nop())
	alice := hub.Subscribe("alice")
	aliceTab := hub.Subscribe("alice")
	bob := hub.Subscribe("bob")
	defer bob.Close()

	require.NoError(t, hub.NotifyUser(context.Background(), "alice", statusEvent(models.StatusCompleted)))

	assert.Len(t, alice.C, 1)
	assert.Len(t, aliceTab.C, 1)
	assert.Len(t, bob.C, 0)

	alice.Close()
	alice.Close()
	assert.Equal(t, 1, hub.Subscribers("alice"))
	_, open := <-alice.C
	assert.True(t, open, "buffered event is still readable")
	_, open = <-alice.C
	assert.False(t, open)

	aliceTab.Close()
	assert.Zero(t, hub.Subscribers("alice"))
}

func TestHubWithoutSubscribers(t *testing.T) {
	hub := NewHub(1, zerolog.Nop())
	assert.NoError(t, hub.NotifyUser(context.Background(), "offline", statusEvent(models.StatusFailed)))
	assert.Zero(t, hub.Deliver("offline", []byte("{}")))
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub(1, zerolog.Nop())
	drops := 0
	hub.OnDrop(func() { drops++ })
	sub := hub.Subscribe("alice")
	defer sub.Close()

	assert.Equal(t, 1, hub.Deliver("alice", []byte("first")))
	assert.Equal(t, 0, hub.Deliver("alice", []byte("second")))
	assert.Equal(t, 1, drops)
	assert.Equal(t, []byte("first"), <-sub.C)
}

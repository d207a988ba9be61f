package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func webhook(t *testing.T, status int, received *[]DiscordMessage) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg DiscordMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		*received = append(*received, msg)
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSendRunSummaryRoutesByOutcome(t *testing.T) {
	var errors, successes []DiscordMessage
	errorHook := webhook(t, http.StatusNoContent, &errors)
	successHook := webhook(t, http.StatusNoContent, &successes)
	d := NewDiscord(errorHook.URL, successHook.URL)

	require.NoError(t, d.SendRunSummary(context.Background(), "AOI a: 12 ok", "", false))
	require.NoError(t, d.SendRunSummary(context.Background(), "AOI a: 1 failed", "Failed 2024-03", true))

	require.Len(t, successes, 1)
	require.Len(t, errors, 1)
	assert.Equal(t, colorGreen, successes[0].Embeds[0].Color)
	assert.Contains(t, errors[0].Embeds[0].Description, "Failed 2024-03")
}

func TestEmptyURLDisablesNotification(t *testing.T) {
	d := NewDiscord("", "")
	assert.NoError(t, d.SendError(context.Background(), "boom"))
}

func TestUnexpectedStatusIsAnError(t *testing.T) {
	var received []DiscordMessage
	hook := webhook(t, http.StatusBadRequest, &received)
	d := NewDiscord(hook.URL, "")

	assert.Error(t, d.SendError(context.Background(), "boom"))
}

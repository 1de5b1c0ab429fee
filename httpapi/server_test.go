package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiconf/focus/auth"
	"github.com/jiconf/focus/bridge"
	"github.com/jiconf/focus/colibri"
	"github.com/jiconf/focus/conference"
	"github.com/jiconf/focus/focusiq"
	"github.com/jiconf/focus/httpapi"
	"github.com/jiconf/focus/jibri"
	"github.com/jiconf/focus/jid"
	"github.com/jiconf/focus/selector"
	"github.com/jiconf/focus/stanza"
)

type staticStrategy string

func (s staticStrategy) Select(p selector.Params) (bridge.Bridge, bool) {
	for _, b := range p.All {
		if b.JID.String() == string(s) {
			return b, true
		}
	}
	return bridge.Bridge{}, false
}

type fakeColibriSender struct{}

func (fakeColibriSender) SendColibriIQ(_ context.Context, _ string, iq stanza.ColibriConferenceIQ) (stanza.ColibriConferenceIQ, error) {
	return iq, nil
}

type fakeJibriSender struct{}

func (fakeJibriSender) SendJibriIQ(_ context.Context, _ *jid.JID, iq stanza.JibriIQ) (stanza.JibriIQ, error) {
	return iq, nil
}

func newTestServer(t *testing.T) (*httpapi.Server, *bridge.Brewery) {
	t.Helper()

	brewery := bridge.NewBrewery()
	bridgeJID, err := jid.Parse("b1@bridge.example.net")
	require.NoError(t, err)
	brewery.OnJoin(*bridgeJID, stanza.BridgeStats{Operational: true})

	collab := conference.Collaborators{
		BridgeBrewery: brewery,
		JibriBrewery:  jibri.NewBrewery(),
		Strategy:      staticStrategy("b1@bridge.example.net"),
		ColibriSender: fakeColibriSender{},
		JibriSender:   fakeJibriSender{},
		ColibriConfig: colibri.Config{NetworkTimeout: 5 * time.Second},
		Log:           zerolog.Nop(),
	}
	registry := conference.NewRegistry(collab)
	redis := conference.NewLoadRedistributor(registry, brewery)

	focusJID, err := jid.Parse("focus@auth.example.net")
	require.NoError(t, err)
	authority := auth.NewAuthority(auth.NewStore(time.Hour), "example.net", registry.Exists)
	handler := focusiq.New(authority, registry, *focusJID)

	srv := httpapi.New(handler, redis, brewery, *focusJID, 30*time.Second, zerolog.Nop())
	return srv, brewery
}

func TestHealthReportsOkWhenBridgeUsable(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Echo())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/about/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthReports503WhenNoBridgeUsable(t *testing.T) {
	srv, brewery := newTestServer(t)
	bridgeJID, err := jid.Parse("b1@bridge.example.net")
	require.NoError(t, err)
	brewery.OnJoin(*bridgeJID, stanza.BridgeStats{Operational: false})

	ts := httptest.NewServer(srv.Echo())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/about/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestConferenceRequestCreatesRoom(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Echo())
	defer ts.Close()

	body, _ := json.Marshal(map[string]string{
		"room":       "room1@conference.example.net",
		"from":       "alice@example.net/res",
		"machineUid": "machine-1",
	})
	resp, err := http.Post(ts.URL+"/conference-request/v1", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var payload map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "room1@conference.example.net", payload["room"])
}

func TestConferenceRequestRejectsMissingRoom(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Echo())
	defer ts.Close()

	body, _ := json.Marshal(map[string]string{"from": "alice@example.net/res"})
	resp, err := http.Post(ts.URL+"/conference-request/v1", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMoveEndpointsRequiresNumEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Echo())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/move-endpoints/move-endpoints?bridge=b1@bridge.example.net")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMoveFractionUnknownBridgeIs404(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Echo())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/move-endpoints/move-fraction?bridge=unknown@bridge.example.net&fraction=0.5")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

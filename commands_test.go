package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tkrehbiel/checkin/client"
	"github.com/tkrehbiel/checkin/client/activity"
)

func writeConfig(t *testing.T, placesURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "checkin.toml")
	doc := fmt.Sprintf(`client_id = "https://app.example/client"

[store]
driver = "memory"

[places]
url = %q
cache_ttl = "1m"
`, placesURL)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env", ""}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestPlacesCommand(t *testing.T) {
	var bbox string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bbox = r.URL.Query().Get("bbox")
		w.Header().Set("Content-Type", "application/activity+json")
		w.Write([]byte(`{"type":"Collection","items":[
			{"id":"https://places.example/1","type":"Place","name":"Cafe"},
			{"id":"https://places.example/2","type":"Place"}
		]}`))
	}))
	defer server.Close()

	out, err := run(t, "--config", writeConfig(t, server.URL), "places", "--lat", "45.5", "--lon", "-73.6")
	require.NoError(t, err)
	assert.Equal(t, "Cafe\thttps://places.example/1\n", out)
	assert.Equal(t, "-73.60128,45.4991,-73.59872,45.5009", bbox)
}

func TestPlacesCommand_RequiresCoordinates(t *testing.T) {
	_, err := run(t, "places", "--lat", "45.5")
	assert.Error(t, err)
}

func TestCheckinCommand_NotLoggedIn(t *testing.T) {
	_, err := run(t, "--config", writeConfig(t, "http://localhost"), "checkin", "https://places.example/1")
	assert.ErrorIs(t, err, client.ErrNotLoggedIn)
}

func TestInboxCommand_NotLoggedIn(t *testing.T) {
	_, err := run(t, "--config", writeConfig(t, "http://localhost"), "inbox")
	assert.ErrorIs(t, err, client.ErrNotLoggedIn)
}

func TestCommand_ClosesStoreOnError(t *testing.T) {
	a := &app{}
	cmd := a.command()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--env", "", "--config", writeConfig(t, "http://localhost"), "checkin", "https://places.example/1"})

	err := cmd.Execute()
	assert.ErrorIs(t, err, client.ErrNotLoggedIn)
	assert.NotNil(t, a.client, "store was opened")
	assert.Nil(t, a.store, "store was closed")
}

func TestLogoutCommand(t *testing.T) {
	out, err := run(t, "--config", writeConfig(t, "http://localhost"), "logout")
	require.NoError(t, err)
	assert.Equal(t, "Logged out\n", out)
}

func TestLoadConfig_Precedence(t *testing.T) {
	t.Setenv(client.EnvClientID, "https://env.example/client")
	t.Setenv(client.EnvStore, "env.db")
	a := &app{configFile: writeConfig(t, "http://localhost"), storePath: "flag.db", verbose: true}
	require.NoError(t, a.loadConfig())

	assert.Equal(t, "https://env.example/client", a.cfg.ClientID)
	assert.Equal(t, "flag.db", a.cfg.Store.Path)
	assert.Equal(t, "memory", a.cfg.Store.Driver)
	assert.True(t, a.cfg.Verbose)
	assert.Equal(t, time.Minute, a.cfg.Places.CacheTTL.Duration)
}

func TestPrintActivities(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	list := []activity.Object{
		{
			"id":        "https://social.example/activity/1",
			"type":      "Arrive",
			"published": now.Add(-2 * time.Hour).Format(time.RFC3339),
			"actor":     map[string]any{"name": "Amy & Bo"},
			"location":  map[string]any{"name": "Cafe"},
		},
		{
			"id":   "https://social.example/activity/2",
			"type": "Leave",
		},
	}
	var out bytes.Buffer
	printActivities(&out, list, now)
	assert.Equal(t, "Amy & Bo arrived at Cafe (2 hours ago)\n(someone) left (somewhere)\n", out.String())

	out.Reset()
	printActivities(&out, nil, now)
	assert.Equal(t, "No activities.\n", out.String())
}

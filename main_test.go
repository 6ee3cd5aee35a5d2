package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zackbart/nova/internal/config"
)

func TestEndpointFromProfile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	st := &config.State{}
	st.UpsertProfile(config.Profile{Name: "web", Host: "web-1", Port: 2222, Username: "deploy", KeyPath: "~/.ssh/id"})
	st.UI.LastProfile = "web"

	ep, name, err := endpoint(st, flags{})
	require.NoError(t, err)
	assert.Equal(t, "web", name)
	assert.Equal(t, "web-1:2222", ep.Addr())
	assert.Equal(t, "deploy", ep.Username)
	assert.Equal(t, home+"/.ssh/id", ep.KeyPath)
	assert.Equal(t, 30*time.Second, ep.Timeout)

	ep, _, err = endpoint(st, flags{profile: "web", user: "root", port: 22})
	require.NoError(t, err)
	assert.Equal(t, "root", ep.Username)
	assert.Equal(t, "web-1:22", ep.Addr())
}

func TestEndpointFromFlags(t *testing.T) {
	t.Setenv("USER", "ops")
	st := &config.State{}
	st.UpsertProfile(config.Profile{Name: "web", Host: "web-1"})
	st.UI.LastProfile = "web"

	ep, name, err := endpoint(st, flags{host: "db-1"})
	require.NoError(t, err)
	assert.Empty(t, name, "an explicit host skips the last profile")
	assert.Equal(t, "db-1", ep.Host)
	assert.Equal(t, "ops", ep.Username)
}

func TestEndpointErrors(t *testing.T) {
	st := &config.State{}
	_, _, err := endpoint(st, flags{profile: "nope"})
	assert.ErrorContains(t, err, `unknown profile "nope"`)

	_, _, err = endpoint(st, flags{})
	assert.ErrorIs(t, err, errNoHost)

	st.UI.LastProfile = "gone"
	_, _, err = endpoint(st, flags{})
	assert.ErrorIs(t, err, errNoHost, "a stale last profile is ignored")
}

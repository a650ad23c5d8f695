package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadRequiresToken(t *testing.T) {
	_, err := Load(Options{})
	require.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(Options{Token: "tok", DisplayName: "Ada"})
	require.NoError(t, err)

	require.Equal(t, DefaultDomain, cfg.Domain)
	require.Equal(t, "https://"+DefaultDomain+"/api", cfg.APIBaseURL)
	require.Equal(t, "wss://"+DefaultDomain+"/ws", cfg.SignalingURL)
	require.Equal(t, DefaultSTUN, cfg.STUNServer)
	require.Equal(t, "Ada", cfg.DisplayName)
}

func TestLoadFlagOverrides(t *testing.T) {
	cfg, err := Load(Options{
		Token:      "tok",
		Domain:     "meet.example.com",
		APIBaseURL: "http://localhost:8080/api",
	})
	require.NoError(t, err)

	require.Equal(t, "meet.example.com", cfg.Domain)
	require.Equal(t, "http://localhost:8080/api", cfg.APIBaseURL)
	require.Equal(t, "wss://meet.example.com/ws", cfg.SignalingURL)
}

func TestLoadEnvFallback(t *testing.T) {
	t.Setenv("MESHMEET_TOKEN", "env-tok")
	t.Setenv("MESHMEET_DOMAIN", "env.example.com")

	cfg, err := Load(Options{})
	require.NoError(t, err)
	require.Equal(t, "env-tok", cfg.Token)
	require.Equal(t, "env.example.com", cfg.Domain)

	// Flags beat environment.
	cfg, err = Load(Options{Domain: "flag.example.com"})
	require.NoError(t, err)
	require.Equal(t, "flag.example.com", cfg.Domain)
}

func TestRoomSignalingURL(t *testing.T) {
	cfg, err := Load(Options{Token: "tok"})
	require.NoError(t, err)
	require.Equal(t, cfg.SignalingURL+"/room-1", cfg.RoomSignalingURL("room-1"))
}

func TestTURNConfiguration(t *testing.T) {
	cfg, err := Load(Options{Token: "tok"})
	require.NoError(t, err)
	require.Nil(t, cfg.GetTURNServers())

	cfg, err = Load(Options{
		Token:      "tok",
		TURNServer: "turn:turn.example.com",
		TURNUser:   "u",
		TURNPass:   "p",
	})
	require.NoError(t, err)
	servers := cfg.GetTURNServers()
	require.Len(t, servers, 3)
	require.Equal(t, "turn:turn.example.com:3478?transport=udp", servers[0])
	user, pass := cfg.GetTURNCredentials()
	require.Equal(t, "u", user)
	require.Equal(t, "p", pass)
}

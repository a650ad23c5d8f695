package config

import (
	"fmt"
	"os"
)

// Default configuration values (production)
const (
	DefaultDomain   = "meet.meshmeet.app"
	DefaultSTUN     = "stun:stun.l.google.com:19302"
	DefaultTURN     = "" // Optional, empty by default
	DefaultTURNUser = ""
	DefaultTURNPass = ""
)

// Config holds application configuration
type Config struct {
	// Domain is the meeting backend domain
	Domain string

	// APIBaseURL is the REST base for meeting metadata operations
	APIBaseURL string

	// SignalingURL is the websocket base, constructed from domain
	SignalingURL string

	// Token is the bearer token used for both REST calls and the
	// signaling handshake
	Token string

	// DisplayName announced in the join event
	DisplayName string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
}

// Options for loading config with CLI flag overrides
type Options struct {
	Domain      string
	APIBaseURL  string
	Token       string
	DisplayName string
	STUNServer  string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	domain := firstOf(opts.Domain, os.Getenv("MESHMEET_DOMAIN"), DefaultDomain)

	apiBase := firstOf(opts.APIBaseURL, os.Getenv("MESHMEET_API_URL"))
	if apiBase == "" {
		apiBase = fmt.Sprintf("https://%s/api", domain)
	}

	token := firstOf(opts.Token, os.Getenv("MESHMEET_TOKEN"))
	if token == "" {
		return nil, fmt.Errorf("no bearer token configured: set --token or MESHMEET_TOKEN")
	}

	name := firstOf(opts.DisplayName, os.Getenv("MESHMEET_NAME"))
	if name == "" {
		host, _ := os.Hostname()
		name = firstOf(host, "guest")
	}

	return &Config{
		Domain:       domain,
		APIBaseURL:   apiBase,
		SignalingURL: fmt.Sprintf("wss://%s/ws", domain),
		Token:        token,
		DisplayName:  name,
		STUNServer:   firstOf(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN),
		TURNServer:   firstOf(opts.TURNServer, os.Getenv("TURN_SERVER"), DefaultTURN),
		TURNUser:     firstOf(opts.TURNUser, os.Getenv("TURN_USERNAME"), DefaultTURNUser),
		TURNPass:     firstOf(opts.TURNPass, os.Getenv("TURN_PASSWORD"), DefaultTURNPass),
		ForceRelay:   opts.ForceRelay,
	}, nil
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
		fmt.Sprintf("turns:%s:5349?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// RoomSignalingURL returns the websocket endpoint for a meeting room.
func (c *Config) RoomSignalingURL(meetingID string) string {
	return fmt.Sprintf("%s/%s", c.SignalingURL, meetingID)
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package config

// HTTPConfig configures the schedule API listener.
type HTTPConfig struct {
	// Addr is the listen address. "-" disables the API.
	Addr  string `json:"addr"`
	// Token, when set, is required as a bearer token on every request.
	Token string `json:"token"`
}

func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

// Enabled reports whether the API should be served.
func (c HTTPConfig) Enabled() bool { return c.Addr != "-" }

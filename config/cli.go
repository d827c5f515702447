package config

import "fmt"

// Cli carries flag-level settings that do not belong in the YAML file.
type Cli struct {
	ConfigFile  string
	Host        string
	Port        int
	PprofPort   int
	AdminToken  string
	Production  bool
	LogFile     string
	TLSCertFile string
	TLSKeyFile  string
}

func (c *Cli) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AuthRequired reports whether admin endpoints must check the bearer token.
// Development instances with no token configured stay open.
func (c *Cli) AuthRequired() bool {
	return c.Production || c.AdminToken != ""
}

package instance

import (
	"fmt"
	"regexp"

	"github.com/matheus3301/chatrelay/internal/config"
)

const DefaultName = "main"

var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// Resolve picks the active instance name: the flag, then config.toml
// default_instance, then "main".
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultInstance != "" {
		return cfg.DefaultInstance
	}
	return DefaultName
}

// ValidateName checks that name is usable as a directory component.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid instance name %q: must match ^[a-z0-9_-]{1,64}$", name)
	}
	return nil
}

/*
	This file holds types and functions supporting command-related activity.
	A Command bundles an operation name with positional arguments and optional
	"<key>=<value>" settings, as typed on the command line.
*/

package dvid

import (
	"fmt"
	"strconv"
	"strings"
)

// Command supports command-line interaction.  The first item in the string slice is
// the command, e.g., "reseg" or "relabel".  The other arguments are positional command
// arguments or optional settings of the form "<key>=<value>".
type Command []string

// String returns a space-separated command line
func (cmd Command) String() string {
	return strings.Join([]string(cmd), " ")
}

// Name returns the first argument which is assumed to be the name of the command.
func (cmd Command) Name() string {
	if len(cmd) == 0 {
		return ""
	}
	return cmd[0]
}

// Argument returns the pos-th positional argument, ignoring "<key>=<value>" settings.
// Argument(0) is the command name.  If there is no such argument, an empty string
// is returned.
func (cmd Command) Argument(pos int) string {
	var cur int
	for _, arg := range cmd {
		if isSetting(arg) {
			continue
		}
		if cur == pos {
			return arg
		}
		cur++
	}
	return ""
}

// Parameter scans a command for any "key=value" argument and returns
// the value of the passed 'key'.
func (cmd Command) Parameter(key string) (value string, found bool) {
	if len(cmd) > 1 {
		for _, arg := range cmd[1:] {
			elems := strings.SplitN(arg, "=", 2)
			if len(elems) == 2 && elems[0] == key {
				value = elems[1]
				found = true
				return
			}
		}
	}
	return
}

// Settings returns all "<key>=<value>" arguments as a Config.
func (cmd Command) Settings() Config {
	c := NewConfig()
	if len(cmd) > 1 {
		for _, arg := range cmd[1:] {
			elems := strings.SplitN(arg, "=", 2)
			if len(elems) == 2 {
				c.Set(elems[0], elems[1])
			}
		}
	}
	return c
}

func isSetting(arg string) bool {
	i := strings.Index(arg, "=")
	return i > 0
}

// Config is a case-insensitive map of setting keys to string values with typed getters.
type Config struct {
	values map[string]string
}

func NewConfig() Config {
	return Config{values: make(map[string]string)}
}

// Set adds or replaces a setting.
func (c Config) Set(key, value string) {
	c.values[strings.ToLower(key)] = value
}

// IsSet returns true if the key has been set.
func (c Config) IsSet(key string) bool {
	_, found := c.values[strings.ToLower(key)]
	return found
}

// GetString returns the setting or the empty string and false if it is not set.
func (c Config) GetString(key string) (string, bool) {
	s, found := c.values[strings.ToLower(key)]
	return s, found
}

// GetInt returns the setting parsed as an int.  An unset key returns the default.
func (c Config) GetInt(key string, defaultValue int) (int, error) {
	s, found := c.GetString(key)
	if !found {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue, fmt.Errorf("setting %q=%q is not an integer: %w", key, s, ErrInvalidArgument)
	}
	return i, nil
}

// GetFloat returns the setting parsed as a float64.  An unset key returns the default.
func (c Config) GetFloat(key string, defaultValue float64) (float64, error) {
	s, found := c.GetString(key)
	if !found {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return defaultValue, fmt.Errorf("setting %q=%q is not a number: %w", key, s, ErrInvalidArgument)
	}
	return f, nil
}

// GetBool returns the setting parsed as a bool.  An unset key returns the default.
func (c Config) GetBool(key string, defaultValue bool) (bool, error) {
	s, found := c.GetString(key)
	if !found {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return defaultValue, fmt.Errorf("setting %q=%q is not a boolean: %w", key, s, ErrInvalidArgument)
	}
	return b, nil
}

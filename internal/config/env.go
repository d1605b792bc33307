package config

import "github.com/spf13/viper"

// Env captures the three environment variables the Driver recognizes, read
// through viper's environment binding rather than hand-rolled os.Getenv
// calls at each call site. (-D property overrides do not go through viper;
// see ParsePropertyOverrides.)
type Env struct {
	Home string
	Data string
	User string
}

// LoadEnv binds RACE_HOME, RACE_DATA, and RACE_USER from the process
// environment.
func LoadEnv() Env {
	v := viper.New()
	v.SetEnvPrefix("RACE")
	v.AutomaticEnv()

	v.SetDefault("HOME", "")
	v.SetDefault("DATA", "")
	v.SetDefault("USER", "")

	return Env{
		Home: v.GetString("HOME"),
		Data: v.GetString("DATA"),
		User: v.GetString("USER"),
	}
}

// ParsePropertyOverrides turns a list of "-Dkey=value" flag values (as
// collected by the Driver's repeatable -D flag) into the dotted-key map
// consumed by Load.
func ParsePropertyOverrides(raw []string) map[string]string {
	out := make(map[string]string, len(raw))

	for _, kv := range raw {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				out[kv[:i]] = kv[i+1:]
				break
			}
		}
	}

	return out
}

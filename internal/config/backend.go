package config

// ConfigBackend abstracts where config values are stored. The only
// implementation is the JSON file backend; tests use it against a temp dir.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
}

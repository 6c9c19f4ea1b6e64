package log

import "time"

// Field is a single structured key/value pair attached to a log entry.
type Field struct {
	Key   string
	Value interface{}
}

func Str(key, value string) Field             { return Field{Key: key, Value: value} }
func Int(key string, value int) Field         { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field     { return Field{Key: key, Value: value} }
func Uint64(key string, value uint64) Field   { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field       { return Field{Key: key, Value: value} }
func Any(key string, value interface{}) Field { return Field{Key: key, Value: value} }
func Time(key string, value time.Time) Field  { return Field{Key: key, Value: value.UTC()} }
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Err attaches an error under the "error" key. A nil error yields an empty value.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err}
}

// Component tags the entry with the emitting component.
func Component(name string) Field { return Field{Key: ComponentKey, Value: name} }

// Namespace tags the entry with a log namespace (store prefix).
func Namespace(name string) Field { return Field{Key: NamespaceKey, Value: name} }

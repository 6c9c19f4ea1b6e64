package taglog

import (
	"fmt"

	"github.com/rzbill/taglog/internal/logctx"
)

// TaggingAttribute contributes both a tag ("key:value") and an attribute
// (key -> value) to a record.
type TaggingAttribute struct {
	Key   string
	Value any
}

// Tag returns the tag form of the pair.
func (a TaggingAttribute) Tag() string { return a.Key + ":" + fmt.Sprint(a.Value) }

// TaggingAttributes is an ordered list of pairs.
type TaggingAttributes []TaggingAttribute

// TA starts a list with one pair.
func TA(key string, value any) TaggingAttributes {
	return TaggingAttributes{{Key: key, Value: value}}
}

// And returns a copy of t with one more pair.
func (t TaggingAttributes) And(key string, value any) TaggingAttributes {
	out := make(TaggingAttributes, len(t), len(t)+1)
	copy(out, t)
	return append(out, TaggingAttribute{Key: key, Value: value})
}

// Tags returns the tag form of every pair.
func (t TaggingAttributes) Tags() []string {
	out := make([]string, len(t))
	for i, a := range t {
		out[i] = a.Tag()
	}
	return out
}

// Attrs returns the attribute form of every pair; later pairs win.
func (t TaggingAttributes) Attrs() Attrs {
	out := make(Attrs, len(t))
	for _, a := range t {
		out[a.Key] = a.Value
	}
	return out
}

// Frame converts the pairs into a context frame.
func (t TaggingAttributes) Frame() logctx.Frame {
	return logctx.Frame{Tags: t.Tags(), Attrs: t.Attrs()}
}

package taglog

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rzbill/taglog/internal/filter"
)

// Attrs are free-form record attributes. Values must be JSON encodable.
type Attrs map[string]any

// Tags is a sorted set of tags.
type Tags []string

// NewTags sorts and de-duplicates tags.
func NewTags(tags ...string) Tags {
	out := slices.Clone(tags)
	slices.Sort(out)
	return Tags(slices.Compact(out))
}

// Has reports whether tag is in the set.
func (t Tags) Has(tag string) bool {
	_, ok := slices.BinarySearch(t, tag)
	return ok
}

// Record is one persisted log entry. Bodies are immutable once written.
type Record struct {
	ID       uint64
	Message  Message
	Attrs    Attrs
	Tags     Tags
	TS       time.Time
	ExpireAt *time.Time
}

type recordJSON struct {
	ID      uint64     `json:"id"`
	Message Message    `json:"message"`
	Attrs   Attrs      `json:"attrs"`
	Tags    Tags       `json:"tags"`
	TS      time.Time  `json:"ts"`
	Expire  *time.Time `json:"expire"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		ID:      r.ID,
		Message: r.Message,
		Attrs:   r.Attrs,
		Tags:    r.Tags,
		TS:      r.TS.UTC(),
	}
	if out.Attrs == nil {
		out.Attrs = Attrs{}
	}
	if out.Tags == nil {
		out.Tags = Tags{}
	}
	if r.ExpireAt != nil {
		exp := r.ExpireAt.UTC()
		out.Expire = &exp
	}
	return json.Marshal(out)
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var in recordJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*r = Record{
		ID:      in.ID,
		Message: in.Message,
		Attrs:   in.Attrs,
		Tags:    NewTags(in.Tags...),
		TS:      in.TS.UTC(),
	}
	if r.Attrs == nil {
		r.Attrs = Attrs{}
	}
	if in.Expire != nil {
		exp := in.Expire.UTC()
		r.ExpireAt = &exp
	}
	return nil
}

// Expired reports whether the record has an expiration at or before now.
func (r Record) Expired(now time.Time) bool {
	return r.ExpireAt != nil && !r.ExpireAt.After(now)
}

// String renders the message. Text messages may reference attributes as
// {name}; unknown placeholders are left untouched.
func (r Record) String() string {
	text, ok := r.Message.Text()
	if !ok || len(r.Attrs) == 0 || !strings.Contains(text, "{") {
		return r.Message.String()
	}
	pairs := make([]string, 0, 2*len(r.Attrs))
	for k, v := range r.Attrs {
		pairs = append(pairs, "{"+k+"}", fmt.Sprint(v))
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// Format prefixes the rendered message with the timestamp in layout.
func (r Record) Format(layout string) string {
	return r.TS.UTC().Format(layout) + " " + r.String()
}

func (r Record) filterInput() filter.Input {
	in := filter.Input{
		ID:    r.ID,
		TS:    r.TS,
		Attrs: r.Attrs,
		Tags:  r.Tags,
	}
	if text, ok := r.Message.Text(); ok {
		in.Text = text
	} else {
		in.Text = r.Message.String()
		var v any
		if err := r.Message.Decode(&v); err == nil {
			in.JSON = v
		}
	}
	return in
}

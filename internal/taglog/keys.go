package taglog

import (
	"strconv"
	"time"
)

// Reserved flow names.
const (
	FlowAll    = "__all__"
	FlowExpire = "__expire__"
)

// keyspace builds store keys for one namespace:
//
//	<ns>:counter, <ns>:msg:<id>, <ns>:flow:<tag>
//
// An empty namespace drops the "<ns>:" part.
type keyspace struct {
	ns string
}

func (k keyspace) key(s string) string {
	if k.ns == "" {
		return s
	}
	return k.ns + ":" + s
}

func (k keyspace) counter() string      { return k.key("counter") }
func (k keyspace) msg(id uint64) string { return k.key("msg:" + strconv.FormatUint(id, 10)) }
func (k keyspace) flow(tag string) string {
	return k.key("flow:" + tag)
}
func (k keyspace) msgPrefix() string  { return k.key("msg:") }
func (k keyspace) flowPrefix() string { return k.key("flow:") }

// channel is the publish/subscribe channel of the namespace.
func (k keyspace) channel() string { return k.ns }

// score converts a timestamp to a flow score (UTC epoch microseconds).
func score(t time.Time) int64 { return t.UnixMicro() }

func validTag(tag string) bool {
	return tag != "" && tag != FlowAll && tag != FlowExpire
}

// Package taglog stores tagged, time-ordered log records in a kv.Store.
//
// Every record gets an id from the namespace counter, a JSON body at
// <ns>:msg:<id>, and an entry in the __all__ flow plus one flow per tag
// (<ns>:flow:<tag>), scored by its timestamp. Records with an expiration are
// also indexed in __expire__, scored by the expiration time, which is what
// Sweep scans. New records are published on the <ns> channel.
//
// Tags and attributes active in the caller's logctx stack are merged into
// every record written with that context.
package taglog

// Package client provides the taglog command-line client.
//
// The commands talk to the taglog HTTP gateway. The base URL comes from the
// embedding application through a BaseURLFunc; the standalone binary reads
// TAGLOG_HTTP and defaults to http://127.0.0.1:8080.
//
// Usage
//
//	taglog log "user {user} signed in" -t auth --attr user=bob
//	taglog log '{"order":42}' --structured -t orders --expire-in 24h
//	taglog log "paid" --tagging order_id=42
//
//	taglog get -t auth -l 20
//	taglog get --attr order_id=42 --min-ts "2025-09-20 12:00:00" --json
//	taglog get --filter 'json.order > 40.0'
//	taglog latest -p billing -t invoices
//
//	taglog listen -t auth -T "15:04:05"
//
//	taglog count -t auth
//	taglog sweep
//	taglog cleanup -p scratch --confirm
//
// Records print as "<time> <message>" using the Go layout given by -T, with
// {name} placeholders in text messages replaced by the record's attributes.
package client

// Package pebblestore wraps a Pebble database with an fsync policy, context
// aware batch commits, snapshot reads and a small metrics hook.
//
// Usage:
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data",
//	    Fsync:   pebblestore.FsyncModeInterval,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	b, _ := db.NewBatch()
//	_ = b.Set([]byte("k"), []byte("v"), nil)
//	_ = db.CommitBatch(ctx, b)
//	b.Close()
//
//	vals, _ := db.GetMany([][]byte{[]byte("k"), []byte("missing")})
package pebblestore

// Package logctx carries implicit log tags and attributes through a call
// chain. A Stack of frames travels in a context.Context; every record written
// with that context picks up the union of the active frames' tags and the
// merge of their attributes, inner frames winning on key collisions.
//
// A Stack belongs to one task. Scope and With always work on a private copy,
// so sharing a context between goroutines is safe as long as frames are
// entered through them. Calling Push or Pop on a Stack taken from a shared
// context mutates every holder's view; Fork first.
//
//	err := logctx.Scope(ctx, logctx.Frame{Tags: []string{"job:42"}}, func(ctx context.Context) error {
//	    _, err := engine.Log(ctx, taglog.Text("started"))
//	    return err
//	})
package logctx

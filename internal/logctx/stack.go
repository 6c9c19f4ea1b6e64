package logctx

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// ErrNotTop is returned by Pop when the handle is not the innermost frame.
var ErrNotTop = errors.New("logctx: frame is not on top of the stack")

// Frame is one level of implicit tags and attributes.
type Frame struct {
	Tags  []string
	Attrs map[string]any
}

// Empty reports whether the frame contributes nothing.
func (f Frame) Empty() bool { return len(f.Tags) == 0 && len(f.Attrs) == 0 }

func (f Frame) clone() Frame {
	return Frame{Tags: slices.Clone(f.Tags), Attrs: maps.Clone(f.Attrs)}
}

// Handle identifies a pushed frame.
type Handle struct{ id uint64 }

type entry struct {
	id    uint64
	frame Frame
}

// Stack is an ordered set of frames plus a manually managed base frame that
// sits below all pushed frames.
type Stack struct {
	mu     sync.Mutex
	frames []entry
	base   Frame
	nextID uint64
}

// New returns an empty stack.
func New() *Stack { return &Stack{} }

// Push adds f as the innermost frame.
func (s *Stack) Push(f Frame) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.frames = append(s.frames, entry{id: s.nextID, frame: f.clone()})
	return Handle{id: s.nextID}
}

// Pop removes the frame identified by h, which must be the innermost one.
func (s *Stack) Pop(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.frames)
	if n == 0 || s.frames[n-1].id != h.id {
		return fmt.Errorf("%w (handle %d)", ErrNotTop, h.id)
	}
	s.frames[n-1] = entry{}
	s.frames = s.frames[:n-1]
	return nil
}

// Depth returns the number of pushed frames.
func (s *Stack) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// Tags returns the sorted union of tags across the base and every frame.
func (s *Stack) Tags() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	out = append(out, s.base.Tags...)
	for _, e := range s.frames {
		out = append(out, e.frame.Tags...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Attrs merges attributes from outermost to innermost.
func (s *Stack) Attrs() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := maps.Clone(s.base.Attrs)
	if out == nil {
		out = map[string]any{}
	}
	for _, e := range s.frames {
		maps.Copy(out, e.frame.Attrs)
	}
	return out
}

// Current returns the effective frame.
func (s *Stack) Current() Frame { return Frame{Tags: s.Tags(), Attrs: s.Attrs()} }

// Add merges f into the base frame. It stays active until removed or reset.
func (s *Stack) Add(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range f.Tags {
		if !slices.Contains(s.base.Tags, t) {
			s.base.Tags = append(s.base.Tags, t)
		}
	}
	if len(f.Attrs) > 0 && s.base.Attrs == nil {
		s.base.Attrs = make(map[string]any, len(f.Attrs))
	}
	maps.Copy(s.base.Attrs, f.Attrs)
}

// Remove drops f's tags and attribute keys from the base frame.
func (s *Stack) Remove(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.base.Tags = slices.DeleteFunc(s.base.Tags, func(t string) bool {
		return slices.Contains(f.Tags, t)
	})
	for k := range f.Attrs {
		delete(s.base.Attrs, k)
	}
}

// Reset clears the base frame and every pushed frame.
func (s *Stack) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = nil
	s.base = Frame{}
}

// Clone copies the stack. Handles issued by s are not valid on the copy.
func (s *Stack) Clone() *Stack {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &Stack{base: s.base.clone(), frames: make([]entry, len(s.frames)), nextID: s.nextID}
	for i, e := range s.frames {
		c.frames[i] = entry{frame: e.frame.clone()}
	}
	return c
}

type stackKey struct{}

// NewContext attaches s to ctx.
func NewContext(ctx context.Context, s *Stack) context.Context {
	return context.WithValue(ctx, stackKey{}, s)
}

// FromContext returns the stack attached to ctx, or nil.
func FromContext(ctx context.Context) *Stack {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(stackKey{}).(*Stack)
	return s
}

// Ensure returns ctx with a stack attached, creating one when missing.
func Ensure(ctx context.Context) (context.Context, *Stack) {
	if s := FromContext(ctx); s != nil {
		return ctx, s
	}
	s := New()
	return NewContext(ctx, s), s
}

// Scope runs fn with f pushed onto a private copy of ctx's stack, so
// goroutines sharing ctx never see each other's scopes. The frame is popped on
// every exit path, including panics, which are re-raised after the pop.
func Scope(ctx context.Context, f Frame, fn func(context.Context) error) (err error) {
	ctx = Fork(ctx)
	s := FromContext(ctx)
	h := s.Push(f)
	defer func() {
		if perr := s.Pop(h); perr != nil && err == nil {
			err = perr
		}
	}()
	return fn(ctx)
}

// Fork returns a context carrying a private copy of ctx's stack, for handing
// to a new goroutine.
func Fork(ctx context.Context) context.Context {
	s := FromContext(ctx)
	if s == nil {
		return NewContext(ctx, New())
	}
	return NewContext(ctx, s.Clone())
}

// With returns a forked context with f pushed. ctx itself is unchanged.
func With(ctx context.Context, f Frame) context.Context {
	ctx = Fork(ctx)
	FromContext(ctx).Push(f)
	return ctx
}

// Tags returns the effective tags of ctx (nil when no stack is attached).
func Tags(ctx context.Context) []string {
	if s := FromContext(ctx); s != nil {
		return s.Tags()
	}
	return nil
}

// Attrs returns the effective attributes of ctx.
func Attrs(ctx context.Context) map[string]any {
	if s := FromContext(ctx); s != nil {
		return s.Attrs()
	}
	return map[string]any{}
}

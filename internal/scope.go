package internal

import "sync"

// active engines, per goroutine: map[int64][]*Engine
var scopes sync.Map

// WithEngine runs fn with e as the active engine of the calling goroutine.
// Scopes nest; the previous engine is restored when fn returns or panics.
func WithEngine(e *Engine, fn func()) {
	gid := goroutineID()

	stack := loadScope(gid)
	scopes.Store(gid, append(stack, e))

	defer func() {
		if len(stack) == 0 {
			scopes.Delete(gid)
			return
		}
		scopes.Store(gid, stack)
	}()

	fn()
}

// ActiveEngine returns the innermost engine made active by WithEngine on the calling goroutine.
func ActiveEngine() (*Engine, bool) {
	stack := loadScope(goroutineID())
	if len(stack) == 0 {
		return nil, false
	}

	return stack[len(stack)-1], true
}

func loadScope(gid int64) []*Engine {
	if v, ok := scopes.Load(gid); ok {
		return v.([]*Engine)
	}
	return nil
}

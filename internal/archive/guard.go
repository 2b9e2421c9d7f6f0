package archive

import "sync"

// The host can read packed resource bundles (for example an app.asar) as if
// they were directories. While any Guard is held that transparency is off and
// bundles are plain files, as needed when unpacking or deleting an
// application tree.
var transparency = struct {
	sync.Mutex
	holders int
	hook    func(transparent bool)
}{}

// SetHook registers fn to run whenever transparency switches on or off, with
// the new state. A host with its own bundle loader toggles it from here. A
// nil fn removes the hook.
func SetHook(fn func(transparent bool)) {
	transparency.Lock()
	transparency.hook = fn
	transparency.Unlock()
}

// Guard is a held suspension of archive transparency. Release restores the
// previous state; calling it more than once is a no-op.
type Guard struct {
	once sync.Once
}

// Acquire suspends transparency until the returned Guard is released.
// Guards nest.
func Acquire() *Guard {
	transparency.Lock()
	transparency.holders++
	hook := transparency.hook
	switched := transparency.holders == 1
	transparency.Unlock()
	if switched && hook != nil {
		hook(false)
	}
	return &Guard{}
}

// Release ends the suspension held by g.
func (g *Guard) Release() {
	g.once.Do(func() {
		transparency.Lock()
		transparency.holders--
		hook := transparency.hook
		switched := transparency.holders == 0
		transparency.Unlock()
		if switched && hook != nil {
			hook(true)
		}
	})
}

// Transparent reports whether packed bundles are currently looked through.
func Transparent() bool {
	transparency.Lock()
	defer transparency.Unlock()
	return transparency.holders == 0
}

// WithOpaque runs fn with transparency suspended. The guard is released on
// every return path, including a panic in fn.
func WithOpaque(fn func() error) error {
	g := Acquire()
	defer g.Release()
	return fn()
}

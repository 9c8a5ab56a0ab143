// Package enginetest provides an in-memory engine for tests.
package enginetest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"sync"

	"github.com/maauso/stillcast/internal/engine"
)

var _ engine.Engine = (*Fake)(nil)

// Fake is an in-memory engine.Engine. The zero value is ready to use and
// behaves like a successful ffmpeg that writes Output to "output.mp4".
type Fake struct {
	// LoadFunc overrides Load.
	LoadFunc func(ctx context.Context) error
	// ExecFunc overrides Exec. emit delivers a log line to subscribers.
	ExecFunc func(ctx context.Context, args []string, emit func(string)) error
	// LogLines are emitted by the default Exec.
	LogLines []string
	// Output is stored by the default Exec under OutputName.
	Output []byte
	// OutputName defaults to "output.mp4".
	OutputName string

	// FailWrite, FailRead and FailDelete make the matching operation fail
	// for the named files.
	FailWrite  map[string]error
	FailRead   map[string]error
	FailDelete map[string]error

	mu        sync.Mutex
	files     map[string][]byte
	subs      map[int]func(string)
	nextSub   int
	loads     int
	execArgs  [][]string
	writes    []string
	deletes   []string
	callOrder []string
}

// Load counts the call and runs LoadFunc if set.
func (f *Fake) Load(ctx context.Context) error {
	f.mu.Lock()
	f.loads++
	fn := f.LoadFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return nil
}

// WriteFile stores data under name.
func (f *Fake) WriteFile(ctx context.Context, name string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callOrder = append(f.callOrder, "write:"+name)
	if err := f.FailWrite[name]; err != nil {
		return err
	}
	if f.files == nil {
		f.files = make(map[string][]byte)
	}
	f.files[name] = append([]byte(nil), data...)
	f.writes = append(f.writes, name)
	return nil
}

// ReadFile returns the data stored under name.
func (f *Fake) ReadFile(ctx context.Context, name string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callOrder = append(f.callOrder, "read:"+name)
	if err := f.FailRead[name]; err != nil {
		return nil, err
	}
	data, ok := f.files[name]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", name, fs.ErrNotExist)
	}
	return append([]byte(nil), data...), nil
}

// DeleteFile removes name.
func (f *Fake) DeleteFile(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callOrder = append(f.callOrder, "delete:"+name)
	f.deletes = append(f.deletes, name)
	if err := f.FailDelete[name]; err != nil {
		return err
	}
	if _, ok := f.files[name]; !ok {
		return fmt.Errorf("delete %s: %w", name, fs.ErrNotExist)
	}
	delete(f.files, name)
	return nil
}

// OnLog subscribes fn.
func (f *Fake) OnLog(fn func(string)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[int]func(string))
	}
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

// Exec records args and runs ExecFunc, or the default behaviour.
func (f *Fake) Exec(ctx context.Context, args []string) error {
	f.mu.Lock()
	f.callOrder = append(f.callOrder, "exec")
	f.execArgs = append(f.execArgs, append([]string(nil), args...))
	fn := f.ExecFunc
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, args, f.Emit)
	}

	for _, line := range f.LogLines {
		f.Emit(line)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("ffmpeg cancelled: %w", err)
	}

	name := f.OutputName
	if name == "" {
		name = "output.mp4"
	}
	f.Put(name, f.Output)
	return nil
}

// Emit delivers line to every current subscriber.
func (f *Fake) Emit(line string) {
	f.mu.Lock()
	subs := make([]func(string), 0, len(f.subs))
	ids := make([]int, 0, len(f.subs))
	for id := range f.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		subs = append(subs, f.subs[id])
	}
	f.mu.Unlock()

	for _, fn := range subs {
		fn(line)
	}
}

// Put stores a file directly, bypassing failure injection.
func (f *Fake) Put(name string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.files == nil {
		f.files = make(map[string][]byte)
	}
	f.files[name] = append([]byte(nil), data...)
}

// Names returns the sorted names currently in the namespace.
func (f *Fake) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.files))
	for name := range f.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Subscribers returns the number of active log subscribers.
func (f *Fake) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Loads returns how many times Load was called.
func (f *Fake) Loads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

// ExecArgs returns the arguments of every Exec call.
func (f *Fake) ExecArgs() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.execArgs))
	copy(out, f.execArgs)
	return out
}

// Writes returns the names passed to WriteFile in order.
func (f *Fake) Writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

// Deletes returns the names passed to DeleteFile in order.
func (f *Fake) Deletes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deletes...)
}

// Calls returns every engine call in order, e.g. "write:input.mp3", "exec".
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.callOrder...)
}

// ErrInjected is a convenience error for failure injection.
var ErrInjected = errors.New("injected failure")

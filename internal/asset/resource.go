// Package asset holds GPU resource handles: meshes, shaders, and textures.
//
// Every state-changing operation on a Resource must run on the GPU-affine
// goroutine. Calling one directly from another goroutine returns a
// ThreadAffinityViolation; the *Async variants marshal through the executor
// instead.
package asset

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/cacaoengine/cacao/internal/core/errs"
	"github.com/cacaoengine/cacao/internal/core/future"
	"golang.org/x/crypto/blake2b"
)

// Kind is the resource category.
type Kind int

const (
	KindMesh Kind = iota
	KindShader
	KindTexture
)

func (k Kind) String() string {
	switch k {
	case KindMesh:
		return "mesh"
	case KindShader:
		return "shader"
	case KindTexture:
		return "texture"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// State is a resource's lifecycle position.
type State int

const (
	StatePending  State = iota // created, not on the GPU
	StateCompiled              // uploaded, not bound
	StateBound                 // uploaded and bound
	StateReleased              // GPU object destroyed; terminal
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCompiled:
		return "compiled"
	case StateBound:
		return "bound"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Handle is the backend's opaque identifier for an uploaded resource.
type Handle uint64

// Backend performs the GPU side of resource operations. It is called only
// from the GPU-affine goroutine.
type Backend interface {
	CompileResource(kind Kind, name string, payload any) (Handle, error)
	ReleaseResource(h Handle) error
	BindResource(h Handle) error
	UnbindResource(h Handle) error
}

// Marshaler is the slice of the GPU executor a resource needs: an affinity
// check for direct calls and a job channel for marshaled ones.
type Marshaler interface {
	CheckAffinity(op string) error
	RunOnGPUThread(fn func() error) *future.Future[struct{}]
}

// Key is the blake2b-256 digest of a resource's payload bytes.
type Key [blake2b.Size256]byte

func (k Key) String() string { return hex.EncodeToString(k[:8]) }

// Resource is one GPU resource handle. State transitions are serialized by
// the GPU goroutine; the mutex only makes State/Handle safe to read from
// other goroutines (snapshot readers, diagnostics).
type Resource struct {
	kind    Kind
	name    string
	key     Key
	payload any

	gpu     Marshaler
	backend Backend

	mu     sync.Mutex
	state  State
	handle Handle
}

func newResource(kind Kind, name string, payload any, raw []byte, gpu Marshaler, backend Backend) *Resource {
	return &Resource{
		kind:    kind,
		name:    name,
		key:     blake2b.Sum256(raw),
		payload: payload,
		gpu:     gpu,
		backend: backend,
	}
}

func (r *Resource) Kind() Kind     { return r.kind }
func (r *Resource) Name() string   { return r.name }
func (r *Resource) Key() Key       { return r.key }
func (r *Resource) Payload() any   { return r.payload }
func (r *Resource) String() string { return r.kind.String() + ":" + r.name }

func (r *Resource) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Handle returns the backend handle, valid only while compiled or bound.
func (r *Resource) Handle() Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle
}

// Ready reports whether the resource can be drawn or bound.
func (r *Resource) Ready() bool {
	s := r.State()
	return s == StateCompiled || s == StateBound
}

// Compile uploads the resource. Compiling twice is a BadState error.
func (r *Resource) Compile() error {
	const op = "asset.Compile"
	if err := r.gpu.CheckAffinity(op); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case StateCompiled, StateBound:
		return errs.New(errs.BadState, op, "%s is already compiled", r)
	case StateReleased:
		return errs.New(errs.BadState, op, "%s was released", r)
	}
	h, err := r.backend.CompileResource(r.kind, r.name, r.payload)
	if err != nil {
		return fmt.Errorf("compile %s: %w", r, err)
	}
	r.handle = h
	r.state = StateCompiled
	return nil
}

// Release destroys the GPU object. The resource must be compiled and unbound.
func (r *Resource) Release() error {
	const op = "asset.Release"
	if err := r.gpu.CheckAffinity(op); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case StatePending:
		return errs.New(errs.BadState, op, "%s was never compiled", r)
	case StateBound:
		return errs.New(errs.BadState, op, "%s is still bound", r)
	case StateReleased:
		return errs.New(errs.BadState, op, "%s is already released", r)
	}
	if err := r.backend.ReleaseResource(r.handle); err != nil {
		return fmt.Errorf("release %s: %w", r, err)
	}
	r.handle = 0
	r.state = StateReleased
	return nil
}

// Bind makes the resource current. Binding an unready resource is
// ResourceNotReady; binding twice is BadState.
func (r *Resource) Bind() error {
	const op = "asset.Bind"
	if err := r.gpu.CheckAffinity(op); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case StatePending, StateReleased:
		return errs.New(errs.ResourceNotReady, op, "%s is %s", r, r.state)
	case StateBound:
		return errs.New(errs.BadState, op, "%s is already bound", r)
	}
	if err := r.backend.BindResource(r.handle); err != nil {
		return fmt.Errorf("bind %s: %w", r, err)
	}
	r.state = StateBound
	return nil
}

// Unbind reverses Bind.
func (r *Resource) Unbind() error {
	const op = "asset.Unbind"
	if err := r.gpu.CheckAffinity(op); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateBound {
		return errs.New(errs.BadState, op, "%s is not bound", r)
	}
	if err := r.backend.UnbindResource(r.handle); err != nil {
		return fmt.Errorf("unbind %s: %w", r, err)
	}
	r.state = StateCompiled
	return nil
}

// CompileAsync marshals Compile onto the GPU goroutine.
func (r *Resource) CompileAsync() *future.Future[struct{}] {
	return r.gpu.RunOnGPUThread(r.Compile)
}

// ReleaseAsync marshals Release onto the GPU goroutine.
func (r *Resource) ReleaseAsync() *future.Future[struct{}] {
	return r.gpu.RunOnGPUThread(r.Release)
}

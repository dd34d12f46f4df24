package asset

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Registry creates resources and deduplicates them by content key, so two
// world entries naming identical mesh data share one GPU object.
type Registry struct {
	gpu     Marshaler
	backend Backend
	log     *zap.Logger

	mu     sync.Mutex
	byKey  map[Key]*Resource
	byName map[string]*Resource
	order  []*Resource
}

func NewRegistry(gpu Marshaler, backend Backend, log *zap.Logger) *Registry {
	return &Registry{
		gpu:     gpu,
		backend: backend,
		log:     log,
		byKey:   make(map[Key]*Resource, 64),
		byName:  make(map[string]*Resource, 64),
	}
}

func (r *Registry) add(kind Kind, name string, payload any, raw []byte) (*Resource, error) {
	res := newResource(kind, name, payload, raw, r.gpu, r.backend)

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byName[name]; ok {
		if existing.key != res.key || existing.kind != kind {
			return nil, fmt.Errorf("%s %q already registered with different content", kind, name)
		}
		return existing, nil
	}
	if existing, ok := r.byKey[res.key]; ok && existing.kind == kind {
		r.byName[name] = existing
		r.log.Debug("resource deduplicated",
			zap.String("name", name),
			zap.String("shared_with", existing.name),
			zap.Stringer("key", res.key),
		)
		return existing, nil
	}
	r.byKey[res.key] = res
	r.byName[name] = res
	r.order = append(r.order, res)
	return res, nil
}

// Mesh registers mesh data under name.
func (r *Registry) Mesh(name string, data MeshData) (*Resource, error) {
	return r.add(KindMesh, name, data, data.bytes())
}

// Shader registers a shader under name.
func (r *Registry) Shader(name string, src ShaderSource) (*Resource, error) {
	return r.add(KindShader, name, src, src.bytes())
}

// Texture registers a texture under name.
func (r *Registry) Texture(name string, data TextureData) (*Resource, error) {
	return r.add(KindTexture, name, data, data.bytes())
}

// Lookup returns the resource registered under name.
func (r *Registry) Lookup(name string) (*Resource, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.byName[name]
	return res, ok
}

// Resources returns every distinct resource in registration order.
func (r *Registry) Resources() []*Resource {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Resource, len(r.order))
	copy(out, r.order)
	return out
}

// ReleaseAll unbinds and releases every live resource. Must run on the GPU
// goroutine; callers off that goroutine marshal it. Pending resources are
// skipped.
func (r *Registry) ReleaseAll() error {
	var err error
	for _, res := range r.Resources() {
		switch res.State() {
		case StateBound:
			err = multierr.Append(err, res.Unbind())
			err = multierr.Append(err, res.Release())
		case StateCompiled:
			err = multierr.Append(err, res.Release())
		}
	}
	return err
}

package scene

import (
	"fmt"
	"time"

	"github.com/cacaoengine/cacao/internal/asset"
	"github.com/go-gl/mathgl/mgl32"
)

// Kind discriminates components during traversal.
type Kind uint8

const (
	KindScript Kind = iota + 1
	KindMesh
)

func (k Kind) String() string {
	switch k {
	case KindScript:
		return "script"
	case KindMesh:
		return "mesh"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Component is anything attached to an entity.
type Component interface {
	Kind() Kind
	Enabled() bool
}

// ScriptComponent is a tickable component. Callbacks run on the tick
// goroutine only.
type ScriptComponent interface {
	Component
	OnStart() error
	OnTick(dt time.Duration) error
	OnFixedTick(dt time.Duration) error
}

// Material describes how a mesh is shaded.
type Material struct {
	Name    string
	Shader  *asset.Resource // optional
	Texture *asset.Resource // optional
	Color   mgl32.Vec4
}

// MeshComponent renders a mesh with a material at its entity's transform.
type MeshComponent struct {
	Mesh     *asset.Resource
	Material Material
	Disabled bool
}

func (m *MeshComponent) Kind() Kind    { return KindMesh }
func (m *MeshComponent) Enabled() bool { return !m.Disabled }

// Skybox is the optional environment cubemap drawn behind the world.
type Skybox struct {
	Texture *asset.Resource
	Shader  *asset.Resource // optional
}

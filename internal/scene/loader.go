package scene

import (
	"fmt"

	"github.com/cacaoengine/cacao/internal/asset"
	"github.com/cacaoengine/cacao/internal/core/ecs"
	"github.com/go-gl/mathgl/mgl32"
)

// ScriptFactory instantiates the script component for an entity.
type ScriptFactory interface {
	NewScript(w *World, id ecs.EntityID, path string) (ScriptComponent, error)
}

// Build turns a validated file into a live world. Resources are registered
// but not compiled; compiling is GPU work the caller marshals.
func Build(f *File, reg *asset.Registry, scripts ScriptFactory) (*World, error) {
	b := builder{
		f:         f,
		reg:       reg,
		scripts:   scripts,
		w:         NewWorld(f.Name),
		meshes:    make(map[string]*asset.Resource, len(f.Meshes)),
		shaders:   make(map[string]*asset.Resource, len(f.Shaders)),
		textures:  make(map[string]*asset.Resource, len(f.Textures)),
		materials: make(map[string]Material, len(f.Materials)),
	}
	if err := b.resources(); err != nil {
		return nil, err
	}
	b.camera()
	if f.Skybox != nil {
		b.w.SetSkybox(&Skybox{
			Texture: b.textures[f.Skybox.Texture],
			Shader:  b.shaders[f.Skybox.Shader],
		})
	}
	for i := range f.Entities {
		if err := b.entity(&f.Entities[i], ecs.None); err != nil {
			return nil, err
		}
	}
	return b.w, nil
}

// Load reads, validates, and builds the world at path.
func Load(path string, reg *asset.Registry, scripts ScriptFactory) (*World, error) {
	f, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	w, err := Build(f, reg, scripts)
	if err != nil {
		return nil, fmt.Errorf("build world %s: %w", path, err)
	}
	return w, nil
}

type builder struct {
	f       *File
	reg     *asset.Registry
	scripts ScriptFactory
	w       *World

	meshes    map[string]*asset.Resource
	shaders   map[string]*asset.Resource
	textures  map[string]*asset.Resource
	materials map[string]Material
}

func (b *builder) resources() error {
	for name, m := range b.f.Meshes {
		res, err := b.reg.Mesh(b.f.Name+"/mesh/"+name, m.data())
		if err != nil {
			return err
		}
		b.meshes[name] = res
	}
	for name, s := range b.f.Shaders {
		res, err := b.reg.Shader(b.f.Name+"/shader/"+name, asset.ShaderSource{Vertex: s.Vertex, Fragment: s.Fragment})
		if err != nil {
			return err
		}
		b.shaders[name] = res
	}
	for name, t := range b.f.Textures {
		res, err := b.reg.Texture(b.f.Name+"/texture/"+name, t.data())
		if err != nil {
			return err
		}
		b.textures[name] = res
	}
	for name, m := range b.f.Materials {
		color := mgl32.Vec4{1, 1, 1, 1}
		if m.Color != nil {
			color = mgl32.Vec4(*m.Color)
		}
		b.materials[name] = Material{
			Name:    name,
			Shader:  b.shaders[m.Shader],
			Texture: b.textures[m.Texture],
			Color:   color,
		}
	}
	return nil
}

func (b *builder) camera() {
	e := b.f.Camera
	cam := NewCamera()
	cam.Position = mgl32.Vec3(e.Position)
	cam.Pitch = e.Pitch
	if e.Yaw != nil {
		cam.Yaw = *e.Yaw
	}
	if e.FOV > 0 {
		cam.FOV = e.FOV
	}
	if e.Near > 0 {
		cam.Near = e.Near
	}
	if e.Far > 0 {
		cam.Far = e.Far
	}
	b.w.SetCamera(cam)
}

func (b *builder) entity(e *EntityEntry, parent ecs.EntityID) error {
	id, err := b.w.NewEntity(e.Name, parent)
	if err != nil {
		return err
	}
	if e.Active != nil {
		b.w.Entities().SetActive(id, *e.Active)
	}
	t, _ := b.w.Transform(id)
	t.Position = mgl32.Vec3(e.Position)
	t.Rotation = mgl32.AnglesToQuat(
		mgl32.DegToRad(e.Rotation[0]),
		mgl32.DegToRad(e.Rotation[1]),
		mgl32.DegToRad(e.Rotation[2]),
		mgl32.XYZ,
	)
	if e.Scale != nil {
		t.Scale = mgl32.Vec3(*e.Scale)
	}

	for _, c := range e.Components {
		if c.Script != "" {
			sc, err := b.scripts.NewScript(b.w, id, c.Script)
			if err != nil {
				return fmt.Errorf("%s: script %s: %w", b.w.Path(id), c.Script, err)
			}
			b.w.AddComponent(id, sc)
			continue
		}
		mat, ok := b.materials[c.Material]
		if !ok {
			mat = Material{Name: "default", Color: mgl32.Vec4{1, 1, 1, 1}}
		}
		b.w.AddComponent(id, &MeshComponent{
			Mesh:     b.meshes[c.Mesh],
			Material: mat,
			Disabled: c.Disabled,
		})
	}
	for i := range e.Children {
		if err := b.entity(&e.Children[i], id); err != nil {
			return err
		}
	}
	return nil
}

func (m MeshEntry) data() asset.MeshData {
	switch m.Primitive {
	case "cube":
		return asset.Cube()
	case "quad":
		return asset.Quad()
	}
	d := asset.MeshData{
		Vertices: make([]asset.Vertex, len(m.Positions)),
		Indices:  m.Indices,
	}
	for i, p := range m.Positions {
		d.Vertices[i].Position = p
		if i < len(m.Normals) {
			d.Vertices[i].Normal = m.Normals[i]
		}
		if i < len(m.UVs) {
			d.Vertices[i].UV = m.UVs[i]
		}
	}
	if len(d.Indices) == 0 {
		d.Indices = make([]uint32, len(m.Positions))
		for i := range d.Indices {
			d.Indices[i] = uint32(i)
		}
	}
	return d
}

func (t TextureEntry) data() asset.TextureData {
	px := [4]byte{}
	for i, c := range t.Color {
		px[i] = byte(mgl32.Clamp(c, 0, 1) * 255)
	}
	pixels := make([]byte, 0, t.Width*t.Height*4)
	for range t.Width * t.Height {
		pixels = append(pixels, px[:]...)
	}
	return asset.TextureData{Width: t.Width, Height: t.Height, Channels: 4, Pixels: pixels}
}

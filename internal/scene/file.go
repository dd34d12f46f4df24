package scene

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is the on-disk world description.
type File struct {
	Name      string                   `yaml:"name"`
	Camera    CameraEntry              `yaml:"camera"`
	Skybox    *SkyboxEntry             `yaml:"skybox"`
	Meshes    map[string]MeshEntry     `yaml:"meshes"`
	Shaders   map[string]ShaderEntry   `yaml:"shaders"`
	Textures  map[string]TextureEntry  `yaml:"textures"`
	Materials map[string]MaterialEntry `yaml:"materials"`
	Entities  []EntityEntry            `yaml:"entities"`
}

type CameraEntry struct {
	Position [3]float32 `yaml:"position"`
	Pitch    float32    `yaml:"pitch"`
	Yaw      *float32   `yaml:"yaw"` // default -90
	FOV      float32    `yaml:"fov"`
	Near     float32    `yaml:"near"`
	Far      float32    `yaml:"far"`
}

type SkyboxEntry struct {
	Texture string `yaml:"texture"`
	Shader  string `yaml:"shader"`
}

// MeshEntry is either a named primitive ("cube", "quad") or inline data.
type MeshEntry struct {
	Primitive string       `yaml:"primitive"`
	Positions [][3]float32 `yaml:"positions"`
	Normals   [][3]float32 `yaml:"normals"`
	UVs       [][2]float32 `yaml:"uvs"`
	Indices   []uint32     `yaml:"indices"`
}

type ShaderEntry struct {
	Vertex   string `yaml:"vertex"`
	Fragment string `yaml:"fragment"`
}

// TextureEntry is a solid-color texture; real image decoding is the
// backend's concern.
type TextureEntry struct {
	Width  int        `yaml:"width"`
	Height int        `yaml:"height"`
	Color  [4]float32 `yaml:"color"`
}

type MaterialEntry struct {
	Shader  string      `yaml:"shader"`
	Texture string      `yaml:"texture"`
	Color   *[4]float32 `yaml:"color"` // default opaque white
}

type EntityEntry struct {
	Name       string           `yaml:"name"`
	Active     *bool            `yaml:"active"` // default true
	Position   [3]float32       `yaml:"position"`
	Rotation   [3]float32       `yaml:"rotation"` // euler degrees, XYZ
	Scale      *[3]float32      `yaml:"scale"`    // default 1,1,1
	Components []ComponentEntry `yaml:"components"`
	Children   []EntityEntry    `yaml:"children"`
}

// ComponentEntry names exactly one of Script or Mesh.
type ComponentEntry struct {
	Script   string `yaml:"script"`
	Mesh     string `yaml:"mesh"`
	Material string `yaml:"material"`
	Disabled bool   `yaml:"disabled"`
}

// ReadFile parses and validates a world file.
func ReadFile(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read world %s: %w", path, err)
	}
	f, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("world %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates world YAML. Unknown keys are rejected.
func Parse(raw []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks every cross reference and reports all problems at once.
// Entity problems are prefixed with the entity's path.
func (f *File) Validate() error {
	var errs []error
	if f.Name == "" {
		errs = append(errs, errors.New("world name is required"))
	}
	if f.Skybox != nil {
		if _, ok := f.Textures[f.Skybox.Texture]; !ok {
			errs = append(errs, fmt.Errorf("skybox: unknown texture %q", f.Skybox.Texture))
		}
		if f.Skybox.Shader != "" {
			if _, ok := f.Shaders[f.Skybox.Shader]; !ok {
				errs = append(errs, fmt.Errorf("skybox: unknown shader %q", f.Skybox.Shader))
			}
		}
	}
	for name, m := range f.Meshes {
		if err := m.validate(); err != nil {
			errs = append(errs, fmt.Errorf("mesh %s: %w", name, err))
		}
	}
	for name, t := range f.Textures {
		if t.Width <= 0 || t.Height <= 0 {
			errs = append(errs, fmt.Errorf("texture %s: size must be positive, got %dx%d", name, t.Width, t.Height))
		}
	}
	for name, m := range f.Materials {
		if _, ok := f.Shaders[m.Shader]; m.Shader != "" && !ok {
			errs = append(errs, fmt.Errorf("material %s: unknown shader %q", name, m.Shader))
		}
		if _, ok := f.Textures[m.Texture]; m.Texture != "" && !ok {
			errs = append(errs, fmt.Errorf("material %s: unknown texture %q", name, m.Texture))
		}
	}
	for i := range f.Entities {
		errs = f.validateEntity(&f.Entities[i], "", errs)
	}
	return errors.Join(errs...)
}

func (f *File) validateEntity(e *EntityEntry, parent string, errs []error) []error {
	path := e.Name
	if parent != "" {
		path = parent + "/" + e.Name
	}
	if e.Name == "" {
		errs = append(errs, fmt.Errorf("%s: entity name is required", displayPath(parent, "<unnamed>")))
	}
	if strings.Contains(e.Name, "/") {
		errs = append(errs, fmt.Errorf("%s: entity name must not contain '/'", path))
	}
	for i, c := range e.Components {
		switch {
		case c.Script != "" && c.Mesh != "":
			errs = append(errs, fmt.Errorf("%s: component %d sets both script and mesh", path, i))
		case c.Script == "" && c.Mesh == "":
			errs = append(errs, fmt.Errorf("%s: component %d sets neither script nor mesh", path, i))
		case c.Mesh != "":
			if _, ok := f.Meshes[c.Mesh]; !ok {
				errs = append(errs, fmt.Errorf("%s: unknown mesh %q", path, c.Mesh))
			}
			if _, ok := f.Materials[c.Material]; c.Material != "" && !ok {
				errs = append(errs, fmt.Errorf("%s: unknown material %q", path, c.Material))
			}
		case c.Material != "":
			errs = append(errs, fmt.Errorf("%s: material %q on a script component", path, c.Material))
		}
	}
	for i := range e.Children {
		errs = f.validateEntity(&e.Children[i], path, errs)
	}
	return errs
}

func displayPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

func (m MeshEntry) validate() error {
	if m.Primitive != "" {
		if len(m.Positions) > 0 || len(m.Indices) > 0 {
			return errors.New("primitive meshes take no inline data")
		}
		switch m.Primitive {
		case "cube", "quad":
			return nil
		default:
			return fmt.Errorf("unknown primitive %q", m.Primitive)
		}
	}
	if len(m.Positions) == 0 {
		return errors.New("no positions")
	}
	if len(m.Normals) != 0 && len(m.Normals) != len(m.Positions) {
		return fmt.Errorf("%d normals for %d positions", len(m.Normals), len(m.Positions))
	}
	if len(m.UVs) != 0 && len(m.UVs) != len(m.Positions) {
		return fmt.Errorf("%d uvs for %d positions", len(m.UVs), len(m.Positions))
	}
	if len(m.Indices)%3 != 0 {
		return fmt.Errorf("index count %d is not a multiple of 3", len(m.Indices))
	}
	for _, i := range m.Indices {
		if int(i) >= len(m.Positions) {
			return fmt.Errorf("index %d out of range for %d positions", i, len(m.Positions))
		}
	}
	return nil
}

// Stats summarizes a world file.
type Stats struct {
	Entities  int
	MaxDepth  int
	Scripts   int
	Meshes    int
	Inactive  int
	Resources int
}

func (f *File) Stats() Stats {
	s := Stats{Resources: len(f.Meshes) + len(f.Shaders) + len(f.Textures)}
	var walk func(es []EntityEntry, depth int)
	walk = func(es []EntityEntry, depth int) {
		for i := range es {
			e := &es[i]
			s.Entities++
			s.MaxDepth = max(s.MaxDepth, depth)
			if e.Active != nil && !*e.Active {
				s.Inactive++
			}
			for _, c := range e.Components {
				if c.Script != "" {
					s.Scripts++
				} else {
					s.Meshes++
				}
			}
			walk(e.Children, depth+1)
		}
	}
	walk(f.Entities, 1)
	return s
}

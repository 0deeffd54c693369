// Package handbook loads a handbook directory: the Agent.yaml manifest,
// the instructions document, the OpenAPI specs the manifest points at, and
// the Markdown documentation corpus.
//
// Layout:
//
//	<root>/
//	  Agent.yaml          manifest (apis, guardrails, releases)
//	  instructions.md     free-form instructions
//	  openapi/*.yaml|yml  one file per API
//	  docs/**             markdown corpus
//
// Anything outside these locations is ignored.
package handbook

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/onemcp/onemcp/pkg/graph"
)

const (
	ManifestFileName     = "Agent.yaml"
	InstructionsFileName = "instructions.md"
	openAPIDir           = "openapi"
	docsDir              = "docs"
)

// docExtensions are the documentation file types picked up under docs/.
var docExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".mdx":      true,
	".txt":      true,
}

// APIRef is one entry of the manifest's apis list.
type APIRef struct {
	Name string `yaml:"name"`
	// Spec is the spec file path relative to the handbook root. When empty
	// the file is resolved as openapi/<name>.yaml.
	Spec        string `yaml:"spec"`
	Description string `yaml:"description"`
}

// Manifest is the parsed Agent.yaml. Guardrails and releases are opaque to
// indexing and retained only for callers that want them.
type Manifest struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Apis        []APIRef  `yaml:"apis"`
	Guardrails  yaml.Node `yaml:"guardrails"`
	Releases    yaml.Node `yaml:"releases"`
}

// Service is one API the handbook declares, with its spec loaded.
type Service struct {
	Name string
	// Slug is the sanitized service identifier used in node keys and
	// retrieval referral paths.
	Slug     string
	SpecPath string
	SpecData []byte
}

// DocFile is one documentation file found under docs/.
type DocFile struct {
	// RelPath is the path relative to the handbook root, slash-separated.
	RelPath string
	Content string
}

// Handbook is a fully loaded handbook directory.
type Handbook struct {
	Root         string
	Manifest     Manifest
	Instructions string
	Services     []Service
	Docs         []DocFile
}

// Name returns the handbook name: the manifest name when set, otherwise the
// root directory's base name.
func (h *Handbook) Name() string {
	if h.Manifest.Name != "" {
		return h.Manifest.Name
	}
	return filepath.Base(h.Root)
}

// Load reads the handbook at root. A missing manifest is an error; a missing
// instructions file or docs directory is not. Spec files are bounded by the
// manifest's apis list: OpenAPI files the manifest does not mention are
// ignored.
func Load(root string) (*Handbook, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("handbook root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("handbook root %s is not a directory", root)
	}

	manifest, err := LoadManifest(filepath.Join(root, ManifestFileName))
	if err != nil {
		return nil, err
	}

	h := &Handbook{Root: root, Manifest: *manifest}

	if data, err := os.ReadFile(filepath.Join(root, InstructionsFileName)); err == nil {
		h.Instructions = string(data)
	}

	if h.Services, err = loadServices(root, manifest.Apis); err != nil {
		return nil, err
	}
	if h.Docs, err = loadDocs(root); err != nil {
		return nil, err
	}
	return h, nil
}

// LoadManifest parses one Agent.yaml.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	for i, api := range m.Apis {
		if api.Name == "" && api.Spec == "" {
			return nil, fmt.Errorf("manifest %s: apis[%d] has neither name nor spec", path, i)
		}
	}
	return &m, nil
}

func loadServices(root string, apis []APIRef) ([]Service, error) {
	services := make([]Service, 0, len(apis))
	for _, api := range apis {
		specPath := api.Spec
		if specPath == "" {
			specPath = resolveSpecPath(root, api.Name)
			if specPath == "" {
				return nil, fmt.Errorf("no spec file found under %s/ for api %q", openAPIDir, api.Name)
			}
		}
		full := filepath.Join(root, filepath.FromSlash(specPath))
		data, err := os.ReadFile(full)
		if err != nil {
			return nil, fmt.Errorf("failed to read spec for api %q: %w", api.Name, err)
		}
		name := api.Name
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(specPath), filepath.Ext(specPath))
		}
		services = append(services, Service{
			Name:     name,
			Slug:     graph.Slugify(name),
			SpecPath: specPath,
			SpecData: data,
		})
	}
	return services, nil
}

// resolveSpecPath finds openapi/<name>.yaml or .yml.
func resolveSpecPath(root, name string) string {
	for _, ext := range []string{".yaml", ".yml"} {
		rel := openAPIDir + "/" + name + ext
		if _, err := os.Stat(filepath.Join(root, rel)); err == nil {
			return rel
		}
	}
	return ""
}

func loadDocs(root string) ([]DocFile, error) {
	dir := filepath.Join(root, docsDir)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	var docs []DocFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !docExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		docs = append(docs, DocFile{RelPath: filepath.ToSlash(rel), Content: string(data)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk docs: %w", err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].RelPath < docs[j].RelPath })
	return docs, nil
}

package compose

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"

	"github.com/dockerbay/dockerbay/internal/core/template"
)

// projectName is only needed to satisfy the loader; it never reaches the
// runtime.
const projectName = "dockerbay"

// =============================================================================
// Parser Functions
// =============================================================================

// ParseTemplates parses Docker Compose YAML into service templates, in the
// order the services are declared.
//
// Mapping rules:
//   - image and command are taken as-is; build is not supported
//   - the first published port's target becomes the exposed port unless the
//     x-dockerbay extension names one; host ports are always auto-assigned
//   - named volumes become private binds, external volumes shared binds
//   - host path binds are shared; relative paths are joined to WorkingDir
//   - depends_on is kept for startup ordering
func ParseTemplates(yamlContent string, opts Options) ([]template.ServiceTemplate, error) {
	if strings.TrimSpace(yamlContent) == "" {
		return nil, ErrEmptyInput
	}

	project, err := loadProject(yamlContent, opts)
	if err != nil {
		return nil, err
	}

	if err := checkUnsupportedFeatures(project); err != nil {
		return nil, err
	}

	if len(project.Services) == 0 {
		return nil, ErrNoServices
	}

	templates := make([]template.ServiceTemplate, 0, len(project.Services))
	for _, name := range serviceOrder(yamlContent, project) {
		tmpl, err := convertService(name, project.Services[name], project, opts)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tmpl)
	}

	return templates, nil
}

// loadProject loads a compose file using compose-go
func loadProject(yamlContent string, opts Options) (*types.Project, error) {
	// Parse YAML into a map first
	var dict map[string]interface{}
	if err := yaml.Unmarshal([]byte(yamlContent), &dict); err != nil || dict == nil {
		return nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}

	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		WorkingDir: opts.WorkingDir,
		ConfigFiles: []types.ConfigFile{
			{
				Content: []byte(yamlContent),
				Config:  dict,
			},
		},
		Environment: types.Mapping(opts.Environment),
	}, func(o *loader.Options) {
		o.SetProjectName(projectName, false)
		o.SkipNormalization = true
		o.SkipExtends = true
		o.ResolvePaths = false
	})
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "image") && strings.Contains(errStr, "build") {
			return nil, NewParseError("", "service must have an image", ErrServiceNoImage)
		}
		return nil, NewParseError("", errStr, ErrInvalidYAML)
	}

	return project, nil
}

// checkUnsupportedFeatures checks for features with no meaning in an
// ephemeral test environment.
func checkUnsupportedFeatures(project *types.Project) error {
	if len(project.Secrets) > 0 {
		return NewParseError("secrets", "secrets are not supported", ErrUnsupportedFeature)
	}
	if len(project.Configs) > 0 {
		return NewParseError("configs", "configs are not supported", ErrUnsupportedFeature)
	}
	for name, svc := range project.Services {
		if svc.Build != nil {
			return NewParseError("services."+name+".build", "building images is not supported", ErrUnsupportedFeature)
		}
	}
	return nil
}

// serviceOrder returns service names in declaration order. compose-go keeps
// services in a map, so the order is recovered from the YAML node tree.
func serviceOrder(yamlContent string, project *types.Project) []string {
	var names []string
	seen := make(map[string]bool)

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(yamlContent), &doc); err == nil && len(doc.Content) > 0 {
		root := doc.Content[0]
		for i := 0; root.Kind == yaml.MappingNode && i+1 < len(root.Content); i += 2 {
			if root.Content[i].Value != "services" || root.Content[i+1].Kind != yaml.MappingNode {
				continue
			}
			services := root.Content[i+1]
			for j := 0; j+1 < len(services.Content); j += 2 {
				name := services.Content[j].Value
				if _, ok := project.Services[name]; ok && !seen[name] {
					names = append(names, name)
					seen[name] = true
				}
			}
		}
	}

	// Anything the node walk missed goes last, sorted.
	var rest []string
	for name := range project.Services {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

// convertService converts a compose-go service to a service template
func convertService(name string, svc types.ServiceConfig, project *types.Project, opts Options) (template.ServiceTemplate, error) {
	field := "services." + name

	if svc.Image == "" {
		return template.ServiceTemplate{}, NewParseError(field, "service must have an image", ErrServiceNoImage)
	}

	ext, err := decodeExtension(svc.Extensions[ExtensionKey])
	if err != nil {
		return template.ServiceTemplate{}, NewParseError(field+"."+ExtensionKey, err.Error(), ErrInvalidExtension)
	}

	b := template.NewBuilder().
		WithAlias(name).
		WithImage(svc.Image).
		WaitForLog(ext.WaitForLog).
		WaitForURL(ext.WaitForURL).
		DisplayLogs(ext.DisplayLogs)

	if len(svc.Command) > 0 {
		b.WithCommand(svc.Command...)
	}

	// Environment
	for k, v := range svc.Environment {
		if v != nil {
			b.WithEnv(k, *v)
		}
	}

	// Ports
	exposed := ext.ExposedPort
	if exposed == 0 && len(svc.Ports) > 0 {
		exposed = int(svc.Ports[0].Target)
	}
	b.WithExposedPort(exposed).WithDebugPort(ext.DebugPort)

	// Readiness timeout
	if ext.Timeout != "" {
		d, err := parseTimeout(ext.Timeout)
		if err != nil {
			return template.ServiceTemplate{}, NewParseError(field+"."+ExtensionKey+".timeout", err.Error(), ErrInvalidExtension)
		}
		b.WithTimeout(d)
	}

	// Volumes
	for i, v := range svc.Volumes {
		if err := addVolume(b, v, project, opts); err != nil {
			return template.ServiceTemplate{}, NewParseError(fmt.Sprintf("%s.volumes[%d]", field, i), err.Error(), err)
		}
	}

	// DependsOn
	deps := make([]string, 0, len(svc.DependsOn))
	for dep := range svc.DependsOn {
		deps = append(deps, dep)
	}
	slices.Sort(deps)
	b.DependsOn(deps...)

	tmpl, err := b.Build()
	if err != nil {
		return template.ServiceTemplate{}, NewParseError(field, err.Error(), err)
	}
	return tmpl, nil
}

// addVolume maps one compose volume entry onto a bind.
func addVolume(b *template.Builder, v types.ServiceVolumeConfig, project *types.Project, opts Options) error {
	kind := v.Type
	if kind == "" {
		// Infer type from source
		if strings.HasPrefix(v.Source, ".") || strings.HasPrefix(v.Source, "/") || strings.HasPrefix(v.Source, "~") {
			kind = "bind"
		} else {
			kind = "volume"
		}
	}

	switch kind {
	case "bind":
		source, err := expandHome(v.Source)
		if err != nil {
			return err
		}
		if !filepath.IsAbs(source) {
			if opts.WorkingDir == "" {
				return ErrRelativeBind
			}
			source = filepath.Join(opts.WorkingDir, source)
		}
		b.AddSharedBind(source, v.Target)
	case "volume":
		if v.Source == "" {
			return fmt.Errorf("%w: anonymous volumes are not supported", ErrServiceInvalidVolume)
		}
		vol, declared := project.Volumes[v.Source]
		if declared && bool(vol.External) {
			name := v.Source
			if vol.Name != "" {
				name = vol.Name
			}
			b.AddSharedBind(name, v.Target)
		} else {
			b.AddBind(v.Source, v.Target)
		}
	default:
		return fmt.Errorf("%w: volume type %q", ErrUnsupportedFeature, kind)
	}
	return nil
}

// expandHome replaces a leading "~" with the current user's home directory.
// Other users' homes ("~alice/data") are not resolved.
func expandHome(source string) (string, error) {
	if source != "~" && !strings.HasPrefix(source, "~/") {
		if strings.HasPrefix(source, "~") {
			return "", fmt.Errorf("%w: %q", ErrRelativeBind, source)
		}
		return source, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrRelativeBind, source, err)
	}
	return filepath.Join(home, strings.TrimPrefix(source, "~")), nil
}

// decodeExtension re-encodes the raw extension value and decodes it into
// the typed struct, rejecting unknown keys.
func decodeExtension(raw any) (extension, error) {
	var ext extension
	if raw == nil {
		return ext, nil
	}
	data, err := yaml.Marshal(raw)
	if err != nil {
		return ext, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&ext); err != nil {
		return ext, err
	}
	return ext, nil
}

// parseTimeout accepts a Go duration ("90s", "2m") or a plain number of
// seconds.
func parseTimeout(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("timeout %q: %w", s, err)
	}
	return d, nil
}

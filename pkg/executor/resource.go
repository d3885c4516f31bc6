package executor

import (
	"encoding/json"
	"strings"

	"relaycap.dev/pkg/apperrors"
	"relaycap.dev/pkg/capability"
	"relaycap.dev/pkg/registry"
	"relaycap.dev/pkg/utils/context"
)

// ResourceExecutor runs `resources/read`, resolving a concrete URI
// against either a direct resource registration or, failing that, a
// resource template whose prefix (the portion of uriTemplate before its
// first `{`) matches.
type ResourceExecutor struct {
	base      *Base
	resources *registry.Registry
	templates *registry.Registry
}

// NewResourceExecutor builds a ResourceExecutor over the resource and
// resource-template registries.
func NewResourceExecutor(base *Base, resources, templates *registry.Registry) *ResourceExecutor {
	return &ResourceExecutor{base: base, resources: resources, templates: templates}
}

// Read fetches uri's contents from whichever provider registered it (or
// a matching template's provider).
func (e *ResourceExecutor) Read(ctx context.T, uri string) (json.RawMessage, error) {
	info := e.resolve(uri)
	if info == nil {
		return nil, apperrors.Errorf(apperrors.ErrValidation, "unknown resource %q", uri)
	}
	return e.base.Execute(ctx, info, "resources/read", map[string]any{"uri": uri})
}

func (e *ResourceExecutor) resolve(uri string) *capability.Info {
	for _, info := range e.resources.List() {
		if info.Resource != nil && info.Resource.URI == uri {
			return info
		}
	}
	var best *capability.Info
	bestLen := -1
	for _, info := range e.templates.List() {
		if info.Template == nil {
			continue
		}
		prefix := templatePrefix(info.Template.URITemplate)
		if strings.HasPrefix(uri, prefix) && len(prefix) > bestLen {
			best = info
			bestLen = len(prefix)
		}
	}
	return best
}

// templatePrefix returns the literal portion of a URI template before
// its first `{var}` placeholder.
func templatePrefix(uriTemplate string) string {
	if i := strings.IndexByte(uriTemplate, '{'); i >= 0 {
		return uriTemplate[:i]
	}
	return uriTemplate
}

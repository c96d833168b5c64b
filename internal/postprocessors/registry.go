package postprocessors

import (
	"fmt"

	"github.com/custodia-labs/corpus/internal/core/ports/driven"
)

// BuilderFunc creates a PostProcessor from its configuration map.
type BuilderFunc func(cfg map[string]any) (driven.PostProcessor, error)

// Stage names a processor and carries its configuration. A pipeline is
// described as an ordered list of stages.
type Stage struct {
	Name   string
	Config map[string]any
}

// Registry maps processor names to builders so pipelines can be
// assembled from configuration.
type Registry struct {
	builders map[string]BuilderFunc
}

// NewRegistry creates an empty processor registry.
func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[string]BuilderFunc),
	}
}

// Register adds a builder under the given name, replacing any previous
// registration for that name.
func (r *Registry) Register(name string, builder BuilderFunc) {
	r.builders[name] = builder
}

// Build creates a single processor by name with the given config.
func (r *Registry) Build(name string, cfg map[string]any) (driven.PostProcessor, error) {
	builder, ok := r.builders[name]
	if !ok {
		return nil, fmt.Errorf("unknown processor: %s", name)
	}
	return builder(cfg)
}

// BuildPipeline assembles a pipeline from the stages, in order.
func (r *Registry) BuildPipeline(stages ...Stage) (*Pipeline, error) {
	pipeline := NewPipeline()
	for _, stage := range stages {
		processor, err := r.Build(stage.Name, stage.Config)
		if err != nil {
			return nil, err
		}
		pipeline.Add(processor)
	}
	return pipeline, nil
}

// Has reports whether a processor name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.builders[name]
	return ok
}

// Names returns all registered processor names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	return names
}

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/openfroyo/fftwprov/pkg/provision"
)

// Recipe is a Starlark script consulted before each configure run. It sees the
// predeclared names variant, library, target and version and may set
// configure_args (a list of strings) and env (a dict of strings).
//
//	def _args():
//	    args = ["--enable-sse2"] if target.startswith("x86_64") else []
//	    if variant == "single":
//	        args.append("--enable-avx")
//	    return args
//
//	configure_args = _args()
//	env = {"CFLAGS": "-O3"}
//
// Top-level if and for statements are not allowed; use a function.
type Recipe struct {
	path      string
	script    string
	evaluator *StarlarkEvaluator
	registry  *SchemaRegistry
}

// LoadRecipe reads the recipe at path.
func LoadRecipe(path string, evaluator *StarlarkEvaluator, registry *SchemaRegistry) (*Recipe, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe: %w", err)
	}
	return &Recipe{
		path:      path,
		script:    string(content),
		evaluator: evaluator,
		registry:  registry,
	}, nil
}

// Path returns the recipe file path.
func (r *Recipe) Path() string {
	return r.path
}

// Evaluate runs the recipe for one variant and returns its configure arguments and
// KEY=VALUE environment entries, the latter sorted by key.
func (r *Recipe) Evaluate(ctx context.Context, variant provision.Variant, target, version string) ([]string, []string, error) {
	input := map[string]interface{}{
		"variant": variant.Name,
		"library": variant.Library,
		"target":  target,
		"version": version,
	}

	result, err := r.evaluator.Evaluate(ctx, filepath.Base(r.path), r.script, input)
	if err != nil {
		return nil, nil, err
	}

	exported := make(map[string]interface{})
	for _, name := range []string{"configure_args", "env"} {
		if v, ok := result.Output[name]; ok && v != nil {
			exported[name] = v
		}
	}
	if err := r.registry.ValidateAgainstSchema(ctx, SchemaRecipe, exported); err != nil {
		return nil, nil, fmt.Errorf("recipe %s: %w", r.path, err)
	}

	var args []string
	if list, ok := exported["configure_args"].([]interface{}); ok {
		for _, item := range list {
			args = append(args, item.(string))
		}
	}

	var env []string
	if dict, ok := exported["env"].(map[string]interface{}); ok {
		keys := make([]string, 0, len(dict))
		for k := range dict {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			env = append(env, k+"="+dict[k].(string))
		}
	}

	return args, env, nil
}

// Hook adapts the recipe to a provision.ConfigureHook for target and version.
func (r *Recipe) Hook(target, version string) provision.ConfigureHook {
	return func(ctx context.Context, variant provision.Variant) ([]string, []string, error) {
		return r.Evaluate(ctx, variant, target, version)
	}
}

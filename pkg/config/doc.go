// Package config loads, layers and validates the fftwprov configuration.
//
// # Layering
//
// A Config is built in this order, each layer overriding the previous one:
//
//  1. Default(), which carries the historical FFTW constants
//  2. an optional config file (.yaml/.yml decoded with yaml.v3, or .cue unified with
//     the built-in #File schema)
//  3. the environment: OUT_DIR, TARGET, NUM_JOBS and the FFTWPROV_* variables
//  4. command-line flags, applied by the caller
//
// Loader.Validate then checks the result with go-playground/validator struct tags,
// the checksum parser and the CUE #Config schema, reporting every problem at once.
//
// # Usage Example
//
//	loader := config.NewLoader()
//	cfg, err := loader.Load(flagConfigPath)
//	if err != nil {
//	    return err
//	}
//	if err := loader.Validate(ctx, cfg); err != nil {
//	    return err
//	}
//	opts, err := cfg.Options(loader.SchemaRegistry(), logger)
//
// A CUE config file sets only what it overrides:
//
//	out_dir: "/tmp/fftw"
//	jobs:    8
//	unix: checksum: "sha256:9d9c..."
//	windows: librarian: "llvm-lib"
//
// # Recipes
//
// The recipe field names a Starlark script run once per precision variant before
// configure. It sees variant, library, target and version, and may set
// configure_args and env:
//
//	def _args():
//	    args = ["--enable-sse2"]
//	    if variant == "single":
//	        args.append("--enable-avx")
//	    return args
//
//	configure_args = _args()
//	env = {"CFLAGS": "-O3 -march=native"}
//
// Exports are checked against the #Recipe schema. Evaluation is bounded by a timeout
// and print() output is logged at debug level.
package config

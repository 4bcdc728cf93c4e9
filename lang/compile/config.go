package compile

import "github.com/caarlos0/env/v6"

// Config holds the driver's environment-tunable knobs, populated from
// NATCOMP_* variables the way the teacher's own CLI config structs are
// populated (see internal/maincmd).
type Config struct {
	// BackendLib overrides lang/backend's dlopen target; empty means the
	// default libgccjit.so.0.
	BackendLib string `env:"NATCOMP_BACKEND_LIB"`
	// Debug gates the driver's and emitter's fmt.Fprintf(stderr, ...)
	// diagnostics, mirroring the teacher's debug var in
	// lang/compiler/compiler.go.
	Debug bool `env:"NATCOMP_DEBUG" envDefault:"false"`
	// MaxDepth is a hard ceiling on a compiled function's declared
	// max_depth, independent of and enforced in addition to the
	// per-function value carried in bytecode.CompiledFunction.
	MaxDepth int `env:"NATCOMP_MAX_DEPTH" envDefault:"0"`
}

// LoadConfig reads Config from the process environment.
func LoadConfig() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, newError(ShapeViolation, "", err)
	}
	return c, nil
}

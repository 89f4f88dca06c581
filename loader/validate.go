package loader

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"

	"github.com/wippyai/binsize/errors"
)

// Validate compiles a WebAssembly module with wazero as a strict check on
// top of the structural parse done by Load. It reports type errors, bad
// indices inside function bodies, and other semantic problems the size
// analysis itself does not need to reject. Non-WebAssembly input is an
// InvalidInput error.
func Validate(ctx context.Context, data []byte) error {
	if Detect(data) != FormatWasm {
		return errors.InvalidInput(errors.PhaseLoad, "validation applies to WebAssembly modules only")
	}

	cfg := wazero.NewRuntimeConfigInterpreter().
		WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads).
		WithCloseOnContextDone(true)
	rt := wazero.NewRuntimeWithConfig(ctx, cfg)
	defer func() {
		if err := rt.Close(ctx); err != nil {
			Logger().Debug("closing validation runtime", zap.Error(err))
		}
	}()

	compiled, err := rt.CompileModule(ctx, data)
	if err != nil {
		return errors.New(errors.PhaseLoad, errors.KindMalformed).
			Cause(err).
			Detail("module failed validation").
			Build()
	}
	return compiled.Close(ctx)
}

// internal/app/bootstrap/hooks.go
package bootstrap

import (
	"github.com/dalemusser/waffle/app"
)

// Hooks wires the authorization service into WAFFLE's lifecycle:
// config, MongoDB, indexes, workers, then the router.
var Hooks = app.Hooks[AppConfig, DBDeps]{
	Name:           "portalauthz",
	LoadConfig:     LoadConfig,
	ValidateConfig: ValidateConfig,
	ConnectDB:      ConnectDB,
	EnsureSchema:   EnsureSchema,
	Startup:        Startup,
	BuildHandler:   BuildHandler,
	Shutdown:       Shutdown,
}

//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"Bulwark/internal/biz"
	"Bulwark/internal/conf"
	"Bulwark/internal/data"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp init kratos application.
func wireApp(*conf.Data, *conf.Audit, *conf.Breaker, *conf.Recovery, *conf.Monitor, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(
		data.ProviderSet,
		biz.ProviderSet,
		NewMaintenanceJobs,
		newApp,
	))
}

//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"AIResilience/internal/biz"
	"AIResilience/internal/conf"
	"AIResilience/internal/data"
	"AIResilience/internal/server"
	"AIResilience/internal/service"
	"AIResilience/internal/telemetry"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp init kratos application.
func wireApp(*conf.Bootstrap, *conf.Server, *conf.Data, *conf.Admin, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(
		data.ProviderSet,
		biz.ProviderSet,
		service.ProviderSet,
		server.ProviderSet,
		telemetry.ProviderSet,
		newScheduler,
		newApp,
	))
}

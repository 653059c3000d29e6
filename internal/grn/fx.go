package grn

import (
	"github.com/smallbiznis/kasira/internal/grn/repository"
	"github.com/smallbiznis/kasira/internal/grn/service"
	"go.uber.org/fx"
)

var Module = fx.Module("grn.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

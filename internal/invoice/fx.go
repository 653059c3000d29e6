package invoice

import (
	"github.com/smallbiznis/kasira/internal/invoice/repository"
	"github.com/smallbiznis/kasira/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

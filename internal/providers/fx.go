package providers

import (
	"github.com/smallbiznis/kasira/internal/providers/email"
	"github.com/smallbiznis/kasira/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)

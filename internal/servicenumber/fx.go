package servicenumber

import (
	"github.com/atolldev/billscan/internal/servicenumber/service"
	"go.uber.org/fx"
)

var Module = fx.Module("servicenumber.service",
	fx.Provide(service.NewService),
)

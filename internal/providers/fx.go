package providers

import (
	"github.com/atolldev/billscan/internal/providers/extractor"
	"github.com/atolldev/billscan/internal/providers/filestore"
	"github.com/atolldev/billscan/internal/providers/rasterizer"
	"github.com/atolldev/billscan/internal/providers/slack"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	extractor.Module,
	fx.Provide(
		filestore.NewDiskStore,
		rasterizer.NewPopplerRasterizer,
		slack.NewProvider,
	),
)

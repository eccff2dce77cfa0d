package service_test

import (
	"log/slog"

	"github.com/aussiebroadwan/craftconnect/pkg/slogx"
)

func discardLogger() *slog.Logger { return slogx.Discard() }

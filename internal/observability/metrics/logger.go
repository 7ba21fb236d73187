package metrics

import "github.com/syncwave/syncwave/internal/logger"

var log = logger.Global().Module("observability")

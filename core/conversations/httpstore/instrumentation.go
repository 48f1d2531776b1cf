package httpstore

import "go.opentelemetry.io/otel"

const scopeName = "github.com/koscakluka/ema-voice/core/conversations/httpstore"

var tracer = otel.Tracer(scopeName)

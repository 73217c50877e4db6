package workflow

import "go.opentelemetry.io/otel"

const scopeName = "github.com/koscakluka/ema-voice/core/llms/workflow"

var tracer = otel.Tracer(scopeName)

package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/maneesh/lecturebox/internal/logger"
)

func TestInitTracerWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracer("lecturebox-test", "", "test", logger.Nop())
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "op")
	require.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, shutdown(context.Background()))
}

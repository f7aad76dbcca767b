package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sells-group/listing-resolver/internal/catalog"
	"github.com/sells-group/listing-resolver/internal/model"
	"github.com/sells-group/listing-resolver/internal/orchestrator"
	"github.com/sells-group/listing-resolver/internal/resolve"
)

type constResolver struct{}

func (constResolver) Config() resolve.Config { return resolve.DefaultConfig() }

func (constResolver) ResolveWith(_ context.Context, req model.FieldRequest, _ model.FieldContext, _ resolve.Config) (*resolve.Result, error) {
	return &resolve.Result{Resolution: model.FieldResolution{FieldName: req.FieldName, Value: 1.0, Confidence: 90}}, nil
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

var streamFields = []string{"power_ps", "power_kw", "fuel_type"}

func TestStreamCategory(t *testing.T) {
	defer goleak.VerifyNone(t)

	o := orchestrator.New(constResolver{}, catalog.Default(), orchestrator.Config{})
	var out bytes.Buffer
	require.NoError(t, streamCategory(context.Background(), &out, o, streamFields, model.FieldContext{}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, len(streamFields)+1)
	assert.Contains(t, lines[0], `"field":"power_ps"`)
	assert.JSONEq(t, `{"complete":true,"total":3,"totalProcessed":3,"successCount":3}`, lines[3])
}

func TestStreamCategory_WriteErrorStopsProducer(t *testing.T) {
	defer goleak.VerifyNone(t)

	o := orchestrator.New(constResolver{}, catalog.Default(), orchestrator.Config{InterFieldDelay: time.Hour})
	err := streamCategory(context.Background(), failingWriter{}, o, streamFields, model.FieldContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write event")
}

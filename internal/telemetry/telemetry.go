// Package telemetry wires the OpenTelemetry SDK with stdout exporters and
// exposes the worker counters boltbridge records.
package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const instrumentationName = "boltbridge"

// SetupOTelSDK bootstraps the OpenTelemetry pipeline (traces, metrics,
// logs). The returned shutdown function flushes and stops every provider;
// call it before process exit.
func SetupOTelSDK(ctx context.Context) (func(context.Context) error, error) {
	var shutdownFuncs []func(context.Context) error

	shutdown := func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	handleErr := func(inErr error) (func(context.Context) error, error) {
		return nil, errors.Join(inErr, shutdown(ctx))
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return handleErr(err)
	}
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter))
	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)

	metricExporter, err := stdoutmetric.New()
	if err != nil {
		return handleErr(err)
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter,
			sdkmetric.WithInterval(time.Minute))),
	)
	shutdownFuncs = append(shutdownFuncs, meterProvider.Shutdown)
	otel.SetMeterProvider(meterProvider)

	logExporter, err := stdoutlog.New()
	if err != nil {
		return handleErr(err)
	}
	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
	)
	shutdownFuncs = append(shutdownFuncs, loggerProvider.Shutdown)
	global.SetLoggerProvider(loggerProvider)

	return shutdown, nil
}

// Metrics holds the worker counters.
type Metrics struct {
	tasksTotal       metric.Float64Counter
	tasksSucceeded   metric.Float64Counter
	tasksFailed      metric.Float64Counter
	databaseFailures metric.Float64Counter
}

// NewMetrics registers the worker counters on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	m := &Metrics{}
	var err error

	if m.tasksTotal, err = meter.Float64Counter("worker_tasks_total",
		metric.WithDescription("Total number of tasks orchestrated"),
		metric.WithUnit("{task}")); err != nil {
		return nil, err
	}
	if m.tasksSucceeded, err = meter.Float64Counter("worker_tasks_succeeded",
		metric.WithDescription("Number of tasks that reached completed"),
		metric.WithUnit("{task}")); err != nil {
		return nil, err
	}
	if m.tasksFailed, err = meter.Float64Counter("worker_tasks_failed",
		metric.WithDescription("Number of tasks that reached failed"),
		metric.WithUnit("{task}")); err != nil {
		return nil, err
	}
	if m.databaseFailures, err = meter.Float64Counter("worker_database_update_failures",
		metric.WithDescription("Number of task-store write failures"),
		metric.WithUnit("{failure}")); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordTask counts one finished task.
func (m *Metrics) RecordTask(succeeded bool) {
	ctx := context.Background()
	m.tasksTotal.Add(ctx, 1)
	if succeeded {
		m.tasksSucceeded.Add(ctx, 1)
	} else {
		m.tasksFailed.Add(ctx, 1)
	}
}

// RecordDatabaseFailure counts one failed task-store write.
func (m *Metrics) RecordDatabaseFailure() {
	m.databaseFailures.Add(context.Background(), 1)
}

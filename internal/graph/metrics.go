package graph

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter. Without an SDK installed by the host
// process these are no-ops.
var (
	tracer = otel.Tracer("callreach.graph")
	meter  = otel.Meter("callreach.graph")
)

var (
	shardCacheHits      metric.Int64Counter
	shardCacheMisses    metric.Int64Counter
	shardCacheEvictions metric.Int64Counter
	shardLoadLatency    metric.Float64Histogram
	queryLatency        metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics creates the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		shardCacheHits, err = meter.Int64Counter(
			"callgraph_shard_cache_hits_total",
			metric.WithDescription("Shard lookups served from the LRU cache"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		shardCacheMisses, err = meter.Int64Counter(
			"callgraph_shard_cache_misses_total",
			metric.WithDescription("Shard lookups that required a load from storage"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		shardCacheEvictions, err = meter.Int64Counter(
			"callgraph_shard_cache_evictions_total",
			metric.WithDescription("Shards dropped from the LRU cache for capacity"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		shardLoadLatency, err = meter.Float64Histogram(
			"callgraph_shard_load_duration_seconds",
			metric.WithDescription("Duration of shard reads and decodes"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		queryLatency, err = meter.Float64Histogram(
			"callgraph_query_duration_seconds",
			metric.WithDescription("Duration of reachability queries"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordCacheHit(ctx context.Context) {
	if initMetrics() != nil {
		return
	}
	shardCacheHits.Add(ctx, 1)
}

func recordCacheMiss(ctx context.Context) {
	if initMetrics() != nil {
		return
	}
	shardCacheMisses.Add(ctx, 1)
}

func recordCacheEviction(ctx context.Context) {
	if initMetrics() != nil {
		return
	}
	shardCacheEvictions.Add(ctx, 1)
}

func recordShardLoad(ctx context.Context, d time.Duration, ok bool) {
	if initMetrics() != nil {
		return
	}
	shardLoadLatency.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.Bool("success", ok)),
	)
}

func recordQuery(ctx context.Context, queryType string, d time.Duration, results int) {
	if initMetrics() != nil {
		return
	}
	queryLatency.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("query_type", queryType),
			attribute.Int("results", results),
		),
	)
}

// startQuerySpan opens a span for a reachability query.
func startQuerySpan(ctx context.Context, queryType string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("callgraph.query_type", queryType))
	return tracer.Start(ctx, "Engine."+queryType, trace.WithAttributes(attrs...))
}

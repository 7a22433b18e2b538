// Copyright 2026 The CloudSync Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes OpenTelemetry instruments for the IDB's
// operations, index sizes, and cache hit rate, exported to Prometheus.
package metrics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// OpKey annotates the IDB operation name (get, child, children, ...).
	OpKey = "idb_op"

	// KindKey annotates an error Kind from package cserr.
	KindKey = "error_kind"

	// CacheHitKey annotates whether a by_handle/by_id lookup hit in memory.
	CacheHitKey = "cache_hit"
)

var (
	idbMeter = otel.Meter("cloudsync/idb")

	opAttrSets    sync.Map
	errAttrSets   sync.Map
	cacheAttrSets sync.Map
)

func attrSet(mp *sync.Map, key string, attrs ...attribute.KeyValue) metric.MeasurementOption {
	if v, ok := mp.Load(key); ok {
		return v.(metric.MeasurementOption)
	}
	opt := metric.WithAttributeSet(attribute.NewSet(attrs...))
	v, _ := mp.LoadOrStore(key, opt)
	return v.(metric.MeasurementOption)
}

func opAttrs(op string) metric.MeasurementOption {
	return attrSet(&opAttrSets, op, attribute.String(OpKey, op))
}

func errAttrs(kind string) metric.MeasurementOption {
	return attrSet(&errAttrSets, kind, attribute.String(KindKey, kind))
}

func cacheAttrs(hit bool) metric.MeasurementOption {
	key := "miss"
	if hit {
		key = "hit"
	}
	return attrSet(&cacheAttrSets, key, attribute.Bool(CacheHitKey, hit))
}

var (
	opLatency, _    = idbMeter.Float64Histogram("idb.op.latency_ms")
	opErrors, _     = idbMeter.Int64Counter("idb.op.errors")
	indexSize, _    = idbMeter.Int64Gauge("idb.index.size")
	lookupsTotal, _ = idbMeter.Int64Counter("idb.lookups")
)

// RecordOp reports the latency of one IDB operation.
func RecordOp(ctx context.Context, op string, start time.Time) {
	opLatency.Record(ctx, float64(time.Since(start).Microseconds())/1000.0, opAttrs(op))
}

// RecordError reports that op failed with the given error kind name.
func RecordError(ctx context.Context, op string, kind string) {
	opErrors.Add(ctx, 1, errAttrs(kind), opAttrs(op))
}

// RecordIndexSize reports the current size of a named in-memory index
// (by_handle, by_id, by_parent_and_name, by_bind_handle).
func RecordIndexSize(ctx context.Context, index string, size int64) {
	indexSize.Record(ctx, size, attrSet(&opAttrSets, "index:"+index, attribute.String("index", index)))
}

// RecordLookup reports whether a get() resolved from the in-memory index.
func RecordLookup(ctx context.Context, hit bool) {
	lookupsTotal.Add(ctx, 1, cacheAttrs(hit))
}

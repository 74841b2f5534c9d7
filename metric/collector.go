/*
 * Copyright 2019 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package metric

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/CovenantSQL/explog/explog"
	"github.com/CovenantSQL/explog/rpc"
)

// EngineSource provides engine counters.
type EngineSource interface {
	Stats() explog.Stats
}

// ServerSource provides rpc server counters.
type ServerSource interface {
	Stats() rpc.ServerStats
}

type snapshot struct {
	engine explog.Stats
	server rpc.ServerStats
}

// explogStatsMetrics provide description, value, and value type for explog stat metrics.
type explogStatsMetrics []struct {
	desc    *prometheus.Desc
	eval    func(*snapshot) float64
	valType prometheus.ValueType
	server  bool
}

// ExplogCollector collects engine and rpc server metrics.
type ExplogCollector struct {
	engine EngineSource
	server ServerSource

	// metrics to describe and collect
	metrics explogStatsMetrics
}

func explogStatNamespace(s string) string {
	return fmt.Sprintf("explog_%s", s)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// NewExplogCollector returns a new ExplogCollector, server may be nil.
func NewExplogCollector(engine EngineSource, server ServerSource) *ExplogCollector {
	return &ExplogCollector{
		engine: engine,
		server: server,
		metrics: explogStatsMetrics{
			{
				desc: prometheus.NewDesc(
					explogStatNamespace("log_records_total"),
					"Log records written",
					nil, nil,
				),
				eval:    func(s *snapshot) float64 { return float64(s.engine.Logs) },
				valType: prometheus.CounterValue,
			},
			{
				desc: prometheus.NewDesc(
					explogStatNamespace("log_failures_total"),
					"Log calls that failed",
					nil, nil,
				),
				eval:    func(s *snapshot) float64 { return float64(s.engine.LogFailures) },
				valType: prometheus.CounterValue,
			},
			{
				desc: prometheus.NewDesc(
					explogStatNamespace("auto_streams_total"),
					"Streams created on first use",
					nil, nil,
				),
				eval:    func(s *snapshot) float64 { return float64(s.engine.AutoStreams) },
				valType: prometheus.CounterValue,
			},
			{
				desc: prometheus.NewDesc(
					explogStatNamespace("commits_total"),
					"Store commits",
					nil, nil,
				),
				eval:    func(s *snapshot) float64 { return float64(s.engine.Commits) },
				valType: prometheus.CounterValue,
			},
			{
				desc: prometheus.NewDesc(
					explogStatNamespace("debug_dropped_total"),
					"Diagnostics not mirrored into the store",
					nil, nil,
				),
				eval:    func(s *snapshot) float64 { return float64(s.engine.DroppedDebug) },
				valType: prometheus.CounterValue,
			},
			{
				desc: prometheus.NewDesc(
					explogStatNamespace("in_run"),
					"Whether a run is active",
					nil, nil,
				),
				eval:    func(s *snapshot) float64 { return boolValue(s.engine.InRun) },
				valType: prometheus.GaugeValue,
			},
			{
				desc: prometheus.NewDesc(
					explogStatNamespace("log_rate1"),
					"One-minute moving rate of log records per second",
					nil, nil,
				),
				eval:    func(s *snapshot) float64 { return s.engine.LogRate },
				valType: prometheus.GaugeValue,
			},
			{
				desc: prometheus.NewDesc(
					explogStatNamespace("rpc_calls_total"),
					"Request/reply calls served",
					nil, nil,
				),
				eval:    func(s *snapshot) float64 { return float64(s.server.Calls) },
				valType: prometheus.CounterValue,
				server:  true,
			},
			{
				desc: prometheus.NewDesc(
					explogStatNamespace("rpc_call_failures_total"),
					"Request/reply calls answered with an error",
					nil, nil,
				),
				eval:    func(s *snapshot) float64 { return float64(s.server.CallFailures) },
				valType: prometheus.CounterValue,
				server:  true,
			},
			{
				desc: prometheus.NewDesc(
					explogStatNamespace("rpc_published_total"),
					"Calls received on the publish endpoint",
					nil, nil,
				),
				eval:    func(s *snapshot) float64 { return float64(s.server.Published) },
				valType: prometheus.CounterValue,
				server:  true,
			},
			{
				desc: prometheus.NewDesc(
					explogStatNamespace("rpc_publish_failures_total"),
					"Published calls that failed",
					nil, nil,
				),
				eval:    func(s *snapshot) float64 { return float64(s.server.PublishFailures) },
				valType: prometheus.CounterValue,
				server:  true,
			},
		},
	}
}

// Describe returns all descriptions of the collector.
func (cc *ExplogCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, i := range cc.metrics {
		if i.server && cc.server == nil {
			continue
		}
		ch <- i.desc
	}
}

// Collect returns the current state of all metrics of the collector.
func (cc *ExplogCollector) Collect(ch chan<- prometheus.Metric) {
	s := &snapshot{engine: cc.engine.Stats()}
	if cc.server != nil {
		s.server = cc.server.Stats()
	}
	for _, i := range cc.metrics {
		if i.server && cc.server == nil {
			continue
		}
		ch <- prometheus.MustNewConstMetric(i.desc, i.valType, i.eval(s))
	}
}

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
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/CovenantSQL/explog/utils/log"
)

// SimpleMetricMap is map from metric name to MetricFamily.
type SimpleMetricMap map[string]*dto.MetricFamily

var crucialMetricNameMap = map[string]string{
	"explog_log_records_total":       "log_records",
	"explog_log_failures_total":      "log_failures",
	"explog_auto_streams_total":      "auto_streams",
	"explog_commits_total":           "commits",
	"explog_in_run":                  "in_run",
	"explog_log_rate1":               "log_rate1",
	"explog_rpc_calls_total":         "rpc_calls",
	"explog_rpc_call_failures_total": "rpc_call_failures",
	"explog_rpc_published_total":     "rpc_published",
}

// Gather gathers g into a SimpleMetricMap.
func Gather(g prometheus.Gatherer) (mm SimpleMetricMap, err error) {
	mfs, err := g.Gather()
	if err != nil {
		err = errors.Wrap(err, "gathering metrics failed")
		return
	}
	mm = make(SimpleMetricMap, len(mfs))
	for _, mf := range mfs {
		mm[mf.GetName()] = mf
	}
	return
}

// FilterCrucialMetrics picks the metrics shown on the metric web, under their short names.
func (mfm SimpleMetricMap) FilterCrucialMetrics() (ret map[string]float64) {
	ret = make(map[string]float64)
	for _, v := range mfm {
		newName, ok := crucialMetricNameMap[v.GetName()]
		if !ok || len(v.GetMetric()) == 0 {
			continue
		}
		var metricVal float64
		switch v.GetType() {
		case dto.MetricType_GAUGE:
			metricVal = v.GetMetric()[0].GetGauge().GetValue()
		case dto.MetricType_COUNTER:
			metricVal = v.GetMetric()[0].GetCounter().GetValue()
		case dto.MetricType_UNTYPED:
			metricVal = v.GetMetric()[0].GetUntyped().GetValue()
		default:
			continue
		}
		ret[newName] = metricVal
	}
	log.Debugf("crucial metric added: %v", ret)

	return
}

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

// Package metric exposes explog counters to prometheus and the expvar metric web.
package metric

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/version"

	"github.com/CovenantSQL/explog/utils/log"
)

const (
	// KB is 1024 Bytes
	KB int64 = 1024
	// MB is 1024 KB
	MB int64 = KB * 1024
)

// StartMetricCollector returns a registry holding the explog collector, the go runtime collector
// and the build version. server may be nil.
func StartMetricCollector(engine EngineSource, server ServerSource) (registry *prometheus.Registry, err error) {
	registry = prometheus.NewRegistry()
	for name, c := range map[string]prometheus.Collector{
		"explog":  NewExplogCollector(engine, server),
		"go":      prometheus.NewGoCollector(),
		"version": version.NewCollector("explog"),
	} {
		if err = registry.Register(c); err != nil {
			return nil, errors.Wrapf(err, "register %s collector failed", name)
		}
		log.WithField("collector", name).Debug("enabled collector")
	}
	return
}

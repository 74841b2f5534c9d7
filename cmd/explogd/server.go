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

package main

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"

	"github.com/CovenantSQL/explog/conf"
	"github.com/CovenantSQL/explog/explog"
	"github.com/CovenantSQL/explog/metric"
	"github.com/CovenantSQL/explog/rpc"
	"github.com/CovenantSQL/explog/utils"
	"github.com/CovenantSQL/explog/utils/log"
)

// runServer hosts the engine until it is closed remotely or the process is signalled.
func runServer(c *conf.Config) (err error) {
	ec, err := c.EngineConfig()
	if err != nil {
		return
	}
	e, err := explog.Open(ec)
	if err != nil {
		return errors.Wrap(err, "open engine failed")
	}
	defer func() {
		if cerr := e.Close(); cerr != nil {
			log.WithError(cerr).Error("close engine failed")
		}
	}()

	server, err := rpc.NewServer(e, c.ServerConfig())
	if err != nil {
		return
	}
	go server.Serve()
	defer server.Stop()

	if metricLog {
		go metrics.Log(e.Registry(), 5*time.Second, log.StandardLogger())
	}

	if metricWeb != "" {
		registry, rerr := metric.StartMetricCollector(e, server)
		if rerr != nil {
			return rerr
		}
		w, werr := metric.InitMetricWeb(metricWeb, registry, 0)
		if werr != nil {
			return werr
		}
		defer w.Stop()
	}

	if sig := utils.WaitForExit(server.Done()); sig != nil {
		log.WithField("signal", sig.String()).Info("received signal, shutting down")
	} else {
		log.Info("engine closed remotely")
	}
	return
}

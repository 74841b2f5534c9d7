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
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/davecgh/go-spew/spew"

	"github.com/CovenantSQL/explog/conf"
	"github.com/CovenantSQL/explog/pseudo"
	"github.com/CovenantSQL/explog/utils/log"
)

var (
	version = "1"
	commit  = "unknown"
	branch  = "unknown"
)

var (
	showVersion bool
	configFile  string
	logLevel    string
	metricWeb   string
	metricLog   bool
	mintPseudo  bool
)

const name = `explogd`
const desc = `explogd hosts an experiment log and serves it to local and remote producers`

func init() {
	flag.BoolVar(&showVersion, "version", false, "Show version information and exit")
	flag.StringVar(&configFile, "config", "./config.yaml", "Config file path")
	flag.StringVar(&logLevel, "log-level", "", "Service log level, overrides the config file")
	flag.StringVar(&metricWeb, "metric-web", "", "Address and port to get internal metrics")
	flag.BoolVar(&metricLog, "metric-log", false, "Print metrics in log")
	flag.BoolVar(&mintPseudo, "pseudo", false, "Print a fresh participant pseudonym and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "\n%s\n\n", desc)
		fmt.Fprintf(os.Stderr, "Usage: %s [arguments]\n", name)
		flag.PrintDefaults()
	}
}

func initLogs() {
	log.Infof("%#v starting, version %#v, commit %#v, branch %#v", name, version, commit, branch)
	log.Infof("%#v, target architecture is %#v, operating system target is %#v", runtime.Version(), runtime.GOARCH, runtime.GOOS)
}

func main() {
	flag.Parse()

	if showVersion {
		fmt.Printf("%v %v %v %v %v\n",
			name, version, runtime.GOOS, runtime.GOARCH, runtime.Version())
		os.Exit(0)
	}

	if mintPseudo {
		p, err := pseudo.Get()
		if err != nil {
			log.WithError(err).Fatal("mint pseudonym failed")
		}
		fmt.Println(p)
		os.Exit(0)
	}

	var err error
	conf.GConf, err = conf.LoadConfig(configFile)
	if err != nil {
		log.WithField("config", configFile).WithError(err).Fatal("load config failed")
	}
	if logLevel == "" {
		logLevel = conf.GConf.LogLevel
	}
	log.SetStringLevel(logLevel, log.InfoLevel)

	flag.Visit(func(f *flag.Flag) {
		log.Infof("args %#v : %s", f.Name, f.Value)
	})
	if log.GetLevel() >= log.DebugLevel {
		spewCfg := spew.NewDefaultConfig()
		spewCfg.MaxDepth = 4
		log.Debugf("config:\n%s", spewCfg.Sdump(conf.GConf))
	}

	initLogs()

	if err = runServer(conf.GConf); err != nil {
		log.WithError(err).Fatal("run explog server failed")
	}

	log.Info("server stopped")
}

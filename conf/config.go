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

package conf

import (
	"fmt"
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/CovenantSQL/explog/explog"
	"github.com/CovenantSQL/explog/rpc"
	"github.com/CovenantSQL/explog/store"
	"github.com/CovenantSQL/explog/utils"
	"github.com/CovenantSQL/explog/utils/log"
)

// NTPConfig holds the clock synchronization options.
type NTPConfig struct {
	Enabled bool     `yaml:"Enabled"`
	Servers []string `yaml:"Servers"`
	Queries int      `yaml:"Queries"`
}

// RPCConfig holds the server endpoints.
type RPCConfig struct {
	ListenAddr   string        `yaml:"ListenAddr"`
	PublishAddr  string        `yaml:"PublishAddr"`
	PollInterval time.Duration `yaml:"PollInterval"`
	PublishQueue int           `yaml:"PublishQueue"`
}

// Config holds all the config read from yaml config file
type Config struct {
	DBPath string `yaml:"DBPath"`
	// Autocommit is "never", "always" or a flush interval like "10s".
	Autocommit string    `yaml:"Autocommit"`
	NTP        NTPConfig `yaml:"NTP"`
	RPC        RPCConfig `yaml:"RPC"`

	AutoStart bool                   `yaml:"AutoStart"`
	RunConfig map[string]interface{} `yaml:"RunConfig"`
	TestRun   bool                   `yaml:"TestRun"`

	LogLevel      string `yaml:"LogLevel"`
	DebugLogLevel string `yaml:"DebugLogLevel"`
}

// GConf is the global config pointer
var GConf *Config

// DefaultConfig returns the config used for every key a config file leaves out.
func DefaultConfig() *Config {
	return &Config{
		DBPath:     DefaultDBPath,
		Autocommit: DefaultAutocommit,
		NTP: NTPConfig{
			Enabled: true,
			Queries: DefaultNTPQueries,
		},
		RPC: RPCConfig{
			ListenAddr:   DefaultListenAddr,
			PublishAddr:  DefaultPublishAddr,
			PollInterval: rpc.DefaultPollInterval,
			PublishQueue: rpc.DefaultPublishQueue,
		},
		AutoStart:     true,
		LogLevel:      "info",
		DebugLogLevel: "warning",
	}
}

// LoadConfig loads config from configPath
func LoadConfig(configPath string) (config *Config, err error) {
	configBytes, err := ioutil.ReadFile(configPath)
	if err != nil {
		log.WithError(err).Error("read config file failed")
		return
	}
	config = DefaultConfig()
	if err = yaml.Unmarshal(configBytes, config); err != nil {
		log.WithError(err).Error("unmarshal config file failed")
		return
	}
	if err = config.normalize(); err != nil {
		log.WithError(err).Error("invalid config")
		return
	}
	return
}

func (c *Config) normalize() (err error) {
	c.DBPath = utils.HomeDirExpand(c.DBPath)
	if c.DBPath == "" {
		return errors.New("empty DBPath")
	}
	if _, err = store.ParseAutocommit(c.Autocommit); err != nil {
		return
	}
	if c.RPC.PollInterval <= 0 {
		c.RPC.PollInterval = rpc.DefaultPollInterval
	}
	if c.RPC.PublishQueue <= 0 {
		c.RPC.PublishQueue = rpc.DefaultPublishQueue
	}
	if c.NTP.Queries <= 0 {
		c.NTP.Queries = DefaultNTPQueries
	}
	if c.RunConfig != nil {
		var v interface{}
		if v, err = stringKeys(c.RunConfig); err != nil {
			return errors.Wrap(err, "invalid RunConfig")
		}
		c.RunConfig = v.(map[string]interface{})
	}
	return
}

// stringKeys converts the map[interface{}]interface{} values yaml produces for nested
// mappings into JSON encodable maps.
func stringKeys(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			ev, err := stringKeys(e)
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(k)] = ev
		}
		return out, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			ev, err := stringKeys(e)
			if err != nil {
				return nil, err
			}
			out[k] = ev
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			ev, err := stringKeys(e)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	}
	return v, nil
}

// EngineConfig returns the engine open options.
func (c *Config) EngineConfig() (cfg explog.Config, err error) {
	cfg = explog.Config{
		DSN:        c.DBPath,
		NTPSync:    c.NTP.Enabled,
		NTPServers: c.NTP.Servers,
		NTPQueries: c.NTP.Queries,
		AutoStart:  c.AutoStart,
		RunConfig:  c.RunConfig,
		TestRun:    c.TestRun,
	}
	if cfg.Autocommit, err = store.ParseAutocommit(c.Autocommit); err != nil {
		return
	}
	if cfg.DebugLogLevel, err = log.ParseLevel(c.DebugLogLevel); err != nil {
		err = errors.Wrapf(err, "invalid DebugLogLevel %q", c.DebugLogLevel)
	}
	return
}

// ServerConfig returns the rpc server options.
func (c *Config) ServerConfig() rpc.ServerConfig {
	return rpc.ServerConfig{
		ListenAddr:   c.RPC.ListenAddr,
		PublishAddr:  c.RPC.PublishAddr,
		PollInterval: c.RPC.PollInterval,
	}
}

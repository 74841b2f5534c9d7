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

// Defaults for keys missing from the config file.
const (
	DefaultDBPath      = "~/.explog/experiment.db"
	DefaultAutocommit  = "10s"
	DefaultNTPQueries  = 3
	DefaultListenAddr  = "127.0.0.1:3149"
	DefaultPublishAddr = "127.0.0.1:3150"
)

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

package explog

import (
	"os"
	"runtime"
)

// hostInfo describes the machine a run was executed on.
func hostInfo() map[string]interface{} {
	hostname, _ := os.Hostname()
	return map[string]interface{}{
		"node":    hostname,
		"system":  runtime.GOOS,
		"machine": runtime.GOARCH,
		"cpus":    runtime.NumCPU(),
		"go":      runtime.Version(),
		"pid":     os.Getpid(),
	}
}

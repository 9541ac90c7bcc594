/*
 * Copyright 2025 CloudWeGo Authors
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

package blockpool

import (
	"log"
	"os"
)

// Failures are reported as a single diagnostic line; callers detect
// them through the nil sentinel, no error values are returned.
var diagLog = log.New(os.Stderr, "", 0)

func errorf(format string, v ...interface{}) {
	diagLog.Printf("MEMPOOL_ERROR: "+format, v...)
}

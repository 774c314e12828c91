// Copyright 2026 The Xsupervisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package xsupervisor provides a supervisord-like process supervisor.
//
// A Manager is built once from a Config.  It owns one Program per configured
// program name, and each Program owns a fixed number of Process instances
// (numprocs), all sharing the same read-only ProgramConfig.  Every Process
// runs its own small state machine in a dedicated goroutine, as illustrated
// below.
//
//          +-----------------+
//          | CheckingInitial |
//          +--+-----------+--+
//   autostart |           | otherwise
//             |      +----V----+
//             |      | Stopped <-----------------------+
//             |      +----+----+                       |
//             |           | Start                      |
//   +---------V-----------V----------------+      +----+-----+
//   | Executing                            | Stop |          |
//   |   Spawning --> Starting --> Running  +------> Stopping |
//   +-----+---------------------------+----+      +----------+
//         | spawn error,              | exit
//         | early exit                |
//   +-----V-----+               +-----V-----+
//   |  Backoff  <---------------+ restart?  |
//   +--+-----+--+      yes      +-----+-----+
//      |     |                        | no
//      |  +--V----+             +-----V-----+
//      |  | Fatal |             |  Exited   |
//      |  +-------+             +-----------+
//      |
//      +--> Spawning (retry)
//
// Commands (Start, Stop) flow from the Manager down to the instances; state
// transitions flow back up and are reflected in the Manager's serial number,
// its log, and an optional transition Recorder.
//
// Multiple Managers may coexist in one process.  The rest package exposes a
// Manager through an http.Handler, so that it can be registered within an
// existing server.
package xsupervisor

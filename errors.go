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

package xsupervisor

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("No such program")
	ErrFatal            = errors.New("Instance is in fatal state")
	ErrRetriesExhausted = errors.New("Too many start retries")
	ErrShutdown         = errors.New("Supervisor is shut down")
	ErrSpawnFailed      = errors.New("Failed to spawn process")
	ErrPrematureExit    = errors.New("Process exited before it was stable")
	ErrUnexpectedExit   = errors.New("Process exited unexpectedly")
	ErrNoHistory        = errors.New("No history store configured")
)

// ConfigError describes one validation failure in a configuration document.
// Program is empty for errors outside of the programs section.
type ConfigError struct {
	Program string
	Field   string
	Msg     string
}

func (e *ConfigError) Error() string {
	switch {
	case e.Program != "" && e.Field != "":
		return fmt.Sprintf("program %s: %s: %s", e.Program, e.Field, e.Msg)
	case e.Program != "":
		return fmt.Sprintf("program %s: %s", e.Program, e.Msg)
	case e.Field != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	return e.Msg
}

/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package controller

import (
	"errors"

	"github.com/Unbounder1/server-manager/internal/apps"
	"github.com/Unbounder1/server-manager/internal/poll"
	"github.com/Unbounder1/server-manager/internal/power"
)

// ErrorKind groups operation errors into the outcomes a front-end reports.
type ErrorKind string

const (
	KindTimeout            ErrorKind = "timeout"
	KindTransport          ErrorKind = "transport"
	KindRemoteCommand      ErrorKind = "remote-command"
	KindUnknownApplication ErrorKind = "unknown-application"
	KindBadConfig          ErrorKind = "bad-config"
	KindInternal           ErrorKind = "internal"
)

// Classify returns the kind of err. Errors that match none of the known
// kinds are KindInternal.
func Classify(err error) ErrorKind {
	var (
		unknownErr   *apps.UnknownApplicationError
		malformedErr *apps.ConfigMalformedError
		commandErr   *power.CommandFailedError
		transportErr *power.TransportError
	)

	switch {
	case errors.As(err, &unknownErr):
		return KindUnknownApplication
	case errors.As(err, &malformedErr):
		return KindBadConfig
	case errors.As(err, &commandErr):
		return KindRemoteCommand
	case errors.As(err, &transportErr):
		return KindTransport
	case errors.Is(err, poll.ErrTimeout):
		return KindTimeout
	default:
		return KindInternal
	}
}

// Describe is the short user-facing text for a kind.
func (k ErrorKind) Describe() string {
	switch k {
	case KindTimeout:
		return "timed out waiting"
	case KindTransport:
		return "could not connect"
	case KindRemoteCommand:
		return "remote command failed"
	case KindUnknownApplication:
		return "unknown application"
	case KindBadConfig:
		return "bad configuration"
	default:
		return "internal error"
	}
}

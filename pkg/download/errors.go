// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package download

import (
	"fmt"
	"net/http"

	"gitlab.com/tozd/go/errors"
)

// ErrDownloadCancelled is returned only when Cancel was called or the
// caller's context was cancelled. Transport failures never map to it.
var ErrDownloadCancelled = errors.Base("download was cancelled")

// ErrChallengeRejected is wrapped by the TransportError returned when a
// challenge handler cancels or rejects an authentication challenge.
var ErrChallengeRejected = errors.Base("authentication challenge rejected")

// 🌐 TransportError is a network or HTTP level failure
type TransportError struct {
	URL string
	// StatusCode is zero when no response was received
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport error for %s: %d %s: %v", e.URL, e.StatusCode, http.StatusText(e.StatusCode), e.Err)
	}
	return fmt.Sprintf("transport error for %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsCancelled reports whether err is a download cancellation
func IsCancelled(err error) bool {
	return errors.Is(err, ErrDownloadCancelled)
}

// IsTransport reports whether err is a transport failure
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

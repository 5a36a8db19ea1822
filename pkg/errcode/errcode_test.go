// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package errcode

import (
	"errors"
	"fmt"
	"testing"
)

func TestOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, OK},
		{"bare code", Busy, Busy},
		{"wrapped E", fmt.Errorf("outer: %w", New(NotFound, "select", "SET TEMP")), NotFound},
		{"wrapped code", fmt.Errorf("outer: %w", LinkTimeout), LinkTimeout},
		{"plain", errors.New("boom"), Error},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Of(tt.err); got != tt.want {
				t.Errorf("Of() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestE_Is(t *testing.T) {
	err := Wrap(LinkTimeout, "send", errors.New("no ack"))
	if !errors.Is(err, LinkTimeout) {
		t.Error("errors.Is should match the code")
	}
	if errors.Is(err, Busy) {
		t.Error("errors.Is should not match a different code")
	}
	if got := err.Error(); got != "send: link_timeout: no ack" {
		t.Errorf("Error() = %q", got)
	}
}

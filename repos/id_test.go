/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package repos

import (
	"errors"
	"testing"

	"github.com/melodydashora/RepEditor/failures"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		in      string
		want    ID
		wantErr bool
	}{
		{in: "acme/widgets", want: ID{Owner: "acme", Name: "widgets"}},
		{in: " acme/widgets.git ", want: ID{Owner: "acme", Name: "widgets"}},
		{in: "my-org/repo_name.v2", want: ID{Owner: "my-org", Name: "repo_name.v2"}},
		{in: "acme", wantErr: true},
		{in: "/widgets", wantErr: true},
		{in: "acme/", wantErr: true},
		{in: "acme/widgets/extra", wantErr: true},
		{in: "../widgets", wantErr: true},
		{in: "acme/..", wantErr: true},
		{in: "acme/wid gets", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseID(tt.in)
			if tt.wantErr {
				if !errors.Is(err, failures.ErrInvalid) {
					t.Fatalf("ParseID(%q): got err = %v, wanted ErrInvalid", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseID(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseID(%q): got = %+v, wanted = %+v", tt.in, got, tt.want)
			}
			if got.String() != tt.want.Owner+"/"+tt.want.Name {
				t.Errorf("String(): got = %q", got.String())
			}
		})
	}
}

package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cupOJoseph/meatboard/pkg/errors"
)

func TestPrincipal(t *testing.T) {
	a := NewAuthenticator(map[string]string{
		"key-1": "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
	})

	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "valid key", header: "Bearer key-1", want: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
		{name: "missing header", header: "", wantErr: true},
		{name: "not bearer", header: "Basic key-1", wantErr: true},
		{name: "empty token", header: "Bearer ", wantErr: true},
		{name: "unknown key", header: "Bearer nope", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			addr, err := a.Principal(r)
			if tt.wantErr {
				require.Error(t, err)
				appErr, ok := err.(*errors.AppError)
				require.True(t, ok)
				assert.Equal(t, errors.CodeUnauthorized, appErr.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, addr)
		})
	}
}

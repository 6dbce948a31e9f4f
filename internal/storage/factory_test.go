package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renderhub/internal/config"
	"renderhub/internal/pkg/errors"
)

func TestNewProviderLocalFS(t *testing.T) {
	p, err := NewProvider(context.Background(), config.Storage{Provider: "localfs", LocalRoot: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "localfs", p.Provider())
}

func TestNewProviderErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Storage
		code errors.Code
	}{
		{"missing root", config.Storage{Provider: "localfs"}, errors.CodeMissingConfig},
		{"unknown provider", config.Storage{Provider: "s3"}, errors.CodeValidation},
		{"gdrive without credentials", config.Storage{Provider: "gdrive"}, errors.CodeMissingConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(context.Background(), tt.cfg)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))
		})
	}
}

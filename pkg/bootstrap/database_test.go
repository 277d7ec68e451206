package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdlbus/internal/config"
	"pdlbus/internal/logger"
	"pdlbus/pkg/health"
)

func TestPostgresDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.PostgresConfig
		want string
	}{
		{
			name: "plain",
			cfg:  config.PostgresConfig{Host: "db", Port: 5432, User: "pdl", Password: "secret", DBName: "pdlbus", SSLMode: "disable"},
			want: "postgres://pdl:secret@db:5432/pdlbus?sslmode=disable",
		},
		{
			name: "escaped password",
			cfg:  config.PostgresConfig{Host: "db", Port: 5432, User: "pdl", Password: "p@ss/word", DBName: "pdlbus"},
			want: "postgres://pdl:p%40ss%2Fword@db:5432/pdlbus",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PostgresDSN(tt.cfg))
		})
	}
}

func TestDatabaseConnector_LocalIndexOpensNothing(t *testing.T) {
	for _, typ := range []string{"memory", "sqlite", "badger"} {
		t.Run(typ, func(t *testing.T) {
			cfg := &config.Config{Index: config.IndexConfig{Type: typ}}
			registry := health.NewCheckerRegistry()

			dc := NewDatabaseConnector(cfg, logger.NopLogger())
			clients, err := dc.Connect(context.Background(), registry)
			require.NoError(t, err)
			assert.Nil(t, clients.Redis)
			assert.Nil(t, clients.Postgres)
			assert.Nil(t, clients.Mongo)
			assert.Empty(t, registry.Check(context.Background()).Checks)
			assert.Empty(t, dc.Close(context.Background()))
		})
	}
}

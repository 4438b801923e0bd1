package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@localhost:5432/shop?sslmode=disable", migrateURL("postgres://u:p@localhost:5432/shop?sslmode=disable"))
	assert.Equal(t, "pgx5://localhost/shop", migrateURL("postgresql://localhost/shop"))
	assert.Equal(t, "pgx5://already", migrateURL("pgx5://already"))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\% off\_sale \\o/`, escapeLike(`50% off_sale \o/`))
}

func TestValidID(t *testing.T) {
	assert.True(t, validID("5b0c6c2e-2a8b-4c3e-9f0a-0a9b8c7d6e5f"))
	assert.False(t, validID("5f1d7a0e9d3e2a1b2c3d4e5f"))
	assert.False(t, validID(""))
}

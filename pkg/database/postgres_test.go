package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/patient-progress-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5433, User: "app", Password: "secret", Name: "progress", SSLMode: "require"})
	assert.Equal(t, "host=db port=5433 user=app password=secret dbname=progress sslmode=require", dsn)
}

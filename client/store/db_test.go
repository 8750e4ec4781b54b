package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type note struct {
	ID   uint `gorm:"primaryKey"`
	Body string
}

func TestOpenMigratesModels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "test.db")

	db, err := Open(path, &note{})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, Close(db)) })

	require.NoError(t, db.Create(&note{Body: "hello"}).Error)

	var got note
	require.NoError(t, db.First(&got).Error)
	require.Equal(t, "hello", got.Body)
}

func TestCloseNil(t *testing.T) {
	require.NoError(t, Close(nil))
}

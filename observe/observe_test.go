package observe

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	assert := assert.New(t)

	m, err := New(Config{Backend: BackendDouble}, nil)
	assert.NoError(err)
	assert.IsType(&Double{}, m)

	m, err = New(Config{Backend: "transformer"}, nil)
	assert.Nil(m)
	assert.Error(err)

	m, err = New(Config{Backend: BackendGRU, Path: filepath.Join(t.TempDir(), "none.json")}, nil)
	assert.Nil(m)
	assert.Error(err)

	data, err := json.Marshal(randomWeights(2, 3, 4, 2))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "gru.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	m, err = NewLoader(Config{Backend: BackendGRU, Path: path, Workers: 2}, nil)()
	assert.NoError(err)
	assert.IsType(&GRU{}, m)
}

package result

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tableflow/internal/model"
	"tableflow/internal/writer"
)

type fakeWriter struct{}

func (fakeWriter) Write(rows []model.Row, destination string, opts writer.Options) (string, error) {
	return destination, nil
}

func (fakeWriter) WriteAll(main []model.Row, children map[string][]model.Row, baseDir, entity string, opts writer.Options) (map[string]string, error) {
	paths := map[string]string{entity: baseDir + "/" + entity + ".fake"}
	for name := range children {
		paths[name] = baseDir + "/" + name + ".fake"
	}
	return paths, nil
}

func init() {
	Register("fake", func() writer.OneShotWriter { return fakeWriter{} })
}

func TestAllTablesIncludesMainUnderEntity(t *testing.T) {
	r := New("people", []model.Row{{"name": "A"}}, map[string][]model.Row{
		"people_pets": {{"name": "Rex"}},
	})

	all := r.AllTables()
	assert.Contains(t, all, "people")
	assert.Contains(t, all, "people_pets")
}

func TestSaveSingleTableUsesPathDirectly(t *testing.T) {
	r := New("people", []model.Row{{"name": "A"}}, nil)
	out, err := r.Save("out.fake", "", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"out.fake"}, out)
}

func TestSaveMultiTableReturnsPathPerTable(t *testing.T) {
	r := New("people", []model.Row{{"name": "A"}}, map[string][]model.Row{
		"people_pets": {{"name": "Rex"}},
	})

	out, err := r.Save("/base", "fake", nil)
	require.NoError(t, err)
	paths, ok := out.(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "/base/people.fake", paths["people"])
	assert.Equal(t, "/base/people_pets.fake", paths["people_pets"])
}

func TestSaveDetectsFormatFromExtension(t *testing.T) {
	r := New("people", []model.Row{{"name": "A"}}, nil)
	_, err := r.Save("out.fake", "", nil)
	require.NoError(t, err)
}

func TestSaveRejectsUnknownFormat(t *testing.T) {
	r := New("people", []model.Row{{"name": "A"}}, nil)
	_, err := r.Save("out.bogus-format", "", nil)
	assert.Error(t, err)
}

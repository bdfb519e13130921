package patient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDirectoryGet(t *testing.T) {
	d := NewMemoryDirectory(SeedPatients())

	p, err := d.Get(context.Background(), "2")
	require.NoError(t, err)
	assert.Equal(t, "Maria Oliveira", p.Name)
	assert.Contains(t, p.Anamnesis, "TDAH")

	_, err = d.Get(context.Background(), "99")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryDirectoryListIsCopy(t *testing.T) {
	d := NewMemoryDirectory(SeedPatients())

	all, err := d.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	all[0].Name = "x"

	p, err := d.Get(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "João Silva", p.Name)
}

func TestMemoryDirectoryFirst(t *testing.T) {
	p, err := NewMemoryDirectory(SeedPatients()).First(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1", p.ID)

	_, err = NewMemoryDirectory(nil).First(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryDirectoryListFiltersByName(t *testing.T) {
	d := NewMemoryDirectory(SeedPatients())

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"1", "2"}},
		{"maria", []string{"2"}},
		{"SILVA", []string{"1"}},
		{"joão", []string{"1"}},
		{"A", []string{"1", "2"}},
		{"pedro", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := d.List(context.Background(), tt.query)
			require.NoError(t, err)
			ids := []string{}
			for _, p := range got {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

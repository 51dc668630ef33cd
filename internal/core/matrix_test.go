package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMatrix_Dense(t *testing.T) {
	values := [][]float64{{0.9, 0.1}, {0.2, 0.8}, {0.5, 0.5}}
	m, err := NewMatrix([]string{"a", "b", "c"}, []string{"1", "2"}, values)
	require.NoError(t, err)

	r, c := m.Dense().Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 0.8, m.Dense().At(1, 1))
	assert.Equal(t, []float64{0.2, 0.8}, m.RawRow(1))

	row, ok := m.Row("c")
	require.True(t, ok)
	assert.Equal(t, []float64{0.5, 0.5}, row)
	_, ok = m.Row("z")
	assert.False(t, ok)

	// the input slices are copied
	values[0][0] = 0
	assert.Equal(t, 0.9, m.RawRow(0)[0])
}

func TestNewMatrix_Invalid(t *testing.T) {
	_, err := NewMatrix([]string{"a", "a"}, []string{"1"}, [][]float64{{1}, {1}})
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = NewMatrix([]string{"a"}, []string{"1", "2"}, [][]float64{{1}})
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = NewMatrix([]string{"a"}, nil, nil)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestNewMatrix_Empty(t *testing.T) {
	m, err := NewMatrix(nil, []string{"1"}, nil)
	require.NoError(t, err)
	assert.True(t, m.Empty())
	assert.Nil(t, m.Dense())

	m, err = NewMatrix([]string{"a"}, nil, [][]float64{{}})
	require.NoError(t, err)
	assert.True(t, m.Empty())
	assert.Empty(t, m.RawRow(0))

	var nilMatrix *Matrix
	assert.True(t, nilMatrix.Empty())
}

func TestMatrix_SelectRowsAndColumns(t *testing.T) {
	m, err := NewMatrix([]string{"a", "b"}, []string{"1", "2", "3"}, [][]float64{{1, 2, 3}, {4, 5, 6}})
	require.NoError(t, err)

	sub, err := m.SelectRows([]string{"b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, sub.IDs)
	assert.Equal(t, []float64{4, 5, 6}, sub.RawRow(0))

	_, err = m.SelectRows([]string{"x"})
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	cols := m.SelectColumns(map[string]bool{"3": true, "1": true})
	assert.Equal(t, []string{"1", "3"}, cols.Columns)
	assert.Equal(t, []float64{4, 6}, cols.RawRow(1))
}

package di

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConverter(t *testing.T) {
	conv := NewDefaultConverter()

	tests := []struct {
		name   string
		value  any
		target reflect.Type
		want   any
	}{
		{"string to int", "42", reflect.TypeOf(0), 42},
		{"string to bool", "true", reflect.TypeOf(false), true},
		{"string to duration", "2s", durationType, 2 * time.Second},
		{"string to slice", "[1, 2]", reflect.TypeOf([]int(nil)), []int{1, 2}},
		{"int to float", 3, reflect.TypeOf(float64(0)), float64(3)},
		{"any slice to string slice", []any{"a", "b"}, reflect.TypeOf([]string(nil)), []string{"a", "b"}},
		{"nil to zero", nil, reflect.TypeOf(0), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := conv.Convert(tt.value, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := conv.Convert("abc", reflect.TypeOf(0))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConversion)
}

type wrapped struct {
	Name     string
	Count    int
	Internal string `di:"-"`
	Alias    string `di:"nick"`

	hidden int
}

func (w *wrapped) SetHidden(v int) error {
	w.hidden = v
	return nil
}

func TestInstanceWrapperProperties(t *testing.T) {
	c := NewContainer()
	target := &wrapped{}
	w := c.wrap(target)

	assert.True(t, w.IsWritable("name"))
	assert.True(t, w.IsWritable("nick"))
	assert.True(t, w.IsWritable("hidden"))
	assert.False(t, w.IsWritable("internal"))
	assert.False(t, w.IsWritable("alias"))

	pd, ok := w.PropertyDescriptor("hidden")
	require.True(t, ok)
	assert.False(t, pd.IsField())

	require.NoError(t, w.SetPropertyValue("count", "7"))
	require.NoError(t, w.SetPropertyValue("hidden", 3))
	require.NoError(t, w.SetPropertyValue("nick", "n"))
	assert.Equal(t, 7, target.Count)
	assert.Equal(t, 3, target.hidden)
	assert.Equal(t, "n", target.Alias)

	assert.Error(t, w.SetPropertyValue("missing", 1))
}

func TestDecapitalize(t *testing.T) {
	assert.Equal(t, "repo", decapitalize("Repo"))
	assert.Equal(t, "URL", decapitalize("URL"))
	assert.Equal(t, "", decapitalize(""))
}

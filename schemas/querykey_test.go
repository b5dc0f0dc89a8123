package schemas

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateQueryKey_OrderIndependent(t *testing.T) {
	a, err := CreateQueryKey(RequestDescriptor{
		Path:   "/posts",
		Method: MethodGet,
		Options: map[string]any{
			"query":  map[string]any{"page": 1, "limit": 10},
			"params": map[string]any{"id": "abc"},
		},
	})
	require.NoError(t, err)

	b, err := CreateQueryKey(RequestDescriptor{
		Path:   "/posts",
		Method: MethodGet,
		Options: map[string]any{
			"params": map[string]any{"id": "abc"},
			"query":  map[string]any{"limit": 10, "page": 1},
		},
	})
	require.NoError(t, err)

	require.Equal(t, a, b, "semantically equal requests must hash to byte-equal keys")
}

func TestCreateQueryKey_DifferentOptionsDiffer(t *testing.T) {
	a, err := CreateQueryKey(RequestDescriptor{Path: "/posts", Method: MethodGet, Options: map[string]any{"query": map[string]any{"page": 1}}})
	require.NoError(t, err)
	b, err := CreateQueryKey(RequestDescriptor{Path: "/posts", Method: MethodGet, Options: map[string]any{"query": map[string]any{"page": 2}}})
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestCreateQueryKey_PreservesArrayOrder(t *testing.T) {
	a, err := CreateQueryKey(RequestDescriptor{Path: "/posts", Method: MethodGet, Options: map[string]any{"ids": []any{1, 2, 3}}})
	require.NoError(t, err)
	b, err := CreateQueryKey(RequestDescriptor{Path: "/posts", Method: MethodGet, Options: map[string]any{"ids": []any{3, 2, 1}}})
	require.NoError(t, err)
	require.NotEqual(t, a, b, "array element order is semantically meaningful and must not be sorted away")
}

func TestSelfTagFromQueryKey(t *testing.T) {
	key, err := CreateQueryKey(RequestDescriptor{Path: "/posts/1", Method: MethodDelete, Options: nil})
	require.NoError(t, err)

	tag := SelfTagFromQueryKey(key)
	require.NotNil(t, tag)
	require.Equal(t, "/posts/1", *tag)

	method, ok := MethodFromQueryKey(key)
	require.True(t, ok)
	require.Equal(t, MethodDelete, method)
}

func TestSelfTagFromQueryKey_OpaqueKey(t *testing.T) {
	require.Nil(t, SelfTagFromQueryKey("not-json-at-all"))
}

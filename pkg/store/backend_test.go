package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rzbill/tokenvault/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backendFactories lists the backends that must behave identically.
func backendFactories(t *testing.T) map[string]func(t *testing.T) Backend {
	return map[string]func(t *testing.T) Backend{
		"memory": func(t *testing.T) Backend { return NewMemoryBackend() },
		"badger": func(t *testing.T) Backend {
			s, cleanup := setupTestStore(t)
			t.Cleanup(cleanup)
			return s
		},
	}
}

func newObject(name string, data map[string]string, lbls map[string]string) *types.SecretObject {
	return &types.SecretObject{
		Namespace: "tokens",
		Name:      name,
		Type:      "Opaque",
		Labels:    lbls,
		Data:      data,
	}
}

func TestBackendCRUD(t *testing.T) {
	for name, factory := range backendFactories(t) {
		t.Run(name, func(t *testing.T) {
			b := factory(t)
			ctx := context.Background()

			created, err := b.Create(ctx, newObject("616c696365", map[string]string{"id1": "dDE="}, nil))
			require.NoError(t, err)
			assert.NotEmpty(t, created.ResourceVersion)

			_, err = b.Create(ctx, newObject("616c696365", nil, nil))
			assert.True(t, errors.Is(err, types.ErrAlreadyExists), "got %v", err)

			got, err := b.Get(ctx, "tokens", "616c696365")
			require.NoError(t, err)
			assert.Equal(t, map[string]string{"id1": "dDE="}, got.Data)
			assert.Equal(t, "Opaque", got.Type)

			got.Data = map[string]string{}
			updated, err := b.Update(ctx, got)
			require.NoError(t, err)
			assert.NotEqual(t, created.ResourceVersion, updated.ResourceVersion)

			// an object with empty data still exists
			got, err = b.Get(ctx, "tokens", "616c696365")
			require.NoError(t, err)
			assert.Empty(t, got.Data)

			require.NoError(t, b.Delete(ctx, "tokens", "616c696365"))
			_, err = b.Get(ctx, "tokens", "616c696365")
			assert.True(t, IsNotFoundError(err), "got %v", err)

			assert.True(t, IsNotFoundError(b.Delete(ctx, "tokens", "616c696365")))
			_, err = b.Update(ctx, newObject("missing", nil, nil))
			assert.True(t, IsNotFoundError(err))
		})
	}
}

func TestBackendUpdatePrecondition(t *testing.T) {
	for name, factory := range backendFactories(t) {
		t.Run(name, func(t *testing.T) {
			b := factory(t)
			ctx := context.Background()

			created, err := b.Create(ctx, newObject("bob", map[string]string{"a": "b"}, nil))
			require.NoError(t, err)

			first := created.DeepCopy()
			first.Data["c"] = "d"
			_, err = b.Update(ctx, first)
			require.NoError(t, err)

			// a writer still holding the original version loses
			stale := created.DeepCopy()
			stale.Data = map[string]string{}
			_, err = b.Update(ctx, stale)
			assert.True(t, errors.Is(err, types.ErrConflict), "got %v", err)

			// an unconditional write wins
			stale.ResourceVersion = ""
			_, err = b.Update(ctx, stale)
			require.NoError(t, err)
		})
	}
}

func TestBackendListPaging(t *testing.T) {
	for name, factory := range backendFactories(t) {
		t.Run(name, func(t *testing.T) {
			b := factory(t)
			ctx := context.Background()

			for i := 0; i < 7; i++ {
				lbls := map[string]string{"kind": "user-tokens"}
				if i%3 == 0 {
					lbls = map[string]string{"kind": "other"}
				}
				_, err := b.Create(ctx, newObject(fmt.Sprintf("user-%d", i), nil, lbls))
				require.NoError(t, err)
			}
			_, err := b.Create(ctx, &types.SecretObject{Namespace: "elsewhere", Name: "user-9"})
			require.NoError(t, err)

			var names []string
			opts := ListOptions{LabelSelector: "kind=user-tokens", Limit: 2}
			pages := 0
			for {
				page, err := b.List(ctx, "tokens", opts)
				require.NoError(t, err)
				pages++
				for _, item := range page.Items {
					names = append(names, item.Name)
				}
				if page.Continue == "" {
					break
				}
				opts.Continue = page.Continue
			}

			assert.Equal(t, []string{"user-1", "user-2", "user-4", "user-5"}, names)
			assert.Equal(t, 2, pages)

			all, err := b.List(ctx, "tokens", ListOptions{})
			require.NoError(t, err)
			assert.Len(t, all.Items, 7)
			assert.Empty(t, all.Continue)
		})
	}
}

func TestBackendListPagesPastNamesWithSlashes(t *testing.T) {
	for name, factory := range backendFactories(t) {
		t.Run(name, func(t *testing.T) {
			b := factory(t)
			ctx := context.Background()

			for _, n := range []string{"a/b", "a/c/d", "zzz"} {
				_, err := b.Create(ctx, newObject(n, nil, nil))
				require.NoError(t, err)
			}

			var names []string
			opts := ListOptions{Limit: 1}
			for {
				page, err := b.List(ctx, "tokens", opts)
				require.NoError(t, err)
				for _, item := range page.Items {
					names = append(names, item.Name)
				}
				if page.Continue == "" {
					break
				}
				opts.Continue = page.Continue
			}
			assert.Equal(t, []string{"a/b", "a/c/d", "zzz"}, names)
		})
	}
}

func TestBackendListRejectsUnreadableCursor(t *testing.T) {
	for name, factory := range backendFactories(t) {
		t.Run(name, func(t *testing.T) {
			b := factory(t)
			_, err := b.List(context.Background(), "tokens", ListOptions{Continue: "%%%"})
			assert.True(t, errors.Is(err, types.ErrCursorExpired), "got %v", err)

			_, err = b.List(context.Background(), "tokens", ListOptions{LabelSelector: "a in (b"})
			assert.Error(t, err)
		})
	}
}

func TestBackendPatchMetadata(t *testing.T) {
	for name, factory := range backendFactories(t) {
		t.Run(name, func(t *testing.T) {
			b := factory(t)
			ctx := context.Background()

			_, err := b.Create(ctx, newObject("carol", map[string]string{"k": "dg=="}, map[string]string{"a": "1"}))
			require.NoError(t, err)

			patched, err := b.PatchMetadata(ctx, "tokens", "carol", types.ObjectMeta{
				Labels:      map[string]string{"b": "2"},
				Annotations: map[string]string{"note": "rotated"},
			})
			require.NoError(t, err)
			assert.Equal(t, map[string]string{"a": "1", "b": "2"}, patched.Labels)
			assert.Equal(t, "rotated", patched.Annotations["note"])
			assert.Equal(t, map[string]string{"k": "dg=="}, patched.Data)

			_, err = b.PatchMetadata(ctx, "tokens", "nobody", types.ObjectMeta{})
			assert.True(t, IsNotFoundError(err))
		})
	}
}

func TestBackendEnsureNamespaceIsIdempotent(t *testing.T) {
	for name, factory := range backendFactories(t) {
		t.Run(name, func(t *testing.T) {
			b := factory(t)
			require.NoError(t, b.EnsureNamespace(context.Background(), "pai-user-token"))
			require.NoError(t, b.EnsureNamespace(context.Background(), "pai-user-token"))
		})
	}
}

func TestMemoryBackendFaults(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()
	boom := types.NewTransportError("get secret", errors.New("connection refused"))

	b.InjectFault(OpGet, boom, 1)
	_, err := b.Get(ctx, "tokens", "x")
	assert.True(t, types.IsTransportError(err))
	_, err = b.Get(ctx, "tokens", "x")
	assert.True(t, IsNotFoundError(err))
	assert.Equal(t, 2, b.Calls(OpGet))

	for i := 0; i < 3; i++ {
		_, err := b.Create(ctx, newObject(fmt.Sprintf("u%d", i), nil, nil))
		require.NoError(t, err)
	}
	b.ExpireCursors(1)
	page, err := b.List(ctx, "tokens", ListOptions{Limit: 1})
	require.NoError(t, err)
	_, err = b.List(ctx, "tokens", ListOptions{Limit: 1, Continue: page.Continue})
	assert.True(t, errors.Is(err, types.ErrCursorExpired))
	_, err = b.List(ctx, "tokens", ListOptions{Limit: 1, Continue: page.Continue})
	assert.NoError(t, err)

	require.NoError(t, b.EnsureNamespace(ctx, "pai-user-token"))
	assert.True(t, b.HasNamespace("pai-user-token"))
}

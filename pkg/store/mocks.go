package store

import (
	"context"

	"github.com/rzbill/tokenvault/pkg/types"
	"github.com/stretchr/testify/mock"
)

// Validate that MockBackend implements the Backend interface
var _ Backend = &MockBackend{}

// MockBackend is a testify mock of Backend.
type MockBackend struct {
	mock.Mock
}

func objectResult(args mock.Arguments) (*types.SecretObject, error) {
	obj, _ := args.Get(0).(*types.SecretObject)
	return obj, args.Error(1)
}

func (m *MockBackend) Get(ctx context.Context, namespace, name string) (*types.SecretObject, error) {
	return objectResult(m.Called(ctx, namespace, name))
}

func (m *MockBackend) List(ctx context.Context, namespace string, opts ListOptions) (*ListResult, error) {
	args := m.Called(ctx, namespace, opts)
	res, _ := args.Get(0).(*ListResult)
	return res, args.Error(1)
}

func (m *MockBackend) Create(ctx context.Context, obj *types.SecretObject) (*types.SecretObject, error) {
	return objectResult(m.Called(ctx, obj))
}

func (m *MockBackend) Update(ctx context.Context, obj *types.SecretObject) (*types.SecretObject, error) {
	return objectResult(m.Called(ctx, obj))
}

func (m *MockBackend) Delete(ctx context.Context, namespace, name string) error {
	args := m.Called(ctx, namespace, name)
	return args.Error(0)
}

func (m *MockBackend) PatchMetadata(ctx context.Context, namespace, name string, meta types.ObjectMeta) (*types.SecretObject, error) {
	return objectResult(m.Called(ctx, namespace, name, meta))
}

func (m *MockBackend) EnsureNamespace(ctx context.Context, namespace string) error {
	args := m.Called(ctx, namespace)
	return args.Error(0)
}

func (m *MockBackend) Close() error {
	args := m.Called()
	return args.Error(0)
}

package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rzbill/tokenvault/pkg/log"
	"github.com/rzbill/tokenvault/pkg/types"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	k8stypes "k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Validate that KubeBackend implements the Backend interface
var _ Backend = &KubeBackend{}

// SecretsResource is the resource the Kubernetes backend reads and writes.
var SecretsResource = schema.GroupVersionResource{Version: "v1", Resource: "secrets"}

// KubeBackend stores objects as Kubernetes Secrets through the dynamic client.
type KubeBackend struct {
	client    dynamic.Interface
	clientset kubernetes.Interface
	logger    log.Logger
}

// KubeOption configures a KubeBackend.
type KubeOption func(*KubeBackend)

// WithClientset sets the typed client used for namespace management.
func WithClientset(clientset kubernetes.Interface) KubeOption {
	return func(k *KubeBackend) {
		k.clientset = clientset
	}
}

// WithKubeLogger sets the logger.
func WithKubeLogger(logger log.Logger) KubeOption {
	return func(k *KubeBackend) {
		k.logger = logger
	}
}

// NewKubeBackend creates a backend on top of an existing dynamic client.
func NewKubeBackend(client dynamic.Interface, opts ...KubeOption) *KubeBackend {
	k := &KubeBackend{client: client}
	for _, opt := range opts {
		opt(k)
	}
	if k.logger == nil {
		k.logger = log.GetDefaultLogger()
	}
	k.logger = k.logger.WithComponent("store")
	return k
}

// LoadRestConfig loads a client configuration the same way kubectl does: an
// explicit kubeconfig path, then $KUBECONFIG and ~/.kube/config, then the
// in-cluster service account.
func LoadRestConfig(kubeconfig string) (*rest.Config, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	// the loading rules check for empty string in the ExplicitPath, so it is
	// safe to always set this.
	rules.ExplicitPath = kubeconfig
	cfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{}).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load kubernetes client config: %w", err)
	}
	return cfg, nil
}

// NewKubeBackendForConfig builds the dynamic and typed clients for cfg.
func NewKubeBackendForConfig(cfg *rest.Config, logger log.Logger) (*KubeBackend, error) {
	client, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	return NewKubeBackend(client, WithClientset(clientset), WithKubeLogger(logger)), nil
}

// mapKubeError converts API errors into the store's error taxonomy.
func mapKubeError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case apierrors.IsNotFound(err):
		return fmt.Errorf("%s: %w: %v", op, types.ErrNotFound, err)
	case apierrors.IsAlreadyExists(err):
		return fmt.Errorf("%s: %w: %v", op, types.ErrAlreadyExists, err)
	case apierrors.IsConflict(err):
		return fmt.Errorf("%s: %w: %v", op, types.ErrConflict, err)
	case apierrors.IsResourceExpired(err), apierrors.IsGone(err):
		return fmt.Errorf("%s: %w: %v", op, types.ErrCursorExpired, err)
	default:
		return types.NewTransportError(op, err)
	}
}

// toUnstructured renders obj as a v1 Secret.
func toUnstructured(obj *types.SecretObject) (*unstructured.Unstructured, error) {
	u := &unstructured.Unstructured{}
	u.SetAPIVersion("v1")
	u.SetKind("Secret")
	u.SetNamespace(obj.Namespace)
	u.SetName(obj.Name)
	u.SetLabels(obj.Labels)
	u.SetAnnotations(obj.Annotations)
	u.SetResourceVersion(obj.ResourceVersion)
	if obj.Type != "" {
		u.Object["type"] = obj.Type
	}
	data := obj.Data
	if data == nil {
		data = map[string]string{}
	}
	if err := unstructured.SetNestedStringMap(u.Object, data, "data"); err != nil {
		return nil, fmt.Errorf("failed to set secret data: %w", err)
	}
	return u, nil
}

// fromUnstructured reads a v1 Secret.
func fromUnstructured(u *unstructured.Unstructured) (*types.SecretObject, error) {
	data, _, err := unstructured.NestedStringMap(u.Object, "data")
	if err != nil {
		return nil, fmt.Errorf("secret %s/%s has malformed data: %w", u.GetNamespace(), u.GetName(), err)
	}
	typ, _, _ := unstructured.NestedString(u.Object, "type")
	return &types.SecretObject{
		Namespace:       u.GetNamespace(),
		Name:            u.GetName(),
		Type:            typ,
		Labels:          u.GetLabels(),
		Annotations:     u.GetAnnotations(),
		Data:            data,
		ResourceVersion: u.GetResourceVersion(),
	}, nil
}

// Get retrieves a Secret.
func (k *KubeBackend) Get(ctx context.Context, namespace, name string) (*types.SecretObject, error) {
	u, err := k.client.Resource(SecretsResource).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, mapKubeError("get secret "+namespace+"/"+name, err)
	}
	return fromUnstructured(u)
}

// List returns one page of Secrets.
func (k *KubeBackend) List(ctx context.Context, namespace string, opts ListOptions) (*ListResult, error) {
	list, err := k.client.Resource(SecretsResource).Namespace(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: opts.LabelSelector,
		Limit:         opts.Limit,
		Continue:      opts.Continue,
	})
	if err != nil {
		return nil, mapKubeError("list secrets in "+namespace, err)
	}

	result := &ListResult{Continue: list.GetContinue()}
	for i := range list.Items {
		obj, err := fromUnstructured(&list.Items[i])
		if err != nil {
			return nil, err
		}
		result.Items = append(result.Items, obj)
	}
	return result, nil
}

// Create creates a Secret.
func (k *KubeBackend) Create(ctx context.Context, obj *types.SecretObject) (*types.SecretObject, error) {
	u, err := toUnstructured(obj)
	if err != nil {
		return nil, err
	}
	u.SetResourceVersion("")
	created, err := k.client.Resource(SecretsResource).Namespace(obj.Namespace).Create(ctx, u, metav1.CreateOptions{})
	if err != nil {
		return nil, mapKubeError("create secret "+obj.NamespacedName().String(), err)
	}
	return fromUnstructured(created)
}

// Update replaces a Secret. Without a resource version the write is
// unconditional.
func (k *KubeBackend) Update(ctx context.Context, obj *types.SecretObject) (*types.SecretObject, error) {
	u, err := toUnstructured(obj)
	if err != nil {
		return nil, err
	}
	updated, err := k.client.Resource(SecretsResource).Namespace(obj.Namespace).Update(ctx, u, metav1.UpdateOptions{})
	if err != nil {
		return nil, mapKubeError("replace secret "+obj.NamespacedName().String(), err)
	}
	return fromUnstructured(updated)
}

// Delete deletes a Secret.
func (k *KubeBackend) Delete(ctx context.Context, namespace, name string) error {
	err := k.client.Resource(SecretsResource).Namespace(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	return mapKubeError("delete secret "+namespace+"/"+name, err)
}

// PatchMetadata applies a JSON merge patch to the Secret's labels and annotations.
func (k *KubeBackend) PatchMetadata(ctx context.Context, namespace, name string, meta types.ObjectMeta) (*types.SecretObject, error) {
	patch, err := json.Marshal(map[string]interface{}{
		"metadata": map[string]interface{}{
			"labels":      meta.Labels,
			"annotations": meta.Annotations,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build metadata patch: %w", err)
	}
	patched, err := k.client.Resource(SecretsResource).Namespace(namespace).
		Patch(ctx, name, k8stypes.MergePatchType, patch, metav1.PatchOptions{})
	if err != nil {
		return nil, mapKubeError("patch secret "+namespace+"/"+name, err)
	}
	return fromUnstructured(patched)
}

// EnsureNamespace creates the namespace if it is missing. Without a typed
// client it assumes the namespace is managed elsewhere.
func (k *KubeBackend) EnsureNamespace(ctx context.Context, namespace string) error {
	if k.clientset == nil {
		k.logger.Debug("No kubernetes clientset configured, skipping namespace check", log.Str("namespace", namespace))
		return nil
	}

	namespaces := k.clientset.CoreV1().Namespaces()
	_, err := namespaces.Get(ctx, namespace, metav1.GetOptions{})
	if err == nil {
		return nil
	}
	if !apierrors.IsNotFound(err) {
		return mapKubeError("get namespace "+namespace, err)
	}

	_, err = namespaces.Create(ctx, &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{Name: namespace},
	}, metav1.CreateOptions{})
	if err != nil && !apierrors.IsAlreadyExists(err) {
		return mapKubeError("create namespace "+namespace, err)
	}
	k.logger.Info("Created namespace", log.Str("namespace", namespace))
	return nil
}

// Close is a no-op; the clients hold no resources that need releasing.
func (k *KubeBackend) Close() error {
	return nil
}

package types

// NamespacedName identifies an object in the backing store.
type NamespacedName struct {
	Namespace string `json:"namespace" yaml:"namespace"`
	Name      string `json:"name" yaml:"name"`
}

// String returns namespace/name.
func (n NamespacedName) String() string {
	return n.Namespace + "/" + n.Name
}

// SecretObject is a named container of opaque key/value strings held by the
// backing store. Data values are in their stored (encoded) form; Labels,
// Annotations, Type and ResourceVersion are store metadata.
type SecretObject struct {
	Namespace       string            `json:"namespace" yaml:"namespace"`
	Name            string            `json:"name" yaml:"name"`
	Type            string            `json:"type,omitempty" yaml:"type,omitempty"`
	Labels          map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
	Annotations     map[string]string `json:"annotations,omitempty" yaml:"annotations,omitempty"`
	Data            map[string]string `json:"data,omitempty" yaml:"data,omitempty"`
	ResourceVersion string            `json:"resourceVersion,omitempty" yaml:"resourceVersion,omitempty"`
}

// NamespacedName returns the object's identity.
func (s *SecretObject) NamespacedName() NamespacedName {
	return NamespacedName{Namespace: s.Namespace, Name: s.Name}
}

// DeepCopy returns a copy that shares no maps with s.
func (s *SecretObject) DeepCopy() *SecretObject {
	if s == nil {
		return nil
	}
	out := *s
	out.Labels = copyMap(s.Labels)
	out.Annotations = copyMap(s.Annotations)
	out.Data = copyMap(s.Data)
	return &out
}

// ObjectMeta carries the metadata that can be merge-patched without
// touching data.
type ObjectMeta struct {
	Labels      map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty" yaml:"annotations,omitempty"`
}

func copyMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/dgraph-io/badger/v4"
	"github.com/rzbill/tokenvault/pkg/log"
	"github.com/rzbill/tokenvault/pkg/types"
	"k8s.io/apimachinery/pkg/labels"
)

// Validate that BadgerBackend implements the Backend interface
var _ Backend = &BadgerBackend{}

// versionSequenceKey holds the counter used for resource versions.
var versionSequenceKey = []byte("meta/resource-version")

// namespaceKey marks a namespace as created.
func namespaceKey(namespace string) []byte {
	return []byte("namespaces/" + namespace)
}

// BadgerBackend implements the Backend interface using BadgerDB. Objects are
// stored as JSON under secrets/<namespace>/<name>.
type BadgerBackend struct {
	db            *badger.DB
	path          string
	logger        log.Logger
	versions      *badger.Sequence
	encryptionKey []byte
}

// NewBadgerBackend creates a new BadgerDB-backed store.
func NewBadgerBackend(logger log.Logger) *BadgerBackend {
	if logger == nil {
		logger = log.GetDefaultLogger().WithComponent("store")
	} else {
		logger = logger.WithComponent("store")
	}

	return &BadgerBackend{
		logger: logger,
	}
}

// SetEncryptionKey enables AES encryption at rest. It must be called before
// Open; the key must be 16, 24 or 32 bytes.
func (s *BadgerBackend) SetEncryptionKey(key []byte) {
	s.encryptionKey = key
}

// Open opens the BadgerDB database. An empty path opens an in-memory database.
func (s *BadgerBackend) Open(path string) error {
	s.path = path

	// Configure BadgerDB options
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	if len(s.encryptionKey) > 0 {
		// encrypted tables need a block index cache
		opts = opts.WithEncryptionKey(s.encryptionKey).WithIndexCacheSize(16 << 20)
	}
	opts.Logger = &badgerLogAdapter{logger: s.logger}

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("failed to open badger db: %w", err)
	}

	seq, err := db.GetSequence(versionSequenceKey, 100)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to open resource version sequence: %w", err)
	}

	s.db = db
	s.versions = seq
	s.logger.Info("Token store opened", log.Str("path", path), log.Bool("encrypted", len(s.encryptionKey) > 0))
	return nil
}

// Close closes the BadgerDB database.
func (s *BadgerBackend) Close() error {
	if s.db == nil {
		return nil
	}
	s.logger.Info("Closing token store", log.Str("path", s.path))
	if s.versions != nil {
		if err := s.versions.Release(); err != nil {
			s.logger.Warn("Failed to release resource version sequence", log.Err(err))
		}
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *BadgerBackend) nextVersion() (string, error) {
	v, err := s.versions.Next()
	if err != nil {
		return "", types.NewTransportError("next resource version", err)
	}
	// Sequences start at zero; keep versions non-empty and non-zero.
	return strconv.FormatUint(v+1, 10), nil
}

// commit commits txn and maps badger's transaction conflict to ErrConflict.
func commit(txn *badger.Txn, namespace, name string) error {
	err := txn.Commit()
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("secret %s/%s was modified concurrently: %w", namespace, name, types.ErrConflict)
	}
	if err != nil {
		return types.NewTransportError("commit", err)
	}
	return nil
}

func readObject(item *badger.Item) (*types.SecretObject, error) {
	obj := &types.SecretObject{}
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, obj)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize secret: %w", err)
	}
	return obj, nil
}

func writeObject(txn *badger.Txn, obj *types.SecretObject) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to serialize secret: %w", err)
	}
	if err := txn.Set(MakeKey(obj.Namespace, obj.Name), data); err != nil {
		return types.NewTransportError("store secret", err)
	}
	return nil
}

// Get retrieves an object.
func (s *BadgerBackend) Get(ctx context.Context, namespace, name string) (*types.SecretObject, error) {
	txn := s.db.NewTransaction(false)
	defer txn.Discard()

	item, err := txn.Get(MakeKey(namespace, name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, notFound(namespace, name)
	} else if err != nil {
		return nil, types.NewTransportError("get secret", err)
	}
	return readObject(item)
}

// List returns a page of objects in key order. The continue token encodes
// the last returned name, so a page boundary survives concurrent writes.
func (s *BadgerBackend) List(ctx context.Context, namespace string, opts ListOptions) (*ListResult, error) {
	sel, err := parseSelector(opts.LabelSelector)
	if err != nil {
		return nil, err
	}

	prefix := MakePrefix(namespace)
	start := prefix
	after := ""
	if opts.Continue != "" {
		if after, err = decodeCursor(opts.Continue); err != nil {
			return nil, err
		}
		start = MakeKey(namespace, after)
	}

	txn := s.db.NewTransaction(false)
	defer txn.Discard()

	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	result := &ListResult{}
	for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, name, ok := ParseKey(it.Item().Key())
		if !ok || (after != "" && name <= after) {
			continue
		}

		obj, err := readObject(it.Item())
		if err != nil {
			return nil, err
		}
		if !sel.Matches(labels.Set(obj.Labels)) {
			continue
		}
		if opts.Limit > 0 && int64(len(result.Items)) == opts.Limit {
			result.Continue = encodeCursor(result.Items[len(result.Items)-1].Name)
			break
		}
		result.Items = append(result.Items, obj)
	}

	s.logger.Debug("Listed secrets",
		log.Str("namespace", namespace),
		log.Int("count", len(result.Items)),
		log.Bool("more", result.Continue != ""))
	return result, nil
}

// Create stores a new object.
func (s *BadgerBackend) Create(ctx context.Context, obj *types.SecretObject) (*types.SecretObject, error) {
	s.logger.Debug("Creating secret",
		log.Str("namespace", obj.Namespace),
		log.Str("name", obj.Name))

	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	_, err := txn.Get(MakeKey(obj.Namespace, obj.Name))
	if err == nil {
		return nil, alreadyExists(obj.Namespace, obj.Name)
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return nil, types.NewTransportError("check existing secret", err)
	}

	stored := obj.DeepCopy()
	if stored.ResourceVersion, err = s.nextVersion(); err != nil {
		return nil, err
	}
	if err := writeObject(txn, stored); err != nil {
		return nil, err
	}
	if err := commit(txn, obj.Namespace, obj.Name); err != nil {
		return nil, err
	}
	return stored, nil
}

// Update replaces an existing object, honouring the resource version precondition.
func (s *BadgerBackend) Update(ctx context.Context, obj *types.SecretObject) (*types.SecretObject, error) {
	s.logger.Debug("Updating secret",
		log.Str("namespace", obj.Namespace),
		log.Str("name", obj.Name),
		log.Str("resourceVersion", obj.ResourceVersion))

	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	item, err := txn.Get(MakeKey(obj.Namespace, obj.Name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, notFound(obj.Namespace, obj.Name)
	} else if err != nil {
		return nil, types.NewTransportError("check existing secret", err)
	}
	if obj.ResourceVersion != "" {
		existing, err := readObject(item)
		if err != nil {
			return nil, err
		}
		if existing.ResourceVersion != obj.ResourceVersion {
			return nil, fmt.Errorf("secret %s/%s has resource version %s, not %s: %w",
				obj.Namespace, obj.Name, existing.ResourceVersion, obj.ResourceVersion, types.ErrConflict)
		}
	}

	stored := obj.DeepCopy()
	if stored.ResourceVersion, err = s.nextVersion(); err != nil {
		return nil, err
	}
	if err := writeObject(txn, stored); err != nil {
		return nil, err
	}
	if err := commit(txn, obj.Namespace, obj.Name); err != nil {
		return nil, err
	}
	return stored, nil
}

// Delete deletes an object.
func (s *BadgerBackend) Delete(ctx context.Context, namespace, name string) error {
	s.logger.Debug("Deleting secret",
		log.Str("namespace", namespace),
		log.Str("name", name))

	key := MakeKey(namespace, name)
	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return notFound(namespace, name)
	} else if err != nil {
		return types.NewTransportError("check existing secret", err)
	}
	if err := txn.Delete(key); err != nil {
		return types.NewTransportError("delete secret", err)
	}
	return commit(txn, namespace, name)
}

// PatchMetadata merges labels and annotations into an object.
func (s *BadgerBackend) PatchMetadata(ctx context.Context, namespace, name string, meta types.ObjectMeta) (*types.SecretObject, error) {
	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	item, err := txn.Get(MakeKey(namespace, name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, notFound(namespace, name)
	} else if err != nil {
		return nil, types.NewTransportError("get secret", err)
	}
	obj, err := readObject(item)
	if err != nil {
		return nil, err
	}

	obj.Labels = mergeMeta(obj.Labels, meta.Labels)
	obj.Annotations = mergeMeta(obj.Annotations, meta.Annotations)
	if obj.ResourceVersion, err = s.nextVersion(); err != nil {
		return nil, err
	}
	if err := writeObject(txn, obj); err != nil {
		return nil, err
	}
	if err := commit(txn, namespace, name); err != nil {
		return nil, err
	}
	return obj, nil
}

// EnsureNamespace records the namespace so it shows up in tooling; objects
// can be written to any namespace regardless.
func (s *BadgerBackend) EnsureNamespace(ctx context.Context, namespace string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := namespaceKey(namespace)
		if _, err := txn.Get(key); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return types.NewTransportError("get namespace", err)
		}
		s.logger.Info("Created namespace", log.Str("namespace", namespace))
		return txn.Set(key, []byte(namespace))
	})
}

// badgerLogAdapter adapts our logger to BadgerDB's logger interface.
type badgerLogAdapter struct {
	logger log.Logger
}

// Errorf implements badger.Logger.
func (l *badgerLogAdapter) Errorf(format string, args ...interface{}) {
	l.logger.Errorf("BadgerDB: "+format, args...)
}

// Warningf implements badger.Logger.
func (l *badgerLogAdapter) Warningf(format string, args ...interface{}) {
	l.logger.Warnf("BadgerDB: "+format, args...)
}

// Infof implements badger.Logger.
func (l *badgerLogAdapter) Infof(format string, args ...interface{}) {
	l.logger.Debugf("BadgerDB: "+format, args...)
}

// Debugf implements badger.Logger.
func (l *badgerLogAdapter) Debugf(format string, args ...interface{}) {
	l.logger.Debugf("BadgerDB: "+format, args...)
}

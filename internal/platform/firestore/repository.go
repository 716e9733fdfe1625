package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Document represents a strongly typed Firestore document with metadata timestamps.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
}

// Encoder serialises the strongly typed entity prior to persistence.
type Encoder[T any] func(ctx context.Context, value T) (any, error)

// Decoder hydrates the strongly typed entity from a snapshot.
type Decoder[T any] func(ctx context.Context, snap *firestore.DocumentSnapshot) (T, error)

// QueryBuilder customises Firestore queries before execution.
type QueryBuilder func(query firestore.Query) firestore.Query

// BaseRepository provides typed helpers wrapping Firestore collection access. Every method joins the
// transaction carried by ctx, if any, so reads are tracked and writes are committed with it.
type BaseRepository[T any] struct {
	provider   *Provider
	collection string
	encode     Encoder[T]
	decode     Decoder[T]
}

// NewBaseRepository constructs a BaseRepository bound to a collection path. Nested collections use
// slash separated paths such as "orders/ord_1/items".
func NewBaseRepository[T any](provider *Provider, collection string, encode Encoder[T], decode Decoder[T]) *BaseRepository[T] {
	if encode == nil {
		encode = IdentityEncoder[T]()
	}
	if decode == nil {
		decode = StructDecoder[T]()
	}
	return &BaseRepository[T]{
		provider:   provider,
		collection: strings.Trim(strings.TrimSpace(collection), "/"),
		encode:     encode,
		decode:     decode,
	}
}

// Create writes a new document and fails with a conflict when it already exists.
func (r *BaseRepository[T]) Create(ctx context.Context, id string, value T) error {
	doc, payload, err := r.prepare(ctx, id, value)
	if err != nil {
		return err
	}
	if tx := TransactionFromContext(ctx); tx != nil {
		return WrapError(r.op("create"), tx.Create(doc, payload))
	}
	_, err = doc.Create(ctx, payload)
	return WrapError(r.op("create"), err)
}

// Set upserts the given value under the provided document ID.
func (r *BaseRepository[T]) Set(ctx context.Context, id string, value T, opts ...firestore.SetOption) error {
	doc, payload, err := r.prepare(ctx, id, value)
	if err != nil {
		return err
	}
	if tx := TransactionFromContext(ctx); tx != nil {
		return WrapError(r.op("set"), tx.Set(doc, payload, opts...))
	}
	_, err = doc.Set(ctx, payload, opts...)
	return WrapError(r.op("set"), err)
}

// Update applies partial updates to an existing document.
func (r *BaseRepository[T]) Update(ctx context.Context, id string, updates []firestore.Update, opts ...firestore.Precondition) error {
	doc, err := r.documentRef(ctx, id)
	if err != nil {
		return err
	}
	if tx := TransactionFromContext(ctx); tx != nil {
		return WrapError(r.op("update"), tx.Update(doc, updates, opts...))
	}
	_, err = doc.Update(ctx, updates, opts...)
	return WrapError(r.op("update"), err)
}

// Delete removes the document. Deleting a missing document is not an error.
func (r *BaseRepository[T]) Delete(ctx context.Context, id string, opts ...firestore.Precondition) error {
	doc, err := r.documentRef(ctx, id)
	if err != nil {
		return err
	}
	if tx := TransactionFromContext(ctx); tx != nil {
		return WrapError(r.op("delete"), tx.Delete(doc, opts...))
	}
	_, err = doc.Delete(ctx, opts...)
	return WrapError(r.op("delete"), err)
}

// Get fetches the document by ID and decodes it into the strongly typed entity.
func (r *BaseRepository[T]) Get(ctx context.Context, id string) (Document[T], error) {
	doc, err := r.documentRef(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}

	var snapshot *firestore.DocumentSnapshot
	if tx := TransactionFromContext(ctx); tx != nil {
		snapshot, err = tx.Get(doc)
	} else {
		snapshot, err = doc.Get(ctx)
	}
	if err != nil {
		return Document[T]{}, WrapError(r.op("get"), err)
	}
	return r.decodeDocument(ctx, snapshot)
}

// Query executes a collection query and returns the decoded documents.
func (r *BaseRepository[T]) Query(ctx context.Context, build QueryBuilder) ([]Document[T], error) {
	coll, err := r.collectionRef(ctx)
	if err != nil {
		return nil, err
	}
	query := coll.Query
	if build != nil {
		query = build(query)
	}
	return r.Run(ctx, query)
}

// Run executes an arbitrary query, such as a collection group query, and decodes the results.
func (r *BaseRepository[T]) Run(ctx context.Context, query firestore.Query) ([]Document[T], error) {
	var iter *firestore.DocumentIterator
	if tx := TransactionFromContext(ctx); tx != nil {
		iter = tx.Documents(query)
	} else {
		iter = query.Documents(ctx)
	}
	defer iter.Stop()

	var docs []Document[T]
	for {
		snapshot, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, WrapError(r.op("query"), err)
		}
		decoded, err := r.decodeDocument(ctx, snapshot)
		if err != nil {
			return nil, fmt.Errorf("firestore: decode document %s: %w", snapshot.Ref.ID, err)
		}
		docs = append(docs, decoded)
	}
	return docs, nil
}

// Exists reports whether the query matches at least one document.
func (r *BaseRepository[T]) Exists(ctx context.Context, query firestore.Query) (bool, error) {
	var iter *firestore.DocumentIterator
	if tx := TransactionFromContext(ctx); tx != nil {
		iter = tx.Documents(query.Limit(1))
	} else {
		iter = query.Limit(1).Documents(ctx)
	}
	defer iter.Stop()

	_, err := iter.Next()
	switch {
	case errors.Is(err, iterator.Done):
		return false, nil
	case err != nil:
		return false, WrapError(r.op("exists"), err)
	default:
		return true, nil
	}
}

// DocumentRef exposes the underlying document reference for advanced scenarios such as transactions.
func (r *BaseRepository[T]) DocumentRef(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	return r.documentRef(ctx, id)
}

// CollectionRef exposes the collection for building filtered queries.
func (r *BaseRepository[T]) CollectionRef(ctx context.Context) (*firestore.CollectionRef, error) {
	return r.collectionRef(ctx)
}

func (r *BaseRepository[T]) prepare(ctx context.Context, id string, value T) (*firestore.DocumentRef, any, error) {
	doc, err := r.documentRef(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	payload, err := r.encode(ctx, value)
	if err != nil {
		return nil, nil, fmt.Errorf("firestore: encode document %s: %w", id, err)
	}
	return doc, payload, nil
}

func (r *BaseRepository[T]) decodeDocument(ctx context.Context, snapshot *firestore.DocumentSnapshot) (Document[T], error) {
	entity, err := r.decode(ctx, snapshot)
	if err != nil {
		return Document[T]{}, err
	}
	return Document[T]{
		ID:         snapshot.Ref.ID,
		Data:       entity,
		CreateTime: snapshot.CreateTime,
		UpdateTime: snapshot.UpdateTime,
	}, nil
}

func (r *BaseRepository[T]) collectionRef(ctx context.Context) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("firestore: provider is nil")
	}
	if r.collection == "" {
		return nil, errors.New("firestore: collection name is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	coll := client.Collection(r.collection)
	if coll == nil {
		return nil, fmt.Errorf("firestore: invalid collection path %q", r.collection)
	}
	return coll, nil
}

func (r *BaseRepository[T]) documentRef(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%s: document id is required", r.op("document"))
	}
	coll, err := r.collectionRef(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

func (r *BaseRepository[T]) op(action string) string {
	name := "firestore"
	if r != nil && r.collection != "" {
		name = r.collection
	}
	return fmt.Sprintf("%s.%s", name, strings.ToLower(action))
}

// IdentityEncoder returns an encoder that writes the value unchanged.
func IdentityEncoder[T any]() Encoder[T] {
	return func(_ context.Context, value T) (any, error) {
		return value, nil
	}
}

// StructDecoder populates the target struct using Firestore's native decoding.
func StructDecoder[T any]() Decoder[T] {
	return func(_ context.Context, snap *firestore.DocumentSnapshot) (T, error) {
		var target T
		if err := snap.DataTo(&target); err != nil {
			return target, err
		}
		return target, nil
	}
}

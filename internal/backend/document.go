package backend

import (
	"context"
	"sync"

	"querygate/cli/internal/docstore"
	"querygate/cli/internal/dsn"
	"querygate/cli/internal/errors"
	"querygate/cli/internal/logging"
)

// Document adapts a docstore.Store to Adapter.
type Document struct {
	desc dsn.Descriptor
	opts options
	dial func(ctx context.Context, uri, database string) (docstore.Database, error)

	mu    sync.RWMutex
	store *docstore.Store
}

// NewDocument returns an unconnected document adapter.
func NewDocument(desc dsn.Descriptor, opts ...Option) *Document {
	return &Document{
		desc: desc,
		opts: buildOptions(opts),
		dial: func(ctx context.Context, uri, database string) (docstore.Database, error) {
			return docstore.Dial(ctx, uri, database)
		},
	}
}

// NewDocumentWith wraps an already connected database.
func NewDocumentWith(desc dsn.Descriptor, db docstore.Database, opts ...Option) *Document {
	d := NewDocument(desc, opts...)
	d.store = d.newStore(db)
	return d
}

func (d *Document) newStore(db docstore.Database) *docstore.Store {
	return docstore.New(db,
		docstore.WithLogger(d.opts.log),
		docstore.WithDefaultCollection(d.opts.defaultCollection))
}

func (d *Document) Kind() dsn.Kind { return d.desc.Kind() }

func (d *Document) database() string {
	if d.desc.Database != "" {
		return d.desc.Database
	}
	if info, err := dsn.ParseInfo(d.desc.URI); err == nil && info.Database != "" {
		return info.Database
	}
	return dsn.DefaultMongoDatabase
}

func (d *Document) Connect(ctx context.Context) error {
	if err := dsn.Validate(d.desc.URI); err != nil {
		return errors.Wrap(errors.Connection, "invalid connection string", err)
	}

	ctx, cancel := withConnectDeadline(ctx, d.opts.connectTimeout)
	defer cancel()

	db, err := d.dial(ctx, d.desc.URI, d.database())
	if err != nil {
		return errors.Wrap(errors.Connection, "failed to reach document store", err)
	}
	d.opts.log.Infow("connected", "dialect", d.desc.Dialect, "database", db.Name(), "uri", logging.Mask(d.desc.URI))

	d.mu.Lock()
	old := d.store
	d.store = d.newStore(db)
	d.mu.Unlock()
	if old != nil {
		_ = old.DB().Close(context.Background())
	}
	return nil
}

func (d *Document) current() (*docstore.Store, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.store == nil {
		return nil, errNotConnected
	}
	return d.store, nil
}

func (d *Document) Disconnect(ctx context.Context) error {
	d.mu.Lock()
	store := d.store
	d.store = nil
	d.mu.Unlock()
	if store == nil {
		return nil
	}
	return store.DB().Close(ctx)
}

func (d *Document) TestConnection(ctx context.Context) error {
	store, err := d.current()
	if err != nil {
		return err
	}
	if err := store.DB().Ping(ctx); err != nil {
		return errors.Wrap(errors.Connection, "connection test failed", err)
	}
	return nil
}

func (d *Document) Execute(ctx context.Context, q Query) (*RawResult, error) {
	store, err := d.current()
	if err != nil {
		return nil, err
	}
	res, err := store.Run(ctx, q.Document, q.Text)
	if err != nil {
		return nil, errors.Wrap(errors.Execution, "document query failed", err)
	}
	if res.Count != nil {
		return &RawResult{Shape: ShapeScalar, ScalarName: "count", Scalar: *res.Count}, nil
	}
	docs := make([]any, len(res.Documents))
	for i, doc := range res.Documents {
		docs[i] = doc
	}
	return &RawResult{Shape: ShapeDocuments, Documents: docs}, nil
}

func (d *Document) Schema(ctx context.Context) (*Schema, error) {
	store, err := d.current()
	if err != nil {
		return nil, err
	}
	infos, err := store.Collections(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.Execution, "collection listing failed", err)
	}

	s := &Schema{Dialect: d.desc.Dialect, Database: store.DB().Name(), Collections: make([]Collection, 0, len(infos))}
	for _, info := range infos {
		c := Collection{Name: info.Name, DocumentCount: info.DocumentCount, Fields: make([]SampleField, 0, len(info.Fields))}
		for _, f := range info.Fields {
			c.Fields = append(c.Fields, SampleField{Name: f.Name, Type: f.Type})
		}
		s.Collections = append(s.Collections, c)
	}
	return s, nil
}

// Invalidate drops the cached collection list.
func (d *Document) Invalidate() {
	if store, err := d.current(); err == nil {
		store.Invalidate()
	}
}

func (d *Document) HealthCheck(ctx context.Context) HealthReport {
	report := HealthReport{Status: StatusUnhealthy, Dialect: d.desc.Dialect}
	store, err := d.current()
	if err != nil {
		report.Error = err.Error()
		return report
	}
	details, err := store.Health(ctx)
	if err != nil {
		report.Error = logging.Mask(err.Error())
		return report
	}
	report.Status = StatusHealthy
	report.Details = details
	return report
}

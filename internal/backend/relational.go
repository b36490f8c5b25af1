package backend

import (
	"context"
	"sync"

	"querygate/cli/internal/dsn"
	"querygate/cli/internal/errors"
	"querygate/cli/internal/logging"
	"querygate/cli/internal/sqlexec"
)

// Relational adapts a sqlexec.Executor to Adapter.
type Relational struct {
	desc dsn.Descriptor
	opts options

	mu   sync.RWMutex
	exec *sqlexec.Executor
}

// NewRelational returns an unconnected relational adapter.
func NewRelational(desc dsn.Descriptor, opts ...Option) *Relational {
	return &Relational{desc: desc, opts: buildOptions(opts)}
}

// NewRelationalWith wraps an already open executor.
func NewRelationalWith(desc dsn.Descriptor, exec *sqlexec.Executor, opts ...Option) *Relational {
	r := NewRelational(desc, opts...)
	r.exec = exec
	return r
}

func (r *Relational) Kind() dsn.Kind { return r.desc.Kind() }

func (r *Relational) Connect(ctx context.Context) error {
	connString, err := dsn.Parse(r.desc.URI)
	if err != nil {
		return errors.Wrap(errors.Connection, "invalid connection string", err)
	}

	ctx, cancel := withConnectDeadline(ctx, r.opts.connectTimeout)
	defer cancel()

	exec, err := sqlexec.Open(ctx, r.desc.Dialect, connString,
		sqlexec.WithMaxRows(r.opts.maxRows), sqlexec.WithLogger(r.opts.log))
	if err != nil {
		return errors.Wrap(errors.Connection, "failed to open "+string(r.desc.Dialect)+" pool", err)
	}
	if err := exec.Ping(ctx); err != nil {
		exec.Close()
		return errors.Wrap(errors.Connection, "failed to reach "+string(r.desc.Dialect)+" server", err)
	}
	r.opts.log.Infow("connected", "dialect", r.desc.Dialect, "uri", logging.Mask(r.desc.URI))

	r.mu.Lock()
	old := r.exec
	r.exec = exec
	r.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

func (r *Relational) executor() (*sqlexec.Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.exec == nil {
		return nil, errNotConnected
	}
	return r.exec, nil
}

func (r *Relational) Disconnect(context.Context) error {
	r.mu.Lock()
	exec := r.exec
	r.exec = nil
	r.mu.Unlock()
	if exec != nil {
		exec.Close()
	}
	return nil
}

func (r *Relational) TestConnection(ctx context.Context) error {
	exec, err := r.executor()
	if err != nil {
		return err
	}
	if _, err := exec.Execute(ctx, "SELECT 1"); err != nil {
		return errors.Wrap(errors.Connection, "connection test failed", err)
	}
	return nil
}

func (r *Relational) Execute(ctx context.Context, q Query) (*RawResult, error) {
	exec, err := r.executor()
	if err != nil {
		return nil, err
	}
	res, err := exec.Execute(ctx, q.Text)
	if err != nil {
		return nil, errors.Wrap(errors.Execution, "query failed", err)
	}
	if !res.ReturnsRows {
		return &RawResult{Shape: ShapeAffected, RowsAffected: res.RowsAffected}, nil
	}
	return &RawResult{Shape: ShapeRows, Columns: res.Columns, Rows: res.Rows}, nil
}

func (r *Relational) Schema(ctx context.Context) (*Schema, error) {
	exec, err := r.executor()
	if err != nil {
		return nil, err
	}
	info, err := exec.Inspector().Schema(ctx, false)
	if err != nil {
		return nil, errors.Wrap(errors.Execution, "schema inspection failed", err)
	}

	s := &Schema{Dialect: r.desc.Dialect, Database: r.desc.Database, Tables: make([]Table, 0, len(info.Tables))}
	for _, t := range info.Tables {
		table := Table{Name: t.Name, Type: t.Type, RowCount: t.RowCount, Columns: make([]Column, 0, len(t.Columns))}
		for _, c := range t.Columns {
			table.Columns = append(table.Columns, Column{Name: c.Name, Type: c.Type, Nullable: c.Nullable, Default: c.Default})
		}
		s.Tables = append(s.Tables, table)
	}
	for _, fk := range info.ForeignKeys {
		s.Relationships = append(s.Relationships, Relationship{
			FromTable: fk.Table, FromColumn: fk.Column, ToTable: fk.ReferencedTable, ToColumn: fk.ReferencedColumn,
		})
	}
	return s, nil
}

// Invalidate drops the cached schema.
func (r *Relational) Invalidate() {
	if exec, err := r.executor(); err == nil {
		exec.Inspector().Invalidate()
	}
}

func (r *Relational) HealthCheck(ctx context.Context) HealthReport {
	report := HealthReport{Status: StatusUnhealthy, Dialect: r.desc.Dialect}
	exec, err := r.executor()
	if err != nil {
		report.Error = err.Error()
		return report
	}

	details, err := exec.Health(ctx)
	if err != nil {
		report.Error = logging.Mask(err.Error())
		return report
	}
	st := exec.Stats()
	report.Status = StatusHealthy
	report.Details = details
	report.Pool = &PoolStats{Total: st.Total, Idle: st.Idle, InUse: st.InUse, Max: st.Max}
	return report
}

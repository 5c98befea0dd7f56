package adapters

import (
	"context"
	"strings"

	"go-dbsync/internal/models"
	"go-dbsync/internal/secrets"

	"go.uber.org/zap"
)

var typeAliases = map[string]string{
	"postgresql": models.DataSourceTypePostgreSQL,
	"postgres":   models.DataSourceTypePostgreSQL,
	"pg":         models.DataSourceTypePostgreSQL,
	"supabase":   models.DataSourceTypePostgreSQL,
	"mysql":      models.DataSourceTypeMySQL,
	"mariadb":    models.DataSourceTypeMySQL,
	"sqlite":     models.DataSourceTypeSQLite,
	"sqlite3":    models.DataSourceTypeSQLite,
	"mongodb":    models.DataSourceTypeMongoDB,
	"mongo":      models.DataSourceTypeMongoDB,
	"memory":     models.DataSourceTypeMemory,
}

// NormalizeType maps a declared datasource type to its canonical vendor name.
func NormalizeType(t string) (string, bool) {
	v, ok := typeAliases[strings.ToLower(strings.TrimSpace(t))]
	return v, ok
}

// Factory builds the Adapter for a datasource's declared type.
type Factory struct {
	secrets  secrets.Resolver
	logger   *zap.Logger
	breakers *breakerSet
	memory   *MemoryStore
}

type FactoryOption func(*Factory)

// WithMemoryStore backs "memory" datasources with store instead of a private one.
func WithMemoryStore(store *MemoryStore) FactoryOption {
	return func(f *Factory) { f.memory = store }
}

// WithoutBreakers disables the per-endpoint connect circuit breakers.
func WithoutBreakers() FactoryOption {
	return func(f *Factory) { f.breakers = nil }
}

func NewFactory(resolver secrets.Resolver, logger *zap.Logger, opts ...FactoryOption) *Factory {
	f := &Factory{
		secrets:  resolver,
		logger:   logger,
		breakers: newBreakerSet(logger),
		memory:   NewMemoryStore(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// New returns an unconnected adapter for ds.
func (f *Factory) New(ctx context.Context, ds *models.DataSource) (Adapter, error) {
	ep, err := f.Endpoint(ctx, ds)
	if err != nil {
		return nil, err
	}
	log := f.logger.With(zap.String("datasource", ds.Name), zap.String("type", ep.Vendor))

	switch ep.Vendor {
	case models.DataSourceTypePostgreSQL:
		return newSQLAdapter(postgresDialect{}, ep, f.breakers, log), nil
	case models.DataSourceTypeMySQL:
		return newSQLAdapter(mysqlDialect{}, ep, f.breakers, log), nil
	case models.DataSourceTypeSQLite:
		return newSQLAdapter(sqliteDialect{}, ep, f.breakers, log), nil
	case models.DataSourceTypeMongoDB:
		return NewMongoAdapter(ep, f.breakers, log), nil
	case models.DataSourceTypeMemory:
		return NewMemoryAdapter(f.memory, ep), nil
	}
	return nil, &ConfigurationError{Field: "type", Reason: "unsupported datasource type " + ds.Type}
}

// Endpoint validates ds and resolves its secret references.
func (f *Factory) Endpoint(ctx context.Context, ds *models.DataSource) (Endpoint, error) {
	if ds == nil {
		return Endpoint{}, &ConfigurationError{Field: "datasource", Reason: "missing"}
	}
	vendor, ok := NormalizeType(ds.Type)
	if !ok {
		return Endpoint{}, &ConfigurationError{Field: "type", Reason: "unsupported datasource type " + ds.Type}
	}

	ep := Endpoint{
		Vendor:      vendor,
		Host:        NormalizeHost(ds.Host),
		Port:        ds.Port,
		Database:    ds.Database,
		Username:    ds.Username,
		APIURL:      ds.APIURL,
		TablePrefix: ds.TablePrefix,
		Extra:       ds.ExtraConfig,
	}
	if ep.Host != ds.Host {
		f.logger.Warn("Host looked like a URL, normalised it",
			zap.String("datasource", ds.Name),
			zap.String("configured", ds.Host),
			zap.String("host", ep.Host))
	}

	switch vendor {
	case models.DataSourceTypePostgreSQL, models.DataSourceTypeMySQL:
		if ep.Host == "" {
			return Endpoint{}, &ConfigurationError{Field: "host", Reason: "required for " + vendor}
		}
		if ep.Database == "" {
			return Endpoint{}, &ConfigurationError{Field: "database", Reason: "required for " + vendor}
		}
	case models.DataSourceTypeMongoDB:
		if ep.Database == "" {
			return Endpoint{}, &ConfigurationError{Field: "database", Reason: "required for " + vendor}
		}
		if ep.Host == "" && ep.extraString("uri", "") == "" {
			return Endpoint{}, &ConfigurationError{Field: "host", Reason: "host or extra_config.uri required for mongodb"}
		}
	}

	var err error
	if ep.Password, err = f.resolve(ctx, "password_ref", ds.PasswordRef); err != nil {
		return Endpoint{}, err
	}
	if ep.APIKey, err = f.resolve(ctx, "api_key_ref", ds.APIKeyRef); err != nil {
		return Endpoint{}, err
	}
	return ep, nil
}

func (f *Factory) resolve(ctx context.Context, field, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	if f.secrets == nil {
		return "", &ConfigurationError{Field: field, Reason: "no secret resolver configured"}
	}
	v, err := f.secrets.Resolve(ctx, ref)
	if err != nil {
		return "", &ConfigurationError{Field: field, Reason: err.Error()}
	}
	return v, nil
}

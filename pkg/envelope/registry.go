package envelope

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/chris-alexander-pop/go-service-queue/pkg/concurrency"
	"github.com/chris-alexander-pop/go-service-queue/pkg/errors"
	"github.com/chris-alexander-pop/go-service-queue/pkg/logger"
	"github.com/chris-alexander-pop/go-service-queue/pkg/resilience"
	"github.com/chris-alexander-pop/go-service-queue/pkg/secrets"
)

// EndpointConfig is a named endpoint targeting one broker queue, with
// optional encryption and object-store settings.
type EndpointConfig struct {
	// Name is the logical, case-insensitive lookup key for this endpoint.
	Name string

	// Queue is both the passively-declared AMQP queue name and the routing
	// key used to reach it — the endpoint identifier.
	Queue string

	Address  string
	Port     int
	VHost    string
	Username string
	Password string
	TLS      bool

	Format       Format
	SuppressLogs bool

	Encryption  *EncryptionConfig
	ObjectStore *ObjectStoreConfig
}

// identifier is the case-insensitive physical-endpoint dedup key.
func (e EndpointConfig) identifier() string {
	return strings.ToLower(e.Address + ":" + e.Queue + "@" + e.VHost)
}

func (e EndpointConfig) format() Format {
	if e.Format == "" {
		return FormatJSON
	}
	return e.Format
}

// DialURL builds the AMQP connection URL for this endpoint, for use by
// Transport adapters implementing a Dialer.
func (e EndpointConfig) DialURL() string {
	scheme := "amqp"
	if e.TLS {
		scheme = "amqps"
	}
	vhost := e.VHost
	if vhost != "" && !strings.HasPrefix(vhost, "/") {
		vhost = "/" + vhost
	}
	creds := ""
	if e.Username != "" {
		creds = e.Username + ":" + e.Password + "@"
	}
	port := e.Port
	if port == 0 {
		port = 5672
	}
	return scheme + "://" + creds + e.Address + ":" + strconv.Itoa(port) + vhost
}

// Dialer constructs a Transport for a resolved endpoint. Production callers
// pass rabbitmq.Dial wrapped to this signature; tests pass a factory that
// returns a memtransport.Transport.
type Dialer func(ctx context.Context, cfg EndpointConfig) (Transport, error)

// boundEndpoint is an EndpointConfig plus its lazily-initialized, memoized
// connection and the per-endpoint lock guarding that initialization.
type boundEndpoint struct {
	cfg         EndpointConfig
	mu          *concurrency.SmartMutex
	transport   Transport
	objectStore *ObjectStore
	cipher      Cipher
}

// Registry holds a process-wide set of endpoints and the process-wide
// defaults that compose with per-endpoint and per-call overrides.
type Registry struct {
	dial Dialer

	regMu     sync.Mutex
	byName    map[string]*boundEndpoint
	byIdent   map[string]string // identifier -> name, for cross-key dedup
	defaultEP *EndpointConfig

	defaultEncryption  *EncryptionConfig
	defaultObjectStore *ObjectStoreConfig

	cipher  Cipher
	secrets secrets.Client
}

// RegistryOption configures a Registry at construction time.
type RegistryOption func(*Registry)

// WithDialer sets how endpoints establish their Transport. Production
// callers pass rabbitmq.Dialer; a registry without a dialer fails on first
// endpoint use.
func WithDialer(d Dialer) RegistryOption {
	return func(r *Registry) { r.dial = d }
}

// WithCipher overrides the Cipher used for encryption across the registry.
// Defaults to NewAESGCMCipher().
func WithCipher(c Cipher) RegistryOption {
	return func(r *Registry) { r.cipher = c }
}

// WithSecretsClient enables EncryptionConfig.SecretRef resolution: when a
// config carries a SecretRef instead of an inline Secret, the registry
// resolves it through this client on every publish and delivery that uses
// the config.
func WithSecretsClient(c secrets.Client) RegistryOption {
	return func(r *Registry) { r.secrets = c }
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		byName:  make(map[string]*boundEndpoint),
		byIdent: make(map[string]string),
		cipher:  NewAESGCMCipher(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide singleton registry. Convenient for the
// common single-registry case; callers needing isolation should use
// NewRegistry directly.
func Default() *Registry {
	defaultRegistryOnce.Do(func() { defaultRegistry = NewRegistry() })
	return defaultRegistry
}

// RegisterEndpoint adds cfg, deduplicated case-insensitively on both Name
// and the physical endpoint identifier. Re-registering the same name or
// identifier is a configuration error.
func (r *Registry) RegisterEndpoint(cfg EndpointConfig) error {
	if cfg.Name == "" || cfg.Queue == "" {
		return errors.InvalidArgument("endpoint name and queue are required", nil)
	}

	name := strings.ToLower(cfg.Name)
	ident := cfg.identifier()

	r.regMu.Lock()
	defer r.regMu.Unlock()

	if _, exists := r.byName[name]; exists {
		return errors.AlreadyExists("endpoint already registered with this name", nil)
	}
	if existingName, exists := r.byIdent[ident]; exists {
		return errors.AlreadyExists("endpoint already registered with this identifier as "+existingName, nil)
	}

	r.byName[name] = &boundEndpoint{
		cfg: cfg,
		mu:  concurrency.NewSmartMutex(concurrency.MutexConfig{Name: "envelope.endpoint:" + cfg.Name}),
	}
	r.byIdent[ident] = name
	return nil
}

// RegisterEndpoints registers each config in order, stopping at the first
// error.
func (r *Registry) RegisterEndpoints(cfgs []EndpointConfig) error {
	for _, cfg := range cfgs {
		if err := r.RegisterEndpoint(cfg); err != nil {
			return err
		}
	}
	return nil
}

// RegisterDefaultEndpoint sets the process-wide default endpoint, used
// when a publish/subscribe call omits an explicit endpoint reference.
func (r *Registry) RegisterDefaultEndpoint(cfg EndpointConfig) {
	r.regMu.Lock()
	defer r.regMu.Unlock()
	r.defaultEP = &cfg
}

// RegisterDefaultEncryption sets the process-wide default encryption
// config, the lowest-priority tier in the perCall > endpoint > default
// composition.
func (r *Registry) RegisterDefaultEncryption(cfg EncryptionConfig) {
	r.regMu.Lock()
	defer r.regMu.Unlock()
	r.defaultEncryption = &cfg
}

// RegisterDefaultObjectStore sets the process-wide default object-store
// config.
func (r *Registry) RegisterDefaultObjectStore(cfg ObjectStoreConfig) {
	r.regMu.Lock()
	defer r.regMu.Unlock()
	r.defaultObjectStore = &cfg
}

// resolve looks up name (or, if empty, the default endpoint), lazily
// dialing its transport and object store under the endpoint's own lock so
// concurrent first-use never opens two connections for the same endpoint.
func (r *Registry) resolve(ctx context.Context, name string) (*boundEndpoint, error) {
	ep, err := r.lookup(name)
	if err != nil {
		return nil, err
	}

	ep.mu.Lock()
	defer ep.mu.Unlock()

	if ep.transport == nil {
		dial := r.dial
		if dial == nil {
			return nil, errors.Internal("registry has no dialer configured", nil)
		}

		var t Transport
		retryErr := resilience.Retry(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) error {
			var err error
			t, err = dial(ctx, ep.cfg)
			return err
		})
		if retryErr != nil {
			return nil, errors.Unavailable("failed to establish endpoint connection", retryErr)
		}
		ep.transport = t
		ep.cipher = r.cipher

		if osCfg := r.composedObjectStore(ep.cfg); osCfg != nil {
			ep.objectStore = NewObjectStore(osCfg.Store, ep.cfg.format())
		}

		if !ep.cfg.SuppressLogs {
			logger.L().InfoContext(ctx, "envelope endpoint connected", "endpoint", ep.cfg.Name)
		}
	}

	return ep, nil
}

func (r *Registry) lookup(name string) (*boundEndpoint, error) {
	r.regMu.Lock()
	defer r.regMu.Unlock()

	if name == "" {
		if r.defaultEP == nil {
			return nil, errors.InvalidArgument("no endpoint reference given and no default endpoint registered", nil)
		}
		name = r.defaultEP.Name
	}

	ep, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return nil, errors.NotFound("no endpoint registered with name "+name, nil)
	}
	return ep, nil
}

// composedEncryption applies the perCall > endpoint > default priority.
func (r *Registry) composedEncryption(ep EndpointConfig, perCall *EncryptionConfig) *EncryptionConfig {
	if perCall != nil {
		return perCall
	}
	if ep.Encryption != nil {
		return ep.Encryption
	}
	r.regMu.Lock()
	defer r.regMu.Unlock()
	return r.defaultEncryption
}

// resolveEncryption returns cfg unchanged unless it carries a SecretRef and
// no inline Secret, in which case the secret is fetched through the
// registry's secrets.Client and a resolved copy is returned. cfg itself is
// never mutated.
func (r *Registry) resolveEncryption(ctx context.Context, cfg *EncryptionConfig) (*EncryptionConfig, error) {
	if cfg == nil || cfg.SecretRef == "" || cfg.Secret != "" {
		return cfg, nil
	}
	if r.secrets == nil {
		return nil, errors.InvalidArgument("encryption config references a secret but no secrets client is configured", nil)
	}

	secret, err := r.secrets.GetSecret(ctx, cfg.SecretRef)
	if err != nil {
		return nil, errors.Unavailable("failed to resolve encryption secret", err)
	}

	resolved := *cfg
	resolved.Secret = secret
	return &resolved, nil
}

// composedObjectStore applies the endpoint > default priority.
func (r *Registry) composedObjectStore(ep EndpointConfig) *ObjectStoreConfig {
	if ep.ObjectStore != nil {
		return ep.ObjectStore
	}
	r.regMu.Lock()
	defer r.regMu.Unlock()
	return r.defaultObjectStore
}

// objectStoreFor resolves the effective object-store adapter and config for
// one call, applying the perCall > endpoint > default priority. The
// endpoint's memoized adapter is reused except when a per-call override
// supplies a different backend.
func (r *Registry) objectStoreFor(ep *boundEndpoint, perCall *ObjectStoreConfig) (*ObjectStore, *ObjectStoreConfig) {
	if perCall != nil {
		return NewObjectStore(perCall.Store, ep.cfg.format()), perCall
	}
	cfg := r.composedObjectStore(ep.cfg)
	if cfg == nil {
		return nil, nil
	}
	if ep.objectStore != nil {
		return ep.objectStore, cfg
	}
	return NewObjectStore(cfg.Store, ep.cfg.format()), cfg
}

// MessageCount returns the broker-reported depth of the named endpoint's
// queue, or the default endpoint's queue if name is empty.
func (r *Registry) MessageCount(ctx context.Context, name string) (int, error) {
	ep, err := r.resolve(ctx, name)
	if err != nil {
		return 0, err
	}
	return ep.transport.QueueDepth(ctx, ep.cfg.Queue)
}

// Disconnect tears down connections. If all is true every registered
// endpoint is disconnected; otherwise only the default endpoint is.
func (r *Registry) Disconnect(all bool) error {
	if all {
		return r.disconnectAll()
	}
	return r.disconnectDefault()
}

func (r *Registry) disconnectAll() error {
	r.regMu.Lock()
	endpoints := make([]*boundEndpoint, 0, len(r.byName))
	for _, ep := range r.byName {
		endpoints = append(endpoints, ep)
	}
	r.regMu.Unlock()

	var firstErr error
	for _, ep := range endpoints {
		if err := disconnectOne(ep); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Registry) disconnectDefault() error {
	r.regMu.Lock()
	def := r.defaultEP
	r.regMu.Unlock()
	if def == nil {
		return nil
	}
	ep, err := r.lookup(def.Name)
	if err != nil {
		return err
	}
	return disconnectOne(ep)
}

func disconnectOne(ep *boundEndpoint) error {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	if ep.transport == nil {
		return nil
	}
	err := ep.transport.Close()
	ep.transport = nil
	return err
}

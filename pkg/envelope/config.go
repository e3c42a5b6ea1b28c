package envelope

// ProcessConfig is the process-wide configuration loaded via
// pkg/config.Load. DefaultEndpoint copies its broker connection fields into
// an EndpointConfig. ObjectStoreDriver and BucketPrefix are loaded and
// validated but not read by the Registry: endpoints supply their object
// store and bucket prefix through ObjectStoreConfig.
type ProcessConfig struct {
	BrokerAddress  string `env:"ENVELOPE_BROKER_ADDRESS" env-default:"localhost"`
	BrokerPort     int    `env:"ENVELOPE_BROKER_PORT" env-default:"5672"`
	BrokerVHost    string `env:"ENVELOPE_BROKER_VHOST" env-default:"/"`
	BrokerUsername string `env:"ENVELOPE_BROKER_USERNAME" env-default:"guest"`
	BrokerPassword string `env:"ENVELOPE_BROKER_PASSWORD" env-default:"guest"`
	BrokerTLS      bool   `env:"ENVELOPE_BROKER_TLS" env-default:"false"`

	ObjectStoreDriver string `env:"ENVELOPE_OBJECT_STORE_DRIVER" env-default:"memory" validate:"oneof=memory local s3 gcs azureblob"`
	BucketPrefix      string `env:"ENVELOPE_BUCKET_PREFIX" env-default:"envelope"`
}

// DefaultEndpoint builds an EndpointConfig template from ProcessConfig,
// for callers that want to register a default endpoint without repeating
// the broker connection fields.
func (c ProcessConfig) DefaultEndpoint(name, queue string) EndpointConfig {
	return EndpointConfig{
		Name:     name,
		Queue:    queue,
		Address:  c.BrokerAddress,
		Port:     c.BrokerPort,
		VHost:    c.BrokerVHost,
		Username: c.BrokerUsername,
		Password: c.BrokerPassword,
		TLS:      c.BrokerTLS,
	}
}

package config

// Option adjusts a loaded config, e.g. from command line flags.
type Option func(*AppConfig)

func WithPort(port int) Option {
	return func(c *AppConfig) {
		if port > 0 {
			c.Server.Port = port
		}
	}
}

func WithHost(host string) Option {
	return func(c *AppConfig) {
		if host != "" {
			c.Server.Host = host
		}
	}
}

func WithSelfHostedURL(url string) Option {
	return func(c *AppConfig) {
		if url != "" {
			c.SelfHosted.URL = url
		}
	}
}

func (c *AppConfig) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

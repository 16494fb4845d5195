package config

// ExampleConfig returns a configuration with example values for use with `renotize init`
func ExampleConfig() *Config {
	retries := DefaultQueryRetries
	stapleRetries := DefaultStapleRetries
	return &Config{
		Sign: SignConfig{
			KeyFile:      "~/.renotize/developer-id.key",
			CertFile:     "~/.renotize/developer-id.pem",
			KeyPassword:  "env(RENOTIZE_KEY_PASSWORD:-)",
			Entitlements: "entitlements.plist",
		},
		Notarize: NotarizeConfig{
			APIKeyFile:    "~/.renotize/api-key.json",
			PollInterval:  DefaultPollInterval,
			MaxWait:       DefaultMaxWait,
			QueryRetries:  &retries,
			RetryInterval: DefaultRetryInterval,
		},
		Staple: StapleConfig{
			Retries: &stapleRetries,
			Delay:   DefaultStapleDelay,
			Assess:  true,
		},
		DMG: DMGConfig{
			VolumeName: "MyApp",
		},
	}
}

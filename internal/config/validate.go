package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks a Config against its struct tags and netfsd-specific
// invariants (e.g. at least one backend, no duplicate protocol names).
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if len(cfg.Backends) == 0 {
		return fmt.Errorf("at least one backend must be configured")
	}

	seen := make(map[string]bool, len(cfg.Backends))
	for _, b := range cfg.Backends {
		if seen[b.Protocol] {
			return fmt.Errorf("duplicate backend protocol %q", b.Protocol)
		}
		seen[b.Protocol] = true

		if err := validate.Struct(b); err != nil {
			return fmt.Errorf("invalid backend %q: %w", b.Protocol, err)
		}

		switch b.Kind {
		case BackendKindLocalFS:
			if b.LocalFS.Root == "" {
				return fmt.Errorf("backend %q: localfs.root is required", b.Protocol)
			}
		case BackendKindS3:
			if b.S3.Bucket == "" {
				return fmt.Errorf("backend %q: s3.bucket is required", b.Protocol)
			}
			if b.S3.Region == "" {
				return fmt.Errorf("backend %q: s3.region is required", b.Protocol)
			}
		}
	}

	if cfg.Server.DefaultProtocol != "" && !seen[cfg.Server.DefaultProtocol] {
		return fmt.Errorf("server.default_protocol %q matches no configured backend", cfg.Server.DefaultProtocol)
	}

	return nil
}

package source

import (
	"fmt"

	"github.com/zjrosen/georefresh/internal/config"
	"github.com/zjrosen/georefresh/internal/source/deepstate"
)

// Compile-time checks that both transformers satisfy Transformer.
var (
	_ Transformer = (*ScriptTransformer)(nil)
	_ Transformer = (*deepstate.Transformer)(nil)
)

// New builds the transformer selected by cfg.Kind. dir is the work tree.
func New(cfg config.TransformConfig, dir string) (Transformer, error) {
	switch cfg.Kind {
	case "", config.TransformScript:
		return NewScript(dir, cfg.Command, WithSetup(cfg.Setup), WithTimeout(cfg.Timeout)), nil

	case config.TransformDeepState:
		d := cfg.Deep
		client, err := deepstate.NewClient(d.URL,
			deepstate.WithUserAgent(d.UserAgent),
			deepstate.WithTimeout(d.Timeout),
			deepstate.WithRetry(d.Attempts, d.RetryDelay),
		)
		if err != nil {
			return nil, err
		}
		return deepstate.NewTransformer(client, deepstate.Options{
			OutputDir:   d.OutputDir,
			FilePattern: d.FilePattern,
			CSVName:     d.CSVName,
			Names:       d.Names,
		}), nil
	}
	return nil, fmt.Errorf("unknown transformer kind %q", cfg.Kind)
}

package config

import (
	"context"
	"fmt"

	"github.com/cognicore/celldiag/pkg/celldiag/internalerr"
	"github.com/cognicore/celldiag/pkg/celldiag/lexicon"
	"github.com/cognicore/celldiag/pkg/celldiag/ontology"
	"github.com/cognicore/celldiag/pkg/celldiag/rules"
)

// Loader loads the schema, rule and lexicon documents a snapshot is built
// from. It is called once at start and again on every reload.
type Loader struct {
	Schema      ontology.Source
	Rules       rules.Paths
	LexiconPath string
}

// Components holds one consistent set of loaded documents.
type Components struct {
	Schema  *ontology.Schema
	Rules   rules.Config
	Lexicon *lexicon.Lexicon
}

// NewLoader builds a loader for cfg reading the schema from src.
func NewLoader(cfg *Config, src ontology.Source) *Loader {
	return &Loader{
		Schema:      src,
		Rules:       cfg.Rules.Paths(),
		LexiconPath: cfg.Lexicon.Path,
	}
}

// Load reads all documents. Nothing is returned unless every required one
// loads and validates.
func (l *Loader) Load(ctx context.Context) (*Components, error) {
	if l.Schema == nil {
		return nil, fmt.Errorf("%w: no schema source", internalerr.ErrInvalidConfig)
	}
	comp := &Components{}

	schema, err := l.Schema.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	comp.Schema = schema

	cfg, err := rules.LoadConfig(l.Rules)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	comp.Rules = cfg

	if l.LexiconPath != "" {
		lex, err := lexicon.LoadFromYAML(l.LexiconPath)
		if err != nil {
			return nil, fmt.Errorf("load lexicon: %w", err)
		}
		comp.Lexicon = lex
	} else {
		comp.Lexicon = lexicon.Default()
	}

	return comp, nil
}

package main

import (
	"fmt"
	"os"

	"github.com/cairn-pm/cairn/internal/cache"
	"github.com/cairn-pm/cairn/internal/config"
	"github.com/cairn-pm/cairn/internal/localbinrepo"
	"github.com/cairn-pm/cairn/internal/privhelper"
	"github.com/cairn-pm/cairn/internal/registry"
	"github.com/cairn-pm/cairn/internal/spm"
	"github.com/cairn-pm/cairn/internal/userconfig"
	"github.com/cairn-pm/cairn/internal/vcsclient"
)

// app bundles every collaborator a command needs, wired once per
// invocation from on-disk config and the environment.
type app struct {
	cfg  *config.Config
	user *userconfig.Config

	spm   *spm.Client
	index *registry.Registry
	cache *cache.Cache
	repo  *localbinrepo.Client
	vcs   *vcsclient.Client
	priv  *privhelper.Runner
}

func newApp() (*app, error) {
	cfg, err := config.Default()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	user, err := userconfig.Load()
	if err != nil {
		return nil, fmt.Errorf("load user config: %w", err)
	}

	c, err := cache.New()
	if err != nil {
		return nil, err
	}

	spmClient := &spm.Client{}

	var priv *privhelper.Runner
	helperBin := user.Helper
	if helperBin == "" {
		if b, err := privhelper.Detect(); err == nil {
			helperBin = b
		}
	}
	if helperBin != "" {
		priv = privhelper.New(helperBin, nil)
	}

	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		if v, ok := user.Secrets["github_token"]; ok {
			token = v
		}
	}

	return &app{
		cfg:   cfg,
		user:  user,
		spm:   spmClient,
		index: registry.New("", cfg.APITimeout),
		cache: c,
		repo:  &localbinrepo.Client{Priv: priv, SPM: spmClient},
		vcs:   vcsclient.New(token),
		priv:  priv,
	}, nil
}

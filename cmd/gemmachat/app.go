package main

import (
	"github.com/rs/zerolog"

	"gemmachat/internal/chat"
	"gemmachat/internal/config"
	"gemmachat/internal/registry"
	"gemmachat/internal/session"
	"gemmachat/pkg/types"
)

// app is one conversation bound to one session.
type app struct {
	cfg    config.Config
	log    zerolog.Logger
	models []types.Model
	model  types.Model
	sess   *session.Manager
	ctrl   *chat.Controller
}

// newApp resolves the model and starts loading it. A model that cannot be
// resolved is not fatal: initialization fails on the missing file and the
// conversation records why, while replies fall back to the degraded text.
func newApp(cfg config.Config, log zerolog.Logger) *app {
	a := &app{cfg: cfg, log: log}
	models, err := registry.LoadDir(cfg.ModelsDir)
	if err != nil {
		log.Warn().Err(err).Str("dir", cfg.ModelsDir).Msg("cannot scan models dir")
	}
	a.models = models
	a.model, err = registry.Resolve(models, cfg.Model)
	if err != nil {
		log.Warn().Err(err).Msg("model not resolved")
		a.model = types.Model{ID: cfg.Model, Name: cfg.Model, Path: cfg.Model}
	}
	a.sess = session.NewWithConfig(session.ManagerConfig{
		ModelPath: a.model.Path,
		Engine:    cfg.Engine,
		Logger:    &log,
	})
	a.ctrl = chat.NewController(a.sess, chat.NewStore(), &log)
	a.sess.RequestInit(a.ctrl.InitWaiter())
	return a
}

func (a *app) Close() error { return a.sess.Close() }

package directory

import (
	"context"

	apphttp "faculty_meetings_backend/internal/http"
	"faculty_meetings_backend/platform/config"
	"faculty_meetings_backend/platform/logger"
	"faculty_meetings_backend/platform/validator"

	"github.com/redis/go-redis/v9"
)

// Module wires the token and faculty stores and their routes.
type Module struct {
	Tokens  *TokenStore
	Faculty *FacultyStore
	handler *Handler
	log     *logger.Logger
}

func NewModule(rdb *redis.Client, cfg config.DirectoryConfig, val *validator.Validator, log *logger.Logger) *Module {
	tokens := NewTokenStore(rdb, cfg.GetPushTokenTTL())
	faculty := NewFacultyStore(rdb)
	return &Module{
		Tokens:  tokens,
		Faculty: faculty,
		handler: NewHandler(tokens, faculty, val),
		log:     log,
	}
}

// LoadSeedFile applies a faculty seed file if one is configured.
func (m *Module) LoadSeedFile(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	seed, err := LoadSeed(path)
	if err != nil {
		return err
	}
	added, err := ApplySeed(ctx, m.Faculty, seed)
	if err != nil {
		return err
	}
	m.log.Info("faculty seed applied", "file", path, "entries", added)
	return nil
}

func (m *Module) Name() string {
	return "directory"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	token := ctx.Protected.Group("/push-token")
	token.Use(ctx.StrictRateLimiter.RateLimit())
	token.PUT("", m.handler.RegisterToken)
	token.DELETE("", m.handler.RemoveToken)

	faculty := ctx.Admin.Group("/faculty")
	faculty.GET("", m.handler.ListFaculty)
	faculty.PUT("/:userId", m.handler.AddFaculty)
	faculty.DELETE("/:userId", m.handler.RemoveFaculty)
}

var _ apphttp.Module = (*Module)(nil)

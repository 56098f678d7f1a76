package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mintforge/packdrop-backend/api/controllers"
	"github.com/mintforge/packdrop-backend/api/middleware"
	"github.com/mintforge/packdrop-backend/internal/catalog"
	"github.com/mintforge/packdrop-backend/internal/decks"
	"github.com/mintforge/packdrop-backend/internal/distribution"
	"github.com/mintforge/packdrop-backend/internal/emission"
	"github.com/mintforge/packdrop-backend/internal/randomness"
	"github.com/mintforge/packdrop-backend/internal/security"
	"github.com/mintforge/packdrop-backend/pkg/config"
	"github.com/mintforge/packdrop-backend/pkg/db"
	"github.com/mintforge/packdrop-backend/pkg/logger"
	"github.com/mintforge/packdrop-backend/pkg/redis"
)

// Deps bundles everything the router wires into handlers.
type Deps struct {
	Config         *config.Config
	Logger         *logger.Logger
	DBPinger       db.Pinger
	RedisPinger    redis.Pinger
	Catalog        catalog.Service
	Decks          decks.Service
	Emission       emission.Service
	Security       security.Service
	Randomness     randomness.Service
	Distribution   distribution.Service
	Limiter        *security.CooldownLimiter
	MetricsHandler http.Handler
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DBPinger, deps.RedisPinger))
	})

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/items", func(r chi.Router) {
			r.Get("/", controllers.ListItems(deps.Catalog, logg))
			r.Get("/{itemId}", controllers.GetItem(deps.Catalog, logg))
		})

		r.Route("/decks", func(r chi.Router) {
			r.Get("/", controllers.ListDecks(deps.Decks, logg))
			r.Get("/{deckName}", controllers.GetDeck(deps.Decks, logg))
			r.Post("/{deckName}/execute", controllers.ExecuteDeck(deps.Distribution, deps.Limiter, logg))
		})

		r.Route("/packs", func(r chi.Router) {
			r.Post("/", controllers.OpenPack(deps.Randomness, deps.Limiter, logg))
			r.Get("/{requestId}", controllers.GetPackRequest(deps.Randomness, logg))
		})

		r.Route("/status", func(r chi.Router) {
			r.Get("/", controllers.EngineStatus(deps.Security, deps.Emission, logg))
			r.Get("/callers/{caller}", controllers.CallerStats(deps.Emission, logg))
		})
		r.Get("/emission", controllers.EmissionTotals(deps.Emission, logg))

		r.Route("/oracle", func(r chi.Router) {
			r.Use(middleware.OracleAuth(cfg.Oracle, logg))
			r.Post("/fulfillments/{requestId}", controllers.FulfillPackRequest(deps.Randomness, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminKey(cfg.Admin, logg))

			r.Route("/items", func(r chi.Router) {
				r.Post("/", controllers.RegisterItem(deps.Catalog, logg))
				r.Post("/{itemId}/deactivate", controllers.DeactivateItem(deps.Catalog, logg))
				r.Post("/{itemId}/reactivate", controllers.ReactivateItem(deps.Catalog, logg))
				r.Post("/{itemId}/remove", controllers.RemoveItem(deps.Catalog, logg))
			})

			r.Route("/decks", func(r chi.Router) {
				r.Post("/", controllers.CreateDeck(deps.Decks, logg))
				r.Post("/{deckName}/deactivate", controllers.DeactivateDeck(deps.Decks, logg))
				r.Patch("/{deckName}/price", controllers.UpdateDeckPrice(deps.Decks, logg))
				r.Post("/{deckName}/price/lock", controllers.LockDeckPrice(deps.Decks, logg))
			})

			r.Route("/security", func(r chi.Router) {
				r.Get("/", controllers.SecurityState(deps.Security, logg))
				r.Post("/flags/{flag}", controllers.ToggleSecurityFlag(deps.Security, logg))
			})
		})
	})

	return r
}

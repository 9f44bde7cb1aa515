// Package httpapi exposes the simulated gateway: GraphQL for user lookup
// and duel requests, plus the notification and duel sockets.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
	"go.uber.org/zap"

	"github.com/w1sec0d/courseclash-duels/internal/sim/hub"
	"github.com/w1sec0d/courseclash-duels/internal/sim/questions"
	"github.com/w1sec0d/courseclash-duels/internal/sim/ws"
)

type Deps struct {
	Hub   *hub.Hub
	Bank  questions.Bank
	Users *Directory

	QuestionsPerDuel int
	TimeLimit        time.Duration

	OriginPatterns []string
	Logger         *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if d.Bank == nil {
		d.Bank = questions.NewStaticBank()
	}
	if d.Users == nil {
		d.Users = NewDirectory(DefaultUsers()...)
	}
	if d.QuestionsPerDuel <= 0 {
		d.QuestionsPerDuel = 5
	}

	schema := graphql.MustParseSchema(Schema, &resolver{
		hub:      d.Hub,
		bank:     d.Bank,
		users:    d.Users,
		perDuel:  d.QuestionsPerDuel,
		limitSec: timeLimitSeconds(d.TimeLimit),
		log:      log.Named("graphql"),
	})
	wsOpts := ws.Options{OriginPatterns: d.OriginPatterns, Logger: log}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz)
	r.Handle("/graphql", &relay.Handler{Schema: schema})
	r.Get("/ws/notifications/{userId}", ws.NotificationHandler(d.Hub, wsOpts))
	r.Get("/ws/duels/{duelId}/{playerId}", ws.DuelHandler(d.Hub, wsOpts))
	return r
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

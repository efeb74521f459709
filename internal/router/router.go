package router

import (
	"database/sql"
	"net/http"
	"os"

	"clinical-doc-access/internal/adapters/auth/hcen"
	fhirdocs "clinical-doc-access/internal/adapters/documents/fhir"
	memdocs "clinical-doc-access/internal/adapters/documents/memory"
	notifygw "clinical-doc-access/internal/adapters/notify/gateway"
	"clinical-doc-access/internal/adapters/notify/noop"
	mem "clinical-doc-access/internal/adapters/storage/memory"
	pg "clinical-doc-access/internal/adapters/storage/postgres"
	"clinical-doc-access/internal/domain/accessrequests"
	"clinical-doc-access/internal/domain/policies"
	"clinical-doc-access/internal/middleware"
	"clinical-doc-access/internal/platform/config"
	"clinical-doc-access/internal/platform/logger"
	"clinical-doc-access/internal/platform/metrics"
	"clinical-doc-access/internal/ports/auth"
	"clinical-doc-access/internal/ports/documents"
	"clinical-doc-access/internal/ports/notify"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "clinical-doc-access/docs" // registro del spec generado por swag
)

type Options struct {
	AuthVerifier auth.AuthVerifier // puede ser nil (modo dev)

	// Opcional: si viene, usa Postgres. Si no, in-memory.
	DB *sql.DB

	// Opcional: config ya armada; nil => FromEnv.
	Cfg *config.Config

	// Opcional: nil => logger desde env.
	Log logger.Logger

	// Opcionales: colaboradores externos; nil => adapter por env o fake.
	Docs     documents.Fetcher
	Notifier notify.Notifier
}

// Services agrupa lo instanciado por NewRouter, por si el caller (main, tests)
// necesita algo más que el http.Handler (ej: el barrido de expiración).
type Services struct {
	Policies *policies.Service
	Requests *accessrequests.Service
}

func NewRouter(opts Options) (http.Handler, Services) {
	cfg := config.FromEnv()
	if opts.Cfg != nil {
		cfg = *opts.Cfg
	}

	log := opts.Log
	if log == nil {
		log = logger.NewFromEnv()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(log))

	r.Use(middleware.AuthContext(opts.AuthVerifier))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())
	r.Get("/swagger/*", httpSwagger.WrapHandler)

	var (
		policiesRepo policies.Repository
		requestsRepo accessrequests.Repository
	)

	// Si no te pasan DB explícita, intenta por env (para dev/handoff)
	db := opts.DB
	if db == nil {
		if cfg.DBDsn != "" {
			opened, err := pg.Open(cfg.DBDsn)
			if err == nil {
				db = opened
			} else {
				log.Warn("no se pudo abrir postgres, se usa in-memory", map[string]any{"error": err.Error()})
			}
		}
	}

	if db != nil {
		policiesRepo = pg.NewPoliciesRepo(db)
		requestsRepo = pg.NewAccessRequestsRepo(db)
	} else {
		policiesRepo = mem.NewPoliciesRepo()
		requestsRepo = mem.NewAccessRequestsRepo()
	}

	docs := opts.Docs
	if docs == nil {
		if base := os.Getenv("FHIR_BASE_URL"); base != "" {
			client, err := fhirdocs.NewClient(fhirdocs.Config{
				BaseURL: base,
				APIKey:  os.Getenv("FHIR_API_KEY"),
			})
			if err == nil {
				docs = client
			}
		}
		if docs == nil {
			docs = memdocs.NewFetcher()
		}
	}

	notifier := opts.Notifier
	if notifier == nil {
		if base := os.Getenv("NOTIFY_BASE_URL"); base != "" {
			client, err := notifygw.NewClient(notifygw.Config{
				BaseURL: base,
				APIKey:  os.Getenv("NOTIFY_API_KEY"),
			})
			if err == nil {
				notifier = client
			}
		}
		if notifier == nil {
			notifier = noop.NewNotifier(log)
		}
	}

	// Services por módulo
	cache := policies.NewCache(policiesRepo)
	policiesSvc := policies.NewService(policiesRepo, cache, cfg, log)
	requestsSvc := accessrequests.NewService(requestsRepo, docs, notifier, cfg, log)

	// Rutas por módulo. El service de accessrequests hace de ConsentStarter:
	// una evaluación PENDING arranca (o reutiliza) el pedido de consentimiento.
	policies.RegisterRoutes(r, policiesSvc, requestsSvc)
	accessrequests.RegisterRoutes(r, requestsSvc)

	return r, Services{
		Policies: policiesSvc,
		Requests: requestsSvc,
	}
}

// NewVerifierFromEnv arma el verifier del IAM si hay env para eso; nil en dev.
func NewVerifierFromEnv() auth.AuthVerifier {
	base := os.Getenv("HCEN_BASE_URL")
	key := os.Getenv("HCEN_API_KEY")
	if base == "" || key == "" {
		return nil
	}
	client, err := hcen.NewClient(hcen.Config{BaseURL: base, APIKey: key})
	if err != nil || !client.IsConfigured() {
		return nil
	}
	return hcen.NewVerifier(client)
}

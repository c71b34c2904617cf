package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/WmBreck/2nd-opinion-construction/internal/config"
	"github.com/WmBreck/2nd-opinion-construction/internal/dtos"
	"github.com/WmBreck/2nd-opinion-construction/internal/utils"
)

const healthTimeout = 3 * time.Second

// Pinger is anything the health check can reach; *pgxpool.Pool and
// *storage.MinioStore both qualify.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthController struct {
	db    Pinger
	store Pinger
	cfg   *config.Config
}

func NewHealthController(db, store Pinger, cfg *config.Config) *HealthController {
	return &HealthController{db: db, store: store, cfg: cfg}
}

func (c *HealthController) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := c.db.Ping(ctx); err != nil {
		utils.RespondErrorWithCode(w, http.StatusServiceUnavailable, utils.ErrCodeInternal, "Database unreachable", nil, err)
		return
	}
	if err := c.store.Ping(ctx); err != nil {
		utils.RespondErrorWithCode(w, http.StatusServiceUnavailable, utils.ErrCodeInternal, "Storage unreachable", nil, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, dtos.HealthCheckResponse{Status: "OK"})
}

// PingHandler confirms the function is deployed and which secrets it can
// see. Only SITE_URL is echoed; everything else is "set" or "missing".
func (c *HealthController) PingHandler(w http.ResponseWriter, r *http.Request) {
	env := make(map[string]*string)
	for k, v := range c.cfg.Presence() {
		env[k] = utils.Ptr(v)
	}
	env["SITE_URL"] = utils.NilIfEmpty(c.cfg.SiteURL)

	utils.RespondWithJSON(w, http.StatusOK, dtos.PingResponse{OK: true, Env: env})
}

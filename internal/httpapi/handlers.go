package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"notif/internal/cache"
	"notif/internal/domain"
	"notif/internal/pipeline"
	"notif/internal/store"
)

const maxPageSize = 100
const defaultPageSize = 25

// MetricsHandler backs GET /rest/metrics/messages/application/{id}, ported
// field for field from PushMetricsEndpoint.pushMessageInformationPerApplication:
// page/per_page/sort/search query params, a JSON array of matching
// PushMessageInformation rows, and total/receivers/appOpenedCounter response
// headers. total is computed fresh from the filtered query per the
// original; receivers and appOpenedCounter come from MetricsCache (§4.9).
type MetricsHandler struct {
	Store pipeline.Store
	Cache *cache.MetricsCache
}

func RegisterMetrics(s *Server, h *MetricsHandler) {
	s.Mux.HandleFunc("/rest/metrics/messages/application/{id}", h.ListForApplication).Methods(http.MethodGet)
}

func (h *MetricsHandler) ListForApplication(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		http.Error(w, ErrMissingID, http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	page := parseIntDefault(q.Get("page"), 0)
	perPage := parseIntDefault(q.Get("per_page"), defaultPageSize)
	if perPage > maxPageSize {
		perPage = maxPageSize
	}
	if perPage < 1 {
		perPage = 1
	}
	sorting := q.Get("sort")
	if sorting != "desc" {
		sorting = "asc"
	}
	search := q.Get("search")

	jobs, total, err := h.Store.ListPushJobs(r.Context(), store.MetricsListQuery{
		AppID:   id,
		Page:    page,
		PerPage: perPage,
		Sort:    sorting,
		Search:  search,
	})
	if err != nil {
		http.Error(w, ErrDependency, http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []domain.PushMessageInformation{}
	}

	receivers, _ := h.Cache.GetString(id, cache.KindTotalReceivers)
	appOpened, _ := h.Cache.GetString(id, cache.KindAppOpenedCounter)

	w.Header().Set("total", strconv.Itoa(total))
	w.Header().Set("receivers", receivers)
	w.Header().Set("appOpenedCounter", appOpened)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(jobs)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// Splitter is the subset of pipeline.Splitter's behavior SplitHandler needs,
// narrowed to avoid an httpapi -> pipeline import of the concrete type.
type Splitter interface {
	Split(ctx context.Context, app domain.PushApplication, msg domain.UnifiedPushMessage, meta pipeline.SubmitterMeta) (string, error)
}

// submitRequest is the body of POST /rest/messages/{appId}: the caller
// supplies the already-resolved application (with its variants) alongside
// the message, since variant/app registration is out of scope (SPEC_FULL
// §7) and this repo has no registry for the splitter to query instead.
type submitRequest struct {
	Application domain.PushApplication
	Message     domain.UnifiedPushMessage
}

type submitResponse struct {
	ID string `json:"id"`
}

// SplitHandler backs POST /rest/messages/{appId}, the minimal unauthenticated
// entrypoint SPEC_FULL adds purely to give the splitter something to be
// invoked by in this repo's own scope.
type SplitHandler struct {
	Splitter Splitter
}

func RegisterSplit(s *Server, h *SplitHandler) {
	s.Mux.HandleFunc("/rest/messages/{appId}", h.Submit).Methods(http.MethodPost)
}

func (h *SplitHandler) Submit(w http.ResponseWriter, r *http.Request) {
	appID := mux.Vars(r)["appId"]
	if appID == "" {
		http.Error(w, ErrMissingID, http.StatusNotFound)
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrBadForm, http.StatusBadRequest)
		return
	}
	req.Application.ID = appID

	meta := pipeline.SubmitterMeta{
		IPAddress:        remoteIP(r),
		ClientIdentifier: r.Header.Get("X-Client-Identifier"),
	}

	id, err := h.Splitter.Split(r.Context(), req.Application, req.Message, meta)
	if err != nil {
		http.Error(w, ErrDependency, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(submitResponse{ID: id})
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

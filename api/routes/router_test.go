package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"eventdraw/internal/lottery"
	"eventdraw/internal/shared/config"
	"eventdraw/internal/shared/database"
	"eventdraw/internal/shared/middleware"
	"eventdraw/internal/shared/utils/response"
	"eventdraw/pkg/logger"
	"eventdraw/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

type inbox struct {
	mu  sync.Mutex
	got []lottery.Notification
}

func (i *inbox) Notify(_ context.Context, n lottery.Notification) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.got = append(i.got, n)
	return nil
}

func (i *inbox) count(kind lottery.MessageKind) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	c := 0
	for _, n := range i.got {
		if n.Kind == kind {
			c++
		}
	}
	return c
}

func bearer(cfg *config.Config, userID, role string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"type":    "access",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	s, _ := token.SignedString([]byte(cfg.JWT.Secret))
	return "Bearer " + s
}

func call(engine http.Handler, method, path, auth string, body interface{}) (int, response.StandardApiResponse) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	var env response.StandardApiResponse
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w.Code, env
}

func newEngine(cfg *config.Config, box *inbox) (*gin.Engine, *metrics.Manager) {
	gin.SetMode(gin.TestMode)
	m := metrics.NewManager(metrics.WithPrometheusRegistry(prometheus.NewRegistry()))
	engine := gin.New()
	NewRouter(context.Background(), cfg, &database.DB{}, logger.Discard(), m, box).SetupRoutes(engine)
	return engine, m
}

func TestRouterEndToEnd(t *testing.T) {
	Convey("Given a server on the in-memory store", t, func() {
		cfg := config.Load()
		cfg.RateLimit.Enabled = false
		box := &inbox{}
		engine, _ := newEngine(cfg, box)

		organizer := bearer(cfg, "org-1", middleware.RoleOrganizer)
		base := cfg.GetAPIBasePath()

		code, env := call(engine, http.MethodPost, base+"/events", organizer, map[string]interface{}{
			"name":     "Spring Gala",
			"capacity": 2,
			"opening":  time.Now().Add(-time.Hour),
			"deadline": time.Now().Add(time.Hour),
		})
		So(code, ShouldEqual, http.StatusCreated)
		eventID := env.Data.(map[string]interface{})["id"].(string)

		for _, u := range []string{"a", "b", "c"} {
			code, _ := call(engine, http.MethodPost, base+"/events/"+eventID+"/waitlist", bearer(cfg, u, middleware.RoleUser), nil)
			So(code, ShouldEqual, http.StatusCreated)
		}

		Convey("Entrants cannot run a draw", func() {
			code, _ := call(engine, http.MethodPost, base+"/admin/lottery/"+eventID+"/draw", bearer(cfg, "a", middleware.RoleUser), map[string]int{"count": 1})
			So(code, ShouldEqual, http.StatusForbidden)
		})

		Convey("Anonymous callers cannot join", func() {
			code, _ := call(engine, http.MethodPost, base+"/events/"+eventID+"/waitlist", "", nil)
			So(code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("A full draw, response and close", func() {
			code, env := call(engine, http.MethodPost, base+"/admin/lottery/"+eventID+"/draw", organizer, map[string]int{"count": 5})
			So(code, ShouldEqual, http.StatusOK)
			draw := env.Data.(map[string]interface{})
			So(draw["winners_added"], ShouldEqual, float64(2))
			So(draw["remaining_capacity"], ShouldEqual, float64(0))
			So(box.count(lottery.KindSelected), ShouldEqual, 2)

			winner := draw["winners"].([]interface{})[0].(string)
			code, _ = call(engine, http.MethodPost, base+"/events/"+eventID+"/waitlist/respond", bearer(cfg, winner, middleware.RoleUser), map[string]bool{"accept": false})
			So(code, ShouldEqual, http.StatusOK)

			code, env = call(engine, http.MethodPost, base+"/admin/lottery/"+eventID+"/replacements", organizer, map[string]int{"count": 1})
			So(code, ShouldEqual, http.StatusOK)
			So(env.Data.(map[string]interface{})["winners_added"], ShouldEqual, float64(1))
			So(box.count(lottery.KindReplacement), ShouldEqual, 1)

			code, env = call(engine, http.MethodGet, base+"/events/"+eventID+"/summary", "", nil)
			So(code, ShouldEqual, http.StatusOK)
			So(env.Data.(map[string]interface{})["remaining_capacity"], ShouldEqual, float64(0))

			code, env = call(engine, http.MethodPost, base+"/admin/lottery/"+eventID+"/close", organizer, nil)
			So(code, ShouldEqual, http.StatusOK)
			So(env.Data.(map[string]interface{})["not_selected"], ShouldBeEmpty)
		})
	})
}

func TestRouterOperational(t *testing.T) {
	Convey("Health, ping and metrics are served outside the API prefix", t, func() {
		cfg := config.Load()
		engine, m := newEngine(cfg, &inbox{})
		m.RecordAdmission("ADMITTED")

		code, _ := call(engine, http.MethodGet, "/health", "", nil)
		So(code, ShouldEqual, http.StatusOK)

		code, _ = call(engine, http.MethodGet, "/ping", "", nil)
		So(code, ShouldEqual, http.StatusOK)

		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		So(w.Code, ShouldEqual, http.StatusOK)
		So(w.Body.String(), ShouldContainSubstring, "eventdraw_waitlist_admissions_total")
	})

	Convey("Joins are rate limited per user when enabled", t, func() {
		cfg := config.Load()
		cfg.RateLimit.JoinRequests = 1
		engine, _ := newEngine(cfg, &inbox{})
		base := cfg.GetAPIBasePath()

		user := bearer(cfg, "u1", middleware.RoleUser)
		first, _ := call(engine, http.MethodPost, base+"/events/missing/waitlist", user, nil)
		second, _ := call(engine, http.MethodPost, base+"/events/missing/waitlist", user, nil)
		So(first, ShouldEqual, http.StatusNotFound)
		So(second, ShouldEqual, http.StatusTooManyRequests)
	})
}

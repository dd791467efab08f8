package main_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/frahmantamala/teamboard/cmd"
	"github.com/frahmantamala/teamboard/internal"
	"github.com/frahmantamala/teamboard/internal/authz"
	"github.com/frahmantamala/teamboard/internal/resolver"
	"github.com/frahmantamala/teamboard/internal/seed"
	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const e2eSecret = "e2e-secret-e2e-secret-e2e-secret-e2e"

var _ = Describe("Teamboard API", Ordered, func() {
	var (
		app    *cmd.App
		server *httptest.Server
	)

	token := func(userID string) string {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}).SignedString([]byte(e2eSecret))
		Expect(err).NotTo(HaveOccurred())
		return signed
	}

	call := func(method, path, userID, teamID string, body any) *http.Response {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req, err := http.NewRequest(method, server.URL+path, &buf)
		Expect(err).NotTo(HaveOccurred())
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if userID != "" {
			req.Header.Set("Authorization", "Bearer "+token(userID))
		}
		if teamID != "" {
			req.Header.Set("X-Team-ID", teamID)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	decode := func(resp *http.Response, into any) {
		Expect(json.NewDecoder(resp.Body).Decode(into)).To(Succeed())
	}

	BeforeAll(func() {
		cfg := internal.LoadConfigFromEnv()
		cfg.Database.Driver = "sqlite"
		cfg.Database.Source = "file::memory:?_foreign_keys=on"
		cfg.Cache.Backend = "memory"
		cfg.Cache.Broadcast = false
		cfg.Security = internal.SecurityConfig{JWTSecret: e2eSecret}
		cfg.Server.ValidateRequests = true
		Expect(cfg.Validate()).To(Succeed())

		lg := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		var err error
		app, err = cmd.NewApp(cfg, lg)
		Expect(err).NotTo(HaveOccurred())

		ctx := context.Background()
		table, err := seed.Default()
		Expect(err).NotTo(HaveOccurred())
		_, err = seed.NewSeeder(app.Catalog, app.Roles, lg).Apply(ctx, table)
		Expect(err).NotTo(HaveOccurred())

		owner, err := app.Roles.GetRole(ctx, "owner")
		Expect(err).NotTo(HaveOccurred())
		_, err = app.Teams.AssignRole(ctx, "owner-1", "t1", owner.ID)
		Expect(err).NotTo(HaveOccurred())

		admin, err := app.Roles.GetRole(ctx, "admin")
		Expect(err).NotTo(HaveOccurred())
		_, err = app.Teams.AssignRole(ctx, "admin-2", "t2", admin.ID)
		Expect(err).NotTo(HaveOccurred())

		router, err := app.Router()
		Expect(err).NotTo(HaveOccurred())
		server = httptest.NewServer(router)
	})

	AfterAll(func() {
		server.Close()
		Expect(app.Close()).To(Succeed())
	})

	It("answers liveness without a token", func() {
		Expect(call(http.MethodGet, "/api/v1/ping", "", "", nil).StatusCode).To(Equal(http.StatusOK))
	})

	It("requires a token for the api", func() {
		Expect(call(http.MethodGet, "/api/v1/permissions", "", "", nil).StatusCode).To(Equal(http.StatusUnauthorized))
	})

	It("lists the catalog", func() {
		resp := call(http.MethodGet, "/api/v1/permissions", "owner-1", "t1", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var body struct {
			Permissions []map[string]any `json:"permissions"`
		}
		decode(resp, &body)
		Expect(body.Permissions).To(HaveLen(28))
	})

	It("lets the owner assign a member", func() {
		resp := call(http.MethodPut, "/api/v1/teams/t1/members/u2/role", "owner-1", "", map[string]string{"role": "editor"})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var body authz.AssignmentResponse
		decode(resp, &body)
		Expect(body.Role.Slug).To(Equal("editor"))
	})

	It("resolves the member's permissions", func() {
		resp := call(http.MethodGet, "/api/v1/me/permissions", "u2", "t1", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var res resolver.Resolution
		decode(resp, &res)
		Expect(res.RoleSlug).To(Equal("editor"))
		Expect(res.Permissions).To(HaveLen(8))
		Expect(res.Permissions).To(ContainElement("content.update"))
	})

	It("answers a check with a decision body", func() {
		resp := call(http.MethodPost, "/api/v1/permissions/check", "u2", "t1", map[string]string{"permission": "billing.manage"})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var check resolver.PermissionCheck
		decode(resp, &check)
		Expect(check.Granted).To(BeFalse())
		Expect(check.Reason).To(Equal(resolver.ReasonNotGranted))
	})

	It("rejects a check request without a permission", func() {
		resp := call(http.MethodPost, "/api/v1/permissions/check", "u2", "t1", map[string]string{})
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("refuses management routes to an editor", func() {
		resp := call(http.MethodPut, "/api/v1/teams/t1/members/u3/role", "u2", "", map[string]string{"role": "viewer"})
		Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
	})

	It("reflects a new binding on the next request", func() {
		resp := call(http.MethodPost, "/api/v1/roles/editor/permissions", "owner-1", "t1", map[string]string{"permission": "billing.read"})
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		var change authz.BindingChangeResponse
		decode(resp, &change)
		Expect(change.Changed).To(BeTrue())

		resp = call(http.MethodGet, "/api/v1/me/permissions", "u2", "t1", nil)
		var res resolver.Resolution
		decode(resp, &res)
		Expect(res.Permissions).To(ContainElement("billing.read"))
	})

	It("streams the denials from the audit log", func() {
		resp := call(http.MethodGet, "/api/v1/audit?action=denied&user_id=u2", "owner-1", "t1", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(resp.Header.Get("Content-Type")).To(Equal("application/x-ndjson"))

		var slugs []string
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			var entry authz.AuditEntryResponse
			Expect(json.Unmarshal(scanner.Bytes(), &entry)).To(Succeed())
			Expect(entry.UserID).To(Equal("u2"))
			slugs = append(slugs, entry.PermissionSlug)
		}
		Expect(scanner.Err()).NotTo(HaveOccurred())
		Expect(slugs).To(ConsistOf("team.manage", "billing.manage"))
	})

	It("rejects an unknown audit action", func() {
		resp := call(http.MethodGet, "/api/v1/audit?action=approved", "owner-1", "t1", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("keeps another team's audit entries out of reach", func() {
		resp := call(http.MethodGet, "/api/v1/audit?team_id=t1", "admin-2", "t2", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusForbidden))

		resp = call(http.MethodGet, "/api/v1/audit?action=denied", "admin-2", "t2", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			var entry authz.AuditEntryResponse
			Expect(json.Unmarshal(scanner.Bytes(), &entry)).To(Succeed())
			Expect(entry.TeamID).To(Equal("t2"))
		}
		Expect(scanner.Err()).NotTo(HaveOccurred())
	})

	It("refuses role changes above the caller's rank", func() {
		resp := call(http.MethodPost, "/api/v1/roles/owner/deactivate", "admin-2", "t2", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusForbidden))

		resp = call(http.MethodGet, "/api/v1/roles/owner", "admin-2", "t2", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var body map[string]any
		decode(resp, &body)
		Expect(body).To(HaveKeyWithValue("is_active", true))
	})
})

// Package dotest runs an in-memory stand-in for the DigitalOcean API.
package dotest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"droplet_console/internal/digitalocean"
)

// Server serves the subset of the v2 API the console uses. Droplet actions
// are accepted but never applied; tests move droplets with SetStatus and
// finish actions with FinishAction.
type Server struct {
	*httptest.Server

	// Token, when set, is the only bearer token accepted.
	Token string

	mu        sync.Mutex
	droplets  map[int64]digitalocean.Droplet
	firewalls map[string]digitalocean.Firewall
	actions   map[int64]digitalocean.Action
	nextID    int64
	failures  map[string][]int
	calls     []string
}

func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		droplets:  map[int64]digitalocean.Droplet{},
		firewalls: map[string]digitalocean.Firewall{},
		actions:   map[int64]digitalocean.Action{},
		nextID:    1000,
		failures:  map[string][]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/account", s.account)
	mux.HandleFunc("GET /v2/droplets", s.listDroplets)
	mux.HandleFunc("POST /v2/droplets", s.createDroplet)
	mux.HandleFunc("GET /v2/droplets/{id}", s.getDroplet)
	mux.HandleFunc("DELETE /v2/droplets/{id}", s.deleteDroplet)
	mux.HandleFunc("POST /v2/droplets/{id}/actions", s.dropletAction)
	mux.HandleFunc("GET /v2/actions/{id}", s.getAction)
	mux.HandleFunc("GET /v2/firewalls", s.listFirewalls)
	mux.HandleFunc("POST /v2/firewalls", s.createFirewall)
	mux.HandleFunc("GET /v2/firewalls/{id}", s.getFirewall)
	mux.HandleFunc("DELETE /v2/firewalls/{id}", s.deleteFirewall)
	mux.HandleFunc("POST /v2/firewalls/{id}/droplets", s.firewallDroplets(true))
	mux.HandleFunc("DELETE /v2/firewalls/{id}/droplets", s.firewallDroplets(false))
	mux.HandleFunc("POST /v2/firewalls/{id}/rules", s.firewallRules(true))
	mux.HandleFunc("DELETE /v2/firewalls/{id}/rules", s.firewallRules(false))
	mux.HandleFunc("GET /v2/regions", s.static("regions", []digitalocean.Region{
		{Slug: "nyc1", Name: "New York 1", Available: true},
		{Slug: "ams3", Name: "Amsterdam 3", Available: true},
	}))
	mux.HandleFunc("GET /v2/sizes", s.static("sizes", []digitalocean.Size{
		{Slug: "s-1vcpu-1gb", Memory: 1024, VCPUs: 1, Disk: 25, PriceMonthly: 6, PriceHourly: 0.00893, Available: true},
		{Slug: "s-2vcpu-2gb", Memory: 2048, VCPUs: 2, Disk: 60, PriceMonthly: 18, PriceHourly: 0.02679, Available: true},
	}))
	mux.HandleFunc("GET /v2/images", s.static("images", []digitalocean.Image{
		{ID: 1, Name: "24.04 (LTS) x64", Distribution: "Ubuntu", Slug: "ubuntu-24-04-x64", Public: true, Type: "base"},
		{ID: 2, Name: "12 x64", Distribution: "Debian", Slug: "debian-12-x64", Public: true, Type: "base"},
	}))

	s.Server = httptest.NewServer(s.intercept(mux))
	t.Cleanup(s.Close)
	return s
}

// BaseURL is the API root to hand to digitalocean.WithBaseURL.
func (s *Server) BaseURL() string {
	return s.URL + "/v2"
}

// FailNext makes the next len(statuses) requests matching method and path
// answer with those statuses, in order.
func (s *Server) FailNext(method, path string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.failures[key] = append(s.failures[key], statuses...)
}

// Calls returns how many requests hit method and path.
func (s *Server) Calls(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == method+" "+path {
			n++
		}
	}
	return n
}

// TotalCalls counts every request received.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// AddDroplet seeds a droplet and returns it with its assigned id.
func (s *Server) AddDroplet(d digitalocean.Droplet) digitalocean.Droplet {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == 0 {
		s.nextID++
		d.ID = s.nextID
	}
	if d.Status == "" {
		d.Status = "active"
	}
	s.droplets[d.ID] = d
	return d
}

func (s *Server) SetStatus(id int64, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.droplets[id]
	d.Status = status
	s.droplets[id] = d
}

// FinishAction moves an action to status, typically completed or errored.
func (s *Server) FinishAction(id int64, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.actions[id]
	a.Status = status
	s.actions[id] = a
}

func (s *Server) Droplet(id int64) (digitalocean.Droplet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.droplets[id]
	return d, ok
}

// RemoveDroplet deletes a droplet behind the console's back.
func (s *Server) RemoveDroplet(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.droplets, id)
}

func (s *Server) Firewall(id string) (digitalocean.Firewall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fw, ok := s.firewalls[id]
	return fw, ok
}

// FirewallCount reports how many firewalls the fake currently holds.
func (s *Server) FirewallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.firewalls)
}

func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		key := r.Method + " " + r.URL.Path
		s.calls = append(s.calls, key)
		queue := s.failures[key]
		status := 0
		if len(queue) > 0 {
			status, s.failures[key] = queue[0], queue[1:]
		}
		s.mu.Unlock()

		if status != 0 {
			writeError(w, status, "scripted failure")
			return
		}
		if s.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.Token {
			writeError(w, http.StatusUnauthorized, "Unable to authenticate you")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	id := strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	writeJSON(w, status, map[string]string{"id": id, "message": msg})
}

func (s *Server) static(key string, v any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{key: v, "meta": map[string]int{"total": 2}})
	}
}

func (s *Server) account(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"account": digitalocean.Account{
		DropletLimit: 25, Email: "ops@example.com", UUID: "acct-1", Status: "active", EmailVerified: true,
	}})
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil
}

func (s *Server) listDroplets(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("tag_name")

	s.mu.Lock()
	out := make([]digitalocean.Droplet, 0, len(s.droplets))
	for _, d := range s.droplets {
		if tag != "" && !contains(d.Tags, tag) {
			continue
		}
		out = append(out, d)
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"droplets": out, "meta": map[string]int{"total": len(out)}})
}

func (s *Server) createDroplet(w http.ResponseWriter, r *http.Request) {
	var req digitalocean.DropletCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.Lock()
	s.nextID++
	d := digitalocean.Droplet{
		ID:        s.nextID,
		Name:      req.Name,
		Memory:    1024,
		VCPUs:     1,
		Disk:      25,
		Status:    "new",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Image:     digitalocean.Image{Slug: req.Image, Name: req.Image},
		Size:      digitalocean.Size{Slug: req.Size},
		SizeSlug:  req.Size,
		Region:    digitalocean.Region{Slug: req.Region, Name: req.Region},
		Networks: digitalocean.Networks{V4: []digitalocean.NetworkV4{
			{IPAddress: fmt.Sprintf("10.0.0.%d", s.nextID%250), Type: "private"},
			{IPAddress: fmt.Sprintf("203.0.113.%d", s.nextID%250), Type: "public"},
		}},
		Tags: req.Tags,
	}
	s.droplets[d.ID] = d
	s.mu.Unlock()

	writeJSON(w, http.StatusAccepted, map[string]any{"droplet": d})
}

func (s *Server) getDroplet(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r)
	d, ok := s.Droplet(id)
	if !ok {
		writeError(w, http.StatusNotFound, "The resource you were accessing could not be found.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"droplet": d})
}

func (s *Server) deleteDroplet(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r)
	s.mu.Lock()
	_, ok := s.droplets[id]
	delete(s.droplets, id)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "The resource you were accessing could not be found.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) dropletAction(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r)
	if _, ok := s.Droplet(id); !ok {
		writeError(w, http.StatusNotFound, "The resource you were accessing could not be found.")
		return
	}
	var body struct {
		Type string `json:"type"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	s.nextID++
	a := digitalocean.Action{
		ID: s.nextID, Status: digitalocean.ActionInProgress, Type: body.Type, ResourceID: id,
		ResourceType: "droplet", StartedAt: time.Now().UTC(),
	}
	s.actions[a.ID] = a
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{"action": a})
}

func (s *Server) getAction(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r)
	s.mu.Lock()
	a, ok := s.actions[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "The resource you were accessing could not be found.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"action": a})
}

func (s *Server) listFirewalls(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]digitalocean.Firewall, 0, len(s.firewalls))
	for _, fw := range s.firewalls {
		out = append(out, fw)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"firewalls": out, "meta": map[string]int{"total": len(out)}})
}

func (s *Server) createFirewall(w http.ResponseWriter, r *http.Request) {
	var fw digitalocean.Firewall
	if err := json.NewDecoder(r.Body).Decode(&fw); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.mu.Lock()
	s.nextID++
	fw.ID = fmt.Sprintf("fw-%d", s.nextID)
	fw.Status = "waiting"
	s.firewalls[fw.ID] = fw
	s.mu.Unlock()
	writeJSON(w, http.StatusAccepted, map[string]any{"firewall": fw})
}

func (s *Server) getFirewall(w http.ResponseWriter, r *http.Request) {
	fw, ok := s.Firewall(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "The resource you were accessing could not be found.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"firewall": fw})
}

func (s *Server) deleteFirewall(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	_, ok := s.firewalls[id]
	delete(s.firewalls, id)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "The resource you were accessing could not be found.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) firewallDroplets(add bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			DropletIDs []int64 `json:"droplet_ids"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		s.mu.Lock()
		defer s.mu.Unlock()
		fw, ok := s.firewalls[r.PathValue("id")]
		if !ok {
			writeError(w, http.StatusNotFound, "The resource you were accessing could not be found.")
			return
		}
		for _, id := range body.DropletIDs {
			if add && !containsID(fw.DropletIDs, id) {
				fw.DropletIDs = append(fw.DropletIDs, id)
			}
			if !add {
				fw.DropletIDs = removeID(fw.DropletIDs, id)
			}
		}
		s.firewalls[fw.ID] = fw
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) firewallRules(add bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			InboundRules  []digitalocean.InboundRule  `json:"inbound_rules"`
			OutboundRules []digitalocean.OutboundRule `json:"outbound_rules"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		s.mu.Lock()
		defer s.mu.Unlock()
		fw, ok := s.firewalls[r.PathValue("id")]
		if !ok {
			writeError(w, http.StatusNotFound, "The resource you were accessing could not be found.")
			return
		}
		if add {
			fw.InboundRules = append(fw.InboundRules, body.InboundRules...)
			fw.OutboundRules = append(fw.OutboundRules, body.OutboundRules...)
		} else {
			fw.InboundRules = filter(fw.InboundRules, body.InboundRules)
			fw.OutboundRules = filter(fw.OutboundRules, body.OutboundRules)
		}
		s.firewalls[fw.ID] = fw
		w.WriteHeader(http.StatusNoContent)
	}
}

// filter drops every rule in have that is equal, by JSON encoding, to one in drop.
func filter[T any](have, drop []T) []T {
	keys := map[string]bool{}
	for _, d := range drop {
		b, _ := json.Marshal(d)
		keys[string(b)] = true
	}
	out := have[:0:0]
	for _, h := range have {
		b, _ := json.Marshal(h)
		if !keys[string(b)] {
			out = append(out, h)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsID(list []int64, v int64) bool {
	for _, id := range list {
		if id == v {
			return true
		}
	}
	return false
}

func removeID(list []int64, v int64) []int64 {
	out := list[:0:0]
	for _, id := range list {
		if id != v {
			out = append(out, id)
		}
	}
	return out
}

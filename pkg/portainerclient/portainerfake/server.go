// In-memory Portainer API for tests. Stacks created through it show up in later
// listings, so create-then-update flows can be exercised end to end.
package portainerfake

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/function61/portainer-deploy/pkg/portainerclient"
	"github.com/gorilla/mux"
)

const (
	Username = "admin"
	Password = "hunter2"
	Token    = "dummy-jwt"
)

type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
}

type Server struct {
	Endpoints []portainerclient.Endpoint
	Stacks    []portainerclient.Stack
	SwarmIDs  map[int]string // endpoint id => swarm cluster id
	// when non-zero, create and update respond with this status
	FailWithStatus int

	srv      *httptest.Server
	mu       sync.Mutex
	requests []RecordedRequest
	files    map[int]string
	nextId   int
}

func New() *Server {
	s := newServer()
	s.srv = httptest.NewServer(s.routes())

	return s
}

// NewTLS serves over HTTPS with a self-signed certificate, so Connection() only works
// once SslVerify is turned off
func NewTLS() *Server {
	s := newServer()
	s.srv = httptest.NewTLSServer(s.routes())

	return s
}

func newServer() *Server {
	return &Server{
		Endpoints: []portainerclient.Endpoint{},
		Stacks:    []portainerclient.Stack{},
		SwarmIDs:  map[int]string{},
		files:     map[int]string{},
		nextId:    100,
	}
}

func (s *Server) Close() {
	s.srv.Close()
}

func (s *Server) Connection() portainerclient.Connection {
	return portainerclient.Connection{
		BaseUrl:   s.srv.URL + "/api/",
		Username:  Username,
		Password:  Password,
		SslVerify: true,
	}
}

// AddStack registers an existing stack along with its current file
func (s *Server) AddStack(stack portainerclient.Stack, file string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Stacks = append(s.Stacks, stack)
	s.files[stack.Id] = file
}

func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]RecordedRequest{}, s.requests...)
}

// Writes returns only the requests that would change something on the server
func (s *Server) Writes() []RecordedRequest {
	writes := []RecordedRequest{}
	for _, req := range s.Requests() {
		if req.Method != http.MethodGet && req.Path != "/api/auth" {
			writes = append(writes, req)
		}
	}

	return writes
}

func (s *Server) routes() http.Handler {
	routes := mux.NewRouter()
	api := routes.PathPrefix("/api").Subrouter()

	api.Use(s.record)

	api.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {
		creds := struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}{}
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if creds.Username != Username || creds.Password != Password {
			writeJson(w, http.StatusUnprocessableEntity, map[string]string{
				"message": "Invalid credentials",
			})
			return
		}

		writeJson(w, http.StatusOK, map[string]string{"jwt": Token})
	}).Methods(http.MethodPost)

	api.Handle("/endpoints", requireToken(func(w http.ResponseWriter, r *http.Request) {
		writeJson(w, http.StatusOK, s.Endpoints)
	})).Methods(http.MethodGet)

	api.Handle("/endpoints/{id}/docker/swarm", requireToken(func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.Atoi(mux.Vars(r)["id"])

		swarmId, found := s.SwarmIDs[id]
		if !found {
			writeJson(w, http.StatusServiceUnavailable, map[string]string{
				"message": "This node is not a swarm manager.",
			})
			return
		}

		writeJson(w, http.StatusOK, map[string]string{"ID": swarmId})
	})).Methods(http.MethodGet)

	api.Handle("/stacks", requireToken(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			s.mu.Lock()
			defer s.mu.Unlock()

			writeJson(w, http.StatusOK, s.Stacks)
			return
		}

		if s.FailWithStatus != 0 {
			writeJson(w, s.FailWithStatus, map[string]string{"message": "create failed"})
			return
		}

		req := portainerclient.CreateStackRequest{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		stackType, _ := strconv.Atoi(r.URL.Query().Get("type"))
		endpointId, _ := strconv.Atoi(r.URL.Query().Get("endpointId"))

		s.mu.Lock()
		defer s.mu.Unlock()

		stack := portainerclient.Stack{
			Id:         s.nextId,
			EndpointID: endpointId,
			Name:       req.Name,
			Type:       portainerclient.StackType(stackType),
			Env:        req.Env,
		}
		s.nextId++

		s.Stacks = append(s.Stacks, stack)
		s.files[stack.Id] = req.StackFileContent

		writeJson(w, http.StatusOK, stack)
	})).Methods(http.MethodGet, http.MethodPost)

	api.Handle("/stacks/{id}", requireToken(func(w http.ResponseWriter, r *http.Request) {
		if s.FailWithStatus != 0 {
			writeJson(w, s.FailWithStatus, map[string]string{"message": "update failed"})
			return
		}

		id, _ := strconv.Atoi(mux.Vars(r)["id"])

		req := portainerclient.UpdateStackRequest{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		stack := s.stackById(id)
		if stack == nil {
			writeJson(w, http.StatusNotFound, map[string]string{"message": "Stack not found"})
			return
		}

		s.files[id] = req.StackFileContent

		writeJson(w, http.StatusOK, stack)
	})).Methods(http.MethodPut)

	api.Handle("/stacks/{id}/file", requireToken(func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.Atoi(mux.Vars(r)["id"])

		s.mu.Lock()
		defer s.mu.Unlock()

		file, found := s.files[id]
		if !found {
			writeJson(w, http.StatusNotFound, map[string]string{"message": "Stack not found"})
			return
		}

		writeJson(w, http.StatusOK, map[string]string{"StackFileContent": file})
	})).Methods(http.MethodGet)

	return routes
}

// caller holds lock
func (s *Server) stackById(id int) *portainerclient.Stack {
	for i := range s.Stacks {
		if s.Stacks[i].Id == id {
			return &s.Stacks[i]
		}
	}

	return nil
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := ioutil.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		r.Body = ioutil.NopCloser(bytes.NewReader(body))

		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Body:   string(body),
		})
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func requireToken(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+Token {
			writeJson(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJson(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		panic(fmt.Errorf("writeJson: %w", err))
	}
}

/*Package api provides the local REST interface of a device.

The service exposes the adoption report, the persisted transport settings
and a restart trigger, and lets the firmware register additional routes for
its own surface. Read requests are served directly from the HTTP goroutines;
mutating requests are queued and applied by Loop() on the poll goroutine so
the transport is only ever touched from there.
*/
package api

import (
	"fmt"
	"net"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/oxrs-io/oxrs-go/core/logger"
	"github.com/oxrs-io/oxrs-go/core/settings"
	"github.com/oxrs-io/oxrs-go/device/mqtt"
)

// Transport is the slice of the transport client the REST interface needs.
type Transport interface {
	ApplySettings(settings mqtt.Settings)
	Settings() mqtt.Settings
}

// Builder is a builder helper for the REST Service
type Builder struct {
	// Router is the mux router the service adds its routes to. Mandatory.
	Router *mux.Router
	// Addr is the listen address. Optional, default is ":8080".
	Addr string
	// Transport is the transport client the service configures. Mandatory.
	Transport Transport
	// Settings is the persistent store for the transport settings. Mandatory.
	Settings *settings.Store
}

// Service is the REST interface of a device
type Service struct {
	router    *mux.Router
	addr      string
	transport Transport
	settings  *settings.Store
	onAdopt   func() map[string]interface{}
	onRestart func()
	actions   chan func()
	listener  net.Listener
}

// New realizes the REST service and adds its routes to the router. It panics
// if mandatory builder fields are missing.
func New(b *Builder) *Service {
	if b.Router == nil {
		panic("Router is missing")
	}
	if b.Transport == nil {
		panic("Transport is missing")
	}
	if b.Settings == nil {
		panic("Settings is missing")
	}
	addr := b.Addr
	if addr == "" {
		addr = ":8080"
	}
	s := &Service{
		router:    b.Router,
		addr:      addr,
		transport: b.Transport,
		settings:  b.Settings,
		actions:   make(chan func(), 16),
	}
	logger.AddRequestID(s.router)
	s.handleRoutes()
	return s
}

// OnAdopt registers the builder of the adoption report.
func (s *Service) OnAdopt(callback func() map[string]interface{}) {
	s.onAdopt = callback
}

// OnRestart registers the restart trigger.
func (s *Service) OnRestart(callback func()) {
	s.onRestart = callback
}

// Get adds a firmware route for GET requests.
func (s *Service) Get(path string, handler http.HandlerFunc) {
	logger.Default().Debugf("api: handle route %s GET", path)
	s.router.HandleFunc(path, handler).Methods(http.MethodGet)
}

// Post adds a firmware route for POST requests.
func (s *Service) Post(path string, handler http.HandlerFunc) {
	logger.Default().Debugf("api: handle route %s POST", path)
	s.router.HandleFunc(path, handler).Methods(http.MethodPost)
}

// Begin loads the persisted transport settings and starts serving. Settings
// persisted through this interface take precedence over the defaults the
// device derived from its hardware, so they are applied after those. Begin
// returns an error when the listen address cannot be bound.
func (s *Service) Begin() error {
	var persisted mqtt.Settings
	timestamp, err := s.settings.Read("mqtt", &persisted)
	if err != nil {
		return err
	}
	if !timestamp.IsZero() {
		logger.Default().Infoln("api: applying persisted transport settings")
		s.transport.ApplySettings(persisted)
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("cannot listen on '%s': %w", s.addr, err)
	}
	s.listener = listener
	logger.Default().Infof("api: listening on %s", listener.Addr())

	handler := handlers.CORS(
		handlers.AllowedHeaders([]string{"Content-Type"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost}),
	)(s.router)
	server := &http.Server{Handler: handler}
	go func() {
		if err := server.Serve(listener); err != http.ErrServerClosed {
			logger.Default().WithError(err).Errorln("api: server stopped")
		}
	}()
	return nil
}

// Addr returns the bound listen address. It returns the builder address
// before Begin.
func (s *Service) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Loop applies the queued mutations on the caller's goroutine.
func (s *Service) Loop() {
	for {
		select {
		case action := <-s.actions:
			action()
		default:
			return
		}
	}
}

func (s *Service) handleRoutes() {
	logger.Default().Debugln("api: handle route /adopt GET")
	logger.Default().Debugln("api: handle route /mqtt GET,POST")
	logger.Default().Debugln("api: handle route /restart POST")

	s.router.Handle("/adopt", handlers.CompressHandler(http.HandlerFunc(s.adopt))).Methods(http.MethodGet)
	s.router.HandleFunc("/mqtt", s.mqttGet).Methods(http.MethodGet)
	s.router.HandleFunc("/mqtt", s.mqttPost).Methods(http.MethodPost)
	s.router.HandleFunc("/restart", s.restart).Methods(http.MethodPost)
}

func (s *Service) adopt(w http.ResponseWriter, r *http.Request) {
	if s.onAdopt == nil {
		http.Error(w, "device not ready", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.onAdopt())
}

func (s *Service) mqttGet(w http.ResponseWriter, r *http.Request) {
	current := s.transport.Settings()
	// never hand the password back out
	current.Password = ""
	writeJSON(w, current)
}

func (s *Service) mqttPost(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	var requested mqtt.Settings
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&requested); err != nil {
		http.Error(w, "invalid settings document: "+err.Error(), http.StatusBadRequest)
		return
	}
	if requested.Broker == "" {
		http.Error(w, "broker is missing", http.StatusBadRequest)
		return
	}
	if err := s.settings.Write("mqtt", requested); err != nil {
		rlog.WithError(err).Errorln("cannot persist transport settings")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	rlog.Infof("new transport settings for broker %s", requested.Broker)
	s.queue(func() { s.transport.ApplySettings(requested) })
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) restart(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Infoln("restart requested")
	if s.onRestart != nil {
		s.queue(s.onRestart)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) queue(action func()) {
	select {
	case s.actions <- action:
	default:
		logger.Default().Warnln("api: action queue full, request dropped")
	}
}

func writeJSON(w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.Encode(body)
}

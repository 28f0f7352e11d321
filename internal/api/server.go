// internal/api/server.go
package api

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrMethodNotFound means no method is registered under the path.
	ErrMethodNotFound = errors.New("api: method not found")

	// ErrInvalidParams means a required parameter is missing or the
	// arguments do not match the method's declared shape.
	ErrInvalidParams = errors.New("api: wrong request or parameters")

	// ErrAuthFailed means the method requires a credential and the one
	// supplied does not match.
	ErrAuthFailed = errors.New("api: authentication failed")
)

// authKey is the top-level argument subtree carrying the credential. It is
// checked and stripped before the handler runs.
const authKey = "auth"

// Server is the method registry. It maps paths to handlers, validates
// structured parameters, fans events out to endpoints, and renders its own
// self-description for the LIST surface.
type Server struct {
	mutex     sync.RWMutex
	logger    *zap.Logger
	methods   map[string]*Method
	order     []string
	endpoints []Endpoint
	password  string
}

// NewServer creates a registry. password is the credential compared against
// the auth parameter of methods registered with Auth().
func NewServer(logger *zap.Logger, password string) *Server {
	return &Server{
		logger:   logger.With(zap.String("component", "api")),
		methods:  make(map[string]*Method),
		password: password,
	}
}

// RegisterMethod binds a method to a path. Re-registering a path replaces
// the previous method.
func (s *Server) RegisterMethod(path string, method *Method) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.methods[path]; !exists {
		s.order = append(s.order, path)
	}
	s.methods[path] = method
	s.logger.Info("Method registered",
		zap.String("path", path),
		zap.String("type", string(method.Type)),
		zap.Bool("auth", method.RequiresAuth),
	)
}

// AddEndpoint attaches a transport endpoint. Endpoints are polled by Poll
// and receive broadcast events when they advertise the EVT capability.
func (s *Server) AddEndpoint(endpoint Endpoint) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.endpoints = append(s.endpoints, endpoint)
	s.logger.Info("Endpoint attached", zap.String("endpoint", endpoint.Name()))
}

// Poll advances every attached endpoint by one bounded step.
func (s *Server) Poll() {
	s.mutex.RLock()
	endpoints := s.endpoints
	s.mutex.RUnlock()

	for _, endpoint := range endpoints {
		endpoint.Poll()
	}
}

// Execute runs the method registered at path with the given structured
// arguments. Authentication (when the method requires it) and parameter
// validation happen before the handler is invoked; on auth success the
// credential subtree is stripped from the arguments.
func (s *Server) Execute(transport, path string, args map[string]interface{}) (map[string]interface{}, error) {
	s.mutex.RLock()
	method, exists := s.methods[path]
	s.mutex.RUnlock()

	if !exists || method.Type == MethodEvt {
		return nil, ErrMethodNotFound
	}

	if method.RequiresAuth {
		if !s.checkAuth(args) {
			s.logger.Warn("Authentication failed",
				zap.String("transport", transport),
				zap.String("path", path),
			)
			return nil, ErrAuthFailed
		}
		delete(args, authKey)
	}

	if !validateParams(method, args) {
		return nil, ErrInvalidParams
	}

	response, err := method.Handler(args)
	if err != nil {
		s.logger.Warn("Method handler failed",
			zap.String("transport", transport),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, ErrInvalidParams
	}
	if response == nil {
		response = map[string]interface{}{}
	}
	return response, nil
}

// checkAuth compares args.auth.password against the configured credential.
func (s *Server) checkAuth(args map[string]interface{}) bool {
	if s.password == "" {
		return false
	}
	auth, ok := args[authKey].(map[string]interface{})
	if !ok {
		return false
	}
	supplied, ok := auth["password"].(string)
	return ok && supplied == s.password
}

// validateParams checks that every required top-level parameter is present.
// The internal structure of object parameters is not validated.
func validateParams(method *Method, args map[string]interface{}) bool {
	if len(method.RequestParams) == 0 {
		return true
	}
	for _, param := range method.RequestParams {
		if !param.Required {
			continue
		}
		if args == nil {
			return false
		}
		if _, present := args[param.Name]; !present {
			return false
		}
	}
	return true
}

// Methods returns the descriptors visible to a transport.
func (s *Server) Methods(transport string) map[string]MethodInfo {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	infos := make(map[string]MethodInfo, len(s.methods))
	for path, method := range s.methods {
		infos[path] = MethodInfo{
			Type:           method.Type,
			Description:    method.Description,
			RequiresAuth:   method.RequiresAuth,
			RequestParams:  method.RequestParams,
			ResponseParams: method.ResponseParams,
		}
	}
	return infos
}

// APIDoc renders the registry self-description in registration order.
func (s *Server) APIDoc() []MethodDoc {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	docs := make([]MethodDoc, 0, len(s.order))
	for _, path := range s.order {
		method := s.methods[path]

		doc := MethodDoc{
			Path:        path,
			Type:        string(method.Type),
			Description: method.Description,
			Protocols:   s.protocolsFor(method.Type),
		}
		if len(method.RequestParams) > 0 {
			doc.Params = paramsToDoc(method.RequestParams)
		}
		if len(method.ResponseParams) > 0 {
			doc.Response = paramsToDoc(method.ResponseParams)
		}
		docs = append(docs, doc)
	}
	return docs
}

// protocolsFor lists the endpoint protocol names able to carry a method of
// the given type.
func (s *Server) protocolsFor(methodType MethodType) []string {
	var required Capability
	switch methodType {
	case MethodGet:
		required = CapGet
	case MethodSet:
		required = CapSet
	case MethodEvt:
		required = CapEvt
	}

	var names []string
	for _, endpoint := range s.endpoints {
		for _, proto := range endpoint.Protocols() {
			if proto.Capabilities&required != 0 {
				names = append(names, proto.Name)
			}
		}
	}
	return names
}

// paramsToDoc renders parameter shapes as nested maps of name to type,
// marking optional fields with a trailing "*".
func paramsToDoc(params []Param) map[string]interface{} {
	doc := make(map[string]interface{}, len(params))
	for _, param := range params {
		if param.Type == "obj" && len(param.Properties) > 0 {
			doc[param.Name] = paramsToDoc(param.Properties)
			continue
		}
		typeName := param.Type
		if !param.Required {
			typeName += "*"
		}
		doc[param.Name] = typeName
	}
	return doc
}

// Broadcast pushes an event to every endpoint that can carry events.
func (s *Server) Broadcast(event string, data map[string]interface{}) {
	s.mutex.RLock()
	endpoints := s.endpoints
	s.mutex.RUnlock()

	for _, endpoint := range endpoints {
		for _, proto := range endpoint.Protocols() {
			if proto.Capabilities&CapEvt != 0 {
				endpoint.PushEvent(event, data)
				break
			}
		}
	}
}

// internal/api/types.go
package api

// MethodType classifies a registered method.
type MethodType string

const (
	MethodGet MethodType = "GET"
	MethodSet MethodType = "SET"
	MethodEvt MethodType = "EVT"
)

// Capability flags what a transport endpoint can carry.
type Capability uint8

const (
	CapGet Capability = 1 << iota
	CapSet
	CapEvt
)

// Protocol describes one transport an endpoint speaks.
type Protocol struct {
	Name         string
	Capabilities Capability
}

// Endpoint is a protocol-facing transport driven by the server. Poll must
// perform a small bounded amount of work and return; PushEvent must never
// block (endpoints queue with a drop policy instead).
type Endpoint interface {
	Name() string
	Protocols() []Protocol
	Poll()
	PushEvent(event string, data map[string]interface{})
}

// Handler executes a method. A nil error with a (possibly empty) response
// map is success; any error means the request could not be served.
type Handler func(args map[string]interface{}) (map[string]interface{}, error)

// Param describes one request or response field. Type "obj" nests further
// params in Properties.
type Param struct {
	Name       string
	Type       string // "bool", "int", "float", "string", "obj"
	Required   bool
	Properties []Param
}

// Method is a registered API method.
type Method struct {
	Type           MethodType
	Handler        Handler
	Description    string
	RequestParams  []Param
	ResponseParams []Param
	RequiresAuth   bool
}

// MethodInfo is the descriptor handed to transport endpoints; it carries
// everything needed to frame and pre-check a request without exposing the
// handler itself.
type MethodInfo struct {
	Type           MethodType
	Description    string
	RequiresAuth   bool
	RequestParams  []Param
	ResponseParams []Param
}

// MethodDoc is one entry of the registry self-description.
type MethodDoc struct {
	Path        string                 `json:"path"`
	Type        string                 `json:"type"`
	Description string                 `json:"desc"`
	Protocols   []string               `json:"protocols"`
	Params      map[string]interface{} `json:"params,omitempty"`
	Response    map[string]interface{} `json:"response,omitempty"`
}

// MethodBuilder assembles a Method fluently.
type MethodBuilder struct {
	method Method
}

// NewMethod starts a builder for a GET or SET method.
func NewMethod(methodType MethodType, handler Handler) *MethodBuilder {
	return &MethodBuilder{method: Method{Type: methodType, Handler: handler}}
}

// NewEvent starts a builder for an EVT declaration. Events have no handler;
// the declaration exists so the self-description can list them.
func NewEvent() *MethodBuilder {
	return &MethodBuilder{method: Method{
		Type: MethodEvt,
		Handler: func(map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{}, nil
		},
	}}
}

// Desc sets the human-readable description.
func (b *MethodBuilder) Desc(description string) *MethodBuilder {
	b.method.Description = description
	return b
}

// Param adds a scalar request parameter.
func (b *MethodBuilder) Param(name, paramType string, required bool) *MethodBuilder {
	b.method.RequestParams = append(b.method.RequestParams, Param{
		Name: name, Type: paramType, Required: required,
	})
	return b
}

// ObjectParam adds a nested request parameter.
func (b *MethodBuilder) ObjectParam(name string, required bool, props ...Param) *MethodBuilder {
	b.method.RequestParams = append(b.method.RequestParams, Param{
		Name: name, Type: "obj", Required: required, Properties: props,
	})
	return b
}

// Response adds a scalar response field.
func (b *MethodBuilder) Response(name, paramType string, required bool) *MethodBuilder {
	b.method.ResponseParams = append(b.method.ResponseParams, Param{
		Name: name, Type: paramType, Required: required,
	})
	return b
}

// ObjectResponse adds a nested response field.
func (b *MethodBuilder) ObjectResponse(name string, required bool, props ...Param) *MethodBuilder {
	b.method.ResponseParams = append(b.method.ResponseParams, Param{
		Name: name, Type: "obj", Required: required, Properties: props,
	})
	return b
}

// Auth marks the method as requiring the configured credential.
func (b *MethodBuilder) Auth() *MethodBuilder {
	b.method.RequiresAuth = true
	return b
}

// Build returns the assembled method.
func (b *MethodBuilder) Build() *Method {
	m := b.method
	return &m
}

package console

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/vitalvas/apiconsole/asyncdoc"
	"github.com/vitalvas/apiconsole/muxhandlers"
	"github.com/vitalvas/apiconsole/socketio"
	"github.com/vitalvas/apiconsole/sockets"
	"go.uber.org/zap"
)

type eventView struct {
	*asyncdoc.Event

	EmitAllowed   bool `json:"canEmit"`
	ListenAllowed bool `json:"canListen"`

	// Payload is the default argument for emitting the event.
	Payload any `json:"payload,omitempty"`

	// ResponseExample is generated from the response schema.
	ResponseExample any `json:"responseExample,omitempty"`
}

type namespaceView struct {
	Path        string                    `json:"path"`
	Description string                    `json:"description,omitempty"`
	Auth        []asyncdoc.SecurityScheme `json:"auth,omitempty"`
	State       sockets.State             `json:"state"`
	Events      []eventView               `json:"events"`
}

type namespaceList struct {
	Servers    []asyncdoc.Server `json:"servers"`
	Namespaces []namespaceView   `json:"namespaces"`
}

func (c *Console) socketDocument(w http.ResponseWriter, r *http.Request) (*asyncdoc.Document, bool) {
	if c.async == nil {
		notFound(w, r, "no socket document loaded")
		return nil, false
	}
	return c.async, true
}

func (c *Console) handleNamespaces(w http.ResponseWriter, r *http.Request) {
	doc, ok := c.socketDocument(w, r)
	if !ok {
		return
	}

	gen := doc.Generator(c.generatorOptions()...)

	out := namespaceList{
		Servers:    doc.Servers,
		Namespaces: []namespaceView{},
	}
	if out.Servers == nil {
		out.Servers = []asyncdoc.Server{}
	}

	for _, ns := range doc.Namespaces {
		view := namespaceView{
			Path:        ns.Path,
			Description: ns.Description,
			Auth:        ns.Auth,
			State:       c.sockets.State(ns.Path),
			Events:      []eventView{},
		}

		for _, ev := range ns.Events {
			view.Events = append(view.Events, eventView{
				Event:           ev,
				EmitAllowed:     ev.CanEmit(),
				ListenAllowed:   ev.CanListen(),
				Payload:         doc.PayloadExample(ev, c.generatorOptions()...),
				ResponseExample: gen.GeneratePayload(ev.ResponseSchema),
			})
		}

		out.Namespaces = append(out.Namespaces, view)
	}

	responseJSON(w, r, http.StatusOK, out)
}

func (c *Console) handleSockets(w http.ResponseWriter, r *http.Request) {
	responseJSON(w, r, http.StatusOK, c.sockets.Snapshot())
}

type connectRequest struct {
	Namespace string `json:"namespace"`

	// URL overrides the configured socket server.
	URL string `json:"url"`

	// Token overrides the console token for this connection.
	Token *string `json:"token"`
}

type connectionResponse struct {
	Namespace string        `json:"namespace"`
	State     sockets.State `json:"state"`
}

// handleConnect replaces the connection of a documented namespace. The
// handshake continues in the background; the response carries the state at
// the time the request returns.
func (c *Console) handleConnect(w http.ResponseWriter, r *http.Request) {
	doc, ok := c.socketDocument(w, r)
	if !ok {
		return
	}

	var req connectRequest
	if err := bindJSON(r, &req); err != nil {
		badRequest(w, r, err)
		return
	}

	ns, ok := doc.Namespace(req.Namespace)
	if !ok {
		notFound(w, r, fmt.Sprintf("no namespace %q", req.Namespace))
		return
	}

	serverURL := firstNonEmpty(req.URL, c.cfg.SocketServer, doc.BaseURL())
	if serverURL == "" {
		muxhandlers.WriteProblem(w, r, http.StatusBadRequest, muxhandlers.ProblemValidation, "no socket server URL")
		return
	}

	token := c.currentToken()
	if req.Token != nil {
		token = *req.Token
	}

	cfg := socketio.Config{
		URL:              serverURL,
		Namespace:        ns.Path,
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}
	if auth := ns.HandshakeAuth(token); auth != nil {
		cfg.Auth = auth
	}

	transport, err := c.dial(cfg)
	if err != nil {
		muxhandlers.WriteProblem(w, r, http.StatusBadRequest, muxhandlers.ProblemValidation, err.Error())
		return
	}

	c.sockets.RemoveSocket(ns.Path)
	c.listen(ns)

	if err := c.sockets.AddSocket(ns.Path, transport); err != nil {
		_ = transport.Close()
		muxhandlers.WriteProblem(w, r, http.StatusConflict, muxhandlers.ProblemConflict, err.Error())
		return
	}

	c.logger.Info("socket connecting",
		zap.String("namespace", ns.Path),
		zap.String("url", serverURL),
	)

	responseJSON(w, r, http.StatusAccepted, connectionResponse{
		Namespace: ns.Path,
		State:     c.sockets.State(ns.Path),
	})
}

// listen logs every documented inbound event of ns.
func (c *Console) listen(ns *asyncdoc.Namespace) {
	for _, ev := range ns.Events {
		if !ev.CanListen() {
			continue
		}

		name := ev.Name
		c.sockets.AddEventListener(ns.Path, name, func(args []any) {
			c.logger.Debug("socket event",
				zap.String("namespace", ns.Path),
				zap.String("event", name),
				zap.Int("args", len(args)),
			)
		})
	}
}

type namespaceRequest struct {
	Namespace string `json:"namespace"`
}

func (c *Console) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	var req namespaceRequest
	if err := bindJSON(r, &req); err != nil {
		badRequest(w, r, err)
		return
	}

	c.sockets.RemoveSocket(req.Namespace)

	if c.async != nil {
		if ns, ok := c.async.Namespace(req.Namespace); ok {
			for _, ev := range ns.Events {
				c.sockets.RemoveEventListener(ns.Path, ev.Name)
			}
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

type emitRequest struct {
	Namespace string `json:"namespace"`
	Event     string `json:"event"`

	// Args are the event arguments. When absent, a documented event is
	// sent with its default payload.
	Args []any `json:"args"`
}

type messagesResponse struct {
	Messages []sockets.Message `json:"messages"`
}

// handleEmit sends an event on a connected namespace and returns the
// namespace history, which holds the sent message and any error it caused.
func (c *Console) handleEmit(w http.ResponseWriter, r *http.Request) {
	var req emitRequest
	if err := bindJSON(r, &req); err != nil {
		badRequest(w, r, err)
		return
	}

	args := req.Args
	if c.async != nil {
		if ns, ok := c.async.Namespace(req.Namespace); ok {
			if ev, ok := ns.Event(req.Event); ok {
				if !ev.CanEmit() {
					muxhandlers.WriteProblem(w, r, http.StatusBadRequest, muxhandlers.ProblemValidation,
						fmt.Sprintf("event %q is %s", ev.Name, ev.Direction))
					return
				}
				if args == nil {
					if payload := c.async.PayloadExample(ev, c.generatorOptions()...); payload != nil {
						args = []any{payload}
					}
				}
			}
		}
	}

	if err := c.sockets.Emit(req.Namespace, req.Event, args...); err != nil {
		switch {
		case errors.Is(err, sockets.ErrNotConnected):
			muxhandlers.WriteProblem(w, r, http.StatusConflict, muxhandlers.ProblemConflict, err.Error())
		case errors.Is(err, sockets.ErrEmptyEvent):
			muxhandlers.WriteProblem(w, r, http.StatusBadRequest, muxhandlers.ProblemValidation, err.Error())
		default:
			muxhandlers.WriteProblem(w, r, http.StatusInternalServerError, muxhandlers.ProblemInternal, err.Error())
		}
		return
	}

	c.writeMessages(w, r, req.Namespace)
}

func (c *Console) handleSocketHistory(w http.ResponseWriter, r *http.Request) {
	c.writeMessages(w, r, r.URL.Query().Get("namespace"))
}

func (c *Console) handleSocketClear(w http.ResponseWriter, r *http.Request) {
	c.sockets.ClearHistory(r.URL.Query().Get("namespace"))
	w.WriteHeader(http.StatusNoContent)
}

func (c *Console) writeMessages(w http.ResponseWriter, r *http.Request, namespace string) {
	messages := c.sockets.History(namespace)
	if messages == nil {
		messages = []sockets.Message{}
	}

	responseJSON(w, r, http.StatusOK, messagesResponse{Messages: messages})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

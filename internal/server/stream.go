package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"tally.dev/internal/log"
)

type Stream[Input any, Output any] struct {
	// Name of the method, used by the client to call it
	Name string

	// Run implements the actual method. It should return once
	// req.Context is done.
	Run func(req *StreamRequest[Input, Output]) error
}

type StreamRequest[Input any, Output any] streamRequest
type streamRequest struct {
	Method  string
	Id      string
	Context context.Context

	// Server is the instance serving the request
	Server *Server

	// Initial input to the stream
	RawInput []byte

	// The channel this stream request outputs to
	output chan<- socketMessageOut

	// Cancel function for the context
	cancel func()
}

// SendRaw drops the message if the connection has already gone away.
func (req *streamRequest) SendRaw(kind string, data any) {
	message := socketMessageOut{
		Method: req.Method,
		Id:     req.Id,
		Kind:   kind,
	}
	if kind == "error" {
		message.Err = fmt.Sprint(data)
	} else {
		message.Data = data
	}

	select {
	case req.output <- message:
	case <-req.Context.Done():
	}
}

// Parsing is left to the method, so the shared websocket code doesn't need
// to be instantiated once per input type.
func (s *StreamRequest[Input, _]) ParseInput() (Input, error) {
	var input Input
	if len(s.RawInput) == 0 {
		return input, nil
	}

	err := json.Unmarshal(s.RawInput, &input)
	if err != nil {
		logger.Debug("RPC stream method failed to parse input", log.Ctx{
			"method":     s.Method,
			"id":         s.Id,
			"inputBytes": string(s.RawInput),
		})
	}

	return input, err
}

// Send is used instead of an output channel so that a stream doesn't need an
// extra goroutine just to pipe a subscription into the socket.
func (s *StreamRequest[_, Output]) Send(o Output) {
	(*streamRequest)(s).SendRaw("methodOutput", o)
}

type socketMessageIn struct {
	// The ID is chosen by the client, and must be unique per connection.
	Id string `json:"id"`

	Kind   string          `json:"kind"`
	Method string          `json:"method"`
	Data   json.RawMessage `json:"data"`
}

type socketMessageOut struct {
	Id string `json:"id,omitempty"`

	Kind   string `json:"kind"`
	Method string `json:"method,omitempty"`
	Err    string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type handler func(req *streamRequest) error
type RpcWebsocket struct {
	handlers map[string]handler
}

func (ws *RpcWebsocket) WebsocketHandler(server *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		inFlightRequests := make(map[string]*streamRequest)

		upgrader := websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// the upgrader has already replied with an HTTP error
			logger.Err(err, "Failed to upgrade websocket", log.Ctx{})
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(server.baseContext())
		defer cancel()

		// A server shutdown has to unblock ReadMessage below
		go func() {
			<-ctx.Done()
			conn.Close()
		}()

		outputChannel := make(chan socketMessageOut)

		// This goroutine does the job of writing to the socket, because the socket
		// cannot be written to concurrently.
		go func() {
		WriteLoop:
			for {
				select {
				case message := <-outputChannel:

					if err := conn.WriteJSON(message); err != nil {
						logger.Debug("Failed to write JSON to connection", log.Ctx{
							"method": message.Method,
							"id":     message.Id,
							"error":  err.Error(),
						})
					}
				case <-ctx.Done():
					break WriteLoop
				}
			}
		}()

	MessageLoop:
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				// This also happens when the connection closes
				break
			}

			var input socketMessageIn
			if err := json.Unmarshal(message, &input); err != nil {
				logger.Err(err, "RPC websocket failed to parse", log.Ctx{
					"message": string(message),
				})
				(&streamRequest{output: outputChannel, Context: ctx}).SendRaw("error", "failed to parse JSON")
				continue MessageLoop
			}

			req, found := inFlightRequests[input.Id]
			if req == nil {
				mCtx, mCancel := context.WithCancel(ctx)
				req = &streamRequest{
					Method:   input.Method,
					Id:       input.Id,
					Server:   server,
					RawInput: input.Data,
					output:   outputChannel,
					Context:  mCtx,
					cancel:   mCancel,
				}
			}

			switch input.Kind {
			case "call":
				method, ok := ws.handlers[req.Method]
				if !ok {
					logger.Debug("RPC websocket got invalid value for 'method'", log.Ctx{
						"method":  input.Method,
						"message": string(message),
					})

					req.SendRaw("error", "invalid value for 'method'")
					continue MessageLoop
				}

				if req.Id == "" {
					req.SendRaw("error", "'id' field was empty")
					continue MessageLoop
				}

				if found {
					req.SendRaw("error", "'id' field used previous ID value")
					continue MessageLoop
				}

				go runMethod(method, req)
				inFlightRequests[req.Id] = req

			case "cancel":
				if !found {
					req.SendRaw("error", "'id' not found")
					continue MessageLoop
				}

				req.cancel()
				delete(inFlightRequests, req.Id)

			default:
				logger.Debug("RPC websocket got invalid value for 'kind'", log.Ctx{
					"kind":    input.Kind,
					"message": string(message),
				})

				req.SendRaw("error", "invalid value for 'kind'")
			}
		}
	}
}

func runMethod(method handler, rawReq *streamRequest) {
	defer rawReq.cancel()

	logger.Debug("starting up RPC stream", log.Ctx{
		"method": rawReq.Method,
		"id":     rawReq.Id,
	})

	rawReq.SendRaw("methodStarted", nil)

	if err := method(rawReq); err != nil {
		rawReq.SendRaw("error", err.Error())

		return
	}

	rawReq.SendRaw("methodDone", nil)
}

func (method *Stream[Input, Output]) handler(rawReq *streamRequest) error {
	req := (*StreamRequest[Input, Output])(rawReq)
	return method.Run(req)
}

func (method *Stream[Input, Output]) Register(ws *RpcWebsocket) error {
	_, ok := ws.handlers[method.Name]
	if ok {
		return fmt.Errorf("multiple streams registered to the same name: %s", method.Name)
	}

	if ws.handlers == nil {
		ws.handlers = make(map[string]handler)
	}
	ws.handlers[method.Name] = method.handler

	return nil
}

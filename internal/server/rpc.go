package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"tally.dev/internal/log"
)

type HttpError struct {
	StatusCode int
	Message    string

	// Kind is an optional machine-readable error category, like "QueryFailed"
	Kind string
}

func Errorf(statusCode int, format string, args ...interface{}) *HttpError {
	return &HttpError{
		StatusCode: statusCode,
		Message:    fmt.Sprintf(format, args...),
	}
}

type RpcRequest[Input any] struct {
	// Data is the input sent by the client
	Data Input

	// Context is the gin context of the raw HTTP request
	Context *gin.Context

	// Server is the instance serving the request
	Server *Server
}

type RpcMethod[Input any, Output any] struct {
	// Name of the method, used by the client to call it
	Name string

	// SkipInputParsing skips parsing the input, and passes the zero value
	// of the input to the handler.
	SkipInputParsing bool

	// Run implements the actual method. It must always return the same shape.
	// The error must be of type *HttpError, and therefore contain a reasonable
	// HTTP status code.
	Run func(req RpcRequest[Input]) (Output, *HttpError)
}

func sendJson(c *gin.Context, statusCode int, data interface{}) {
	var buf []byte
	var err error

	if strings.HasPrefix(c.GetHeader("User-Agent"), "curl/") {
		buf, err = json.MarshalIndent(data, "", "\t")
	} else {
		buf, err = json.Marshal(data)
	}

	if err != nil {
		if statusCode == http.StatusOK {
			statusCode = http.StatusInternalServerError
		}
		buf = []byte(fmt.Sprintf(`{"type": "error", "error": %q}`, err.Error()))
	}

	c.Data(statusCode, "application/json", buf)
}

func sendError(c *gin.Context, httpError *HttpError) {
	body := gin.H{"type": "error", "error": httpError.Message}
	if httpError.Kind != "" {
		body["kind"] = httpError.Kind
	}

	sendJson(c, httpError.StatusCode, body)
}

func (method *RpcMethod[Input, Output]) Register(server *Server, router *gin.RouterGroup) {
	router.POST("/"+method.Name, func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Err(nil, "RPC method panicked", log.Ctx{
					"method": method.Name,
					"panic":  fmt.Sprintf("%v", err),
				})
				sendError(c, Errorf(http.StatusInternalServerError, "%v", err))
			}
		}()

		var input Input

		if !method.SkipInputParsing {
			buf, err := io.ReadAll(c.Request.Body)
			if err != nil {
				sendError(c, Errorf(http.StatusInternalServerError, "%s", err))
				return
			}

			if err := json.Unmarshal(buf, &input); err != nil {
				sendError(c, Errorf(http.StatusBadRequest, "%s", err))
				return
			}
		}

		result, httpError := method.Run(RpcRequest[Input]{
			Data:    input,
			Context: c,
			Server:  server,
		})
		if httpError != nil {
			sendError(c, httpError)
		} else {
			sendJson(c, http.StatusOK, result)
		}
	})
}

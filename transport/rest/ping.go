package rest

import "net/http"

const headerNodeID = "X-Node-Id"

type PingHandler interface {
	PingHandler(w http.ResponseWriter, _ *http.Request)
}

// pingHandler answers liveness checks with the id of the serving node.
type pingHandler struct {
	node string
}

func NewPingHandler(node string) PingHandler {
	return &pingHandler{node: node}
}

func (that *pingHandler) PingHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set(headerNodeID, that.node)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("pong " + that.node)); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
}

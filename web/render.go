package web

import (
	"encoding/json"
	"net/http"
)

// jrdRender writes a JSON body with the JRD content type.
type jrdRender struct {
	data any
}

func (r jrdRender) Render(w http.ResponseWriter) error {
	r.WriteContentType(w)
	return json.NewEncoder(w).Encode(r.data)
}

func (r jrdRender) WriteContentType(w http.ResponseWriter) {
	w.Header().Set("Content-Type", jrdContentType)
}

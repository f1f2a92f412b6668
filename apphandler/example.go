package apphandler

// EchoHandler is a minimal reference Handler: it responds 200 to every
// request, and streams the request body straight back as the response
// body, closing with FIN once the request side reaches FIN. cmd/fpy3d
// serves every request with it.
type EchoHandler struct{}

func (EchoHandler) OnHeaders(s Stream, headers []Header) {
	_ = s.SendHeaders([]Header{{Name: []byte(":status"), Value: []byte("200")}}, false)
}

func (EchoHandler) OnData(s Stream, data []byte) {
	if len(data) == 0 {
		return
	}
	_ = s.SendData(data, false)
}

func (EchoHandler) OnFin(s Stream) {
	_ = s.SendData(nil, true)
}

// StaticHandler responds to every request with a fixed status and body,
// ignoring the request body entirely.
type StaticHandler struct {
	Status string
	Body   []byte
}

func (h StaticHandler) OnHeaders(s Stream, headers []Header) {
	_ = s.SendHeaders([]Header{{Name: []byte(":status"), Value: []byte(h.Status)}}, false)
}

func (StaticHandler) OnData(Stream, []byte) {}

func (h StaticHandler) OnFin(s Stream) {
	_ = s.SendData(h.Body, true)
}

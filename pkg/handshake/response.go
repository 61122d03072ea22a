// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handshake

import (
	"io"
	"net/http"
)

const (
	responseNotFound   = "HTTP/1.1 404 Not Found\r\n\r\n"
	responseBadRequest = "HTTP/1.1 400 Bad Request\r\n\r\n"
)

// Response renders the HTTP response for r.
func Response(r Result) []byte {
	switch r.Status {
	case http.StatusSwitchingProtocols:
		b := make([]byte, 0, 160)
		b = append(b, "HTTP/1.1 101 Switching Protocols\r\n"...)
		b = append(b, "Connection: Upgrade\r\n"...)
		b = append(b, "Upgrade: websocket\r\n"...)
		if r.Protocol != "" {
			b = append(b, "Sec-WebSocket-Protocol: "...)
			b = append(b, r.Protocol...)
			b = append(b, "\r\n"...)
		}
		b = append(b, "Sec-WebSocket-Accept: "...)
		b = append(b, r.AcceptKey...)
		b = append(b, "\r\n\r\n"...)
		return b
	case http.StatusNotFound:
		return []byte(responseNotFound)
	default:
		return []byte(responseBadRequest)
	}
}

// WriteResponse writes the response for r to w.
func WriteResponse(w io.Writer, r Result) error {
	_, err := w.Write(Response(r))
	return err
}

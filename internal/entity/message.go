package entity

import "encoding/json"

// Envelope is the only thing the interceptor and the bridge exchange.
type Envelope struct {
	Source   string          `json:"source"`
	Endpoint string          `json:"endpoint,omitempty"`
	JSONData json.RawMessage `json:"jsonData,omitempty"`
	BlobID   string          `json:"blobID,omitempty"`
	BlobData []byte          `json:"blobData,omitempty"`
	Blink    int64           `json:"blink,omitempty"`
}

func ReplySource(source string) string {
	return source + "-response"
}

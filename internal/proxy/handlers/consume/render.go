package consume

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/guided-traffic/body-consumer/internal/body"
	"github.com/guided-traffic/body-consumer/internal/engine"
	"github.com/guided-traffic/body-consumer/internal/storage"
)

// Result is the JSON document returned for a settled consumption
type Result struct {
	Kind   string          `json:"kind"`
	Result json.RawMessage `json:"result"`
}

// BlobResult describes a consumed blob
type BlobResult struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Size     int    `json:"size"`
	Digest   string `json:"digest"`
	Location string `json:"location,omitempty"`
	Sealed   bool   `json:"sealed,omitempty"`
}

// ArrayBufferResult describes a consumed array buffer
type ArrayBufferResult struct {
	ByteLength int    `json:"byteLength"`
	Base64     string `json:"base64"`
}

// byteSource is implemented by runtime array buffers
type byteSource interface {
	Bytes() []byte
}

// Render converts consumed data into its JSON result document. stored is
// only used for blobs and may be nil.
func Render(data body.Data, stored *storage.StoredBlob) (*Result, error) {
	var (
		raw []byte
		err error
	)

	switch d := data.(type) {
	case body.Text:
		raw, err = json.Marshal(string(d))
	case body.JSONValue:
		raw, err = renderJSONValue(d.Value)
	case *body.Blob:
		result := BlobResult{
			ID:     d.ID().String(),
			Type:   d.Type(),
			Size:   d.Size(),
			Digest: d.Digest(),
		}
		if stored != nil {
			result.Location = stored.Location
			result.Sealed = stored.Sealed
		}
		raw, err = json.Marshal(result)
	case *body.FormData:
		entries := d.Entries()
		if entries == nil {
			entries = []body.FormEntry{}
		}
		raw, err = json.Marshal(entries)
	case body.ArrayBuffer:
		buf, ok := d.Handle.(byteSource)
		if !ok {
			return nil, fmt.Errorf("array buffer handle %T exposes no bytes", d.Handle)
		}
		b := buf.Bytes()
		raw, err = json.Marshal(ArrayBufferResult{
			ByteLength: len(b),
			Base64:     base64.StdEncoding.EncodeToString(b),
		})
	default:
		return nil, fmt.Errorf("cannot render %T", data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to render %s result: %w", data.Kind(), err)
	}

	return &Result{Kind: data.Kind().String(), Result: raw}, nil
}

func renderJSONValue(value any) ([]byte, error) {
	if v, ok := value.(*structpb.Value); ok {
		return engine.Stringify(v)
	}
	if msg, ok := value.(proto.Message); ok {
		return protojson.Marshal(msg)
	}
	return json.Marshal(value)
}
